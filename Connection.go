/*
File Name:  Connection.go
Copyright:  2024 Lumen Network s.r.o.

One TCP connection to a remote peer. The socket is used as two independent
halves: only the reader loop reads and only the owning writer task writes, so
no lock guards the stream. Outgoing bytes go through a bounded send mailbox;
a full mailbox means the consumer is too slow and the peer is dropped.
*/

package core

import (
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/lumenchain/core/protocol"
)

// Connection states. A connection enters the registry only in StateSuccess.
const (
	StatePending   = 0 // connection is new, no handshake received
	StateHandshake = 1 // handshake received, not verified yet
	StateSuccess   = 2 // handshake is valid
)

// readBufferSize is the scratch buffer for draining framed reads from the socket.
const readBufferSize = 512

// mailboxSize bounds the send mailbox. A peer that cannot drain this many
// pending messages is considered too slow and is dropped.
const mailboxSize = 256

// connectionMessage is one entry of the send mailbox.
type connectionMessage struct {
	data []byte
	exit bool
}

// Connection owns one TCP socket to a remote peer.
type Connection struct {
	conn    net.Conn
	addr    netip.AddrPort
	mailbox chan connectionMessage

	state       atomic.Uint32
	bytesIn     atomic.Uint64 // total bytes read. Best-effort observability, not accounting.
	bytesOut    atomic.Uint64 // total bytes written
	closed      atomic.Bool
	connectedOn time.Time

	readBuffer []byte // scratch buffer, owned by the reader loop
}

// newConnection wraps an established TCP stream.
func newConnection(conn net.Conn, addr netip.AddrPort) *Connection {
	return &Connection{
		conn:        conn,
		addr:        addr,
		mailbox:     make(chan connectionMessage, mailboxSize),
		connectedOn: time.Now(),
		readBuffer:  make([]byte, readBufferSize),
	}
}

// Address returns the remote socket address.
func (c *Connection) Address() netip.AddrPort {
	return c.addr
}

// State returns the connection state.
func (c *Connection) State() uint32 {
	return c.state.Load()
}

func (c *Connection) setState(state uint32) {
	c.state.Store(state)
}

// BytesIn returns the total bytes read from the socket.
func (c *Connection) BytesIn() uint64 {
	return c.bytesIn.Load()
}

// BytesOut returns the total bytes written to the socket.
func (c *Connection) BytesOut() uint64 {
	return c.bytesOut.Load()
}

// ConnectedOn returns when the TCP connection was established.
func (c *Connection) ConnectedOn() time.Time {
	return c.connectedOn
}

// IsClosed reports whether Close was called.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// SendBytes enqueues one encoded frame for transmission. It never blocks:
// a closed connection returns ErrDisconnected, a full mailbox ErrMailboxFull.
// The caller removes the peer in both cases.
func (c *Connection) SendBytes(data []byte) error {
	if c.closed.Load() {
		return ErrDisconnected
	}

	select {
	case c.mailbox <- connectionMessage{data: data}:
		return nil
	default:
		return ErrMailboxFull
	}
}

// writeLoop drains the send mailbox onto the socket until an exit message or
// a write failure. It is the only writer of the socket in per-peer mode.
func (c *Connection) writeLoop() {
	for message := range c.mailbox {
		if message.exit {
			return
		}
		if err := c.writeBytes(message.data); err != nil {
			return
		}
	}
}

// writeBytes writes one frame to the socket. Only the owning writer task calls it.
func (c *Connection) writeBytes(data []byte) error {
	if c.closed.Load() {
		return ErrDisconnected
	}

	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	c.bytesOut.Add(uint64(len(data)))
	return nil
}

// ReadPacket reads one full frame from the socket and decodes it.
// Only the reader loop calls it.
func (c *Connection) ReadPacket(maxSize uint32) (packet protocol.Packet, err error) {
	size, err := c.readPacketSize()
	if err != nil {
		return nil, err
	}
	if size == 0 || size > maxSize {
		return nil, protocol.ErrInvalidPacketSize
	}

	body, err := c.readAllBytes(int(size))
	if err != nil {
		return nil, err
	}

	return protocol.DecodePacket(body)
}

// readPacketSize reads the 4 byte big endian length prefix.
func (c *Connection) readPacketSize() (size uint32, err error) {
	prefix, err := c.readAllBytes(protocol.PacketLengthPrefixSize)
	if err != nil {
		return 0, err
	}
	return uint32(prefix[0])<<24 | uint32(prefix[1])<<16 | uint32(prefix[2])<<8 | uint32(prefix[3]), nil
}

// readAllBytes reads exactly left bytes, looping over short reads with the
// scratch buffer.
func (c *Connection) readAllBytes(left int) (data []byte, err error) {
	data = make([]byte, 0, left)
	for left > 0 {
		max := left
		if max > len(c.readBuffer) {
			max = len(c.readBuffer)
		}

		read, err := c.readBytesFromStream(c.readBuffer[:max])
		if err != nil {
			return nil, err
		}

		left -= read
		data = append(data, c.readBuffer[:read]...)
	}
	return data, nil
}

// readBytesFromStream performs a single read from the socket. A zero length
// read or EOF means the remote side is gone.
func (c *Connection) readBytesFromStream(buffer []byte) (read int, err error) {
	read, err = c.conn.Read(buffer)
	if read > 0 {
		c.bytesIn.Add(uint64(read))
	}
	if err == io.EOF || (read == 0 && err == nil) {
		return read, ErrDisconnected
	}
	if err != nil {
		if c.closed.Load() {
			return read, ErrDisconnected
		}
		return read, err
	}
	return read, nil
}

// setReadDeadline bounds the next reads. A zero time removes the deadline.
func (c *Connection) setReadDeadline(deadline time.Time) {
	c.conn.SetReadDeadline(deadline)
}

// Close shuts the connection down. It is idempotent and safe to call from any
// task: the exit message unblocks the writer task, closing the socket unblocks
// the reader loop.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	select {
	case c.mailbox <- connectionMessage{exit: true}:
	default:
		// mailbox full, the writer task will fail on the closed socket instead
	}

	return c.conn.Close()
}
