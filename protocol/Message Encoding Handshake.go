/*
File Name:  Message Encoding Handshake.go
Copyright:  2024 Lumen Network s.r.o.

The handshake is the first packet sent on every new connection. The receiver
verifies the network ID and peer ID before the connection enters the registry;
an inbound connection is answered with the local handshake.
The peer list shares addresses of already connected peers so that the remote
can extend its own peer set.
*/

package protocol

import (
	"net/netip"
)

// HandshakeMaxLength bounds the version string, the node tag and the shared peer list.
const HandshakeMaxLength = 16

// Handshake is the negotiation message. Field order matches the wire layout.
type Handshake struct {
	Version      string           // daemon version, 1 to 16 bytes
	NodeTag      string           // optional node tag, up to 16 bytes, empty = absent
	NetworkID    [16]byte         // compile-time network constant, must match on both sides
	PeerID       uint64           // random peer ID generated by the emitter
	LocalPort    uint16           // inbound listen port of the emitter
	UTCTime      uint64           // seconds since Unix epoch, advisory only
	BlockHeight  uint64           // current chain height of the emitter
	BlockTopHash Hash             // current top block hash of the emitter
	Peers        []netip.AddrPort // up to 16 peers the emitter is connected to
}

// Command implements the Packet interface.
func (handshake *Handshake) Command() uint8 {
	return CommandHandshake
}

// Validate checks the bounds that Read enforces on the receiving side, for a
// handshake built from local state. Write and EncodePacket do not call it.
func (handshake *Handshake) Validate() error {
	if len(handshake.Version) == 0 || len(handshake.Version) > HandshakeMaxLength {
		return ErrInvalidSize
	}
	if len(handshake.NodeTag) > HandshakeMaxLength {
		return ErrInvalidSize
	}
	if len(handshake.Peers) > HandshakeMaxLength {
		return ErrInvalidSize
	}
	return nil
}

// Write implements the Serializer interface.
func (handshake *Handshake) Write(writer *Writer) {
	writer.WriteString(handshake.Version)
	writer.WriteOptionalString(handshake.NodeTag)
	writer.WriteBytes(handshake.NetworkID[:])
	writer.WriteUint64(handshake.PeerID)
	writer.WriteUint16(handshake.LocalPort)
	writer.WriteUint64(handshake.UTCTime)
	writer.WriteUint64(handshake.BlockHeight)
	writer.WriteHash(handshake.BlockTopHash)

	writer.WriteUint8(uint8(len(handshake.Peers)))
	for _, peer := range handshake.Peers {
		WriteAddress(writer, peer)
	}
}

// Read implements the Serializer interface.
// Every size is verified before reading so that a malformed handshake can never cause a panic.
func (handshake *Handshake) Read(reader *Reader) (err error) {
	if handshake.Version, err = reader.ReadString(); err != nil {
		return err
	}
	if len(handshake.Version) == 0 || len(handshake.Version) > HandshakeMaxLength {
		return ErrInvalidSize
	}

	if handshake.NodeTag, err = reader.ReadOptionalString(); err != nil {
		return err
	}
	if len(handshake.NodeTag) > HandshakeMaxLength {
		return ErrInvalidSize
	}

	networkID, err := reader.ReadBytes(16)
	if err != nil {
		return err
	}
	copy(handshake.NetworkID[:], networkID)

	if handshake.PeerID, err = reader.ReadUint64(); err != nil {
		return err
	}
	if handshake.LocalPort, err = reader.ReadUint16(); err != nil {
		return err
	}
	if handshake.UTCTime, err = reader.ReadUint64(); err != nil {
		return err
	}
	if handshake.BlockHeight, err = reader.ReadUint64(); err != nil {
		return err
	}
	if handshake.BlockTopHash, err = reader.ReadHash(); err != nil {
		return err
	}

	count, err := reader.ReadUint8()
	if err != nil {
		return err
	}
	if count > HandshakeMaxLength {
		return ErrInvalidSize
	}

	handshake.Peers = make([]netip.AddrPort, 0, count)
	for i := 0; i < int(count); i++ {
		peer, err := ReadAddress(reader)
		if err != nil {
			return err
		}
		handshake.Peers = append(handshake.Peers, peer)
	}

	return nil
}
