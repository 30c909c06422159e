/*
File Name:  Packet Encoding.go
Copyright:  2024 Lumen Network s.r.o.

Basic frame structure of ALL packets on the wire:
Offset  Size   Info
0       4      Length of command + payload, big endian. Never 0, never above the packet size limit.
4       1      Command
5       ?      Payload, encoded per command

The length field itself is not counted. The connection layer reads the length
and hands the remaining bytes of one frame to DecodePacket.
*/

package protocol

import (
	"errors"
)

// Packet errors. They are peer-fatal: the connection delivering such a frame is closed.
var (
	ErrInvalidPacket            = errors.New("invalid packet command")
	ErrInvalidPacketSize        = errors.New("packet size exceeds limit")
	ErrInvalidPacketNotFullRead = errors.New("packet with unused trailing bytes")
)

// Commands identify the packet type. They are the first byte after the length prefix.
const (
	CommandHandshake      = 0 // First packet on every connection. See Message Encoding Handshake.go
	CommandObjectRequest  = 1 // Request a block or transaction by hash.
	CommandObjectResponse = 2 // Response carrying the object, or not found.
	CommandPing           = 3 // Keep-alive carrying the current chain head.
	CommandPeerList       = 4 // Gossip of connected peer addresses.
	CommandChainRequest   = 5 // Request a window of block hashes above a height.
	CommandChainResponse  = 6 // Response to a chain request.
)

// PacketLengthPrefixSize is the size of the frame length field.
const PacketLengthPrefixSize = 4

// MaxPacketSizeDefault is the default limit for command + payload of a single frame.
const MaxPacketSizeDefault = 1024 * 1024

// Packet is a decoded wire message.
type Packet interface {
	Serializer

	// Command returns the command byte identifying the packet type on the wire.
	Command() uint8
}

// EncodePacket encodes the packet into a full frame including the length prefix.
func EncodePacket(packet Packet, maxSize uint32) (frame []byte, err error) {
	writer := NewWriter()
	writer.WriteUint32(0) // length placeholder
	writer.WriteUint8(packet.Command())
	packet.Write(writer)

	frame = writer.Bytes()

	length := uint32(len(frame) - PacketLengthPrefixSize)
	if length == 0 || length > maxSize {
		return nil, ErrInvalidPacketSize
	}

	frame[0] = byte(length >> 24)
	frame[1] = byte(length >> 16)
	frame[2] = byte(length >> 8)
	frame[3] = byte(length)

	return frame, nil
}

// DecodePacket decodes one frame body (command byte + payload, without the length prefix).
// Every byte of the body must be consumed by the decoder.
func DecodePacket(body []byte) (packet Packet, err error) {
	reader := NewReader(body)

	command, err := reader.ReadUint8()
	if err != nil {
		return nil, err
	}

	switch command {
	case CommandHandshake:
		packet = &Handshake{}
	case CommandObjectRequest:
		packet = &ObjectRequest{}
	case CommandObjectResponse:
		packet = &ObjectResponse{}
	case CommandPing:
		packet = &Ping{}
	case CommandPeerList:
		packet = &PeerList{}
	case CommandChainRequest:
		packet = &ChainRequest{}
	case CommandChainResponse:
		packet = &ChainResponse{}
	default:
		return nil, ErrInvalidPacket
	}

	if err = packet.Read(reader); err != nil {
		return nil, err
	}
	if reader.Size() != 0 {
		return nil, ErrInvalidPacketNotFullRead
	}

	return packet, nil
}
