/*
File Name:  Message Encoding Sync.go
Copyright:  2024 Lumen Network s.r.o.

Keep-alive and synchronization packets: Ping carries the current chain head,
PeerList gossips connected peer addresses, ChainRequest/ChainResponse exchange
a window of block hashes above a given height. Peers sending Ping, PeerList or
ChainRequest faster than the protocol intervals are dropped.
*/

package protocol

import (
	"net/netip"
)

// ChainResponseMaxHashes bounds the hash window of a single chain response.
const ChainResponseMaxHashes = 64

// Ping is the keep-alive packet. It refreshes the remote view of our chain head.
type Ping struct {
	BlockHeight  uint64
	BlockTopHash Hash
}

// Command implements the Packet interface.
func (ping *Ping) Command() uint8 {
	return CommandPing
}

// Write implements the Serializer interface.
func (ping *Ping) Write(writer *Writer) {
	writer.WriteUint64(ping.BlockHeight)
	writer.WriteHash(ping.BlockTopHash)
}

// Read implements the Serializer interface.
func (ping *Ping) Read(reader *Reader) (err error) {
	if ping.BlockHeight, err = reader.ReadUint64(); err != nil {
		return err
	}
	ping.BlockTopHash, err = reader.ReadHash()
	return err
}

// PeerList gossips up to 16 peer addresses, same bound as the handshake list.
type PeerList struct {
	Peers []netip.AddrPort
}

// Command implements the Packet interface.
func (list *PeerList) Command() uint8 {
	return CommandPeerList
}

// Write implements the Serializer interface.
func (list *PeerList) Write(writer *Writer) {
	writer.WriteUint8(uint8(len(list.Peers)))
	for _, peer := range list.Peers {
		WriteAddress(writer, peer)
	}
}

// Read implements the Serializer interface.
func (list *PeerList) Read(reader *Reader) (err error) {
	count, err := reader.ReadUint8()
	if err != nil {
		return err
	}
	if count > HandshakeMaxLength {
		return ErrInvalidSize
	}

	list.Peers = make([]netip.AddrPort, 0, count)
	for i := 0; i < int(count); i++ {
		peer, err := ReadAddress(reader)
		if err != nil {
			return err
		}
		list.Peers = append(list.Peers, peer)
	}

	return nil
}

// ChainRequest asks for block hashes above the given height. The top hash
// tells the remote which chain view the requester currently holds.
type ChainRequest struct {
	BlockHeight  uint64
	BlockTopHash Hash
}

// Command implements the Packet interface.
func (request *ChainRequest) Command() uint8 {
	return CommandChainRequest
}

// Write implements the Serializer interface.
func (request *ChainRequest) Write(writer *Writer) {
	writer.WriteUint64(request.BlockHeight)
	writer.WriteHash(request.BlockTopHash)
}

// Read implements the Serializer interface.
func (request *ChainRequest) Read(reader *Reader) (err error) {
	if request.BlockHeight, err = reader.ReadUint64(); err != nil {
		return err
	}
	request.BlockTopHash, err = reader.ReadHash()
	return err
}

// ChainResponse answers a ChainRequest with consecutive block hashes starting
// directly above the requested height.
type ChainResponse struct {
	BlockHeight uint64 // height of the first returned hash
	Hashes      []Hash
}

// Command implements the Packet interface.
func (response *ChainResponse) Command() uint8 {
	return CommandChainResponse
}

// Write implements the Serializer interface.
func (response *ChainResponse) Write(writer *Writer) {
	writer.WriteUint64(response.BlockHeight)
	writer.WriteUint8(uint8(len(response.Hashes)))
	for _, hash := range response.Hashes {
		writer.WriteHash(hash)
	}
}

// Read implements the Serializer interface.
func (response *ChainResponse) Read(reader *Reader) (err error) {
	if response.BlockHeight, err = reader.ReadUint64(); err != nil {
		return err
	}

	count, err := reader.ReadUint8()
	if err != nil {
		return err
	}
	if count > ChainResponseMaxHashes {
		return ErrInvalidSize
	}

	response.Hashes = make([]Hash, 0, count)
	for i := 0; i < int(count); i++ {
		hash, err := reader.ReadHash()
		if err != nil {
			return err
		}
		response.Hashes = append(response.Hashes, hash)
	}

	return nil
}
