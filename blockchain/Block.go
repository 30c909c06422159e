/*
File Name:  Block.go
Copyright:  2024 Lumen Network s.r.o.

Encoding of a block (it is the same stored in the database and shared in a message):
Offset  Size   Info
0       1      Block format version
1       8      Height
9       8      Timestamp in seconds since Unix epoch
17      32     Hash of the previous block. 0 for the genesis block.
49      8      Nonce
57      32     Public key of the miner
89      2      Count of transaction hashes that follow
91      32*n   Transaction hashes

The block identity is the SHA-256 hash of this encoding, so the encoding must
stay canonical.
*/

package blockchain

import (
	"github.com/lumenchain/core/protocol"
)

// BlockVersion is the current block format version.
const BlockVersion = 0

// MaxBlockTransactions bounds the count of transaction hashes in a single block.
const MaxBlockTransactions = 1024

// Block is a single block of the chain. Transactions are referenced by hash.
type Block struct {
	Version      uint8
	Height       uint64
	Timestamp    uint64
	PreviousHash protocol.Hash
	Nonce        uint64
	Miner        protocol.PublicKey
	TxHashes     []protocol.Hash
}

// Hash returns the block identity, the hash of the canonical encoding.
func (block *Block) Hash() protocol.Hash {
	return protocol.HashObject(block)
}

// Write implements the Serializer interface.
func (block *Block) Write(writer *protocol.Writer) {
	writer.WriteUint8(block.Version)
	writer.WriteUint64(block.Height)
	writer.WriteUint64(block.Timestamp)
	writer.WriteHash(block.PreviousHash)
	writer.WriteUint64(block.Nonce)
	block.Miner.Write(writer)

	writer.WriteUint16(uint16(len(block.TxHashes)))
	for _, hash := range block.TxHashes {
		writer.WriteHash(hash)
	}
}

// Read implements the Serializer interface.
func (block *Block) Read(reader *protocol.Reader) (err error) {
	if block.Version, err = reader.ReadUint8(); err != nil {
		return err
	}
	if block.Version != BlockVersion {
		return protocol.ErrInvalidValue
	}

	if block.Height, err = reader.ReadUint64(); err != nil {
		return err
	}
	if block.Timestamp, err = reader.ReadUint64(); err != nil {
		return err
	}
	if block.PreviousHash, err = reader.ReadHash(); err != nil {
		return err
	}
	if block.Nonce, err = reader.ReadUint64(); err != nil {
		return err
	}
	if err = block.Miner.Read(reader); err != nil {
		return err
	}

	count, err := reader.ReadUint16()
	if err != nil {
		return err
	}
	if count > MaxBlockTransactions {
		return protocol.ErrInvalidSize
	}

	block.TxHashes = make([]protocol.Hash, 0, count)
	for i := 0; i < int(count); i++ {
		hash, err := reader.ReadHash()
		if err != nil {
			return err
		}
		block.TxHashes = append(block.TxHashes, hash)
	}

	return nil
}
