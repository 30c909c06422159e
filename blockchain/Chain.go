/*
File Name:  Chain.go
Copyright:  2024 Lumen Network s.r.o.

Blocks and transactions are stored in a key-value database, keyed by their
hash with a one byte prefix. A height index maps each block height to the
block hash so that chain requests can be answered by height.

Keys:
'B' + hash     block bytes
'T' + hash     transaction bytes
'H' + height   block hash, height as 64-bit unsigned integer big endian
"header"       8 bytes top height + 32 bytes top hash

This package keeps the P2P layer honest about what it needs from a chain:
height, top hash and object lookup. Validation beyond structural checks is
not performed here.
*/

package blockchain

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/lumenchain/core/protocol"
	"github.com/lumenchain/core/store"
)

// Chain errors. They indicate structurally unacceptable input, not policy decisions.
var (
	ErrInvalidHeight        = errors.New("block height does not extend the chain")
	ErrPreviousHashMismatch = errors.New("previous hash does not match the chain top")
	ErrInvalidSignature     = errors.New("transaction signature does not verify")
	ErrCorruptHeader        = errors.New("corrupt chain header")
)

var keyHeader = []byte("header")

// Chain is the chain state backed by a key-value store. The header (height
// and top hash) is kept in memory and synced to disk on every change.
type Chain struct {
	mutex    sync.RWMutex
	database store.Store
	height   uint64        // height of the top block. Only meaningful if !empty.
	topHash  protocol.Hash // hash of the top block. Zero if empty.
	empty    bool          // no block stored yet
}

// NewChain opens the chain state over the given store.
func NewChain(database store.Store) (chain *Chain, err error) {
	chain = &Chain{database: database, empty: true}

	header, found := database.Get(keyHeader)
	if !found {
		return chain, nil
	}
	if len(header) != 8+protocol.HashSize {
		return nil, ErrCorruptHeader
	}

	chain.empty = false
	chain.height = binary.BigEndian.Uint64(header[0:8])
	copy(chain.topHash[:], header[8:])
	return chain, nil
}

// Height returns the height of the top block. 0 for an empty chain.
func (chain *Chain) Height() uint64 {
	chain.mutex.RLock()
	defer chain.mutex.RUnlock()

	if chain.empty {
		return 0
	}
	return chain.height
}

// TopHash returns the hash of the top block. Zero for an empty chain.
func (chain *Chain) TopHash() protocol.Hash {
	chain.mutex.RLock()
	defer chain.mutex.RUnlock()
	return chain.topHash
}

// HasBlock reports whether the block is stored.
func (chain *Chain) HasBlock(hash protocol.Hash) bool {
	return chain.database.Has(keyBlock(hash))
}

// BlockBytes returns the serialized block if stored.
func (chain *Chain) BlockBytes(hash protocol.Hash) (data []byte, found bool) {
	return chain.database.Get(keyBlock(hash))
}

// GetBlock returns the decoded block if stored.
func (chain *Chain) GetBlock(hash protocol.Hash) (block *Block, found bool) {
	data, found := chain.database.Get(keyBlock(hash))
	if !found {
		return nil, false
	}

	block = &Block{}
	if err := protocol.FromBytes(data, block); err != nil {
		return nil, false
	}
	return block, true
}

// HasTransaction reports whether the transaction is stored.
func (chain *Chain) HasTransaction(hash protocol.Hash) bool {
	return chain.database.Has(keyTransaction(hash))
}

// TransactionBytes returns the serialized transaction if stored.
func (chain *Chain) TransactionBytes(hash protocol.Hash) (data []byte, found bool) {
	return chain.database.Get(keyTransaction(hash))
}

// GetTransaction returns the decoded transaction if stored.
func (chain *Chain) GetTransaction(hash protocol.Hash) (tx *Transaction, found bool) {
	data, found := chain.database.Get(keyTransaction(hash))
	if !found {
		return nil, false
	}

	tx = &Transaction{}
	if err := protocol.FromBytes(data, tx); err != nil {
		return nil, false
	}
	return tx, true
}

// AddTransaction stores a transaction after verifying its signature.
func (chain *Chain) AddTransaction(tx *Transaction) error {
	if !tx.VerifySignature() {
		return ErrInvalidSignature
	}
	return chain.database.Set(keyTransaction(tx.Hash()), protocol.ToBytes(tx))
}

// AddBlock appends a block to the chain. The block must extend the current
// top: the first block requires height 0 and a zero previous hash, any other
// block requires height top+1 and the top hash as previous hash.
func (chain *Chain) AddBlock(block *Block) error {
	chain.mutex.Lock()
	defer chain.mutex.Unlock()

	if chain.empty {
		if block.Height != 0 {
			return ErrInvalidHeight
		}
		if !block.PreviousHash.IsZero() {
			return ErrPreviousHashMismatch
		}
	} else {
		if block.Height != chain.height+1 {
			return ErrInvalidHeight
		}
		if block.PreviousHash != chain.topHash {
			return ErrPreviousHashMismatch
		}
	}

	hash := block.Hash()

	if err := chain.database.Set(keyBlock(hash), protocol.ToBytes(block)); err != nil {
		return err
	}
	if err := chain.database.Set(keyHeight(block.Height), hash[:]); err != nil {
		return err
	}

	chain.empty = false
	chain.height = block.Height
	chain.topHash = hash

	return chain.headerWrite()
}

// HashAtHeight returns the block hash stored at the given height.
func (chain *Chain) HashAtHeight(height uint64) (hash protocol.Hash, found bool) {
	data, found := chain.database.Get(keyHeight(height))
	if !found || len(data) != protocol.HashSize {
		return hash, false
	}
	copy(hash[:], data)
	return hash, true
}

// HashWindow returns up to max consecutive block hashes starting at the given
// height. It stops at the first missing height.
func (chain *Chain) HashWindow(height uint64, max int) (hashes []protocol.Hash) {
	for i := 0; i < max; i++ {
		hash, found := chain.HashAtHeight(height + uint64(i))
		if !found {
			break
		}
		hashes = append(hashes, hash)
	}
	return hashes
}

// Count returns the count of stored records: blocks, transactions, height
// index entries and the header combined.
func (chain *Chain) Count() uint64 {
	return chain.database.Count()
}

// Close syncs and closes the underlying store.
func (chain *Chain) Close() error {
	return chain.database.Close()
}

// headerWrite syncs the in-memory header to disk. Callers hold the write lock.
func (chain *Chain) headerWrite() error {
	header := make([]byte, 8+protocol.HashSize)
	binary.BigEndian.PutUint64(header[0:8], chain.height)
	copy(header[8:], chain.topHash[:])
	return chain.database.Set(keyHeader, header)
}

func keyBlock(hash protocol.Hash) []byte {
	return append([]byte{'B'}, hash[:]...)
}

func keyTransaction(hash protocol.Hash) []byte {
	return append([]byte{'T'}, hash[:]...)
}

func keyHeight(height uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'H'
	binary.BigEndian.PutUint64(key[1:], height)
	return key
}
