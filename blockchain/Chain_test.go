package blockchain

import (
	"testing"

	"github.com/lumenchain/core/protocol"
	"github.com/lumenchain/core/store"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()

	chain, err := NewChain(store.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	return chain
}

func testBlock(t *testing.T, height uint64, previous protocol.Hash) *Block {
	t.Helper()

	pair, err := protocol.NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	return &Block{
		Height:       height,
		Timestamp:    1700000000 + height,
		PreviousHash: previous,
		Nonce:        height * 7,
		Miner:        pair.PublicKey,
	}
}

func TestChainEmpty(t *testing.T) {
	chain := newTestChain(t)

	if chain.Height() != 0 {
		t.Fatalf("Height() = %d, want 0", chain.Height())
	}
	if !chain.TopHash().IsZero() {
		t.Fatalf("TopHash() = %s, want zero", chain.TopHash())
	}
	if chain.HasBlock(protocol.HashData([]byte("x"))) {
		t.Fatal("HasBlock() on empty chain")
	}
}

func TestChainAddBlocks(t *testing.T) {
	chain := newTestChain(t)

	genesis := testBlock(t, 0, protocol.ZeroHash)
	if err := chain.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	if chain.Height() != 0 || chain.TopHash() != genesis.Hash() {
		t.Fatalf("after genesis: height %d, top %s", chain.Height(), chain.TopHash())
	}

	next := testBlock(t, 1, genesis.Hash())
	if err := chain.AddBlock(next); err != nil {
		t.Fatal(err)
	}
	if chain.Height() != 1 || chain.TopHash() != next.Hash() {
		t.Fatalf("after block 1: height %d, top %s", chain.Height(), chain.TopHash())
	}

	// lookup by hash and by height
	if !chain.HasBlock(genesis.Hash()) {
		t.Fatal("genesis not stored")
	}
	decoded, found := chain.GetBlock(next.Hash())
	if !found || decoded.Height != 1 || decoded.PreviousHash != genesis.Hash() {
		t.Fatalf("GetBlock() = %+v, %v", decoded, found)
	}
	hash, found := chain.HashAtHeight(0)
	if !found || hash != genesis.Hash() {
		t.Fatalf("HashAtHeight(0) = %s, %v", hash, found)
	}
}

func TestChainRejectsWrongExtension(t *testing.T) {
	chain := newTestChain(t)

	// first block must be height 0 with a zero previous hash
	if err := chain.AddBlock(testBlock(t, 1, protocol.ZeroHash)); err != ErrInvalidHeight {
		t.Fatalf("err = %v, want ErrInvalidHeight", err)
	}
	if err := chain.AddBlock(testBlock(t, 0, protocol.HashData([]byte("not zero")))); err != ErrPreviousHashMismatch {
		t.Fatalf("err = %v, want ErrPreviousHashMismatch", err)
	}

	genesis := testBlock(t, 0, protocol.ZeroHash)
	if err := chain.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	if err := chain.AddBlock(testBlock(t, 3, genesis.Hash())); err != ErrInvalidHeight {
		t.Fatalf("skip ahead: err = %v, want ErrInvalidHeight", err)
	}
	if err := chain.AddBlock(testBlock(t, 1, protocol.HashData([]byte("fork")))); err != ErrPreviousHashMismatch {
		t.Fatalf("fork: err = %v, want ErrPreviousHashMismatch", err)
	}
}

func TestChainHeaderPersistence(t *testing.T) {
	database := store.NewMemoryStore()

	chain, err := NewChain(database)
	if err != nil {
		t.Fatal(err)
	}

	genesis := testBlock(t, 0, protocol.ZeroHash)
	if err := chain.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}
	next := testBlock(t, 1, genesis.Hash())
	if err := chain.AddBlock(next); err != nil {
		t.Fatal(err)
	}

	// reopen over the same store
	reopened, err := NewChain(database)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Height() != 1 || reopened.TopHash() != next.Hash() {
		t.Fatalf("reopened: height %d, top %s", reopened.Height(), reopened.TopHash())
	}
}

func TestChainHashWindow(t *testing.T) {
	chain := newTestChain(t)

	previous := protocol.ZeroHash
	var hashes []protocol.Hash
	for height := uint64(0); height < 5; height++ {
		block := testBlock(t, height, previous)
		if err := chain.AddBlock(block); err != nil {
			t.Fatal(err)
		}
		previous = block.Hash()
		hashes = append(hashes, block.Hash())
	}

	window := chain.HashWindow(1, 3)
	if len(window) != 3 || window[0] != hashes[1] || window[2] != hashes[3] {
		t.Fatalf("HashWindow(1, 3) = %v", window)
	}

	// window stops at the chain top
	window = chain.HashWindow(3, 10)
	if len(window) != 2 {
		t.Fatalf("HashWindow(3, 10) returned %d hashes, want 2", len(window))
	}

	if window = chain.HashWindow(100, 5); len(window) != 0 {
		t.Fatalf("HashWindow(100, 5) returned %d hashes, want 0", len(window))
	}
}

func TestTransactionSignAndStore(t *testing.T) {
	chain := newTestChain(t)

	pair, err := protocol.NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	tx := &Transaction{Nonce: 1, Fee: 10, Payload: []byte("transfer")}
	tx.Sign(pair)

	if !tx.VerifySignature() {
		t.Fatal("signature does not verify")
	}

	if err := chain.AddTransaction(tx); err != nil {
		t.Fatal(err)
	}
	if !chain.HasTransaction(tx.Hash()) {
		t.Fatal("transaction not stored")
	}

	decoded, found := chain.GetTransaction(tx.Hash())
	if !found || decoded.Nonce != 1 || decoded.Fee != 10 || string(decoded.Payload) != "transfer" {
		t.Fatalf("GetTransaction() = %+v, %v", decoded, found)
	}
	if !decoded.VerifySignature() {
		t.Fatal("decoded transaction signature does not verify")
	}

	// tampered signature is rejected
	tampered := &Transaction{Nonce: 2, Fee: 1, Payload: []byte("x")}
	tampered.Sign(pair)
	tampered.Payload = []byte("y")
	if err := chain.AddTransaction(tampered); err != ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	pair, err := protocol.NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := &Block{
		Height:       9,
		Timestamp:    1700000009,
		PreviousHash: protocol.HashData([]byte("prev")),
		Nonce:        1234,
		Miner:        pair.PublicKey,
		TxHashes:     []protocol.Hash{protocol.HashData([]byte("t1")), protocol.HashData([]byte("t2"))},
	}

	decoded := &Block{}
	if err := protocol.FromBytes(protocol.ToBytes(block), decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Hash() != block.Hash() {
		t.Fatal("decoded block hash differs")
	}
	if len(decoded.TxHashes) != 2 || decoded.TxHashes[1] != block.TxHashes[1] {
		t.Fatalf("decoded = %+v", decoded)
	}
}
