/*
File Name:  Lumen.go
Copyright:  2024 Lumen Network s.r.o.

Backend wiring. Init loads the config, sets up logging, the node identity and
the chain database; Connect brings the P2P server up. The chain is consumed
through the Chain interface so that the networking layer never depends on
storage details.
*/

package core

import (
	"net/netip"
	"path/filepath"

	"github.com/lumenchain/core/blockchain"
	"github.com/lumenchain/core/protocol"
	"github.com/lumenchain/core/store"
)

// Chain is what the P2P layer needs to know about the chain. Validation and
// sync policy stay with the chain collaborator.
type Chain interface {
	// Height returns the current chain height.
	Height() uint64

	// TopHash returns the hash of the top block.
	TopHash() protocol.Hash

	// HasBlock reports whether the block is stored.
	HasBlock(hash protocol.Hash) bool

	// BlockBytes returns the serialized block if stored.
	BlockBytes(hash protocol.Hash) (data []byte, found bool)

	// HasTransaction reports whether the transaction is stored.
	HasTransaction(hash protocol.Hash) bool

	// TransactionBytes returns the serialized transaction if stored.
	TransactionBytes(hash protocol.Hash) (data []byte, found bool)

	// HashWindow returns up to max consecutive block hashes starting at the given height.
	HashWindow(height uint64, max int) []protocol.Hash
}

// Backend is one running node instance.
type Backend struct {
	ConfigFilename string
	Config         Config

	PeerID  uint64
	KeyPair *protocol.KeyPair
	Chain   Chain
	Server  *P2pServer

	networkID [16]byte
	localPort uint16
	database  store.Store
}

// Init initializes the node. The returned status is one of the ExitX codes;
// anything other than ExitSuccess indicates a fatal failure.
func Init(configFilename string) (backend *Backend, status int, err error) {
	backend = &Backend{ConfigFilename: configFilename}

	// the configuration and log init are fatal events if they fail
	if status, err = LoadConfig(configFilename, &backend.Config); status != ExitSuccess {
		return nil, status, err
	}
	if err = backend.initLog(); err != nil {
		return nil, ExitErrorLogInit, err
	}

	if backend.networkID, err = backend.Config.parseNetworkID(); err != nil {
		return nil, ExitErrorConfigParse, err
	}

	listen, err := netip.ParseAddrPort(backend.Config.Listen)
	if err != nil {
		return nil, ExitErrorConfigParse, err
	}
	backend.localPort = listen.Port()

	if status, err = backend.initPeerID(); status != ExitSuccess {
		return nil, status, err
	}

	if backend.database, err = store.New(backend.Config.StoreBackend, filepath.Join(backend.Config.DataFolder, "chain")); err != nil {
		return nil, ExitChainCorrupt, err
	}

	chain, err := blockchain.NewChain(backend.database)
	if err != nil {
		return nil, ExitChainCorrupt, err
	}
	backend.Chain = chain

	backend.Server = newP2pServer(backend)

	return backend, ExitSuccess, nil
}

// Connect binds the P2P listener and starts bootstrapping from the seed nodes.
func (backend *Backend) Connect() (err error) {
	return backend.Server.Start()
}

// Stop shuts the node down gracefully: peers are closed, the listener stops,
// the chain database is synced to disk.
func (backend *Backend) Stop() {
	if backend.Server != nil {
		backend.Server.Stop()
	}
	if backend.database != nil {
		backend.database.Close()
	}
}
