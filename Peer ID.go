/*
File Name:  Peer ID.go
Copyright:  2024 Lumen Network s.r.o.

Node identity. The Ed25519 key pair is loaded from the config or generated on
first start and saved back. The peer ID is a random 64-bit number generated
fresh on every start; it identifies this node within the current peer set and
is deliberately not persisted.
*/

package core

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/lumenchain/core/protocol"
	"github.com/rs/zerolog/log"
)

// initPeerID loads or creates the key pair and draws the random peer ID.
func (backend *Backend) initPeerID() (status int, err error) {
	// load existing key from the config, if available
	if len(backend.Config.PrivateKey) > 0 {
		if backend.KeyPair, err = protocol.ImportPrivateKey(backend.Config.PrivateKey); err != nil {
			log.Error().Err(err).Msg("private key in config is corrupt")
			return ExitPrivateKeyCorrupt, err
		}
	} else {
		// create a new key pair and save it into the config
		if backend.KeyPair, err = protocol.NewKeyPair(); err != nil {
			log.Error().Err(err).Msg("generating key pair failed")
			return ExitPrivateKeyCreate, err
		}

		backend.Config.PrivateKey = backend.KeyPair.ExportPrivateKey()
		backend.saveConfig()
	}

	if backend.PeerID, err = newPeerID(); err != nil {
		return ExitPrivateKeyCreate, err
	}

	log.Info().Uint64("peer id", backend.PeerID).Str("public key", backend.KeyPair.PublicKey.Hex()).Msg("node identity ready")
	return ExitSuccess, nil
}

// newPeerID draws a random non-zero 64-bit peer ID from the cryptographic RNG.
func newPeerID() (peerID uint64, err error) {
	var buffer [8]byte
	for peerID == 0 {
		if _, err = rand.Read(buffer[:]); err != nil {
			return 0, err
		}
		peerID = binary.BigEndian.Uint64(buffer[:])
	}
	return peerID, nil
}
