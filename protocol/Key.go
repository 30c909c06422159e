/*
File Name:  Key.go
Copyright:  2024 Lumen Network s.r.o.

Ed25519 key material. The private key is kept as the 32 byte seed; the full
ed25519 key is derived on demand. The seed must not leave the process except
through the explicit export functions used by the config.
Signatures are created over 32 byte digests, not over the raw object bytes.
*/

package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
)

// Key and signature sizes in bytes.
const (
	KeySize       = 32
	SignatureSize = 64
)

// PublicKey is an Ed25519 public key.
type PublicKey [KeySize]byte

// PrivateKey is an Ed25519 private key seed. It is sensitive material.
type PrivateKey [KeySize]byte

// Signature is an Ed25519 signature.
type Signature [SignatureSize]byte

// KeyPair holds a public key and its private key.
type KeyPair struct {
	PublicKey  PublicKey
	privateKey PrivateKey
}

// NewKeyPair generates a new key pair from the cryptographic RNG.
func NewKeyPair() (pair *KeyPair, err error) {
	var seed PrivateKey
	if _, err = rand.Read(seed[:]); err != nil {
		return nil, err
	}

	return KeyPairFromSeed(seed), nil
}

// KeyPairFromSeed derives the key pair from an existing private key seed.
func KeyPairFromSeed(seed PrivateKey) (pair *KeyPair) {
	key := ed25519.NewKeyFromSeed(seed[:])

	pair = &KeyPair{privateKey: seed}
	copy(pair.PublicKey[:], key.Public().(ed25519.PublicKey))
	return pair
}

// Sign signs the given 32 byte digest.
func (pair *KeyPair) Sign(hash Hash) (signature Signature) {
	key := ed25519.NewKeyFromSeed(pair.privateKey[:])
	copy(signature[:], ed25519.Sign(key, hash[:]))
	return signature
}

// ExportPrivateKey returns the private key seed in hex form for storage in the config.
func (pair *KeyPair) ExportPrivateKey() string {
	return hex.EncodeToString(pair.privateKey[:])
}

// ImportPrivateKey restores a key pair from the hex form created by ExportPrivateKey.
func ImportPrivateKey(text string) (pair *KeyPair, err error) {
	if len(text) != KeySize*2 {
		return nil, ErrInvalidSize
	}

	data, err := hex.DecodeString(text)
	if err != nil {
		return nil, ErrInvalidHex
	}

	var seed PrivateKey
	copy(seed[:], data)
	return KeyPairFromSeed(seed), nil
}

// Verify verifies the signature over the given 32 byte digest.
func (key PublicKey) Verify(hash Hash, signature Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(key[:]), hash[:], signature[:])
}

// Hex returns the hex form of the public key.
func (key PublicKey) Hex() string {
	return hex.EncodeToString(key[:])
}

// Write implements the Serializer interface.
func (key PublicKey) Write(writer *Writer) {
	writer.WriteBytes(key[:])
}

// Read implements the Serializer interface.
func (key *PublicKey) Read(reader *Reader) error {
	data, err := reader.ReadBytes(KeySize)
	if err != nil {
		return err
	}
	copy(key[:], data)
	return nil
}

// Hex returns the hex form of the signature.
func (signature Signature) Hex() string {
	return hex.EncodeToString(signature[:])
}

// Write implements the Serializer interface.
func (signature Signature) Write(writer *Writer) {
	writer.WriteBytes(signature[:])
}

// Read implements the Serializer interface.
func (signature *Signature) Read(reader *Reader) error {
	data, err := reader.ReadBytes(SignatureSize)
	if err != nil {
		return err
	}
	copy(signature[:], data)
	return nil
}
