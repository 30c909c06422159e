/*
File Name:  Hash.go
Copyright:  2024 Lumen Foundation s.r.o.
*/

package protocol

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the SHA-256 digest size = 256 bits
const HashSize = 32

// Hash is an opaque 32 byte digest. Equality and ordering are defined by byte content.
type Hash [HashSize]byte

// HashData hashes the input with SHA-256.
func HashData(data []byte) (hash Hash) {
	return sha256.Sum256(data)
}

// ZeroHash is the all-zero hash. It identifies the top of an empty chain.
var ZeroHash = Hash{}

// Hex returns the lowercase 64 character textual form.
func (hash Hash) Hex() string {
	return hex.EncodeToString(hash[:])
}

func (hash Hash) String() string {
	return hash.Hex()
}

// IsZero reports whether the hash is all zero.
func (hash Hash) IsZero() bool {
	return hash == ZeroHash
}

// Less defines an ordering on hashes by byte content.
func (hash Hash) Less(other Hash) bool {
	return bytes.Compare(hash[:], other[:]) < 0
}

// ParseHash decodes a hash from its 64 character hex form.
func ParseHash(text string) (hash Hash, err error) {
	if len(text) != HashSize*2 {
		return hash, ErrInvalidSize
	}

	data, err := hex.DecodeString(text)
	if err != nil {
		return hash, ErrInvalidHex
	}

	copy(hash[:], data)
	return hash, nil
}

// Write implements the Serializer interface.
func (hash Hash) Write(writer *Writer) {
	writer.WriteHash(hash)
}

// Read implements the Serializer interface.
func (hash *Hash) Read(reader *Reader) (err error) {
	*hash, err = reader.ReadHash()
	return err
}

// HashObject hashes the canonical encoding of the value.
// The encoding defines the object identity on the wire, so it must be deterministic.
func HashObject(value Serializer) Hash {
	return HashData(ToBytes(value))
}
