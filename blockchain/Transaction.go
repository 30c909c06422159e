/*
File Name:  Transaction.go
Copyright:  2024 Lumen Network s.r.o.

Encoding of a transaction:
Offset  Size   Info
0       1      Transaction format version
1       8      Nonce of the sender account
9       8      Fee
17      32     Public key of the sender
49      2      Payload size
51      ?      Payload
?       64     Signature over the hash of everything before it

The transaction identity is the SHA-256 hash of the full encoding including
the signature.
*/

package blockchain

import (
	"github.com/lumenchain/core/protocol"
)

// TransactionVersion is the current transaction format version.
const TransactionVersion = 0

// MaxTransactionPayload bounds the payload size of a single transaction.
const MaxTransactionPayload = 4096

// Transaction is a single signed transaction.
type Transaction struct {
	Version   uint8
	Nonce     uint64
	Fee       uint64
	Sender    protocol.PublicKey
	Payload   []byte
	Signature protocol.Signature
}

// Hash returns the transaction identity, the hash of the full canonical encoding.
func (tx *Transaction) Hash() protocol.Hash {
	return protocol.HashObject(tx)
}

// signingHash is the digest the signature covers: everything before the signature.
func (tx *Transaction) signingHash() protocol.Hash {
	writer := protocol.NewWriter()
	tx.writeContent(writer)
	return protocol.HashData(writer.Bytes())
}

// Sign signs the transaction with the given key pair. The sender must match the pair.
func (tx *Transaction) Sign(pair *protocol.KeyPair) {
	tx.Sender = pair.PublicKey
	tx.Signature = pair.Sign(tx.signingHash())
}

// VerifySignature verifies the signature against the sender key.
func (tx *Transaction) VerifySignature() bool {
	return tx.Sender.Verify(tx.signingHash(), tx.Signature)
}

func (tx *Transaction) writeContent(writer *protocol.Writer) {
	writer.WriteUint8(tx.Version)
	writer.WriteUint64(tx.Nonce)
	writer.WriteUint64(tx.Fee)
	tx.Sender.Write(writer)
	writer.WriteUint16(uint16(len(tx.Payload)))
	writer.WriteBytes(tx.Payload)
}

// Write implements the Serializer interface.
func (tx *Transaction) Write(writer *protocol.Writer) {
	tx.writeContent(writer)
	tx.Signature.Write(writer)
}

// Read implements the Serializer interface.
func (tx *Transaction) Read(reader *protocol.Reader) (err error) {
	if tx.Version, err = reader.ReadUint8(); err != nil {
		return err
	}
	if tx.Version != TransactionVersion {
		return protocol.ErrInvalidValue
	}

	if tx.Nonce, err = reader.ReadUint64(); err != nil {
		return err
	}
	if tx.Fee, err = reader.ReadUint64(); err != nil {
		return err
	}
	if err = tx.Sender.Read(reader); err != nil {
		return err
	}

	size, err := reader.ReadUint16()
	if err != nil {
		return err
	}
	if size > MaxTransactionPayload {
		return protocol.ErrInvalidSize
	}
	if tx.Payload, err = reader.ReadBytes(int(size)); err != nil {
		return err
	}

	return tx.Signature.Read(reader)
}
