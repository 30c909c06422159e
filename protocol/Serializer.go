/*
File Name:  Serializer.go
Copyright:  2024 Lumen Network s.r.o.

Cursor based decoding and encoding of wire data. Every read checks the
remaining length before touching the underlying buffer so that truncated or
malformed input results in an error, never in a panic.
All integers are big endian. Strings are length prefixed with a single byte.
*/

package protocol

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

// Decoding errors returned by the Reader. They are shared by all message decoders.
var (
	ErrInvalidSize  = errors.New("invalid size")
	ErrInvalidValue = errors.New("invalid value")
	ErrInvalidHex   = errors.New("invalid hex")
)

// Serializer is implemented by every type that has a canonical wire encoding.
// The encoding must be deterministic. Read is the exact inverse of Write.
type Serializer interface {
	Write(writer *Writer)
	Read(reader *Reader) error
}

// Reader decodes wire data from an immutable byte slice.
type Reader struct {
	bytes []byte // bytes to read
	total int    // total read bytes
}

// NewReader creates a Reader over the given bytes. The slice is not copied.
func NewReader(bytes []byte) *Reader {
	return &Reader{bytes: bytes}
}

// ReadBytes reads exactly n bytes and advances the cursor.
func (reader *Reader) ReadBytes(n int) (data []byte, err error) {
	if n < 0 || n > reader.Size() {
		return nil, ErrInvalidSize
	}

	data = reader.bytes[reader.total : reader.total+n]
	reader.total += n
	return data, nil
}

// ReadUint8 reads a single byte.
func (reader *Reader) ReadUint8() (number uint8, err error) {
	if reader.Size() == 0 {
		return 0, ErrInvalidSize
	}

	number = reader.bytes[reader.total]
	reader.total++
	return number, nil
}

// ReadUint16 reads a big endian 16-bit unsigned integer.
func (reader *Reader) ReadUint16() (number uint16, err error) {
	data, err := reader.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data), nil
}

// ReadUint32 reads a big endian 32-bit unsigned integer.
func (reader *Reader) ReadUint32() (number uint32, err error) {
	data, err := reader.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

// ReadUint64 reads a big endian 64-bit unsigned integer.
func (reader *Reader) ReadUint64() (number uint64, err error) {
	data, err := reader.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// ReadUint128 reads a big endian 128-bit unsigned integer as a high and low part.
func (reader *Reader) ReadUint128() (high, low uint64, err error) {
	data, err := reader.ReadBytes(16)
	if err != nil {
		return 0, 0, err
	}
	return binary.BigEndian.Uint64(data[0:8]), binary.BigEndian.Uint64(data[8:16]), nil
}

// ReadBool reads a single byte. 1 is true, any other value is false.
func (reader *Reader) ReadBool() (value bool, err error) {
	number, err := reader.ReadUint8()
	if err != nil {
		return false, err
	}
	return number == 1, nil
}

// ReadHash reads a 32 byte hash.
func (reader *Reader) ReadHash() (hash Hash, err error) {
	data, err := reader.ReadBytes(HashSize)
	if err != nil {
		return hash, err
	}
	copy(hash[:], data)
	return hash, nil
}

// ReadString reads a string with a single length prefix byte. The bytes must be valid UTF-8.
func (reader *Reader) ReadString() (text string, err error) {
	length, err := reader.ReadUint8()
	if err != nil {
		return "", err
	}
	return reader.readStringWithSize(int(length))
}

// ReadOptionalString reads a string with a single length prefix byte. A length of 0 means absent.
func (reader *Reader) ReadOptionalString() (text string, err error) {
	length, err := reader.ReadUint8()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	return reader.readStringWithSize(int(length))
}

func (reader *Reader) readStringWithSize(size int) (text string, err error) {
	data, err := reader.ReadBytes(size)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidValue
	}
	return string(data), nil
}

// Size returns the count of remaining unread bytes.
func (reader *Reader) Size() int {
	return len(reader.bytes) - reader.total
}

// TotalSize returns the size of the underlying buffer.
func (reader *Reader) TotalSize() int {
	return len(reader.bytes)
}

// TotalRead returns the count of bytes read so far.
func (reader *Reader) TotalRead() int {
	return reader.total
}

// Writer encodes wire data into an append-only buffer.
type Writer struct {
	bytes []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes.
func (writer *Writer) Bytes() []byte {
	return writer.bytes
}

// WriteBytes appends raw bytes without a length prefix.
func (writer *Writer) WriteBytes(data []byte) {
	writer.bytes = append(writer.bytes, data...)
}

// WriteUint8 appends a single byte.
func (writer *Writer) WriteUint8(number uint8) {
	writer.bytes = append(writer.bytes, number)
}

// WriteUint16 appends a big endian 16-bit unsigned integer.
func (writer *Writer) WriteUint16(number uint16) {
	writer.bytes = binary.BigEndian.AppendUint16(writer.bytes, number)
}

// WriteUint32 appends a big endian 32-bit unsigned integer.
func (writer *Writer) WriteUint32(number uint32) {
	writer.bytes = binary.BigEndian.AppendUint32(writer.bytes, number)
}

// WriteUint64 appends a big endian 64-bit unsigned integer.
func (writer *Writer) WriteUint64(number uint64) {
	writer.bytes = binary.BigEndian.AppendUint64(writer.bytes, number)
}

// WriteUint128 appends a big endian 128-bit unsigned integer given as a high and low part.
func (writer *Writer) WriteUint128(high, low uint64) {
	writer.bytes = binary.BigEndian.AppendUint64(writer.bytes, high)
	writer.bytes = binary.BigEndian.AppendUint64(writer.bytes, low)
}

// WriteBool appends a single byte, 1 for true and 0 for false.
func (writer *Writer) WriteBool(value bool) {
	if value {
		writer.WriteUint8(1)
	} else {
		writer.WriteUint8(0)
	}
}

// WriteHash appends a 32 byte hash.
func (writer *Writer) WriteHash(hash Hash) {
	writer.bytes = append(writer.bytes, hash[:]...)
}

// WriteString appends a string with a single length prefix byte.
// Strings longer than 255 bytes cannot be represented; callers enforce their own limits which are far below.
func (writer *Writer) WriteString(text string) {
	writer.WriteUint8(uint8(len(text)))
	writer.bytes = append(writer.bytes, text...)
}

// WriteOptionalString appends a string with a single length prefix byte. An empty string is encoded as absent.
func (writer *Writer) WriteOptionalString(text string) {
	writer.WriteString(text)
}

// ToBytes encodes the given value into a fresh buffer.
func ToBytes(value Serializer) []byte {
	writer := NewWriter()
	value.Write(writer)
	return writer.Bytes()
}

// FromBytes decodes the given value from the buffer. All bytes must be consumed.
func FromBytes(data []byte, value Serializer) error {
	reader := NewReader(data)
	if err := value.Read(reader); err != nil {
		return err
	}
	if reader.Size() != 0 {
		return ErrInvalidPacketNotFullRead
	}
	return nil
}
