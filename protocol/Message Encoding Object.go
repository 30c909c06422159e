/*
File Name:  Message Encoding Object.go
Copyright:  2024 Lumen Network s.r.o.

Object exchange: a peer requests a block or transaction by hash and the remote
answers with the serialized object, or with NotFound echoing the request.
The object payload is not length prefixed; it extends to the end of the frame.
*/

package protocol

// ObjectKind identifies what kind of object a request refers to.
type ObjectKind uint8

// Object kinds on the wire. Any other value is rejected.
const (
	ObjectBlock       ObjectKind = 0
	ObjectTransaction ObjectKind = 1
)

func (kind ObjectKind) String() string {
	switch kind {
	case ObjectBlock:
		return "block"
	case ObjectTransaction:
		return "transaction"
	}
	return "unknown"
}

// ObjectRequest asks a peer for a block or transaction by hash.
type ObjectRequest struct {
	Kind ObjectKind
	Hash Hash
}

// Command implements the Packet interface.
func (request *ObjectRequest) Command() uint8 {
	return CommandObjectRequest
}

// Write implements the Serializer interface.
func (request *ObjectRequest) Write(writer *Writer) {
	writer.WriteUint8(uint8(request.Kind))
	writer.WriteHash(request.Hash)
}

// Read implements the Serializer interface.
func (request *ObjectRequest) Read(reader *Reader) (err error) {
	kind, err := reader.ReadUint8()
	if err != nil {
		return err
	}
	if kind != uint8(ObjectBlock) && kind != uint8(ObjectTransaction) {
		return ErrInvalidValue
	}
	request.Kind = ObjectKind(kind)

	request.Hash, err = reader.ReadHash()
	return err
}

// Object response variants. Any other value is rejected.
const (
	ResponseBlock       = 0
	ResponseTransaction = 1
	ResponseNotFound    = 2
)

// ObjectResponse answers an ObjectRequest. For the Block and Transaction
// variants Payload holds the serialized object; for NotFound, Request echoes
// the original request.
type ObjectResponse struct {
	Variant uint8
	Payload []byte        // serialized object, Block and Transaction variants only
	Request ObjectRequest // NotFound variant only
}

// NewObjectResponse creates a response carrying a serialized object of the given kind.
func NewObjectResponse(kind ObjectKind, payload []byte) *ObjectResponse {
	variant := uint8(ResponseBlock)
	if kind == ObjectTransaction {
		variant = ResponseTransaction
	}
	return &ObjectResponse{Variant: variant, Payload: payload}
}

// NewObjectNotFound creates a NotFound response echoing the request.
func NewObjectNotFound(request ObjectRequest) *ObjectResponse {
	return &ObjectResponse{Variant: ResponseNotFound, Request: request}
}

// RequestedKind returns the object kind this response corresponds to.
func (response *ObjectResponse) RequestedKind() ObjectKind {
	switch response.Variant {
	case ResponseBlock:
		return ObjectBlock
	case ResponseTransaction:
		return ObjectTransaction
	}
	return response.Request.Kind
}

// PayloadHash returns the hash identifying the carried object. The object
// identity is the hash of its canonical encoding, which is exactly the payload.
// For NotFound it is the requested hash.
func (response *ObjectResponse) PayloadHash() Hash {
	if response.Variant == ResponseNotFound {
		return response.Request.Hash
	}
	return HashData(response.Payload)
}

// Command implements the Packet interface.
func (response *ObjectResponse) Command() uint8 {
	return CommandObjectResponse
}

// Write implements the Serializer interface.
func (response *ObjectResponse) Write(writer *Writer) {
	writer.WriteUint8(response.Variant)

	switch response.Variant {
	case ResponseBlock, ResponseTransaction:
		writer.WriteBytes(response.Payload)
	case ResponseNotFound:
		response.Request.Write(writer)
	}
}

// Read implements the Serializer interface.
func (response *ObjectResponse) Read(reader *Reader) (err error) {
	response.Variant, err = reader.ReadUint8()
	if err != nil {
		return err
	}

	switch response.Variant {
	case ResponseBlock, ResponseTransaction:
		if reader.Size() == 0 {
			return ErrInvalidSize
		}
		response.Payload, err = reader.ReadBytes(reader.Size())
		return err

	case ResponseNotFound:
		return response.Request.Read(reader)
	}

	return ErrInvalidValue
}
