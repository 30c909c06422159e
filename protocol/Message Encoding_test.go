package protocol

import (
	"bytes"
	"net/netip"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	handshake := &Handshake{
		Version:      "0.1.0",
		NodeTag:      "",
		NetworkID:    [16]byte{},
		PeerID:       42,
		LocalPort:    2125,
		UTCTime:      1700000000,
		BlockHeight:  0,
		BlockTopHash: ZeroHash,
		Peers:        nil,
	}

	encoded := ToBytes(handshake)

	// version length prefix, "0.1.0", absent node tag, start of network id
	wantPrefix := []byte{0x05, 0x30, 0x2E, 0x31, 0x2E, 0x30, 0x00, 0x00}
	if !bytes.HasPrefix(encoded, wantPrefix) {
		t.Fatalf("encoding starts with %x, want %x", encoded[:8], wantPrefix)
	}

	// fixed part: 6 version + 1 tag + 16 network id + 8 peer id + 2 port + 8 time + 8 height + 32 hash + 1 count
	if len(encoded) != 82 {
		t.Fatalf("encoded length = %d, want 82", len(encoded))
	}

	decoded := &Handshake{}
	if err := FromBytes(encoded, decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Version != handshake.Version || decoded.PeerID != handshake.PeerID ||
		decoded.LocalPort != handshake.LocalPort || decoded.UTCTime != handshake.UTCTime ||
		decoded.BlockHeight != handshake.BlockHeight || decoded.BlockTopHash != handshake.BlockTopHash ||
		decoded.NodeTag != "" || len(decoded.Peers) != 0 {
		t.Fatalf("decoded = %+v, want %+v", decoded, handshake)
	}
}

func TestHandshakeWithPeersAndTag(t *testing.T) {
	handshake := &Handshake{
		Version:      "1.0.0-rc1",
		NodeTag:      "miner-eu",
		NetworkID:    [16]byte{0xAA, 0xBB},
		PeerID:       0xFFFFFFFFFFFFFFFF,
		LocalPort:    65535,
		UTCTime:      1700000001,
		BlockHeight:  123456,
		BlockTopHash: HashData([]byte("top")),
		Peers: []netip.AddrPort{
			netip.MustParseAddrPort("10.1.2.3:2125"),
			netip.MustParseAddrPort("[fe80::1]:2125"),
		},
	}

	decoded := &Handshake{}
	if err := FromBytes(ToBytes(handshake), decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.NodeTag != "miner-eu" || len(decoded.Peers) != 2 ||
		decoded.Peers[0] != handshake.Peers[0] || decoded.Peers[1] != handshake.Peers[1] {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestHandshakeVersionBounds(t *testing.T) {
	// empty version
	base := &Handshake{Version: "x", BlockTopHash: ZeroHash}
	encoded := ToBytes(base)
	encoded[0] = 0 // rewrite version length to 0

	if err := (&Handshake{}).Read(NewReader(encoded)); err != ErrInvalidSize {
		t.Fatalf("empty version: err = %v, want ErrInvalidSize", err)
	}

	// version longer than 16 bytes
	long := &Handshake{Version: "12345678901234567", BlockTopHash: ZeroHash}
	if err := (&Handshake{}).Read(NewReader(ToBytes(long))); err != ErrInvalidSize {
		t.Fatalf("long version: err = %v, want ErrInvalidSize", err)
	}
}

func TestHandshakeNodeTagBound(t *testing.T) {
	handshake := &Handshake{Version: "0.1.0", NodeTag: "12345678901234567", BlockTopHash: ZeroHash}
	if err := (&Handshake{}).Read(NewReader(ToBytes(handshake))); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
}

func TestHandshakePeerCountBound(t *testing.T) {
	peers := make([]netip.AddrPort, 17)
	for i := range peers {
		peers[i] = netip.MustParseAddrPort("127.0.0.1:1000")
	}
	handshake := &Handshake{Version: "0.1.0", Peers: peers}

	if err := (&Handshake{}).Read(NewReader(ToBytes(handshake))); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
}

func TestHandshakeTruncated(t *testing.T) {
	handshake := &Handshake{Version: "0.1.0", PeerID: 1, BlockTopHash: HashData([]byte("x"))}
	encoded := ToBytes(handshake)

	// every cut must produce an error, never a panic
	for cut := 0; cut < len(encoded); cut++ {
		if err := (&Handshake{}).Read(NewReader(encoded[:cut])); err == nil {
			t.Fatalf("cut at %d: expected error", cut)
		}
	}
}

func TestHandshakeValidate(t *testing.T) {
	valid := &Handshake{Version: "0.1.0"}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}

	if err := (&Handshake{Version: ""}).Validate(); err != ErrInvalidSize {
		t.Fatal("empty version accepted")
	}
	if err := (&Handshake{Version: "0.1.0", NodeTag: "12345678901234567"}).Validate(); err != ErrInvalidSize {
		t.Fatal("oversized tag accepted")
	}
}

func TestObjectRequestRoundTrip(t *testing.T) {
	request := &ObjectRequest{Kind: ObjectBlock, Hash: HashData([]byte("block"))}

	decoded := &ObjectRequest{}
	if err := FromBytes(ToBytes(request), decoded); err != nil {
		t.Fatal(err)
	}
	if *decoded != *request {
		t.Fatalf("decoded = %+v, want %+v", decoded, request)
	}
}

func TestObjectRequestInvalidKind(t *testing.T) {
	data := append([]byte{9}, make([]byte, HashSize)...)
	if err := (&ObjectRequest{}).Read(NewReader(data)); err != ErrInvalidValue {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestObjectResponseVariants(t *testing.T) {
	payload := []byte("the serialized object")

	block := NewObjectResponse(ObjectBlock, payload)
	decoded := &ObjectResponse{}
	if err := FromBytes(ToBytes(block), decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Variant != ResponseBlock || !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.PayloadHash() != HashData(payload) {
		t.Fatal("PayloadHash() does not hash the payload encoding")
	}
	if decoded.RequestedKind() != ObjectBlock {
		t.Fatalf("RequestedKind() = %v", decoded.RequestedKind())
	}

	request := ObjectRequest{Kind: ObjectTransaction, Hash: HashData([]byte("gone"))}
	notFound := NewObjectNotFound(request)
	decoded = &ObjectResponse{}
	if err := FromBytes(ToBytes(notFound), decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Variant != ResponseNotFound || decoded.Request != request {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.PayloadHash() != request.Hash {
		t.Fatal("NotFound PayloadHash() must echo the requested hash")
	}
}

func TestObjectResponseInvalidVariant(t *testing.T) {
	if err := (&ObjectResponse{}).Read(NewReader([]byte{3, 1, 2})); err != ErrInvalidValue {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestObjectResponseEmptyPayload(t *testing.T) {
	if err := (&ObjectResponse{}).Read(NewReader([]byte{ResponseBlock})); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
}

func TestPeerListBound(t *testing.T) {
	peers := make([]netip.AddrPort, 17)
	for i := range peers {
		peers[i] = netip.MustParseAddrPort("127.0.0.1:1000")
	}

	if err := (&PeerList{}).Read(NewReader(ToBytes(&PeerList{Peers: peers}))); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
}

func TestChainResponseBound(t *testing.T) {
	hashes := make([]Hash, ChainResponseMaxHashes+1)
	response := &ChainResponse{BlockHeight: 1, Hashes: hashes}

	if err := (&ChainResponse{}).Read(NewReader(ToBytes(response))); err != ErrInvalidSize {
		t.Fatalf("err = %v, want ErrInvalidSize", err)
	}
}
