package core

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/lumenchain/core/blockchain"
	"github.com/lumenchain/core/protocol"
	"github.com/lumenchain/core/store"
)

// newTestBackend builds a backend around a fresh in-memory chain and starts
// its server on an ephemeral loopback port.
func newTestBackend(t *testing.T, maxPeers int, concurrency string) *Backend {
	t.Helper()

	chain, err := blockchain.NewChain(store.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	return newTestBackendWithChain(t, maxPeers, concurrency, chain)
}

func newTestBackendWithChain(t *testing.T, maxPeers int, concurrency string, chain Chain) *Backend {
	t.Helper()

	config := Config{Listen: "127.0.0.1:0", MaxPeers: maxPeers, Concurrency: concurrency}
	config.applyDefaults()

	backend := &Backend{Config: config, Chain: chain}

	networkID, err := backend.Config.parseNetworkID()
	if err != nil {
		t.Fatal(err)
	}
	backend.networkID = networkID

	peerID, err := newPeerID()
	if err != nil {
		t.Fatal(err)
	}
	backend.PeerID = peerID

	backend.Server = newP2pServer(backend)
	if err := backend.Server.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(backend.Server.Stop)

	return backend
}

// listenAddress returns the actual address of the started listener.
func (server *P2pServer) listenAddress() string {
	return server.listener.Addr().String()
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// testClient speaks the wire protocol directly against a server under test.
type testClient struct {
	conn   net.Conn
	peerID uint64
}

func testNetworkID() (networkID [16]byte) {
	config := Config{}
	config.applyDefaults()
	networkID, _ = config.parseNetworkID()
	return networkID
}

func clientHandshake(peerID uint64, networkID [16]byte) *protocol.Handshake {
	return &protocol.Handshake{
		Version:      "0.1.0",
		NetworkID:    networkID,
		PeerID:       peerID,
		LocalPort:    2125,
		UTCTime:      getCurrentTime(),
		BlockTopHash: protocol.ZeroHash,
	}
}

// dialNoHandshake opens a raw TCP connection to the server.
func dialNoHandshake(t *testing.T, address string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", address, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// dialClient connects and completes the handshake exchange.
func dialClient(t *testing.T, address string, handshake *protocol.Handshake) *testClient {
	t.Helper()

	conn := dialNoHandshake(t, address)
	client := &testClient{conn: conn, peerID: handshake.PeerID}

	client.writePacket(t, handshake)

	reply := client.readPacket(t)
	if _, ok := reply.(*protocol.Handshake); !ok {
		t.Fatalf("expected handshake reply, got %T", reply)
	}
	return client
}

func (client *testClient) writePacket(t *testing.T, packet protocol.Packet) {
	t.Helper()

	frame, err := protocol.EncodePacket(packet, protocol.MaxPacketSizeDefault)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.conn.Write(frame); err != nil {
		t.Fatal(err)
	}
}

func (client *testClient) readPacket(t *testing.T) protocol.Packet {
	t.Helper()

	packet, err := client.tryReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	return packet
}

func (client *testClient) tryReadPacket() (protocol.Packet, error) {
	client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	prefix := make([]byte, 4)
	if _, err := io.ReadFull(client.conn, prefix); err != nil {
		return nil, err
	}
	length := uint32(prefix[0])<<24 | uint32(prefix[1])<<16 | uint32(prefix[2])<<8 | uint32(prefix[3])

	body := make([]byte, length)
	if _, err := io.ReadFull(client.conn, body); err != nil {
		return nil, err
	}
	return protocol.DecodePacket(body)
}

// expectClosed waits for the server to close the connection.
func (client *testClient) expectClosed(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := client.tryReadPacket(); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection still open")
			}
			return
		}
	}
	t.Fatal("connection still open")
}

func TestServersConnect(t *testing.T) {
	backendA := newTestBackend(t, 8, ConcurrencyPerPeer)
	backendB := newTestBackend(t, 8, ConcurrencyPerPeer)

	address := netip.MustParseAddrPort(backendB.Server.listenAddress())
	if err := backendA.Server.ConnectTo(address); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "registries to fill", func() bool {
		return backendA.Server.PeerCount() == 1 && backendB.Server.PeerCount() == 1
	})

	if !backendA.Server.IsConnectedTo(backendB.PeerID) {
		t.Fatal("A does not know B")
	}
	if !backendB.Server.IsConnectedTo(backendA.PeerID) {
		t.Fatal("B does not know A")
	}
	if !backendA.Server.IsConnectedToAddr(address) {
		t.Fatal("A does not index B's address")
	}

	// double dial is rejected locally
	err := backendA.Server.ConnectTo(address)
	var alreadyConnected *PeerAlreadyConnectedError
	if !errors.As(err, &alreadyConnected) {
		t.Fatalf("second dial: err = %v, want PeerAlreadyConnectedError", err)
	}
}

func TestHandshakeNetworkMismatch(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	handshake := clientHandshake(1001, [16]byte{0x02, 0x02})
	conn := dialNoHandshake(t, backend.Server.listenAddress())
	client := &testClient{conn: conn}
	client.writePacket(t, handshake)

	client.expectClosed(t)
	if backend.Server.PeerCount() != 0 {
		t.Fatalf("PeerCount() = %d, want 0", backend.Server.PeerCount())
	}
}

func TestHandshakeDuplicatePeerID(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)
	address := backend.Server.listenAddress()

	dialClient(t, address, clientHandshake(7, testNetworkID()))
	waitFor(t, "first peer", func() bool { return backend.Server.PeerCount() == 1 })

	// same peer id from a second connection is rejected
	conn := dialNoHandshake(t, address)
	second := &testClient{conn: conn}
	second.writePacket(t, clientHandshake(7, testNetworkID()))
	second.expectClosed(t)

	if backend.Server.PeerCount() != 1 {
		t.Fatalf("PeerCount() = %d, want 1", backend.Server.PeerCount())
	}
}

func TestHandshakeSelfPeerID(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	conn := dialNoHandshake(t, backend.Server.listenAddress())
	client := &testClient{conn: conn}
	client.writePacket(t, clientHandshake(backend.PeerID, testNetworkID()))
	client.expectClosed(t)

	if backend.Server.PeerCount() != 0 {
		t.Fatal("peer with our own id registered")
	}
}

func TestExpectedHandshake(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	conn := dialNoHandshake(t, backend.Server.listenAddress())
	client := &testClient{conn: conn}
	client.writePacket(t, &protocol.Ping{BlockHeight: 1})
	client.expectClosed(t)

	if backend.Server.PeerCount() != 0 {
		t.Fatal("peer registered without handshake")
	}
}

func TestMaxPeersGating(t *testing.T) {
	backend := newTestBackend(t, 2, ConcurrencyPerPeer)
	address := backend.Server.listenAddress()

	dialClient(t, address, clientHandshake(1, testNetworkID()))
	dialClient(t, address, clientHandshake(2, testNetworkID()))
	waitFor(t, "two peers", func() bool { return backend.Server.PeerCount() == 2 })

	if backend.Server.AcceptNewConnections() {
		t.Fatal("AcceptNewConnections() = true at the limit")
	}

	// the third connection is accepted at the TCP level and shut down before
	// any handshake is read
	conn := dialNoHandshake(t, address)
	third := &testClient{conn: conn}
	third.expectClosed(t)

	if backend.Server.PeerCount() != 2 {
		t.Fatalf("PeerCount() = %d, want 2", backend.Server.PeerCount())
	}
}

func TestSendToPeerFIFO(t *testing.T) {
	for _, concurrency := range []string{ConcurrencyPerPeer, ConcurrencyShared} {
		t.Run(concurrency, func(t *testing.T) {
			backend := newTestBackend(t, 8, concurrency)

			client := dialClient(t, backend.Server.listenAddress(), clientHandshake(77, testNetworkID()))
			waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

			for _, height := range []uint64{10, 11, 12} {
				if !backend.Server.SendToPeer(77, &protocol.Ping{BlockHeight: height}) {
					t.Fatal("SendToPeer failed")
				}
			}

			// the client sees the packets in submission order
			for _, want := range []uint64{10, 11, 12} {
				packet := client.readPacket(t)
				ping, ok := packet.(*protocol.Ping)
				if !ok || ping.BlockHeight != want {
					t.Fatalf("got %T %+v, want ping height %d", packet, packet, want)
				}
			}
		})
	}
}

func TestBroadcast(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	clientA := dialClient(t, backend.Server.listenAddress(), clientHandshake(101, testNetworkID()))
	clientB := dialClient(t, backend.Server.listenAddress(), clientHandshake(102, testNetworkID()))
	waitFor(t, "two peers", func() bool { return backend.Server.PeerCount() == 2 })

	backend.Server.Broadcast(&protocol.Ping{BlockHeight: 55})

	for _, client := range []*testClient{clientA, clientB} {
		ping, ok := client.readPacket(t).(*protocol.Ping)
		if !ok || ping.BlockHeight != 55 {
			t.Fatalf("client %d: broadcast not received", client.peerID)
		}
	}
}

func TestObjectRequestNotFound(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(50, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	request := protocol.ObjectRequest{Kind: protocol.ObjectBlock, Hash: protocol.HashData([]byte("missing"))}
	client.writePacket(t, &request)

	response, ok := client.readPacket(t).(*protocol.ObjectResponse)
	if !ok {
		t.Fatal("expected object response")
	}
	if response.Variant != protocol.ResponseNotFound || response.Request != request {
		t.Fatalf("response = %+v, want NotFound echoing the request", response)
	}
}

func TestObjectRequestFound(t *testing.T) {
	chain, err := blockchain.NewChain(store.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}

	pair, err := protocol.NewKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	genesis := &blockchain.Block{Timestamp: 1700000000, Miner: pair.PublicKey}
	if err := chain.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	backend := newTestBackendWithChain(t, 8, ConcurrencyPerPeer, chain)

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(51, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	client.writePacket(t, &protocol.ObjectRequest{Kind: protocol.ObjectBlock, Hash: genesis.Hash()})

	response, ok := client.readPacket(t).(*protocol.ObjectResponse)
	if !ok || response.Variant != protocol.ResponseBlock {
		t.Fatalf("response = %+v", response)
	}
	if response.PayloadHash() != genesis.Hash() {
		t.Fatal("payload hash does not match the requested block")
	}

	decoded := &blockchain.Block{}
	if err := protocol.FromBytes(response.Payload, decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Hash() != genesis.Hash() {
		t.Fatal("decoded block differs")
	}
}

func TestPingRateViolation(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(60, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	// two pings back to back violate the minimum interval
	client.writePacket(t, &protocol.Ping{BlockHeight: 1})
	client.writePacket(t, &protocol.Ping{BlockHeight: 2})

	client.expectClosed(t)
	waitFor(t, "peer removal", func() bool { return backend.Server.PeerCount() == 0 })
}

func TestChainRequestThrottle(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(61, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	client.writePacket(t, &protocol.ChainRequest{BlockHeight: 0, BlockTopHash: protocol.ZeroHash})

	response, ok := client.readPacket(t).(*protocol.ChainResponse)
	if !ok || len(response.Hashes) != 0 {
		t.Fatalf("response = %+v, want empty hash window", response)
	}

	// a second request right away is too fast
	client.writePacket(t, &protocol.ChainRequest{BlockHeight: 0, BlockTopHash: protocol.ZeroHash})
	client.expectClosed(t)
}

func TestSecondHandshakeIsViolation(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(62, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	client.writePacket(t, clientHandshake(62, testNetworkID()))
	client.expectClosed(t)
	waitFor(t, "peer removal", func() bool { return backend.Server.PeerCount() == 0 })
}

func TestRemovePeerIdempotent(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	dialClient(t, backend.Server.listenAddress(), clientHandshake(70, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	if !backend.Server.RemovePeer(70) {
		t.Fatal("first RemovePeer() = false")
	}
	if backend.Server.RemovePeer(70) {
		t.Fatal("second RemovePeer() = true")
	}
	if backend.Server.PeerCount() != 0 {
		t.Fatal("registry not empty")
	}
}

func TestSubscribe(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	subscription := backend.Server.Subscribe(16, protocol.CommandPing)
	defer subscription.Unsubscribe()

	client := dialClient(t, backend.Server.listenAddress(), clientHandshake(80, testNetworkID()))
	waitFor(t, "peer", func() bool { return backend.Server.PeerCount() == 1 })

	client.writePacket(t, &protocol.Ping{BlockHeight: 9, BlockTopHash: protocol.HashData([]byte("t"))})

	select {
	case incoming := <-subscription.Packets():
		if incoming.PeerID != 80 {
			t.Fatalf("incoming.PeerID = %d, want 80", incoming.PeerID)
		}
		if ping, ok := incoming.Packet.(*protocol.Ping); !ok || ping.BlockHeight != 9 {
			t.Fatalf("incoming.Packet = %+v", incoming.Packet)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no packet delivered to subscriber")
	}

	// the ping also updated the peer's recorded chain head
	peer, found := backend.Server.GetPeer(80)
	if !found || peer.BlockHeight() != 9 {
		t.Fatal("peer chain head not updated")
	}
}

func TestPendingObjectRequests(t *testing.T) {
	backendA := newTestBackend(t, 8, ConcurrencyPerPeer)
	backendB := newTestBackend(t, 8, ConcurrencyPerPeer)

	if err := backendA.Server.ConnectTo(netip.MustParseAddrPort(backendB.Server.listenAddress())); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connection", func() bool { return backendA.Server.PeerCount() == 1 })

	peer, found := backendA.Server.GetPeer(backendB.PeerID)
	if !found {
		t.Fatal("B not registered on A")
	}

	request := protocol.ObjectRequest{Kind: protocol.ObjectBlock, Hash: protocol.HashData([]byte("wanted"))}
	response, err := peer.RequestObject(request)
	if err != nil {
		t.Fatal(err)
	}

	// B has an empty chain, the answer is NotFound and completes the pending request
	select {
	case answer := <-response:
		if answer == nil || answer.Variant != protocol.ResponseNotFound || answer.Request != request {
			t.Fatalf("answer = %+v", answer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no object response")
	}

}

func TestRequestObjectSync(t *testing.T) {
	backendA := newTestBackend(t, 8, ConcurrencyPerPeer)
	backendB := newTestBackend(t, 8, ConcurrencyPerPeer)

	if err := backendA.Server.ConnectTo(netip.MustParseAddrPort(backendB.Server.listenAddress())); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connection", func() bool { return backendA.Server.PeerCount() == 1 })

	peer, found := backendA.Server.GetPeer(backendB.PeerID)
	if !found {
		t.Fatal("B not registered on A")
	}

	request := protocol.ObjectRequest{Kind: protocol.ObjectBlock, Hash: protocol.HashData([]byte("nowhere"))}

	var notFound *ObjectNotFoundError
	if _, err := peer.RequestObjectSync(request, 2*time.Second); !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want ObjectNotFoundError", err)
	}

	// a peer that never answers runs into the deadline
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	silent := newPeerInfo(backendA.Server, newConnection(local, netip.MustParseAddrPort("127.0.0.1:9")), clientHandshake(91, testNetworkID()), true)
	if _, err := silent.RequestObjectSync(request, 50*time.Millisecond); err != ErrAsyncTimeout {
		t.Fatalf("err = %v, want ErrAsyncTimeout", err)
	}

	// the timeout cleared the pending entry
	if _, err := silent.RequestObject(request); err != nil {
		t.Fatalf("request after timeout: %v", err)
	}
}

func TestPendingRequestMap(t *testing.T) {
	backend := newTestBackend(t, 8, ConcurrencyPerPeer)

	// a peer whose connection nobody drains: requests stay pending
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	handshake := clientHandshake(90, testNetworkID())
	peer := newPeerInfo(backend.Server, newConnection(local, netip.MustParseAddrPort("127.0.0.1:9")), handshake, true)

	request := protocol.ObjectRequest{Kind: protocol.ObjectTransaction, Hash: protocol.HashData([]byte("tx"))}
	response, err := peer.RequestObject(request)
	if err != nil {
		t.Fatal(err)
	}

	// while pending, the same hash cannot be requested twice
	var alreadyRequested *ObjectAlreadyRequestedError
	if _, err := peer.RequestObject(request); !errors.As(err, &alreadyRequested) {
		t.Fatalf("err = %v, want ObjectAlreadyRequestedError", err)
	}

	// a response matching no pending request is a protocol violation
	var invalidResponse *InvalidObjectResponseError
	unrelated := protocol.NewObjectNotFound(protocol.ObjectRequest{Kind: protocol.ObjectBlock, Hash: protocol.HashData([]byte("other"))})
	if err := peer.handleObjectResponse(unrelated); !errors.As(err, &invalidResponse) {
		t.Fatalf("err = %v, want InvalidObjectResponseError", err)
	}

	// the matching response resolves the pending request
	if err := peer.handleObjectResponse(protocol.NewObjectNotFound(request)); err != nil {
		t.Fatal(err)
	}
	answer := <-response
	if answer == nil || answer.Variant != protocol.ResponseNotFound {
		t.Fatalf("answer = %+v", answer)
	}

	// after completion the hash can be requested again; removal aborts it
	if _, err := peer.RequestObject(request); err != nil {
		t.Fatal(err)
	}
	peer.abortPendingRequests()
}

func TestGossipedPeerDial(t *testing.T) {
	// C knows B; A connects to C and learns about B from the handshake gossip
	backendB := newTestBackend(t, 8, ConcurrencyPerPeer)
	backendC := newTestBackend(t, 8, ConcurrencyPerPeer)

	if err := backendC.Server.ConnectTo(netip.MustParseAddrPort(backendB.Server.listenAddress())); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "C-B link", func() bool { return backendC.Server.PeerCount() == 1 })

	backendA := newTestBackend(t, 8, ConcurrencyPerPeer)
	if err := backendA.Server.ConnectTo(netip.MustParseAddrPort(backendC.Server.listenAddress())); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "A to learn B via gossip", func() bool {
		return backendA.Server.IsConnectedTo(backendB.PeerID)
	})
}
