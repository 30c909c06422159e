/*
File Name:  Peer.go
Copyright:  2024 Lumen Network s.r.o.

A peer is a connection that passed the handshake and entered the registry.
It carries the negotiated metadata, the chain head last reported by the
remote, the pending object requests and the incoming rate countdowns.
*/

package core

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenchain/core/protocol"
)

// PeerInfo stores information about a single connected remote peer.
type PeerInfo struct {
	Connection *Connection
	PeerID     uint64
	Version    string
	NodeTag    string
	LocalPort  uint16 // inbound listen port reported in the handshake
	IsOutbound bool   // we dialed this peer

	server *P2pServer

	// chain head last reported by the remote, via handshake or ping
	headMutex    sync.RWMutex
	blockHeight  uint64
	blockTopHash protocol.Hash

	// incoming rate countdowns. A peer sending faster than the protocol
	// intervals is dropped.
	rateMutex          sync.Mutex
	lastPingIn         time.Time
	lastPeerListIn     time.Time
	lastChainRequestIn time.Time

	// outgoing schedule, owned by the ping loop
	lastPingOut     atomic.Int64
	lastPeerListOut atomic.Int64

	// pending object requests keyed by the requested hash
	requestsMutex    sync.Mutex
	objectsRequested map[protocol.Hash]chan *protocol.ObjectResponse
}

func newPeerInfo(server *P2pServer, connection *Connection, handshake *protocol.Handshake, outbound bool) *PeerInfo {
	peer := &PeerInfo{
		Connection:       connection,
		PeerID:           handshake.PeerID,
		Version:          handshake.Version,
		NodeTag:          handshake.NodeTag,
		LocalPort:        handshake.LocalPort,
		IsOutbound:       outbound,
		server:           server,
		blockHeight:      handshake.BlockHeight,
		blockTopHash:     handshake.BlockTopHash,
		objectsRequested: make(map[protocol.Hash]chan *protocol.ObjectResponse),
	}

	// first ping and peer list go out one interval after the handshake
	now := time.Now().Unix()
	peer.lastPingOut.Store(now)
	peer.lastPeerListOut.Store(now)

	return peer
}

// Address returns the remote socket address of the connection.
func (peer *PeerInfo) Address() netip.AddrPort {
	return peer.Connection.Address()
}

// DialableAddress returns the address other nodes can dial this peer on: the
// connection address for outbound peers, the remote IP with the reported
// listen port for inbound ones.
func (peer *PeerInfo) DialableAddress() netip.AddrPort {
	if peer.IsOutbound {
		return peer.Connection.Address()
	}
	return netip.AddrPortFrom(peer.Connection.Address().Addr(), peer.LocalPort)
}

// BlockHeight returns the chain height last reported by the remote.
func (peer *PeerInfo) BlockHeight() uint64 {
	peer.headMutex.RLock()
	defer peer.headMutex.RUnlock()
	return peer.blockHeight
}

// BlockTopHash returns the top hash last reported by the remote.
func (peer *PeerInfo) BlockTopHash() protocol.Hash {
	peer.headMutex.RLock()
	defer peer.headMutex.RUnlock()
	return peer.blockTopHash
}

func (peer *PeerInfo) setChainHead(height uint64, topHash protocol.Hash) {
	peer.headMutex.Lock()
	peer.blockHeight = height
	peer.blockTopHash = topHash
	peer.headMutex.Unlock()
}

// Send encodes the packet and enqueues it for this peer.
func (peer *PeerInfo) Send(packet protocol.Packet) error {
	data, err := protocol.EncodePacket(packet, peer.server.maxPacketSize)
	if err != nil {
		return err
	}
	return peer.server.dispatch.send(peer, data)
}

// RequestObject sends an object request and registers it as pending. The
// returned channel delivers the response once; it is closed without a value
// when the peer goes away.
func (peer *PeerInfo) RequestObject(request protocol.ObjectRequest) (response <-chan *protocol.ObjectResponse, err error) {
	peer.requestsMutex.Lock()
	if _, pending := peer.objectsRequested[request.Hash]; pending {
		peer.requestsMutex.Unlock()
		return nil, &ObjectAlreadyRequestedError{Request: request}
	}

	channel := make(chan *protocol.ObjectResponse, 1)
	peer.objectsRequested[request.Hash] = channel
	peer.requestsMutex.Unlock()

	if err = peer.Send(&request); err != nil {
		peer.requestsMutex.Lock()
		delete(peer.objectsRequested, request.Hash)
		peer.requestsMutex.Unlock()
		return nil, err
	}

	return channel, nil
}

// RequestObjectSync requests an object and waits for the answer. It returns
// ObjectNotFoundError if the remote does not have the object, ErrDisconnected
// if the peer goes away and ErrAsyncTimeout when the deadline passes.
func (peer *PeerInfo) RequestObjectSync(request protocol.ObjectRequest, timeout time.Duration) (response *protocol.ObjectResponse, err error) {
	channel, err := peer.RequestObject(request)
	if err != nil {
		return nil, err
	}

	select {
	case response = <-channel:
		if response == nil {
			return nil, ErrDisconnected
		}
		if response.Variant == protocol.ResponseNotFound {
			return nil, &ObjectNotFoundError{Request: request}
		}
		return response, nil

	case <-time.After(timeout):
		peer.requestsMutex.Lock()
		delete(peer.objectsRequested, request.Hash)
		peer.requestsMutex.Unlock()
		return nil, ErrAsyncTimeout
	}
}

// handleObjectResponse resolves a pending request. A response that matches no
// pending request is a protocol violation.
func (peer *PeerInfo) handleObjectResponse(response *protocol.ObjectResponse) error {
	hash := response.PayloadHash()

	peer.requestsMutex.Lock()
	channel, pending := peer.objectsRequested[hash]
	if pending {
		delete(peer.objectsRequested, hash)
	}
	peer.requestsMutex.Unlock()

	if !pending {
		return &InvalidObjectResponseError{Hash: hash}
	}

	channel <- response
	close(channel)
	return nil
}

// abortPendingRequests closes all pending request channels. Called on removal.
func (peer *PeerInfo) abortPendingRequests() {
	peer.requestsMutex.Lock()
	for hash, channel := range peer.objectsRequested {
		delete(peer.objectsRequested, hash)
		close(channel)
	}
	peer.requestsMutex.Unlock()
}

// checkPingRate enforces the minimum interval between incoming pings.
func (peer *PeerInfo) checkPingRate(minimum time.Duration) error {
	if !peer.checkRate(&peer.lastPingIn, minimum) {
		return ErrPeerInvalidPingCountdown
	}
	return nil
}

// checkPeerListRate enforces the minimum interval between incoming peer lists.
func (peer *PeerInfo) checkPeerListRate(minimum time.Duration) error {
	if !peer.checkRate(&peer.lastPeerListIn, minimum) {
		return ErrPeerInvalidPeerListCountdown
	}
	return nil
}

// checkChainRequestRate enforces the minimum interval between incoming chain requests.
func (peer *PeerInfo) checkChainRequestRate(minimum time.Duration) error {
	if !peer.checkRate(&peer.lastChainRequestIn, minimum) {
		return ErrRequestSyncChainTooFast
	}
	return nil
}

// checkRate records the event time and reports whether the previous event was
// at least the minimum interval ago. The first event always passes.
func (peer *PeerInfo) checkRate(last *time.Time, minimum time.Duration) bool {
	peer.rateMutex.Lock()
	defer peer.rateMutex.Unlock()

	now := time.Now()
	ok := last.IsZero() || now.Sub(*last) >= minimum
	*last = now
	return ok
}
