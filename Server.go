/*
File Name:  Server.go
Copyright:  2024 Lumen Network s.r.o.

The P2P server: listener and dialer, peer registry, broadcast and unicast
dispatch. The registry maps peer ID to peer and additionally indexes remote
addresses to catch double-dial races. Only registry writers take the write
lock; dispatch works on read-lock snapshots.
*/

package core

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/lumenchain/core/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

// P2pServer accepts and dials peers and routes their packets.
type P2pServer struct {
	peerID           uint64
	nodeTag          string
	maxPeers         int
	bindAddress      string
	localPort        uint16
	networkID        [16]byte
	maxPacketSize    uint32
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	peerListInterval time.Duration
	chainSyncMinimum time.Duration
	seedNodes        []string

	chain    Chain
	dispatch dispatcher
	listener net.Listener

	peersMutex    sync.RWMutex
	peers         map[uint64]*PeerInfo
	peerAddresses map[netip.AddrPort]uint64

	subscribersMutex sync.RWMutex
	subscribers      []*Subscription

	terminateSignal chan struct{}
	terminateOnce   sync.Once
}

// newP2pServer creates the server from the backend configuration. Start must be called to go live.
func newP2pServer(backend *Backend) (server *P2pServer) {
	server = &P2pServer{
		peerID:           backend.PeerID,
		nodeTag:          backend.Config.NodeTag,
		maxPeers:         backend.Config.MaxPeers,
		bindAddress:      backend.Config.Listen,
		localPort:        backend.localPort,
		networkID:        backend.networkID,
		maxPacketSize:    backend.Config.MaxPacketSize,
		handshakeTimeout: time.Duration(backend.Config.HandshakeTimeout) * time.Second,
		pingInterval:     time.Duration(backend.Config.PingInterval) * time.Second,
		peerListInterval: time.Duration(backend.Config.PeerListInterval) * time.Second,
		chainSyncMinimum: time.Duration(backend.Config.ChainSyncInterval) * time.Second,
		seedNodes:        backend.Config.SeedNodes,
		chain:            backend.Chain,
		peers:            make(map[uint64]*PeerInfo),
		peerAddresses:    make(map[netip.AddrPort]uint64),
		terminateSignal:  make(chan struct{}),
	}

	switch backend.Config.Concurrency {
	case ConcurrencyShared:
		server.dispatch = newSharedDispatcher(func(peer *PeerInfo) {
			server.RemovePeer(peer.PeerID)
		})
	default:
		server.dispatch = newPerPeerDispatcher()
	}

	return server
}

// Start binds the listener, connects to the seed nodes and enters the accept
// loop. A bind failure is server fatal and returned; everything else is
// handled per peer.
func (server *P2pServer) Start() (err error) {
	listener, err := net.Listen("tcp", server.bindAddress)
	if err != nil {
		return err
	}

	// Hard ceiling on raw TCP accepts above the registry gate, against fd
	// exhaustion by connections that never finish their handshake.
	server.listener = netutil.LimitListener(listener, server.maxPeers*2+8)

	log.Info().Str("bind", server.bindAddress).Int("max peers", server.maxPeers).Msg("p2p server listening")

	go server.acceptLoop()
	go server.connectSeedNodes()
	go server.autoPingAll()

	return nil
}

// Stop closes the listener and every peer. Idempotent.
func (server *P2pServer) Stop() {
	server.terminateOnce.Do(func() {
		close(server.terminateSignal)

		if server.listener != nil {
			server.listener.Close()
		}

		for _, peer := range server.PeerlistGet() {
			server.RemovePeer(peer.PeerID)
		}

		server.dispatch.shutdown()
	})
}

func (server *P2pServer) isTerminating() bool {
	select {
	case <-server.terminateSignal:
		return true
	default:
		return false
	}
}

// acceptLoop handles all incoming TCP connections.
func (server *P2pServer) acceptLoop() {
	for {
		conn, err := server.listener.Accept()
		if err != nil {
			if server.isTerminating() {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}

		// over the peer limit the connection is dropped before any handshake is read
		if !server.AcceptNewConnections() {
			log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("max peers reached, rejecting connection")
			conn.Close()
			continue
		}

		go server.handleIncomingConnection(conn)
	}
}

// handleIncomingConnection runs the inbound handshake with a deadline and, on
// success, registers the peer and replies with the local handshake.
func (server *P2pServer) handleIncomingConnection(conn net.Conn) {
	address, err := remoteAddress(conn)
	if err != nil {
		conn.Close()
		return
	}

	connection := newConnection(conn, address)

	handshake, err := server.readHandshake(connection)
	if err != nil {
		log.Debug().Err(err).Str("remote", address.String()).Msg("inbound handshake failed")
		connection.Close()
		return
	}

	peer, dialable, err := server.registerHandshake(connection, handshake, false)
	if err != nil {
		log.Debug().Err(err).Str("remote", address.String()).Msg("inbound handshake rejected")
		connection.Close()
		return
	}

	// the dialer sent first, reply with our own handshake
	if err := peer.Send(server.buildHandshake()); err != nil {
		log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("handshake reply failed")
		server.RemovePeer(peer.PeerID)
		return
	}

	go server.readLoop(peer)
	server.connectToPeerList(dialable)
}

// ConnectTo dials a remote node, sends the local handshake and waits for the
// remote handshake as reply. Used for seed nodes, gossiped addresses and the API.
func (server *P2pServer) ConnectTo(address netip.AddrPort) error {
	if server.isTerminating() {
		return ErrShuttingDown
	}
	if !server.AcceptNewConnections() {
		return ErrMaxPeersReached
	}
	if server.IsConnectedToAddr(address) {
		return &PeerAlreadyConnectedError{Address: address}
	}

	conn, err := net.DialTimeout("tcp", address.String(), server.handshakeTimeout)
	if err != nil {
		return err
	}

	connection := newConnection(conn, address)

	// we dialed, so our handshake goes first. The writer task is not running
	// yet, the frame is written directly.
	frame, err := protocol.EncodePacket(server.buildHandshake(), server.maxPacketSize)
	if err != nil {
		connection.Close()
		return err
	}
	if err := connection.writeBytes(frame); err != nil {
		connection.Close()
		return err
	}

	handshake, err := server.readHandshake(connection)
	if err != nil {
		connection.Close()
		return err
	}

	peer, dialable, err := server.registerHandshake(connection, handshake, true)
	if err != nil {
		connection.Close()
		return err
	}

	log.Info().Uint64("peer", peer.PeerID).Str("remote", address.String()).Str("version", peer.Version).Msg("connected")

	go server.readLoop(peer)
	go server.connectToPeerList(dialable)

	return nil
}

// readHandshake reads exactly one packet under the handshake deadline and
// requires it to be a handshake.
func (server *P2pServer) readHandshake(connection *Connection) (handshake *protocol.Handshake, err error) {
	connection.setReadDeadline(time.Now().Add(server.handshakeTimeout))
	defer connection.setReadDeadline(time.Time{})

	packet, err := connection.ReadPacket(server.maxPacketSize)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrHandshakeTimeout
		}
		return nil, err
	}

	handshake, ok := packet.(*protocol.Handshake)
	if !ok {
		return nil, ErrExpectedHandshake
	}

	connection.setState(StateHandshake)
	return handshake, nil
}

// registerHandshake verifies the handshake and inserts the peer into the registry.
func (server *P2pServer) registerHandshake(connection *Connection, handshake *protocol.Handshake, outbound bool) (peer *PeerInfo, dialable []netip.AddrPort, err error) {
	dialable, err = server.verifyHandshake(connection, handshake)
	if err != nil {
		return nil, nil, err
	}

	peer = newPeerInfo(server, connection, handshake, outbound)

	if err = server.registerPeer(peer); err != nil {
		return nil, nil, err
	}

	connection.setState(StateSuccess)
	return peer, dialable, nil
}

// registerPeer inserts the peer under the registry write lock. Both the peer
// ID and the remote address must be new; duplicates return an error, never panic.
func (server *P2pServer) registerPeer(peer *PeerInfo) error {
	server.peersMutex.Lock()
	defer server.peersMutex.Unlock()

	if len(server.peers) >= server.maxPeers {
		return ErrMaxPeersReached
	}
	if _, used := server.peers[peer.PeerID]; used || peer.PeerID == server.peerID {
		return &PeerIDAlreadyUsedError{PeerID: peer.PeerID}
	}
	if _, used := server.peerAddresses[peer.Address()]; used {
		return &PeerAlreadyConnectedError{Address: peer.Address()}
	}

	server.peers[peer.PeerID] = peer
	server.peerAddresses[peer.Address()] = peer.PeerID

	server.dispatch.register(peer)

	log.Debug().Uint64("peer", peer.PeerID).Int("total", len(server.peers)).Msg("peer registered")
	return nil
}

// RemovePeer tears down the peer's tasks, closes the socket and removes it
// from the registry. Idempotent; reports whether the peer was present.
func (server *P2pServer) RemovePeer(peerID uint64) bool {
	server.peersMutex.Lock()
	peer, found := server.peers[peerID]
	if found {
		delete(server.peers, peerID)
		delete(server.peerAddresses, peer.Address())
	}
	server.peersMutex.Unlock()

	if !found {
		return false
	}

	server.dispatch.unregister(peer)
	peer.Connection.Close()
	peer.abortPendingRequests()

	log.Debug().Uint64("peer", peerID).Msg("peer removed")
	return true
}

// readLoop reads and routes packets of one peer until the connection dies or
// the peer violates a protocol rule.
func (server *P2pServer) readLoop(peer *PeerInfo) {
	defer server.RemovePeer(peer.PeerID)

	for !peer.Connection.IsClosed() && !server.isTerminating() {
		packet, err := peer.Connection.ReadPacket(server.maxPacketSize)
		if err != nil {
			log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("read failed")
			return
		}

		if err := server.handlePacket(peer, packet); err != nil {
			log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("protocol violation")
			return
		}
	}
}

// connectToPeerList dials gossiped addresses best-effort. Failures are logged, never fatal.
func (server *P2pServer) connectToPeerList(addresses []netip.AddrPort) {
	for _, address := range addresses {
		if err := server.ConnectTo(address); err != nil {
			log.Debug().Err(err).Str("remote", address.String()).Msg("gossiped peer dial failed")
		}
	}
}

// connectSeedNodes dials every configured seed node.
func (server *P2pServer) connectSeedNodes() {
	for _, seed := range server.seedNodes {
		address, err := parsePeerAddress(seed)
		if err != nil {
			log.Warn().Err(err).Str("seed", seed).Msg("invalid seed node address")
			continue
		}

		if err := server.ConnectTo(address); err != nil {
			log.Warn().Err(err).Str("seed", seed).Msg("seed node dial failed")
		}
	}
}

// AcceptNewConnections reports whether the registry has a free slot.
func (server *P2pServer) AcceptNewConnections() bool {
	return server.PeerCount() < server.maxPeers
}

// PeerCount returns the count of registered peers.
func (server *P2pServer) PeerCount() int {
	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()
	return len(server.peers)
}

// SlotsAvailable returns the count of free registry slots.
func (server *P2pServer) SlotsAvailable() int {
	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()
	return server.maxPeers - len(server.peers)
}

// IsConnectedTo reports whether the peer ID is the local one or registered.
func (server *P2pServer) IsConnectedTo(peerID uint64) bool {
	if peerID == server.peerID {
		return true
	}

	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()
	_, found := server.peers[peerID]
	return found
}

// IsConnectedToAddr reports whether the remote address is registered.
func (server *P2pServer) IsConnectedToAddr(address netip.AddrPort) bool {
	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()
	_, found := server.peerAddresses[address]
	return found
}

// GetPeer returns the registered peer with the given ID.
func (server *P2pServer) GetPeer(peerID uint64) (peer *PeerInfo, found bool) {
	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()
	peer, found = server.peers[peerID]
	return peer, found
}

// PeerlistGet returns a snapshot of all registered peers.
func (server *P2pServer) PeerlistGet() (peers []*PeerInfo) {
	server.peersMutex.RLock()
	defer server.peersMutex.RUnlock()

	peers = make([]*PeerInfo, 0, len(server.peers))
	for _, peer := range server.peers {
		peers = append(peers, peer)
	}
	return peers
}

// Broadcast sends the packet to every connected peer. There is no ordering
// across peers; per peer the mailbox order is preserved. A peer that cannot
// take the packet is removed.
func (server *P2pServer) Broadcast(packet protocol.Packet) {
	data, err := protocol.EncodePacket(packet, server.maxPacketSize)
	if err != nil {
		log.Error().Err(err).Msg("broadcast packet does not encode")
		return
	}

	for _, peer := range server.PeerlistGet() {
		if err := server.dispatch.send(peer, data); err != nil {
			log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("broadcast send failed")
			server.RemovePeer(peer.PeerID)
		}
	}
}

// SendToPeer enqueues the packet onto the peer's mailbox. Reports whether the
// peer was known and the packet was accepted.
func (server *P2pServer) SendToPeer(peerID uint64, packet protocol.Packet) bool {
	peer, found := server.GetPeer(peerID)
	if !found {
		return false
	}

	if err := peer.Send(packet); err != nil {
		log.Debug().Err(err).Uint64("peer", peerID).Msg("send failed")
		server.RemovePeer(peerID)
		return false
	}
	return true
}

// remoteAddress extracts the remote socket address of an accepted connection.
func remoteAddress(conn net.Conn) (address netip.AddrPort, err error) {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return address, errors.New("not a TCP connection")
	}

	port := tcpAddr.AddrPort()
	return netip.AddrPortFrom(port.Addr().Unmap(), port.Port()), nil
}

// parsePeerAddress parses an input peer address in the form "IP:Port".
func parsePeerAddress(input string) (address netip.AddrPort, err error) {
	address, err = netip.ParseAddrPort(input)
	if err != nil {
		return address, err
	}
	if !isDialableAddress(address) {
		return address, &InvalidPeerAddressError{Reason: input}
	}
	return netip.AddrPortFrom(address.Addr().Unmap(), address.Port()), nil
}
