/*
File Name:  Commands.go
Copyright:  2024 Lumen Foundation s.r.o.

Routing of incoming packets after the handshake. Every handler returns nil to
keep the peer or an error to drop it; errors never cross peer boundaries.
*/

package core

import (
	"time"

	"github.com/lumenchain/core/protocol"
	"github.com/rs/zerolog/log"
)

// rateTolerance is subtracted from the configured intervals when enforcing
// incoming rates, so that a remote sending exactly on schedule is not dropped
// over network jitter.
const rateTolerance = time.Second

// handlePacket routes one incoming packet. A returned error is peer fatal.
func (server *P2pServer) handlePacket(peer *PeerInfo, packet protocol.Packet) error {
	switch p := packet.(type) {
	case *protocol.Handshake:
		// a second handshake after registration is a protocol violation
		return ErrInvalidHandshake

	case *protocol.Ping:
		return server.handlePing(peer, p)

	case *protocol.PeerList:
		return server.handlePeerList(peer, p)

	case *protocol.ObjectRequest:
		return server.handleObjectRequest(peer, p)

	case *protocol.ObjectResponse:
		return server.handleObjectResponse(peer, p)

	case *protocol.ChainRequest:
		return server.handleChainRequest(peer, p)

	case *protocol.ChainResponse:
		server.publish(peer, p)
		return nil
	}

	return protocol.ErrInvalidPacket
}

// handlePing updates the peer's chain head.
func (server *P2pServer) handlePing(peer *PeerInfo, ping *protocol.Ping) error {
	if err := peer.checkPingRate(server.pingInterval - rateTolerance); err != nil {
		return err
	}

	peer.setChainHead(ping.BlockHeight, ping.BlockTopHash)
	server.publish(peer, ping)
	return nil
}

// handlePeerList extends the peer set from gossip, best-effort.
func (server *P2pServer) handlePeerList(peer *PeerInfo, list *protocol.PeerList) error {
	if err := peer.checkPeerListRate(server.peerListInterval - rateTolerance); err != nil {
		return err
	}

	for _, address := range list.Peers {
		if !isDialableAddress(address) {
			return &InvalidPeerAddressError{Reason: address.String()}
		}
	}

	server.publish(peer, list)

	go func() {
		for _, address := range list.Peers {
			if server.IsConnectedToAddr(address) || !server.AcceptNewConnections() {
				continue
			}
			if err := server.ConnectTo(address); err != nil {
				log.Debug().Err(err).Str("remote", address.String()).Msg("peer list dial failed")
			}
		}
	}()

	return nil
}

// handleObjectRequest serves a block or transaction from the chain, or NotFound.
func (server *P2pServer) handleObjectRequest(peer *PeerInfo, request *protocol.ObjectRequest) error {
	var payload []byte
	var found bool

	switch request.Kind {
	case protocol.ObjectBlock:
		payload, found = server.chain.BlockBytes(request.Hash)
	case protocol.ObjectTransaction:
		payload, found = server.chain.TransactionBytes(request.Hash)
	}

	server.publish(peer, request)

	if !found {
		return peer.Send(protocol.NewObjectNotFound(*request))
	}
	return peer.Send(protocol.NewObjectResponse(request.Kind, payload))
}

// handleObjectResponse resolves the peer's pending request.
func (server *P2pServer) handleObjectResponse(peer *PeerInfo, response *protocol.ObjectResponse) error {
	if err := peer.handleObjectResponse(response); err != nil {
		return err
	}

	server.publish(peer, response)
	return nil
}

// handleChainRequest answers with a window of block hashes above the requested height.
func (server *P2pServer) handleChainRequest(peer *PeerInfo, request *protocol.ChainRequest) error {
	if err := peer.checkChainRequestRate(server.chainSyncMinimum); err != nil {
		return err
	}

	server.publish(peer, request)

	start := request.BlockHeight + 1
	if request.BlockTopHash.IsZero() {
		// an empty chain asks from the bottom
		start = 0
	}

	response := &protocol.ChainResponse{
		BlockHeight: start,
		Hashes:      server.chain.HashWindow(start, protocol.ChainResponseMaxHashes),
	}
	return peer.Send(response)
}
