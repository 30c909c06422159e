/*
File Name:  Handshake.go
Copyright:  2024 Lumen Network s.r.o.

First-message negotiation. The dialer sends its handshake immediately after
the TCP connect and expects the remote handshake as reply; on an accepted
connection the handshake must arrive within the handshake timeout and is
answered with the local one. Only after the handshake verifies does the
connection enter the registry.

The reported chain head is recorded on the peer but not validated here; chain
comparison is policy of the chain collaborator. The utc_time field is advisory,
clock skew is tolerated.
*/

package core

import (
	"net/netip"

	"github.com/lumenchain/core/protocol"
)

// buildHandshake assembles the local handshake from the current server and chain state.
func (server *P2pServer) buildHandshake() *protocol.Handshake {
	return &protocol.Handshake{
		Version:      Version,
		NodeTag:      server.nodeTag,
		NetworkID:    server.networkID,
		PeerID:       server.peerID,
		LocalPort:    server.localPort,
		UTCTime:      getCurrentTime(),
		BlockHeight:  server.chain.Height(),
		BlockTopHash: server.chain.TopHash(),
		Peers:        server.sharablePeers(),
	}
}

// sharablePeers returns up to 16 dialable addresses of connected peers.
func (server *P2pServer) sharablePeers() (peers []netip.AddrPort) {
	for _, peer := range server.PeerlistGet() {
		if len(peers) == protocol.HandshakeMaxLength {
			break
		}

		address := peer.DialableAddress()
		if !isDialableAddress(address) {
			continue
		}
		peers = append(peers, address)
	}
	return peers
}

// verifyHandshake applies the protocol rules to a received handshake and
// returns the gossiped addresses worth dialing. Any returned error is peer
// fatal: the caller closes the connection.
func (server *P2pServer) verifyHandshake(connection *Connection, handshake *protocol.Handshake) (dialable []netip.AddrPort, err error) {
	if handshake.NetworkID != server.networkID {
		return nil, ErrInvalidNetworkID
	}

	if handshake.PeerID == server.peerID || server.IsConnectedTo(handshake.PeerID) {
		return nil, &PeerIDAlreadyUsedError{PeerID: handshake.PeerID}
	}

	if server.IsConnectedToAddr(connection.Address()) {
		return nil, &PeerAlreadyConnectedError{Address: connection.Address()}
	}

	// Gossiped addresses must all be usable; a peer gossiping garbage is dropped.
	// Already known addresses are filtered, the rest is trimmed to the free slots.
	for _, address := range handshake.Peers {
		if !isDialableAddress(address) {
			return nil, &InvalidPeerAddressError{Reason: address.String()}
		}

		if server.IsConnectedToAddr(address) {
			continue
		}
		dialable = append(dialable, address)
	}

	if slots := server.SlotsAvailable(); len(dialable) > slots {
		dialable = dialable[:slots]
	}

	return dialable, nil
}

// isDialableAddress reports whether the address could ever be dialed:
// a specified IP and a non-zero port.
func isDialableAddress(address netip.AddrPort) bool {
	return address.IsValid() && address.Port() != 0 && !address.Addr().IsUnspecified()
}
