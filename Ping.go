/*
File Name:  Ping.go
Copyright:  2024 Lumen Network s.r.o.

Regular ping and peer list gossip to all connected peers. Pings carry the
current chain head so remotes keep an up to date view; peer lists let the
network mesh grow beyond the seed nodes.
*/

package core

import (
	"net/netip"
	"time"

	"github.com/lumenchain/core/protocol"
	"github.com/rs/zerolog/log"
)

// autoPingAll sends pings and peer lists to every peer on their configured
// intervals. Due times are checked once a second.
func (server *P2pServer) autoPingAll() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-server.terminateSignal:
			return
		case <-ticker.C:
		}

		now := time.Now()

		for _, peer := range server.PeerlistGet() {
			if lastOut := peer.lastPingOut.Load(); now.Unix()-lastOut >= int64(server.pingInterval/time.Second) {
				peer.lastPingOut.Store(now.Unix())
				server.sendPing(peer)
			}

			if lastOut := peer.lastPeerListOut.Load(); now.Unix()-lastOut >= int64(server.peerListInterval/time.Second) {
				peer.lastPeerListOut.Store(now.Unix())
				server.sendPeerList(peer)
			}
		}
	}
}

func (server *P2pServer) sendPing(peer *PeerInfo) {
	ping := &protocol.Ping{
		BlockHeight:  server.chain.Height(),
		BlockTopHash: server.chain.TopHash(),
	}

	if err := peer.Send(ping); err != nil {
		log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("ping send failed")
		server.RemovePeer(peer.PeerID)
	}
}

// sendPeerList gossips dialable peer addresses, excluding the target itself.
func (server *P2pServer) sendPeerList(peer *PeerInfo) {
	var peers []netip.AddrPort
	for _, other := range server.PeerlistGet() {
		if other.PeerID == peer.PeerID || len(peers) == protocol.HandshakeMaxLength {
			continue
		}

		address := other.DialableAddress()
		if !isDialableAddress(address) {
			continue
		}
		peers = append(peers, address)
	}

	if len(peers) == 0 {
		return
	}

	if err := peer.Send(&protocol.PeerList{Peers: peers}); err != nil {
		log.Debug().Err(err).Uint64("peer", peer.PeerID).Msg("peer list send failed")
		server.RemovePeer(peer.PeerID)
	}
}
