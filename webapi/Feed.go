/*
File Name:  Feed.go
Copyright:  2024 Lumen Network s.r.o.

Websocket feed of incoming packets. Every connected websocket gets its own
subscription on the P2P server; packets are summarized as JSON events. A
subscriber that falls behind loses events rather than stalling the node.
*/

package webapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	core "github.com/lumenchain/core"
	"github.com/lumenchain/core/protocol"
	"github.com/rs/zerolog/log"
)

// feedEvent is one incoming packet summarized for the feed.
type feedEvent struct {
	PeerID  uint64 `json:"peerid"`  // Origin peer.
	Command uint8  `json:"command"` // Packet command byte.
	Name    string `json:"name"`    // Human readable packet name.
	Hash    string `json:"hash"`    // Object hash for object packets, top block hash for ping and chain request, hex. Empty otherwise.
}

type feedClient struct {
	id           uuid.UUID
	conn         *websocket.Conn
	subscription *core.Subscription
}

func (client *feedClient) close() {
	client.subscription.Unsubscribe()
	client.conn.Close()
}

/*
apiFeed streams incoming packets as JSON events.
Request:    GET /feed (websocket upgrade)
Result:     one JSON feedEvent per incoming packet
*/
func (api *WebapiInstance) apiFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an error
		return
	}

	client := &feedClient{
		id:           uuid.New(),
		conn:         conn,
		subscription: api.Backend.Server.Subscribe(64),
	}

	api.feedsMutex.Lock()
	api.feeds[client.id] = client
	api.feedsMutex.Unlock()

	log.Debug().Str("feed", client.id.String()).Msg("feed subscriber connected")

	go api.feedPump(client)
}

// feedPump forwards subscription events onto the websocket until either side goes away.
func (api *WebapiInstance) feedPump(client *feedClient) {
	defer func() {
		api.feedsMutex.Lock()
		delete(api.feeds, client.id)
		api.feedsMutex.Unlock()

		client.close()
		log.Debug().Str("feed", client.id.String()).Msg("feed subscriber detached")
	}()

	for incoming := range client.subscription.Packets() {
		if err := client.conn.WriteJSON(summarizePacket(incoming)); err != nil {
			return
		}
	}
}

func summarizePacket(incoming core.IncomingPacket) feedEvent {
	event := feedEvent{
		PeerID:  incoming.PeerID,
		Command: incoming.Packet.Command(),
	}

	switch packet := incoming.Packet.(type) {
	case *protocol.Ping:
		event.Name = "ping"
		event.Hash = packet.BlockTopHash.Hex()
	case *protocol.PeerList:
		event.Name = "peerlist"
	case *protocol.ObjectRequest:
		event.Name = "object request"
		event.Hash = packet.Hash.Hex()
	case *protocol.ObjectResponse:
		event.Name = "object response"
		event.Hash = packet.PayloadHash().Hex()
	case *protocol.ChainRequest:
		event.Name = "chain request"
		event.Hash = packet.BlockTopHash.Hex()
	case *protocol.ChainResponse:
		event.Name = "chain response"
	default:
		event.Name = "unknown"
	}

	return event
}
