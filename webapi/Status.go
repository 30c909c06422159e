/*
File Name:  Status.go
Copyright:  2024 Lumen Foundation s.r.o.
*/

package webapi

import (
	"net/http"
	"net/netip"
	"time"

	core "github.com/lumenchain/core"
)

type apiResponseStatus struct {
	Status       int    `json:"status"`       // Status code: 0 = Ok.
	Version      string `json:"version"`      // Daemon version.
	PeerID       uint64 `json:"peerid"`       // Current peer ID of this node.
	CountPeers   int    `json:"countpeers"`   // Count of connected peers.
	BlockHeight  uint64 `json:"blockheight"`  // Current chain height.
	BlockTopHash string `json:"blocktophash"` // Current top block hash, hex.
	Uptime       uint64 `json:"uptime"`       // Uptime of the API in seconds.
}

/*
apiStatus returns the current node status.
Request:    GET /status
Result:     200 with JSON structure apiResponseStatus
*/
func (api *WebapiInstance) apiStatus(w http.ResponseWriter, r *http.Request) {
	status := apiResponseStatus{
		Status:       0,
		Version:      core.Version,
		PeerID:       api.Backend.PeerID,
		CountPeers:   api.Backend.Server.PeerCount(),
		BlockHeight:  api.Backend.Chain.Height(),
		BlockTopHash: api.Backend.Chain.TopHash().Hex(),
		Uptime:       uint64(time.Since(api.startedOn).Seconds()),
	}

	EncodeJSON(w, r, status)
}

type apiResponsePeerSelf struct {
	PeerID    uint64 `json:"peerid"`    // Current peer ID, freshly generated on every start.
	PublicKey string `json:"publickey"` // Public key of the node, hex.
	NodeTag   string `json:"nodetag"`   // Node tag sent in the handshake, if any.
	Listen    string `json:"listen"`    // P2P listen address.
}

/*
apiPeerSelf provides information about the local node identity.
Request:    GET /peer/self
Result:     200 with JSON structure apiResponsePeerSelf
*/
func (api *WebapiInstance) apiPeerSelf(w http.ResponseWriter, r *http.Request) {
	response := apiResponsePeerSelf{
		PeerID:  api.Backend.PeerID,
		NodeTag: api.Backend.Config.NodeTag,
		Listen:  api.Backend.Config.Listen,
	}
	if api.Backend.KeyPair != nil {
		response.PublicKey = api.Backend.KeyPair.PublicKey.Hex()
	}

	EncodeJSON(w, r, response)
}

type apiPeerEntry struct {
	PeerID      uint64 `json:"peerid"`      // Peer ID reported in the handshake.
	Address     string `json:"address"`     // Remote socket address.
	Version     string `json:"version"`     // Daemon version reported by the peer.
	NodeTag     string `json:"nodetag"`     // Node tag, if any.
	Outbound    bool   `json:"outbound"`    // Whether we dialed this peer.
	BlockHeight uint64 `json:"blockheight"` // Chain height last reported by the peer.
	BytesIn     uint64 `json:"bytesin"`     // Total bytes received on the connection.
	BytesOut    uint64 `json:"bytesout"`    // Total bytes sent on the connection.
	ConnectedOn uint64 `json:"connectedon"` // Unix timestamp of the TCP connect.
}

type apiResponsePeerList struct {
	Peers []apiPeerEntry `json:"peers"`
}

/*
apiPeerList returns a snapshot of the peer registry.
Request:    GET /peer/list
Result:     200 with JSON structure apiResponsePeerList
*/
func (api *WebapiInstance) apiPeerList(w http.ResponseWriter, r *http.Request) {
	response := apiResponsePeerList{Peers: []apiPeerEntry{}}

	for _, peer := range api.Backend.Server.PeerlistGet() {
		response.Peers = append(response.Peers, apiPeerEntry{
			PeerID:      peer.PeerID,
			Address:     peer.Address().String(),
			Version:     peer.Version,
			NodeTag:     peer.NodeTag,
			Outbound:    peer.IsOutbound,
			BlockHeight: peer.BlockHeight(),
			BytesIn:     peer.Connection.BytesIn(),
			BytesOut:    peer.Connection.BytesOut(),
			ConnectedOn: uint64(peer.Connection.ConnectedOn().Unix()),
		})
	}

	EncodeJSON(w, r, response)
}

/*
apiPeerConnect dials a remote node.
Request:    POST /peer/connect?address=IP:Port
Result:     200 on success, 400 on an invalid address, 502 if the dial failed
*/
func (api *WebapiInstance) apiPeerConnect(w http.ResponseWriter, r *http.Request) {
	address, err := netip.ParseAddrPort(r.URL.Query().Get("address"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}

	if err := api.Backend.Server.ConnectTo(address); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
}
