/*
File Name:  API.go
Copyright:  2024 Lumen Network s.r.o.

HTTP API of the daemon. It exposes the node status, the peer list snapshot
and a websocket feed of incoming packets so that collaborators can observe
the network without linking against the core.
*/

package webapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	core "github.com/lumenchain/core"
	"github.com/rs/zerolog/log"
)

// WebapiInstance is a single HTTP API instance bound to one backend.
type WebapiInstance struct {
	Backend *core.Backend

	// Router can be used to register additional API functions
	Router *mux.Router

	server    *http.Server
	startedOn time.Time

	// websocket feed subscribers
	feedsMutex sync.RWMutex
	feeds      map[uuid.UUID]*feedClient
}

// WSUpgrader is used for websocket functionality. It allows all requests.
var WSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// allow all connections by default
		return true
	},
}

// Start starts the API on the given address. The read and write timeout may
// be 0 for no timeout.
func Start(backend *core.Backend, listenAddress string, timeoutRead, timeoutWrite time.Duration) (api *WebapiInstance) {
	if listenAddress == "" {
		return nil
	}

	api = &WebapiInstance{
		Backend:   backend,
		Router:    mux.NewRouter(),
		startedOn: time.Now(),
		feeds:     make(map[uuid.UUID]*feedClient),
	}

	api.Router.HandleFunc("/status", api.apiStatus).Methods("GET")
	api.Router.HandleFunc("/peer/self", api.apiPeerSelf).Methods("GET")
	api.Router.HandleFunc("/peer/list", api.apiPeerList).Methods("GET")
	api.Router.HandleFunc("/peer/connect", api.apiPeerConnect).Methods("POST")
	api.Router.HandleFunc("/feed", api.apiFeed).Methods("GET")

	api.server = &http.Server{
		Addr:         listenAddress,
		Handler:      api.Router,
		ReadTimeout:  timeoutRead,
		WriteTimeout: timeoutWrite,
	}

	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("listen", listenAddress).Msg("webapi listen failed")
		}
	}()

	log.Info().Str("listen", listenAddress).Msg("webapi listening")
	return api
}

// Shutdown stops the HTTP server and detaches all feed subscribers.
func (api *WebapiInstance) Shutdown() {
	api.feedsMutex.Lock()
	for id, client := range api.feeds {
		client.close()
		delete(api.feeds, id)
	}
	api.feedsMutex.Unlock()

	api.server.Close()
}

// EncodeJSON writes the JSON response.
func EncodeJSON(w http.ResponseWriter, r *http.Request, value interface{}) (err error) {
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(value); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("encoding json response failed")
	}
	return err
}
