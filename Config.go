/*
File Name:  Config.go
Copyright:  2024 Lumen Foundation s.r.o.
*/

package core

import (
	_ "embed" // Required for embedding the default config file
	"encoding/hex"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration loaded from the YAML file.
type Config struct {
	LogFile  string `yaml:"LogFile"`  // Log file. Empty for console only.
	LogLevel string `yaml:"LogLevel"` // trace, debug, info, warn, error. Default info.

	Listen  string `yaml:"Listen"`  // IP:Port to listen on for P2P connections
	NodeTag string `yaml:"NodeTag"` // Optional node tag sent in the handshake, up to 16 bytes

	// NetworkID identifies the chain, hex encoded 16 bytes. Nodes with a
	// different network ID are rejected at the handshake.
	NetworkID string `yaml:"NetworkID"`

	MaxPeers          int    `yaml:"MaxPeers"`          // Maximum count of connected peers
	MaxPacketSize     uint32 `yaml:"MaxPacketSize"`     // Maximum size of a single packet in bytes
	HandshakeTimeout  int    `yaml:"HandshakeTimeout"`  // Handshake deadline in seconds
	PingInterval      int    `yaml:"PingInterval"`      // Interval of outgoing pings in seconds
	PeerListInterval  int    `yaml:"PeerListInterval"`  // Interval of outgoing peer lists in seconds
	ChainSyncInterval int    `yaml:"ChainSyncInterval"` // Minimum interval between chain requests of a peer in seconds

	// Concurrency selects the dispatch model: "peer" runs one writer task per
	// peer, "shared" multiplexes all connections on a single task.
	Concurrency string `yaml:"Concurrency"`

	// Initial peer seed list, "IP:Port" entries
	SeedNodes []string `yaml:"SeedNodes"`

	// PrivateKey is the Ed25519 private key seed, hex encoded so it can be copied manually.
	PrivateKey string `yaml:"PrivateKey"`

	DataFolder   string `yaml:"DataFolder"`   // Folder for the chain database
	StoreBackend string `yaml:"StoreBackend"` // memory, pogreb or pebble. Default pogreb.

	APIListen string `yaml:"APIListen"` // IP:Port for the HTTP API. Empty disables the API.
}

//go:embed "Config Default.yaml"
var defaultConfig []byte

// LoadConfig reads the YAML configuration file. A missing or empty file is
// replaced by the embedded default. If an error is returned, the application
// shall exit with the returned status.
func LoadConfig(filename string, config *Config) (status int, err error) {
	var configData []byte

	// check if the file is non existent or empty
	stats, err := os.Stat(filename)
	if err != nil && os.IsNotExist(err) || err == nil && stats.Size() == 0 {
		configData = defaultConfig
	} else if err != nil {
		return ExitErrorConfigAccess, err
	} else if configData, err = os.ReadFile(filename); err != nil {
		return ExitErrorConfigRead, err
	}

	if err = yaml.Unmarshal(configData, config); err != nil {
		return ExitErrorConfigParse, err
	}

	config.applyDefaults()
	return ExitSuccess, nil
}

// applyDefaults fills unset fields with the documented defaults.
func (config *Config) applyDefaults() {
	if config.Listen == "" {
		config.Listen = "0.0.0.0:2125"
	}
	if config.MaxPeers <= 0 {
		config.MaxPeers = 32
	}
	if config.MaxPacketSize == 0 {
		config.MaxPacketSize = 1024 * 1024
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 3
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 10
	}
	if config.PeerListInterval <= 0 {
		config.PeerListInterval = 60
	}
	if config.ChainSyncInterval <= 0 {
		config.ChainSyncInterval = 5
	}
	if config.NetworkID == "" {
		config.NetworkID = defaultNetworkID
	}
	if config.DataFolder == "" {
		config.DataFolder = "data"
	}
	if config.Concurrency == "" {
		config.Concurrency = ConcurrencyPerPeer
	}
}

// parseNetworkID decodes the configured network ID.
func (config *Config) parseNetworkID() (networkID [16]byte, err error) {
	data, err := hex.DecodeString(config.NetworkID)
	if err != nil || len(data) != len(networkID) {
		return networkID, ErrInvalidNetworkID
	}

	copy(networkID[:], data)
	return networkID, nil
}

// saveConfig writes the current configuration back to disk. Errors are logged, not fatal.
func (backend *Backend) saveConfig() {
	data, err := yaml.Marshal(&backend.Config)
	if err != nil {
		log.Error().Err(err).Msg("marshalling config failed")
		return
	}

	if err := os.WriteFile(backend.ConfigFilename, data, 0644); err != nil {
		log.Error().Err(err).Str("file", backend.ConfigFilename).Msg("writing config failed")
	}
}
