/*
File Name:  main.go
Copyright:  2024 Lumen Network s.r.o.

Daemon entry point: load the config, bring the P2P server and the HTTP API
up, run until interrupted.
*/

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	core "github.com/lumenchain/core"
	"github.com/lumenchain/core/webapi"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "lumend",
	Short: "Lumen network daemon",
	Long:  "P2P daemon of the Lumen network. It connects to the configured seed nodes, exchanges blocks and transactions with its peers and serves a local HTTP API.",
	RunE:  runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "Config.yaml", "Configuration file. Created with defaults if missing.")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	backend, status, err := core.Init(configFile)
	if status != core.ExitSuccess {
		log.Error().Err(err).Int("status", status).Msg("init failed")
		os.Exit(status)
	}

	if err := backend.Connect(); err != nil {
		log.Error().Err(err).Msg("p2p listen failed")
		os.Exit(core.ExitListenError)
	}

	api := webapi.Start(backend, backend.Config.APIListen, 10*time.Second, 10*time.Second)

	// run until interrupted
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info().Msg("shutting down")

	if api != nil {
		api.Shutdown()
	}
	backend.Stop()

	return nil
}
