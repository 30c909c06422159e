/*
File Name:  Log.go
Copyright:  2024 Lumen Network s.r.o.
*/

package core

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// initLog configures the global logger: console output, optionally teed into
// the log file from the config. The file has to remain open until the program closes.
func (backend *Backend) initLog() (err error) {
	level, err := zerolog.ParseLevel(backend.Config.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var output io.Writer = console
	if backend.Config.LogFile != "" {
		logFile, err := os.OpenFile(backend.Config.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		output = zerolog.MultiLevelWriter(console, logFile)
	}

	log.Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return nil
}
