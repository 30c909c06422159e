/*
File Name:  Exit.go
Copyright:  2024 Lumen Network s.r.o.
*/

package core

// Exit codes signal why the daemon exited. Clients are encouraged to log
// additional details in a log file.
const (
	ExitSuccess           = 0
	ExitErrorConfigAccess = 1 // Error accessing the config file.
	ExitErrorConfigRead   = 2 // Error reading the config file.
	ExitErrorConfigParse  = 3 // Error parsing the config file.
	ExitErrorLogInit      = 4 // Error initializing the log file.
	ExitPrivateKeyCorrupt = 5 // Private key in the config is corrupt.
	ExitPrivateKeyCreate  = 6 // Cannot create a new private key.
	ExitChainCorrupt      = 7 // Chain database is corrupt.
	ExitListenError       = 8 // Cannot bind the P2P listener.
	ExitGraceful          = 9 // Graceful shutdown.
)
