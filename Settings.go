/*
File Name:  Settings.go
Copyright:  2024 Lumen Foundation s.r.o.
*/

package core

import (
	"time"
)

// Version is the daemon version sent in the handshake. It must stay within 16 bytes.
const Version = "0.1.0"

// defaultNetworkID is the hex form of the 16 byte main network identifier.
const defaultNetworkID = "4c554d454e2d4d41494e4e45542d3031"

// getCurrentTime returns the current time in seconds since the Unix epoch.
// Handshake and ping timestamps are advisory; clock skew between peers is tolerated.
func getCurrentTime() uint64 {
	return uint64(time.Now().Unix())
}
