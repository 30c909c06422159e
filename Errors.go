/*
File Name:  Errors.go
Copyright:  2024 Lumen Network s.r.o.

Error taxonomy of the P2P layer. Three recovery classes apply:
  - local recoverable: logged and ignored (dial failures, invalid seed node addresses)
  - peer fatal: the offending connection is closed and removed, the server continues
    (this includes a peer gossiping an address that can never be dialed)
  - server fatal: the accept loop stops (bind failure)

No error of one peer is ever propagated to another peer.
*/

package core

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/lumenchain/core/protocol"
)

// Sentinel errors of the P2P layer. Codec errors live in the protocol package.
var (
	ErrDisconnected                 = errors.New("peer disconnected")
	ErrInvalidHandshake             = errors.New("invalid handshake")
	ErrExpectedHandshake            = errors.New("expected handshake packet")
	ErrInvalidNetworkID             = errors.New("invalid network ID")
	ErrHandshakeTimeout             = errors.New("handshake deadline exceeded")
	ErrMailboxFull                  = errors.New("peer send mailbox full")
	ErrMaxPeersReached              = errors.New("maximum peer count reached")
	ErrShuttingDown                 = errors.New("server shutting down")
	ErrAsyncTimeout                 = errors.New("operation deadline exceeded")
	ErrPeerInvalidPingCountdown     = errors.New("peer sent a ping faster than protocol rules")
	ErrPeerInvalidPeerListCountdown = errors.New("peer sent a peer list faster than protocol rules")
	ErrRequestSyncChainTooFast      = errors.New("peer requested chain sync faster than protocol rules")
)

// PeerIDAlreadyUsedError indicates a handshake carrying a peer ID that is the
// local one or already present in the registry.
type PeerIDAlreadyUsedError struct {
	PeerID uint64
}

func (e *PeerIDAlreadyUsedError) Error() string {
	return fmt.Sprintf("peer id %d is already used", e.PeerID)
}

// PeerAlreadyConnectedError indicates a connection from an address already in the registry.
type PeerAlreadyConnectedError struct {
	Address netip.AddrPort
}

func (e *PeerAlreadyConnectedError) Error() string {
	return fmt.Sprintf("peer already connected: %s", e.Address)
}

// InvalidPeerAddressError indicates a gossiped or configured peer address that
// can never be dialed (port 0 or an unspecified IP).
type InvalidPeerAddressError struct {
	Reason string
}

func (e *InvalidPeerAddressError) Error() string {
	return fmt.Sprintf("invalid peer address: %s", e.Reason)
}

// ObjectNotFoundError indicates the remote answered an object request with NotFound.
type ObjectNotFoundError struct {
	Request protocol.ObjectRequest
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("object %s %s not found", e.Request.Kind, e.Request.Hash)
}

// ObjectAlreadyRequestedError indicates an object request is already pending on this peer.
type ObjectAlreadyRequestedError struct {
	Request protocol.ObjectRequest
}

func (e *ObjectAlreadyRequestedError) Error() string {
	return fmt.Sprintf("object %s %s already requested", e.Request.Kind, e.Request.Hash)
}

// InvalidObjectResponseError indicates a response that matches no pending request.
type InvalidObjectResponseError struct {
	Hash protocol.Hash
}

func (e *InvalidObjectResponseError) Error() string {
	return fmt.Sprintf("invalid object response, received hash %s", e.Hash)
}
