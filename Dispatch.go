/*
File Name:  Dispatch.go
Copyright:  2024 Lumen Network s.r.o.

Outbound dispatch behind one interface so that the concurrency model is a
config knob, not a public surface:

  - per-peer: one writer task per connection draining its own mailbox.
    Independent backpressure, natural isolation.
  - shared: one task owns every connection and performs all writes, fed by a
    single inbox of add/remove/send commands. For low-resource environments.

Both models preserve per-peer FIFO. Neither orders sends across peers.
*/

package core

import (
	"github.com/rs/zerolog/log"
)

// dispatcher sends encoded frames to registered connections.
type dispatcher interface {
	register(peer *PeerInfo)
	unregister(peer *PeerInfo)
	send(peer *PeerInfo, data []byte) error
	shutdown()
}

// Concurrency mode names accepted in the config.
const (
	ConcurrencyPerPeer = "peer"
	ConcurrencyShared  = "shared"
)

// perPeerDispatcher starts one writer task per connection.
type perPeerDispatcher struct{}

func newPerPeerDispatcher() *perPeerDispatcher {
	return &perPeerDispatcher{}
}

func (d *perPeerDispatcher) register(peer *PeerInfo) {
	go peer.Connection.writeLoop()
}

func (d *perPeerDispatcher) unregister(peer *PeerInfo) {
	// closing the connection injects the exit message which ends the writer task
	peer.Connection.Close()
}

func (d *perPeerDispatcher) send(peer *PeerInfo, data []byte) error {
	return peer.Connection.SendBytes(data)
}

func (d *perPeerDispatcher) shutdown() {
}

// multiplexCommand kinds for the shared dispatcher inbox.
const (
	multiplexAdd = iota
	multiplexRemove
	multiplexSend
	multiplexExit
)

type multiplexCommand struct {
	kind int
	peer *PeerInfo
	data []byte
}

// sharedDispatcher owns all connections in a single task. Commands arrive on
// the inbox channel and the task blocks on it when idle; there is no polling.
type sharedDispatcher struct {
	inbox  chan multiplexCommand
	done   chan struct{}
	onDrop func(peer *PeerInfo) // invoked outside the dispatcher task when a write fails
}

func newSharedDispatcher(onDrop func(peer *PeerInfo)) *sharedDispatcher {
	d := &sharedDispatcher{
		inbox:  make(chan multiplexCommand, 1024),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}

	go d.run()
	return d
}

func (d *sharedDispatcher) run() {
	defer close(d.done)

	connections := make(map[uint64]*Connection)

	for command := range d.inbox {
		switch command.kind {
		case multiplexAdd:
			connections[command.peer.PeerID] = command.peer.Connection

		case multiplexRemove:
			if connection, ok := connections[command.peer.PeerID]; ok {
				delete(connections, command.peer.PeerID)
				connection.Close()
			}

		case multiplexSend:
			connection, ok := connections[command.peer.PeerID]
			if !ok {
				continue
			}
			if err := connection.writeBytes(command.data); err != nil {
				log.Debug().Err(err).Uint64("peer", command.peer.PeerID).Msg("shared dispatcher write failed")
				delete(connections, command.peer.PeerID)
				connection.Close()

				// registry cleanup re-enters the dispatcher, run it outside this task
				go d.onDrop(command.peer)
			}

		case multiplexExit:
			for _, connection := range connections {
				connection.Close()
			}
			return
		}
	}
}

func (d *sharedDispatcher) register(peer *PeerInfo) {
	d.post(multiplexCommand{kind: multiplexAdd, peer: peer})
}

func (d *sharedDispatcher) unregister(peer *PeerInfo) {
	peer.Connection.Close()
	d.post(multiplexCommand{kind: multiplexRemove, peer: peer})
}

func (d *sharedDispatcher) send(peer *PeerInfo, data []byte) error {
	if peer.Connection.IsClosed() {
		return ErrDisconnected
	}

	select {
	case d.inbox <- multiplexCommand{kind: multiplexSend, peer: peer, data: data}:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (d *sharedDispatcher) shutdown() {
	d.post(multiplexCommand{kind: multiplexExit})
}

// post enqueues a control command. Control commands must not be lost, so this
// blocks if the inbox is momentarily full. Once the dispatcher task has
// exited, commands are discarded.
func (d *sharedDispatcher) post(command multiplexCommand) {
	select {
	case d.inbox <- command:
	case <-d.done:
	}
}
