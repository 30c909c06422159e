/*
File Name:  Subscribe.go
Copyright:  2024 Lumen Network s.r.o.

Collaborators subscribe to incoming packets by command. Delivery is
best-effort: a subscriber that does not drain its channel loses packets
rather than stalling the read loops.
*/

package core

import (
	"github.com/lumenchain/core/protocol"
)

// IncomingPacket is one received packet together with its origin.
type IncomingPacket struct {
	PeerID uint64
	Packet protocol.Packet
}

// Subscription delivers incoming packets of the subscribed commands.
type Subscription struct {
	commands map[uint8]bool
	channel  chan IncomingPacket
	server   *P2pServer
}

// Packets returns the delivery channel. It is closed on Unsubscribe.
func (subscription *Subscription) Packets() <-chan IncomingPacket {
	return subscription.channel
}

// Unsubscribe detaches the subscription and closes its channel.
func (subscription *Subscription) Unsubscribe() {
	subscription.server.subscribersMutex.Lock()
	for i, s := range subscription.server.subscribers {
		if s == subscription {
			subscription.server.subscribers = append(subscription.server.subscribers[:i], subscription.server.subscribers[i+1:]...)
			close(subscription.channel)
			break
		}
	}
	subscription.server.subscribersMutex.Unlock()
}

// Subscribe registers for incoming packets of the given commands. No commands
// means all commands.
func (server *P2pServer) Subscribe(buffer int, commands ...uint8) *Subscription {
	subscription := &Subscription{
		channel: make(chan IncomingPacket, buffer),
		server:  server,
	}

	if len(commands) > 0 {
		subscription.commands = make(map[uint8]bool, len(commands))
		for _, command := range commands {
			subscription.commands[command] = true
		}
	}

	server.subscribersMutex.Lock()
	server.subscribers = append(server.subscribers, subscription)
	server.subscribersMutex.Unlock()

	return subscription
}

// publish fans an incoming packet out to matching subscribers without blocking.
func (server *P2pServer) publish(peer *PeerInfo, packet protocol.Packet) {
	server.subscribersMutex.RLock()
	defer server.subscribersMutex.RUnlock()

	for _, subscription := range server.subscribers {
		if subscription.commands != nil && !subscription.commands[packet.Command()] {
			continue
		}

		select {
		case subscription.channel <- IncomingPacket{PeerID: peer.PeerID, Packet: packet}:
		default:
			// slow subscriber, packet dropped
		}
	}
}
