// Package bridge defines the interface contract the out-of-scope
// HTTP/WebSocket façade consumes from the core (spec §1, §6). Only the Go
// interface is specified here; no transport is implemented in this
// module.
package bridge

import (
	"context"
	"time"
)

// PeerSnapshot is a read-only view of one known peer, as exposed through
// KnownPeers (spec §6 "known_peers").
type PeerSnapshot struct {
	ID       string
	MAC      string
	LastSeen time.Time
}

// MessageListener is invoked synchronously from the sniffer-dispatch
// context for every delivered MSG body (spec §6
// "register_message_listener").
type MessageListener func(senderPeerID, body string)

// Bridge is the capability surface the core exposes to the external
// bridge process (spec §6 "Bridge interface (consumed by the out-of-scope
// HTTP/WebSocket façade)"). internal/messenger.Messenger implements it.
type Bridge interface {
	// KnownPeers returns a read-only snapshot of id -> {name, mac, last_seen}.
	KnownPeers() []PeerSnapshot

	// SendMessage sends a unicast MSG to peerID. Returns an error
	// (surfaced to the caller, not retried) for an unknown peer id or a
	// peer with no known MAC (spec §7).
	SendMessage(peerID, text string) error

	// SendFile streams the file at path to peerID as a chunked transfer
	// (spec §4.6). ctx is checked once, after every frame has been sent
	// and the expected-ack installed: a cancelled ctx makes SendFile
	// return ctx.Err(), but it does not interrupt the file-read/send loop
	// or the network-level retransmission owned by the reliability engine.
	SendFile(ctx context.Context, peerID, path string) error

	// Rename changes this peer's own display name and broadcasts RENAME
	// to known peers.
	Rename(newName string) error

	// RegisterMessageListener adds cb to the set of listeners invoked on
	// every delivered MSG.
	RegisterMessageListener(cb MessageListener)

	// RemoveMessageListener removes a previously registered listener.
	RemoveMessageListener(cb MessageListener)
}
