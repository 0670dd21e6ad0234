// Package chat defines the ChatTransport contract the core consumes
// (spec.md §6.1) plus a loopback implementation for tests and a
// websocket-backed bridge for local development; production chat
// vendors are out of this repository's scope.
package chat

import "time"

// Message is one inbound chat line, mirroring router.ChatMessage's
// shape so a Transport can be wired straight into the Command Router.
type Message struct {
	Text      string
	UserID    string
	ChannelID string
	Timestamp time.Time
	ThreadRef string
}

// Transport is the interface the core consumes (spec.md §6.1): an
// inbound message stream, an outbound send, and an optional typing
// indicator. Reconnect semantics are hidden behind it.
type Transport interface {
	Messages() <-chan Message
	Send(channel, text string) error
	Typing(channel string) error
	Close() error
}
