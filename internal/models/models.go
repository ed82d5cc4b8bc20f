// Package models defines the core data structures for VaultBot.
//
// It includes the inbound message shape shared by the push and poll paths,
// chat metadata, watermark bookkeeping, and peer id canonicalization helpers.
package models

import (
	"errors"
	"time"
)

// ChatKind identifies the type of a Telegram chat.
type ChatKind string

const (
	// ChatKindUser is a one-to-one private chat.
	ChatKindUser ChatKind = "user"
	// ChatKindGroup is a basic (legacy) group chat.
	ChatKindGroup ChatKind = "group"
	// ChatKindSupergroup is a megagroup channel.
	ChatKindSupergroup ChatKind = "supergroup"
	// ChatKindChannel is a broadcast channel.
	ChatKindChannel ChatKind = "channel"
	// ChatKindUnknown is used when the transport cannot determine the kind.
	ChatKindUnknown ChatKind = "unknown"
)

// SupportsPush reports whether the transport delivers real-time events for
// the given chat kind. Broadcast channels are poll-only: the account may not
// receive update events for them reliably, so the poll scheduler owns them.
func SupportsPush(kind ChatKind) bool {
	switch kind {
	case ChatKindUser, ChatKindGroup, ChatKindSupergroup:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	// ErrForwardRestricted indicates the source chat forbids re-sharing its
	// content (protected content); the delivery executor falls back to a copy.
	ErrForwardRestricted = errors.New("source restricts forwarding")
	// ErrPeerNotFound indicates the transport has no access data for a peer.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrNoVault indicates the vault chat id is missing or unresolvable.
	ErrNoVault = errors.New("vault chat not configured")
	// ErrNotConnected indicates a transport call before the session is up.
	ErrNotConnected = errors.New("transport not connected")
)

// InboundMessage is the transport-neutral view of a received or fetched
// Telegram message. It is read-only to the engine.
type InboundMessage struct {
	// Source is the canonical id of the chat the message appeared in.
	Source int64
	// ID is the message id within its source chat.
	ID int
	// Edited is set when this event represents an edit of an earlier message.
	Edited bool
	// Outgoing is set for messages sent by the authenticated account itself.
	Outgoing bool

	// SenderID identifies the sending user; zero for anonymous posts.
	SenderID int64
	// SenderName is the best available display name for the sender.
	SenderName string
	// SenderEntity is the canonical id of the chat acting as sender for
	// anonymous-admin or channel posts; zero when an individual user sent it.
	SenderEntity int64
	// SenderEntityHandle is the public @handle of the sender entity, without
	// the leading "@", or empty.
	SenderEntityHandle string

	// Body holds the message text or media caption; empty for pure media.
	Body string
	// Media labels the attachment kind ("photo", "video", ...); empty if none.
	Media string
	// Time is the original send time reported by the transport.
	Time time.Time

	// FwdSource and FwdMessageID carry forward provenance when this message
	// is itself a forward the account created (saved-from header). They are
	// only meaningful on vault-side history scans.
	FwdSource    int64
	FwdMessageID int
}

// ChatInfo describes a resolved chat.
type ChatInfo struct {
	ID       int64
	Title    string
	Username string
	Kind     ChatKind
}

// DisplayName returns the most useful human-readable name for the chat.
func (c ChatInfo) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Username != "" {
		return "@" + c.Username
	}
	return ""
}

// Identity describes the authenticated account.
type Identity struct {
	ID   int64
	Name string
}

// Watermarks maps a source chat id to the highest message id already
// accounted for in that source. It is seeded once by the recovery
// bootstrapper and afterwards owned exclusively by the poll scheduler, so no
// locking is required.
type Watermarks map[int64]int

// Get returns the watermark for the source and whether one exists.
func (w Watermarks) Get(source int64) (int, bool) {
	id, ok := w[source]
	return id, ok
}

// Seed records a watermark only if the source has none yet.
func (w Watermarks) Seed(source int64, id int) bool {
	if _, ok := w[source]; ok {
		return false
	}
	w[source] = id
	return true
}

// Advance raises the watermark for the source; it never moves backwards.
func (w Watermarks) Advance(source int64, id int) {
	if cur, ok := w[source]; !ok || id > cur {
		w[source] = id
	}
}
