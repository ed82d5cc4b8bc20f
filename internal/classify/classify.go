// Package classify decides whether an inbound message originates from a
// watched entity and therefore belongs in the vault.
package classify

import (
	"fmt"

	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// Verdict is the outcome of classifying one message.
type Verdict struct {
	Match bool
	// Reason describes which rule matched, for log lines only.
	Reason string
}

// Classifier evaluates messages against the live watchlist.
type Classifier struct {
	store *watchlist.Store
	// selfID is the authenticated account's own user id, used for the
	// self-notes rule.
	selfID int64
}

// New creates a Classifier reading from the given store.
func New(store *watchlist.Store, selfID int64) *Classifier {
	return &Classifier{store: store, selfID: selfID}
}

// Classify evaluates the message against the current watchlist snapshot.
func (c *Classifier) Classify(msg models.InboundMessage) Verdict {
	return Evaluate(msg, c.store.Current(), c.selfID)
}

// Evaluate applies the matching rules against an explicit watchlist snapshot.
// The rules are independent; any true rule is a match.
func Evaluate(msg models.InboundMessage, wl *watchlist.WatchList, selfID int64) Verdict {
	// Rule 1: the chat itself is watched, regardless of sender. Covers posts
	// and anonymous-admin messages in monitored channels and groups.
	if wl.HasSource(msg.Source) {
		return Verdict{Match: true, Reason: fmt.Sprintf("watched source %d", msg.Source)}
	}

	// Rule 2: an identified sender who is watched, in any chat we can see.
	if msg.SenderID != 0 && wl.HasUser(msg.SenderID) {
		return Verdict{Match: true, Reason: fmt.Sprintf("watched user %d", msg.SenderID)}
	}

	// Rule 3: self-notes. No identified sender and the chat is the account's
	// own private channel.
	if msg.SenderID == 0 && msg.SenderEntity == 0 && selfID != 0 && msg.Source == selfID {
		return Verdict{Match: true, Reason: "self note"}
	}

	// Rule 4: the sender entity (channel acting as sender, anonymous admin)
	// or its public handle is watched.
	if msg.SenderEntity != 0 && wl.HasSource(msg.SenderEntity) {
		return Verdict{Match: true, Reason: fmt.Sprintf("watched sender entity %d", msg.SenderEntity)}
	}
	if wl.HasHandle(msg.SenderEntityHandle) {
		return Verdict{Match: true, Reason: fmt.Sprintf("watched handle @%s", msg.SenderEntityHandle)}
	}

	return Verdict{}
}
