// Package command implements the in-band administrative grammar for editing
// the watchlist.
//
// Commands are only honored on the authenticated account's own outgoing
// message stream; a message recognized as a command (or a malformed attempt
// at one) never reaches the classifier.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// commandPattern is the exact accepted grammar: /(add|remove) (user|channel|group) <integer-id>
var commandPattern = regexp.MustCompile(`^/(add|remove)\s+(user|channel|group)\s+(-?\d+)\s*$`)

// usageReply is sent for slash messages that start like a command but fail
// the grammar.
const usageReply = "Usage: /add|/remove user|channel|group <id>"

// Replier posts confirmations back to the chat the command was issued in.
type Replier interface {
	SendText(ctx context.Context, dest int64, text string) error
}

// Interpreter parses and applies watchlist commands.
type Interpreter struct {
	store   *watchlist.Store
	replier Replier
}

// New creates an Interpreter mutating the given store.
func New(store *watchlist.Store, replier Replier) *Interpreter {
	return &Interpreter{store: store, replier: replier}
}

// Handle inspects the message and, when it is a command from the owner,
// applies it and replies. It reports whether the message was consumed as a
// command and must not be classified.
func (i *Interpreter) Handle(ctx context.Context, msg models.InboundMessage) bool {
	if !msg.Outgoing {
		return false
	}
	body := strings.TrimSpace(msg.Body)
	if !hasCommandVerb(body) {
		return false
	}

	m := commandPattern.FindStringSubmatch(body)
	if m == nil {
		slog.Debug("Malformed watchlist command", "source", msg.Source, "body", body)
		i.reply(ctx, msg.Source, usageReply)
		return true
	}

	verb, role := m[1], m[2]
	id, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		// Unreachable with the digit-only pattern short of overflow.
		slog.Warn("Command id out of range", "source", msg.Source, "id", m[3])
		i.reply(ctx, msg.Source, usageReply)
		return true
	}

	changed, err := i.apply(ctx, verb, role, id)
	if err != nil {
		slog.Error("Failed to apply watchlist command", "error", err, "verb", verb, "role", role, "id", id)
		i.reply(ctx, msg.Source, fmt.Sprintf("Failed to %s %s %d: %v", verb, role, id, err))
		return true
	}

	if changed {
		slog.Info("Watchlist updated by command", "verb", verb, "role", role, "id", id)
		i.reply(ctx, msg.Source, fmt.Sprintf("Done: %s %s %d", verb, role, id))
	} else {
		slog.Info("Watchlist command was a no-op", "verb", verb, "role", role, "id", id)
		i.reply(ctx, msg.Source, fmt.Sprintf("No change: %s %d already in desired state", role, id))
	}
	return true
}

// hasCommandVerb reports whether the body starts with a command verb as a
// whole word. Messages like "/address 42" are ordinary text, not malformed
// commands.
func hasCommandVerb(body string) bool {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false
	}
	return fields[0] == "/add" || fields[0] == "/remove"
}

// apply performs the idempotent add or remove through the store's
// read-copy-update path.
func (i *Interpreter) apply(ctx context.Context, verb, role string, id int64) (bool, error) {
	return i.store.Mutate(ctx, func(w *watchlist.WatchList) bool {
		set := roleSet(w, role)
		_, present := set[id]
		switch verb {
		case "add":
			if present {
				return false
			}
			set[id] = struct{}{}
		case "remove":
			if !present {
				return false
			}
			delete(set, id)
		}
		return true
	})
}

func roleSet(w *watchlist.WatchList, role string) map[int64]struct{} {
	switch role {
	case "user":
		return w.Users
	case "channel":
		return w.Channels
	default:
		return w.Groups
	}
}

func (i *Interpreter) reply(ctx context.Context, dest int64, text string) {
	if err := i.replier.SendText(ctx, dest, text); err != nil {
		slog.Error("Failed to send command reply", "error", err, "dest", dest)
	}
}
