// Package deliver moves a matched message into the vault.
//
// The executor first attempts a native forward, which preserves attribution,
// media and formatting. When the source chat restricts forwarding, it falls
// back to a synthesized text copy that carries a machine-parseable provenance
// tag so restart recovery can still attribute the entry to its source.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tgvault/vaultbot/internal/models"
)

// Relayer is the narrow transport surface the executor needs.
type Relayer interface {
	// Relay natively forwards a message to the destination chat. Returns
	// models.ErrForwardRestricted when the source forbids re-sharing.
	Relay(ctx context.Context, source int64, messageID int, dest int64) error
	// SendText posts a plain text message to the destination chat.
	SendText(ctx context.Context, dest int64, text string) error
	// ResolveChat resolves chat metadata for display names.
	ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error)
}

// Status is the outcome kind of one delivery attempt.
type Status int

const (
	// Delivered means the native forward succeeded.
	Delivered Status = iota
	// Copied means the fallback text copy was sent instead.
	Copied
	// Failed means the message was not delivered; the next push event or
	// poll cycle is the retry boundary.
	Failed
)

// Outcome reports the result of one delivery attempt.
type Outcome struct {
	Status Status
	Err    error
}

// Executor delivers matched messages to a single vault chat.
type Executor struct {
	relayer Relayer
	vaultID int64
}

// NewExecutor creates an Executor targeting the given vault chat.
func NewExecutor(relayer Relayer, vaultID int64) *Executor {
	return &Executor{relayer: relayer, vaultID: vaultID}
}

// Deliver attempts the native relay and falls back to a text copy on a
// forward-restricted rejection. Any other failure is reported as Failed and
// not retried here.
func (e *Executor) Deliver(ctx context.Context, msg models.InboundMessage) Outcome {
	err := e.relayer.Relay(ctx, msg.Source, msg.ID, e.vaultID)
	if err == nil {
		slog.Info("Message forwarded to vault", "source", msg.Source, "message_id", msg.ID)
		return Outcome{Status: Delivered}
	}

	if !errors.Is(err, models.ErrForwardRestricted) {
		slog.Error("Failed to forward message", "error", err, "source", msg.Source, "message_id", msg.ID)
		return Outcome{Status: Failed, Err: err}
	}

	slog.Debug("Source restricts forwarding, sending fallback copy", "source", msg.Source, "message_id", msg.ID)
	text := e.composeFallback(ctx, msg)
	if err := e.relayer.SendText(ctx, e.vaultID, text); err != nil {
		slog.Error("Failed to send fallback copy", "error", err, "source", msg.Source, "message_id", msg.ID)
		return Outcome{Status: Failed, Err: err}
	}
	slog.Info("Fallback copy sent to vault", "source", msg.Source, "message_id", msg.ID)
	return Outcome{Status: Copied}
}

// composeFallback builds the synthesized text copy. The second line is the
// machine tag parsed back by restart recovery.
func (e *Executor) composeFallback(ctx context.Context, msg models.InboundMessage) string {
	name := msg.SenderName
	if info, err := e.relayer.ResolveChat(ctx, msg.Source); err == nil && info.DisplayName() != "" {
		name = info.DisplayName()
	} else if err != nil {
		slog.Debug("Could not resolve source for fallback header", "error", err, "source", msg.Source)
	}
	if name == "" {
		name = fmt.Sprintf("chat %d", msg.Source)
	}

	body := msg.Body
	if body == "" {
		if msg.Media != "" {
			body = fmt.Sprintf("[media: %s]", msg.Media)
		} else {
			body = "[no text]"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Forwarded from %s\n", name)
	b.WriteString(FormatTag(msg.Source, msg.ID))
	b.WriteString("\n")
	b.WriteString(msg.Time.UTC().Format(time.RFC3339))
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}
