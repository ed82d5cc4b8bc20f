// Package recovery reconstructs per-source watermarks after a restart.
//
// The vault itself is the system of record: every delivered entry carries
// either native forward provenance (saved-from headers on forwards this
// account created) or the structured tag written by the fallback copy path.
// Scanning the vault newest-first therefore recovers, per source, the last
// message id that made it in, without any separate database.
package recovery

import (
	"context"
	"log/slog"

	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// DefaultScanDepth is how many recent vault entries the bootstrap scan reads.
const DefaultScanDepth = 100

// Transport is the narrow surface the bootstrapper needs.
type Transport interface {
	FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error)
	ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error)
}

// Opts holds configuration options for the Bootstrapper.
type Opts struct {
	ScanDepth int
}

// Option defines a configuration option for the Bootstrapper.
type Option func(*Opts)

// WithScanDepth sets how many vault entries the bootstrap scan reads.
func WithScanDepth(n int) Option {
	return func(o *Opts) { o.ScanDepth = n }
}

// Bootstrapper seeds the watermark table once at startup, before the first
// poll cycle.
type Bootstrapper struct {
	transport Transport
	vaultID   int64
	cfg       Opts
}

// New creates a Bootstrapper scanning the given vault chat.
func New(transport Transport, vaultID int64, opts ...Option) *Bootstrapper {
	cfg := Opts{ScanDepth: DefaultScanDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bootstrapper{transport: transport, vaultID: vaultID, cfg: cfg}
}

// Seed builds the watermark table. It never fails: transport errors degrade
// to a partial (possibly empty) table, and the poll scheduler's unseeded
// catch-up path covers whatever is missing.
func (b *Bootstrapper) Seed(ctx context.Context, wl *watchlist.WatchList) models.Watermarks {
	watermarks := make(models.Watermarks)

	entries, err := b.transport.FetchRecent(ctx, b.vaultID, b.cfg.ScanDepth)
	if err != nil {
		slog.Warn("Vault scan failed, poll scheduler will seed lazily", "error", err, "vault", b.vaultID)
		return watermarks
	}
	slog.Debug("Scanning vault history for provenance", "entries", len(entries))

	// Newest-first scan: the first occurrence per source is the most recent
	// delivery and wins; older occurrences are ignored.
	for _, entry := range entries {
		source, messageID, ok := provenance(entry)
		if !ok {
			continue
		}
		if watermarks.Seed(source, messageID) {
			slog.Debug("Watermark recovered from vault", "source", source, "watermark", messageID)
		}
	}
	slog.Info("Vault scan complete", "entries", len(entries), "sources_recovered", len(watermarks))

	b.seedRemaining(ctx, wl, watermarks)
	return watermarks
}

// seedRemaining seeds every watched poll-only source that the vault scan did
// not cover from the source's own latest message id, so the first poll cycle
// after a fresh install delivers only messages from now on instead of
// flooding the vault with history.
func (b *Bootstrapper) seedRemaining(ctx context.Context, wl *watchlist.WatchList, watermarks models.Watermarks) {
	for _, source := range wl.Sources() {
		if _, ok := watermarks.Get(source); ok {
			continue
		}
		info, err := b.transport.ResolveChat(ctx, source)
		if err != nil {
			slog.Warn("Could not resolve unseeded source, leaving to poll catch-up", "error", err, "source", source)
			continue
		}
		if models.SupportsPush(info.Kind) {
			continue
		}
		latest, err := b.transport.FetchRecent(ctx, source, 1)
		if err != nil {
			slog.Warn("Could not fetch latest message for unseeded source", "error", err, "source", source)
			continue
		}
		if len(latest) == 0 {
			continue
		}
		watermarks.Seed(source, latest[0].ID)
		slog.Info("Watermark seeded from source head", "source", source, "watermark", latest[0].ID)
	}
}

// provenance extracts (source, message id) from one vault entry. Native
// forward headers win; otherwise the fallback-copy tag is parsed from the
// body. Unparseable entries are skipped.
func provenance(entry models.InboundMessage) (int64, int, bool) {
	if entry.FwdSource != 0 && entry.FwdMessageID != 0 {
		return entry.FwdSource, entry.FwdMessageID, true
	}
	return deliver.ParseTag(entry.Body)
}
