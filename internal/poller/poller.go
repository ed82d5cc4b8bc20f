// Package poller is the poll half of the forwarding engine.
//
// Broadcast channels do not reliably produce push events for a user session,
// so each cycle fetches their recent history, computes the suffix of messages
// above the per-source watermark, and delivers that suffix in original
// posting order. Watermark advancement is what makes restarts safe: the
// recovery bootstrapper seeds the table once, and from then on this package
// is its only owner.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tgvault/vaultbot/internal/classify"
	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// Default tuning constants for the poll cycle.
const (
	// DefaultFetchLimit is how many recent messages each cycle inspects.
	DefaultFetchLimit = 10
	// DefaultSourceDelay spaces out history fetches to respect rate limits.
	DefaultSourceDelay = 2 * time.Second
	// DefaultKindTTL bounds how long a resolved chat kind is trusted; a chat
	// can migrate (group to supergroup), so the kind is re-fetched after it.
	DefaultKindTTL = 10 * time.Minute
)

// Transport is the narrow surface the poller needs from the Telegram client.
type Transport interface {
	// FetchRecent returns up to limit most recent messages, newest first.
	FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error)
	// ResolveChat resolves chat metadata, including its kind.
	ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error)
}

// Opts holds tuning options for the Poller.
type Opts struct {
	FetchLimit  int
	SourceDelay time.Duration
	KindTTL     time.Duration
}

// Option defines a configuration option for the Poller.
type Option func(*Opts)

// WithFetchLimit sets how many recent messages each cycle fetches per source.
func WithFetchLimit(n int) Option {
	return func(o *Opts) { o.FetchLimit = n }
}

// WithSourceDelay sets the pause inserted between sources within a cycle.
func WithSourceDelay(d time.Duration) Option {
	return func(o *Opts) { o.SourceDelay = d }
}

// WithKindTTL sets how long resolved chat kinds are cached.
func WithKindTTL(d time.Duration) Option {
	return func(o *Opts) { o.KindTTL = d }
}

// Poller iterates the watched poll-only sources once per cycle.
type Poller struct {
	transport  Transport
	store      *watchlist.Store
	classifier *classify.Classifier
	executor   *deliver.Executor
	watermarks models.Watermarks
	cfg        Opts

	kinds map[int64]kindEntry

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration)
}

type kindEntry struct {
	kind    models.ChatKind
	expires time.Time
}

// New creates a Poller. The watermark table is handed over by the recovery
// bootstrapper and owned exclusively by the poller from then on.
func New(transport Transport, store *watchlist.Store, classifier *classify.Classifier, executor *deliver.Executor, watermarks models.Watermarks, opts ...Option) *Poller {
	cfg := Opts{
		FetchLimit:  DefaultFetchLimit,
		SourceDelay: DefaultSourceDelay,
		KindTTL:     DefaultKindTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if watermarks == nil {
		watermarks = make(models.Watermarks)
	}
	return &Poller{
		transport:  transport,
		store:      store,
		classifier: classifier,
		executor:   executor,
		watermarks: watermarks,
		cfg:        cfg,
		kinds:      make(map[int64]kindEntry),
		sleep:      sleepCtx,
	}
}

// Cycle runs one pass over all watched channels and groups. A failure on one
// source never aborts the remaining sources.
func (p *Poller) Cycle(ctx context.Context) {
	sources := p.store.Current().Sources()
	if len(sources) == 0 {
		return
	}
	slog.Debug("Poll cycle starting", "sources", len(sources))

	for i, source := range sources {
		if ctx.Err() != nil {
			slog.Debug("Poll cycle cancelled", "remaining", len(sources)-i)
			return
		}
		p.pollSource(ctx, source)
		if i < len(sources)-1 {
			p.sleep(ctx, p.cfg.SourceDelay)
		}
	}
	slog.Debug("Poll cycle finished", "sources", len(sources))
}

// pollSource runs the per-source state machine for one cycle. All errors are
// contained here.
func (p *Poller) pollSource(ctx context.Context, source int64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while polling source contained", "panic", r, "source", source)
		}
	}()

	kind, err := p.kindFor(ctx, source)
	if err != nil {
		slog.Warn("Could not resolve source kind, skipping this cycle", "error", err, "source", source)
		return
	}
	if models.SupportsPush(kind) {
		// Push-capable chats are fed by the listener; polling them too
		// would double-deliver.
		slog.Debug("Skipping push-capable source", "source", source, "kind", kind)
		return
	}

	fetched, err := p.transport.FetchRecent(ctx, source, p.cfg.FetchLimit)
	if err != nil {
		slog.Warn("History fetch failed, will retry next cycle", "error", err, "source", source)
		return
	}
	if len(fetched) == 0 {
		return
	}

	oldest, newest := idRange(fetched)
	watermark, seeded := p.watermarks.Get(source)
	if !seeded {
		// Newly watched source with no recovery data: treat the whole
		// fetched window as new (catch-up), then start tracking.
		watermark = oldest - 1
		p.watermarks.Seed(source, watermark)
		slog.Info("Source watermark seeded from first fetch", "source", source, "watermark", watermark)
	}

	fresh := make([]models.InboundMessage, 0, len(fetched))
	for _, m := range fetched {
		if m.ID > watermark {
			fresh = append(fresh, m)
		}
	}
	// History arrives newest first; the vault must receive original posting
	// order.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	delivered := 0
	for _, m := range fresh {
		if verdict := p.classifier.Classify(m); !verdict.Match {
			slog.Debug("Polled message no longer matches, skipping", "source", source, "message_id", m.ID)
			continue
		}
		if out := p.executor.Deliver(ctx, m); out.Status != deliver.Failed {
			delivered++
		}
	}

	// Advance past everything fetched even when an individual delivery
	// failed: a single bad message must not re-block the source forever.
	p.watermarks.Advance(source, newest)
	if len(fresh) > 0 {
		slog.Info("Poll cycle delivered source suffix",
			"source", source, "new", len(fresh), "delivered", delivered, "watermark", newest)
	}
}

// kindFor resolves the chat kind through a short-TTL cache.
func (p *Poller) kindFor(ctx context.Context, source int64) (models.ChatKind, error) {
	if entry, ok := p.kinds[source]; ok && time.Now().Before(entry.expires) {
		return entry.kind, nil
	}
	info, err := p.transport.ResolveChat(ctx, source)
	if err != nil {
		return models.ChatKindUnknown, err
	}
	p.kinds[source] = kindEntry{kind: info.Kind, expires: time.Now().Add(p.cfg.KindTTL)}
	return info.Kind, nil
}

// Watermarks exposes the table for shutdown logging and tests.
func (p *Poller) Watermarks() models.Watermarks {
	return p.watermarks
}

func idRange(msgs []models.InboundMessage) (oldest, newest int) {
	oldest, newest = msgs[0].ID, msgs[0].ID
	for _, m := range msgs[1:] {
		if m.ID < oldest {
			oldest = m.ID
		}
		if m.ID > newest {
			newest = m.ID
		}
	}
	return oldest, newest
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
