// Package app wires the forwarding engine together and runs it against a
// live Telegram session.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tgvault/vaultbot/internal/classify"
	"github.com/tgvault/vaultbot/internal/command"
	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/listener"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/poller"
	"github.com/tgvault/vaultbot/internal/recovery"
	"github.com/tgvault/vaultbot/internal/scheduler"
	"github.com/tgvault/vaultbot/internal/telegram"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// Default engine tuning applied when the corresponding config is zero.
const (
	DefaultPollInterval = time.Minute
	DefaultScanDepth    = 100
)

// Config holds everything the engine needs to run. It is assembled by the
// command-line bootstrap.
type Config struct {
	APIID    int
	APIHash  string
	Phone    string
	Password string

	// VaultChat is the destination chat: a canonical id or an @handle.
	VaultChat string

	StateDir     string
	WatchlistDSN string

	PollInterval   time.Duration
	PollFetchLimit int
	VaultScanDepth int

	// SeedUsers and SeedChannels populate the watchlist on first run, when
	// the control surface holds no blob yet. Channel entries may be
	// canonical ids or @handles.
	SeedUsers    []int64
	SeedChannels []string
}

// Run starts the engine and blocks until ctx is cancelled or a fatal error
// occurs.
func Run(ctx context.Context, cfg Config) error {
	backend, err := watchlist.NewBackend(cfg.WatchlistDSN)
	if err != nil {
		return fmt.Errorf("failed to open watchlist backend: %w", err)
	}
	store := watchlist.NewStore(backend)
	loaded, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if !loaded {
		if err := store.Replace(ctx, seedWatchList(cfg)); err != nil {
			return fmt.Errorf("failed to seed initial watchlist: %w", err)
		}
		slog.Info("Watchlist seeded from configuration",
			"users", len(cfg.SeedUsers), "channels", len(cfg.SeedChannels))
	}

	client, err := telegram.NewClient(
		telegram.WithAPICredentials(cfg.APIID, cfg.APIHash),
		telegram.WithPhone(cfg.Phone),
		telegram.WithPassword(cfg.Password),
		telegram.WithSessionPath(filepath.Join(cfg.StateDir, telegram.DefaultSessionFileName)),
	)
	if err != nil {
		return err
	}

	// The push pipeline is assembled only once the session is up (it needs
	// the self identity and vault id), but update hooks must be registered
	// before Run. Events arriving in between are dropped; the poll path
	// covers poll-only sources and push chats re-deliver nothing of value
	// during the handful of milliseconds this window lasts.
	var push atomic.Pointer[listener.Listener]
	client.OnMessage(func(ctx context.Context, msg models.InboundMessage) {
		if l := push.Load(); l != nil {
			l.HandleEvent(ctx, msg)
		}
	})

	return client.Run(ctx, func(ctx context.Context) error {
		self := client.Self()

		vaultID, err := resolveVault(ctx, client, cfg.VaultChat)
		if err != nil {
			return err
		}
		slog.Info("Vault resolved", "vault", vaultID)

		resolveWatchedHandles(ctx, client, store)

		classifier := classify.New(store, self.ID)
		executor := deliver.NewExecutor(client, vaultID)
		interpreter := command.New(store, client)
		push.Store(listener.New(classifier, executor, interpreter))

		scanDepth := cfg.VaultScanDepth
		if scanDepth <= 0 {
			scanDepth = DefaultScanDepth
		}
		watermarks := recovery.New(client, vaultID, recovery.WithScanDepth(scanDepth)).
			Seed(ctx, store.Current())

		var pollOpts []poller.Option
		if cfg.PollFetchLimit > 0 {
			pollOpts = append(pollOpts, poller.WithFetchLimit(cfg.PollFetchLimit))
		}
		p := poller.New(client, store, classifier, executor, watermarks, pollOpts...)

		interval := cfg.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}

		// First cycle runs inline so recovery-seeded sources drain before
		// the periodic schedule takes over.
		p.Cycle(ctx)

		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(fmt.Sprintf("@every %s", interval), func() {
			p.Cycle(ctx)
		}); err != nil {
			return fmt.Errorf("failed to schedule poll cycle: %w", err)
		}
		slog.Info("Forwarding engine running", "poll_interval", interval, "self", self.ID)

		<-ctx.Done()
		slog.Info("Shutting down, waiting for in-flight poll cycle")
		return nil
	})
}

// HandleResolver resolves public @handles to chat metadata.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (models.ChatInfo, error)
}

// resolveWatchedHandles maps @handle watchlist entries to canonical ids so
// the poll scheduler, recovery scan and classifier treat them like any
// numeric source. The handle entries themselves stay in the list for
// sender-entity matching. Resolution failures are left for the next restart;
// the handle is simply inert until then.
func resolveWatchedHandles(ctx context.Context, resolver HandleResolver, store *watchlist.Store) {
	handles := store.Current().Handles
	if len(handles) == 0 {
		return
	}

	resolved := make([]models.ChatInfo, 0, len(handles))
	for handle := range handles {
		info, err := resolver.ResolveHandle(ctx, handle)
		if err != nil {
			slog.Warn("Could not resolve watched handle", "error", err, "handle", handle)
			continue
		}
		resolved = append(resolved, info)
	}
	if len(resolved) == 0 {
		return
	}

	changed, err := store.Mutate(ctx, func(wl *watchlist.WatchList) bool {
		added := false
		for _, info := range resolved {
			if wl.HasSource(info.ID) {
				continue
			}
			switch info.Kind {
			case models.ChatKindGroup, models.ChatKindSupergroup:
				wl.Groups[info.ID] = struct{}{}
			default:
				wl.Channels[info.ID] = struct{}{}
			}
			added = true
		}
		return added
	})
	if err != nil {
		slog.Error("Failed to persist resolved handles", "error", err)
		return
	}
	if changed {
		slog.Info("Watched handles resolved to source ids", "resolved", len(resolved))
	}
}

// resolveVault turns the configured vault reference into a canonical id.
func resolveVault(ctx context.Context, client *telegram.Client, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, models.ErrNoVault
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	info, err := client.ResolveHandle(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrNoVault, err)
	}
	return info.ID, nil
}

// seedWatchList builds the first-run watchlist from configuration.
func seedWatchList(cfg Config) *watchlist.WatchList {
	wl := watchlist.New()
	for _, id := range cfg.SeedUsers {
		wl.Users[id] = struct{}{}
	}
	for _, entry := range cfg.SeedChannels {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "@") {
			wl.Handles[strings.ToLower(strings.TrimPrefix(entry, "@"))] = struct{}{}
			continue
		}
		id, err := strconv.ParseInt(entry, 10, 64)
		if err != nil {
			slog.Warn("Ignoring invalid channel entry in configuration", "entry", entry)
			continue
		}
		if models.IsChatID(id) {
			wl.Groups[id] = struct{}{}
		} else {
			wl.Channels[id] = struct{}{}
		}
	}
	return wl
}
