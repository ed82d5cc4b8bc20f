package app

import (
	"testing"
	"time"

	"github.com/tgvault/vaultbot/internal/classify"
	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/poller"
	"github.com/tgvault/vaultbot/internal/recovery"
	"github.com/tgvault/vaultbot/internal/telegram"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

func TestSeedWatchList(t *testing.T) {
	cfg := Config{
		SeedUsers:    []int64{7, 8},
		SeedChannels: []string{"-1001234567890", "-555", "@News", "garbage", ""},
	}
	wl := seedWatchList(cfg)

	if !wl.HasUser(7) || !wl.HasUser(8) {
		t.Error("seed users missing")
	}
	if _, ok := wl.Channels[-1001234567890]; !ok {
		t.Error("channel id missing")
	}
	if _, ok := wl.Groups[-555]; !ok {
		t.Error("basic group id should land in Groups")
	}
	if !wl.HasHandle("news") {
		t.Error("handle should be stored lowercase without @")
	}
	if len(wl.Channels) != 1 {
		t.Errorf("invalid entries should be skipped, channels = %v", wl.Channels)
	}
}

func TestResolveWatchedHandles(t *testing.T) {
	const (
		channelID    = int64(-1001000000777)
		supergroupID = int64(-1001000000888)
	)
	ctx := t.Context()

	mt := telegram.NewMockTransport()
	mt.HandleChats["newsroom"] = models.ChatInfo{ID: channelID, Kind: models.ChatKindChannel, Username: "newsroom"}
	mt.HandleChats["devs"] = models.ChatInfo{ID: supergroupID, Kind: models.ChatKindSupergroup, Username: "devs"}

	store := watchlist.NewStore(watchlist.NewMemoryBackend())
	wl := watchlist.New()
	wl.Handles["newsroom"] = struct{}{}
	wl.Handles["devs"] = struct{}{}
	wl.Handles["gone"] = struct{}{}
	if err := store.Replace(ctx, wl); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	resolveWatchedHandles(ctx, mt, store)

	current := store.Current()
	if _, ok := current.Channels[channelID]; !ok {
		t.Error("channel handle should resolve into Channels")
	}
	if _, ok := current.Groups[supergroupID]; !ok {
		t.Error("supergroup handle should resolve into Groups")
	}
	if !current.HasHandle("gone") {
		t.Error("unresolvable handle must stay in the list")
	}
	if !current.HasHandle("newsroom") {
		t.Error("resolved handle must stay for sender-entity matching")
	}

	// Resolving again is a no-op; the ids are already present.
	resolveWatchedHandles(ctx, mt, store)
	if got := len(store.Current().Channels); got != 1 {
		t.Errorf("channels = %d after repeat resolution, want 1", got)
	}
}

// TestHandleWatchedChannelIsPolled covers a channel watched only by @handle:
// after resolution it must appear in the poll set and its messages must reach
// the vault.
func TestHandleWatchedChannelIsPolled(t *testing.T) {
	const (
		vaultID = int64(-1009000000000)
		channel = int64(-1001000000123)
	)
	ctx := t.Context()

	mt := telegram.NewMockTransport()
	mt.HandleChats["newsroom"] = models.ChatInfo{ID: channel, Kind: models.ChatKindChannel, Username: "newsroom"}
	mt.Chats[channel] = models.ChatInfo{ID: channel, Kind: models.ChatKindChannel, Title: "Newsroom"}
	mt.Histories[channel] = []models.InboundMessage{
		{Source: channel, ID: 21, Body: "breaking"},
		{Source: channel, ID: 20, Body: "earlier"},
	}

	store := watchlist.NewStore(watchlist.NewMemoryBackend())
	wl := watchlist.New()
	wl.Handles["newsroom"] = struct{}{}
	if err := store.Replace(ctx, wl); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	resolveWatchedHandles(ctx, mt, store)

	classifier := classify.New(store, 999)
	executor := deliver.NewExecutor(mt, vaultID)
	watermarks := recovery.New(mt, vaultID).Seed(ctx, store.Current())
	if wm, ok := watermarks.Get(channel); !ok || wm != 21 {
		t.Fatalf("head-seeded watermark = %d, %v, want 21", wm, ok)
	}

	mt.Histories[channel] = append([]models.InboundMessage{
		{Source: channel, ID: 22, Body: "newest"},
	}, mt.Histories[channel]...)

	p := poller.New(mt, store, classifier, executor, watermarks, poller.WithSourceDelay(0))
	p.Cycle(ctx)

	if len(mt.Relayed) != 1 || mt.Relayed[0].ID != 22 {
		t.Fatalf("relayed = %+v, want exactly message 22", mt.Relayed)
	}
}

// TestPollPipelineEndToEnd wires recovery, classification, delivery and the
// poll scheduler together over a mock transport, the same way Run does.
func TestPollPipelineEndToEnd(t *testing.T) {
	const (
		vaultID = int64(-1009000000000)
		channel = int64(-1001000000123)
	)
	ctx := t.Context()

	mt := telegram.NewMockTransport()
	mt.Chats[channel] = models.ChatInfo{ID: channel, Kind: models.ChatKindChannel, Title: "News"}

	// The vault holds one prior forward from the channel, message 10.
	mt.Histories[vaultID] = []models.InboundMessage{
		{Source: vaultID, ID: 500, FwdSource: channel, FwdMessageID: 10, Time: time.Now()},
	}
	// The channel has advanced to message 12 while the engine was down.
	mt.Histories[channel] = []models.InboundMessage{
		{Source: channel, ID: 12, Body: "second"},
		{Source: channel, ID: 11, Body: "first"},
		{Source: channel, ID: 10, Body: "already delivered"},
	}

	store := watchlist.NewStore(watchlist.NewMemoryBackend())
	wl := watchlist.New()
	wl.Channels[channel] = struct{}{}
	if err := store.Replace(ctx, wl); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	classifier := classify.New(store, 999)
	executor := deliver.NewExecutor(mt, vaultID)

	watermarks := recovery.New(mt, vaultID).Seed(ctx, store.Current())
	if wm, ok := watermarks.Get(channel); !ok || wm != 10 {
		t.Fatalf("recovered watermark = %d, %v, want 10", wm, ok)
	}

	p := poller.New(mt, store, classifier, executor, watermarks, poller.WithSourceDelay(0))
	p.Cycle(ctx)

	if len(mt.Relayed) != 2 {
		t.Fatalf("relayed %d messages, want 2: %+v", len(mt.Relayed), mt.Relayed)
	}
	if mt.Relayed[0].ID != 11 || mt.Relayed[1].ID != 12 {
		t.Errorf("messages should arrive in channel order: %+v", mt.Relayed)
	}

	// A second cycle with no new messages delivers nothing.
	p.Cycle(ctx)
	if len(mt.Relayed) != 2 {
		t.Errorf("second cycle re-delivered: %+v", mt.Relayed)
	}
}
