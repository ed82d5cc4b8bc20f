package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tgvault/vaultbot/internal/classify"
	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

// mockTransport serves scripted histories and records deliveries.
type mockTransport struct {
	histories map[int64][]models.InboundMessage
	fetchErrs map[int64]error
	chats     map[int64]models.ChatInfo

	relayed []delivery
	fetches map[int64]int
}

type delivery struct {
	source int64
	id     int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		histories: make(map[int64][]models.InboundMessage),
		fetchErrs: make(map[int64]error),
		chats:     make(map[int64]models.ChatInfo),
		fetches:   make(map[int64]int),
	}
}

// setHistory stores messages newest-first, as the transport would return them.
func (m *mockTransport) setHistory(source int64, ids ...int) {
	msgs := make([]models.InboundMessage, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		msgs = append(msgs, models.InboundMessage{Source: source, ID: ids[i], Body: "msg"})
	}
	m.histories[source] = msgs
}

func (m *mockTransport) FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error) {
	m.fetches[source]++
	if err := m.fetchErrs[source]; err != nil {
		return nil, err
	}
	msgs := m.histories[source]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *mockTransport) ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error) {
	if info, ok := m.chats[id]; ok {
		return info, nil
	}
	return models.ChatInfo{ID: id, Kind: models.ChatKindChannel}, nil
}

func (m *mockTransport) Relay(ctx context.Context, source int64, messageID int, dest int64) error {
	m.relayed = append(m.relayed, delivery{source: source, id: messageID})
	return nil
}

func (m *mockTransport) SendText(ctx context.Context, dest int64, text string) error {
	return nil
}

func newPoller(t *testing.T, transport *mockTransport, watermarks models.Watermarks, sources ...int64) *Poller {
	t.Helper()
	store := watchlist.NewStore(watchlist.NewMemoryBackend())
	wl := watchlist.New()
	for _, s := range sources {
		wl.Channels[s] = struct{}{}
	}
	if err := store.Replace(context.Background(), wl); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	p := New(
		transport,
		store,
		classify.New(store, 999),
		deliver.NewExecutor(transport, 777),
		watermarks,
		WithSourceDelay(0),
	)
	p.sleep = func(ctx context.Context, d time.Duration) {}
	return p
}

func TestCatchUpOnUnseededSource(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 11, 12, 13)
	p := newPoller(t, transport, nil, -100)

	p.Cycle(context.Background())

	if len(transport.relayed) != 3 {
		t.Fatalf("delivered %d messages, want 3", len(transport.relayed))
	}
	// Ordering property: ascending id regardless of fetch order.
	for i, want := range []int{11, 12, 13} {
		if transport.relayed[i].id != want {
			t.Errorf("delivery %d has id %d, want %d", i, transport.relayed[i].id, want)
		}
	}
	if wm, _ := p.Watermarks().Get(-100); wm != 13 {
		t.Errorf("watermark = %d, want 13", wm)
	}
}

func TestNoRedeliveryBelowWatermark(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 11, 12, 13)
	watermarks := models.Watermarks{-100: 12}
	p := newPoller(t, transport, watermarks, -100)

	p.Cycle(context.Background())

	if len(transport.relayed) != 1 || transport.relayed[0].id != 13 {
		t.Fatalf("expected only message 13, got %v", transport.relayed)
	}

	// A second cycle over the same history delivers nothing.
	transport.relayed = nil
	p.Cycle(context.Background())
	if len(transport.relayed) != 0 {
		t.Errorf("stable history re-delivered: %v", transport.relayed)
	}
}

func TestCycleIsolation(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 1, 2)
	transport.fetchErrs[-100] = errors.New("flood wait")
	transport.setHistory(-200, 5)
	transport.setHistory(-300, 7)
	p := newPoller(t, transport, nil, -100, -200, -300)

	p.Cycle(context.Background())

	ids := map[int64]bool{}
	for _, d := range transport.relayed {
		ids[d.source] = true
	}
	if ids[-100] {
		t.Error("failing source should deliver nothing")
	}
	if !ids[-200] || !ids[-300] {
		t.Errorf("healthy sources starved by failing one: %v", transport.relayed)
	}
	if wm, ok := p.Watermarks().Get(-200); !ok || wm != 5 {
		t.Errorf("watermark for -200 = %d (%v), want 5", wm, ok)
	}
}

func TestPushCapableSourceSkipped(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 1, 2)
	transport.chats[-100] = models.ChatInfo{ID: -100, Kind: models.ChatKindSupergroup}
	p := newPoller(t, transport, nil, -100)

	p.Cycle(context.Background())

	if transport.fetches[-100] != 0 {
		t.Error("push-capable source should not be fetched")
	}
	if len(transport.relayed) != 0 {
		t.Error("push-capable source should not be delivered by the poller")
	}
}

func TestEmptyFetchSkipsSilently(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100)
	p := newPoller(t, transport, nil, -100)

	p.Cycle(context.Background())

	if len(transport.relayed) != 0 {
		t.Errorf("unexpected deliveries: %v", transport.relayed)
	}
	if _, ok := p.Watermarks().Get(-100); ok {
		t.Error("empty fetch must not seed a watermark")
	}
}

func TestKindCacheTTL(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 1)
	p := newPoller(t, transport, nil, -100)
	p.cfg.KindTTL = time.Hour

	ctx := context.Background()
	p.Cycle(ctx)
	p.Cycle(ctx)

	// ResolveChat result should be cached within the TTL: the kind map must
	// hold exactly one unexpired entry after repeated cycles.
	entry, ok := p.kinds[-100]
	if !ok || !time.Now().Before(entry.expires) {
		t.Fatal("kind cache entry missing or expired")
	}

	// Force expiry and confirm the next cycle re-resolves.
	p.kinds[-100] = kindEntry{kind: entry.kind, expires: time.Now().Add(-time.Minute)}
	transport.chats[-100] = models.ChatInfo{ID: -100, Kind: models.ChatKindSupergroup}
	p.Cycle(ctx)
	if p.kinds[-100].kind != models.ChatKindSupergroup {
		t.Error("expired kind entry was not refreshed")
	}
}

func TestWatermarkAdvancesPastFailedDelivery(t *testing.T) {
	transport := newMockTransport()
	transport.setHistory(-100, 11, 12)
	p := newPoller(t, transport, models.Watermarks{-100: 10}, -100)

	// Make every relay fail with a non-restricted error.
	failing := &failingRelayer{}
	p.executor = deliver.NewExecutor(failing, 777)

	p.Cycle(context.Background())

	if wm, _ := p.Watermarks().Get(-100); wm != 12 {
		t.Errorf("watermark = %d, want 12; a failed delivery must not block the source", wm)
	}
}

type failingRelayer struct{}

func (f *failingRelayer) Relay(ctx context.Context, source int64, messageID int, dest int64) error {
	return errors.New("server error")
}

func (f *failingRelayer) SendText(ctx context.Context, dest int64, text string) error {
	return errors.New("server error")
}

func (f *failingRelayer) ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error) {
	return models.ChatInfo{}, models.ErrPeerNotFound
}
