package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/tgvault/vaultbot/internal/deliver"
	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

const vaultID = int64(777)

type mockTransport struct {
	histories map[int64][]models.InboundMessage
	fetchErrs map[int64]error
	chats     map[int64]models.ChatInfo
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		histories: make(map[int64][]models.InboundMessage),
		fetchErrs: make(map[int64]error),
		chats:     make(map[int64]models.ChatInfo),
	}
}

func (m *mockTransport) FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error) {
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

func forwarded(vaultMsgID int, source int64, sourceMsgID int) models.InboundMessage {
	return models.InboundMessage{Source: vaultID, ID: vaultMsgID, FwdSource: source, FwdMessageID: sourceMsgID}
}

func copied(vaultMsgID int, source int64, sourceMsgID int) models.InboundMessage {
	body := "Forwarded from somewhere\n" + deliver.FormatTag(source, sourceMsgID) + "\n2026-01-01T00:00:00Z\n\ntext"
	return models.InboundMessage{Source: vaultID, ID: vaultMsgID, Body: body}
}

func TestSeedFromForwardProvenance(t *testing.T) {
	transport := newMockTransport()
	// Newest first: message 55 is the most recent delivery from -100.
	transport.histories[vaultID] = []models.InboundMessage{
		forwarded(900, -100, 55),
		forwarded(899, -100, 54),
		forwarded(898, -200, 7),
	}

	w := New(transport, vaultID).Seed(context.Background(), watchlist.New())

	if wm, _ := w.Get(-100); wm != 55 {
		t.Errorf("watermark for -100 = %d, want 55 (most recent wins)", wm)
	}
	if wm, _ := w.Get(-200); wm != 7 {
		t.Errorf("watermark for -200 = %d, want 7", wm)
	}
}

func TestSeedFromFallbackTag(t *testing.T) {
	transport := newMockTransport()
	transport.histories[vaultID] = []models.InboundMessage{
		copied(900, -100, 55),
	}

	w := New(transport, vaultID).Seed(context.Background(), watchlist.New())

	if wm, _ := w.Get(-100); wm != 55 {
		t.Errorf("watermark from tag = %d, want 55", wm)
	}
}

func TestUnparseableEntriesSkipped(t *testing.T) {
	transport := newMockTransport()
	transport.histories[vaultID] = []models.InboundMessage{
		{Source: vaultID, ID: 901, Body: "random note"},
		{Source: vaultID, ID: 900, Body: "[src garbage]"},
		forwarded(899, -100, 12),
	}

	w := New(transport, vaultID).Seed(context.Background(), watchlist.New())

	if len(w) != 1 {
		t.Fatalf("expected 1 seeded source, got %d", len(w))
	}
	if wm, _ := w.Get(-100); wm != 12 {
		t.Errorf("watermark = %d, want 12", wm)
	}
}

func TestUnseededWatchedSourceSeededFromHead(t *testing.T) {
	transport := newMockTransport()
	transport.histories[-300] = []models.InboundMessage{
		{Source: -300, ID: 42},
		{Source: -300, ID: 41},
	}
	wl := watchlist.New()
	wl.Channels[-300] = struct{}{}

	w := New(transport, vaultID).Seed(context.Background(), wl)

	if wm, _ := w.Get(-300); wm != 42 {
		t.Errorf("head-seeded watermark = %d, want 42", wm)
	}
}

func TestPushCapableSourceNeverSeeded(t *testing.T) {
	transport := newMockTransport()
	transport.chats[-300] = models.ChatInfo{ID: -300, Kind: models.ChatKindSupergroup}
	transport.histories[-300] = []models.InboundMessage{{Source: -300, ID: 42}}
	wl := watchlist.New()
	wl.Groups[-300] = struct{}{}

	w := New(transport, vaultID).Seed(context.Background(), wl)

	if _, ok := w.Get(-300); ok {
		t.Error("push-capable source must not be seeded")
	}
}

func TestVaultScanFailureIsNonFatal(t *testing.T) {
	transport := newMockTransport()
	transport.fetchErrs[vaultID] = errors.New("not connected")
	wl := watchlist.New()
	wl.Channels[-300] = struct{}{}

	w := New(transport, vaultID).Seed(context.Background(), wl)

	if len(w) != 0 {
		t.Errorf("expected empty table on vault scan failure, got %v", w)
	}
}

func TestVaultScanBeatsHeadSeeding(t *testing.T) {
	transport := newMockTransport()
	transport.histories[vaultID] = []models.InboundMessage{forwarded(900, -300, 40)}
	transport.histories[-300] = []models.InboundMessage{{Source: -300, ID: 42}}
	wl := watchlist.New()
	wl.Channels[-300] = struct{}{}

	w := New(transport, vaultID).Seed(context.Background(), wl)

	if wm, _ := w.Get(-300); wm != 40 {
		t.Errorf("watermark = %d, want 40 from vault scan, not 42 from head", wm)
	}
}
