package classify

import (
	"testing"

	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/watchlist"
)

func fixedList() *watchlist.WatchList {
	wl := watchlist.New()
	wl.Users[7] = struct{}{}
	wl.Channels[-100] = struct{}{}
	wl.Handles["newsroom"] = struct{}{}
	return wl
}

func TestEvaluateTruthTable(t *testing.T) {
	wl := fixedList()
	const selfID = int64(999)

	tests := []struct {
		name  string
		msg   models.InboundMessage
		match bool
	}{
		{
			name:  "watched user in unwatched chat",
			msg:   models.InboundMessage{Source: -200, SenderID: 7},
			match: true,
		},
		{
			name:  "anonymous post in watched channel",
			msg:   models.InboundMessage{Source: -100},
			match: true,
		},
		{
			name:  "unwatched user in unwatched chat",
			msg:   models.InboundMessage{Source: -200, SenderID: 8},
			match: false,
		},
		{
			name:  "self note",
			msg:   models.InboundMessage{Source: selfID},
			match: true,
		},
		{
			name:  "anonymous admin with watched sender entity",
			msg:   models.InboundMessage{Source: -300, SenderEntity: -100},
			match: true,
		},
		{
			name:  "channel acting as sender with watched handle",
			msg:   models.InboundMessage{Source: -300, SenderEntity: -400, SenderEntityHandle: "newsroom"},
			match: true,
		},
		{
			name:  "anonymous post in unwatched chat",
			msg:   models.InboundMessage{Source: -300, SenderEntity: -400},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.msg, wl, selfID)
			if got.Match != tt.match {
				t.Errorf("Evaluate() match = %v, want %v (reason %q)", got.Match, tt.match, got.Reason)
			}
			if got.Match && got.Reason == "" {
				t.Error("match without a reason")
			}
		})
	}
}

func TestClassifierUsesLiveSnapshot(t *testing.T) {
	store := watchlist.NewStore(watchlist.NewMemoryBackend())
	c := New(store, 999)

	msg := models.InboundMessage{Source: -200, SenderID: 7}
	if v := c.Classify(msg); v.Match {
		t.Fatal("empty watchlist should not match")
	}

	if err := store.Replace(t.Context(), fixedList()); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if v := c.Classify(msg); !v.Match {
		t.Error("classifier did not observe replaced watchlist")
	}
}
