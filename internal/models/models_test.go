package models

import "testing"

func TestSupportsPush(t *testing.T) {
	tests := []struct {
		kind ChatKind
		want bool
	}{
		{ChatKindUser, true},
		{ChatKindGroup, true},
		{ChatKindSupergroup, true},
		{ChatKindChannel, false},
		{ChatKindUnknown, false},
	}
	for _, tt := range tests {
		if got := SupportsPush(tt.kind); got != tt.want {
			t.Errorf("SupportsPush(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCanonicalIDs(t *testing.T) {
	if got := CanonicalUserID(42); got != 42 {
		t.Errorf("CanonicalUserID(42) = %d, want 42", got)
	}
	if got := CanonicalChatID(123); got != -123 {
		t.Errorf("CanonicalChatID(123) = %d, want -123", got)
	}
	if got := CanonicalChannelID(123456); got != -1000000123456 {
		t.Errorf("CanonicalChannelID(123456) = %d, want -1000000123456", got)
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	canonical := CanonicalChannelID(987654321)
	if !IsChannelID(canonical) {
		t.Fatalf("IsChannelID(%d) = false, want true", canonical)
	}
	if got := BareChannelID(canonical); got != 987654321 {
		t.Errorf("BareChannelID(%d) = %d, want 987654321", canonical, got)
	}

	chat := CanonicalChatID(555)
	if !IsChatID(chat) {
		t.Fatalf("IsChatID(%d) = false, want true", chat)
	}
	if IsChannelID(chat) {
		t.Errorf("IsChannelID(%d) = true for basic group id", chat)
	}
	if got := BareChatID(chat); got != 555 {
		t.Errorf("BareChatID(%d) = %d, want 555", chat, got)
	}
}

func TestWatermarks(t *testing.T) {
	w := make(Watermarks)

	if _, ok := w.Get(-100); ok {
		t.Fatal("Get on empty table should report no watermark")
	}
	if !w.Seed(-100, 50) {
		t.Fatal("first Seed should succeed")
	}
	if w.Seed(-100, 10) {
		t.Error("second Seed should be a no-op")
	}
	if id, _ := w.Get(-100); id != 50 {
		t.Errorf("watermark = %d, want 50", id)
	}

	w.Advance(-100, 60)
	if id, _ := w.Get(-100); id != 60 {
		t.Errorf("watermark after Advance = %d, want 60", id)
	}
	w.Advance(-100, 55)
	if id, _ := w.Get(-100); id != 60 {
		t.Errorf("Advance moved watermark backwards to %d", id)
	}
}

func TestDisplayName(t *testing.T) {
	if got := (ChatInfo{Title: "News", Username: "news"}).DisplayName(); got != "News" {
		t.Errorf("DisplayName = %q, want title", got)
	}
	if got := (ChatInfo{Username: "news"}).DisplayName(); got != "@news" {
		t.Errorf("DisplayName = %q, want @news", got)
	}
}
