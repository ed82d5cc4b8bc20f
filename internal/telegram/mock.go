package telegram

import (
	"context"
	"strings"

	"github.com/tgvault/vaultbot/internal/models"
)

// MockTransport implements the engine-facing transport surfaces without a
// real Telegram connection. In tests, use NewMockTransport instead of
// NewClient.
type MockTransport struct {
	// Histories serves FetchRecent, newest first, keyed by canonical id.
	Histories map[int64][]models.InboundMessage
	// Chats serves ResolveChat.
	Chats map[int64]models.ChatInfo
	// HandleChats serves ResolveHandle, keyed by handle without "@".
	HandleChats map[string]models.ChatInfo
	// RelayErr, when set, is returned by every Relay call.
	RelayErr error

	// Relayed and Sent record calls for assertions.
	Relayed []models.InboundMessage
	Sent    []string
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Histories:   make(map[int64][]models.InboundMessage),
		Chats:       make(map[int64]models.ChatInfo),
		HandleChats: make(map[string]models.ChatInfo),
	}
}

func (m *MockTransport) FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error) {
	msgs := m.Histories[source]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *MockTransport) Relay(ctx context.Context, source int64, messageID int, dest int64) error {
	if m.RelayErr != nil {
		return m.RelayErr
	}
	m.Relayed = append(m.Relayed, models.InboundMessage{Source: source, ID: messageID})
	return nil
}

func (m *MockTransport) SendText(ctx context.Context, dest int64, text string) error {
	m.Sent = append(m.Sent, text)
	return nil
}

func (m *MockTransport) ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error) {
	if info, ok := m.Chats[id]; ok {
		return info, nil
	}
	return models.ChatInfo{ID: id, Kind: models.ChatKindChannel}, nil
}

func (m *MockTransport) ResolveHandle(ctx context.Context, handle string) (models.ChatInfo, error) {
	handle = strings.ToLower(strings.TrimPrefix(handle, "@"))
	if info, ok := m.HandleChats[handle]; ok {
		return info, nil
	}
	return models.ChatInfo{}, models.ErrPeerNotFound
}
