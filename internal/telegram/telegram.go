// Package telegram wraps the gotd MTProto client for VaultBot.
//
// It exposes the narrow operations the engine needs (relay, send, history,
// resolution) plus the update hook that feeds the push listener, and hides
// access-hash bookkeeping behind an internal peer cache.
package telegram

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/tgvault/vaultbot/internal/models"
	"github.com/tgvault/vaultbot/internal/util"
)

// Constants for Telegram client configuration
const (
	// DefaultSessionFileName is the session file created in the state directory.
	DefaultSessionFileName = "session.json"
	// DefaultDialogWarmLimit is how many dialogs the initial peer cache warm
	// pulls to learn access hashes.
	DefaultDialogWarmLimit = 100
	// forwardRestrictedError is the RPC error for protected-content chats.
	forwardRestrictedError = "CHAT_FORWARDS_RESTRICTED"
)

// MessageHandler receives converted push events.
type MessageHandler func(ctx context.Context, msg models.InboundMessage)

// Opts holds configuration options for the Telegram client.
type Opts struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string // 2FA password, optional
	SessionPath string
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithAPICredentials sets the application id and hash.
func WithAPICredentials(id int, hash string) Option {
	return func(o *Opts) {
		o.APIID = id
		o.APIHash = hash
	}
}

// WithPhone sets the account phone number used for login.
func WithPhone(phone string) Option {
	return func(o *Opts) {
		o.Phone = phone
	}
}

// WithPassword sets the optional two-factor password.
func WithPassword(password string) Option {
	return func(o *Opts) {
		o.Password = password
	}
}

// WithSessionPath sets the session storage file path.
func WithSessionPath(path string) Option {
	return func(o *Opts) {
		o.SessionPath = path
	}
}

// Client wraps the gotd client for modular use.
type Client struct {
	cfg        Opts
	client     *telegram.Client
	api        *tg.Client
	dispatcher tg.UpdateDispatcher
	peers      *peerCache
	handlers   []MessageHandler
	self       models.Identity
	connected  bool
}

// NewClient creates a new Telegram client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Telegram NewClient options set",
		"api_id_set", cfg.APIID != 0, "phone_set", cfg.Phone != "", "session_path", cfg.SessionPath)

	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("telegram api credentials not set")
	}
	if cfg.Phone == "" {
		return nil, fmt.Errorf("telegram phone number not set")
	}
	if cfg.SessionPath == "" {
		return nil, fmt.Errorf("telegram session path not set")
	}

	c := &Client{
		cfg:        cfg,
		dispatcher: tg.NewUpdateDispatcher(),
		peers:      newPeerCache(),
	}
	c.registerUpdateHooks()

	c.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  c.dispatcher,
	})
	c.api = c.client.API()
	return c, nil
}

// OnMessage registers a handler for converted push events. Must be called
// before Run; handlers run sequentially on the update goroutine.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlers = append(c.handlers, h)
}

// Run connects, authenticates if necessary, warms the peer cache and then
// invokes fn. The connection lives until fn returns or ctx is cancelled.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(c.cfg.Phone, c.cfg.Password, auth.CodeAuthenticatorFunc(promptCode)),
			auth.SendCodeOptions{},
		)
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			slog.Error("Telegram authentication failed", "error", err)
			return fmt.Errorf("failed to authenticate: %w", err)
		}

		me, err := c.client.Self(ctx)
		if err != nil {
			slog.Error("Failed to fetch self identity", "error", err)
			return fmt.Errorf("failed to fetch self identity: %w", err)
		}
		c.self = models.Identity{ID: me.ID, Name: displayNameOfUser(me)}
		c.peers.addUser(me)
		c.connected = true
		slog.Info("Telegram client connected", "self_id", c.self.ID, "self_name", c.self.Name)

		if err := c.warmPeerCache(ctx); err != nil {
			// Non-fatal: the cache refills from update entities.
			slog.Warn("Initial peer cache warm failed", "error", err)
		}

		return fn(ctx)
	})
}

// Self returns the authenticated account identity.
func (c *Client) Self() models.Identity {
	return c.self
}

// FetchRecent returns up to limit most recent messages of a source chat,
// newest first.
func (c *Client) FetchRecent(ctx context.Context, source int64, limit int) ([]models.InboundMessage, error) {
	peer, err := c.inputPeer(ctx, source)
	if err != nil {
		return nil, err
	}

	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %d: %w", source, err)
	}

	raw, users, chats := splitHistory(res)
	c.peers.addUsers(users)
	c.peers.addChats(chats)

	msgs := make([]models.InboundMessage, 0, len(raw))
	for _, m := range raw {
		if converted, ok := c.convert(m, false); ok {
			msgs = append(msgs, converted)
		}
	}
	slog.Debug("History fetched", "source", source, "messages", len(msgs))
	return msgs, nil
}

// Relay natively forwards a message to the destination chat. Returns
// models.ErrForwardRestricted when the source chat has protected content.
func (c *Client) Relay(ctx context.Context, source int64, messageID int, dest int64) error {
	from, err := c.inputPeer(ctx, source)
	if err != nil {
		return err
	}
	to, err := c.inputPeer(ctx, dest)
	if err != nil {
		return err
	}

	_, err = c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ToPeer:   to,
		ID:       []int{messageID},
		RandomID: []int64{util.RandomMessageID()},
	})
	if err != nil {
		if tgerr.Is(err, forwardRestrictedError) {
			return fmt.Errorf("forward of %d/%d rejected: %w", source, messageID, models.ErrForwardRestricted)
		}
		return fmt.Errorf("failed to forward %d/%d: %w", source, messageID, err)
	}
	return nil
}

// SendText posts a plain text message to the destination chat.
func (c *Client) SendText(ctx context.Context, dest int64, text string) error {
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}
	peer, err := c.inputPeer(ctx, dest)
	if err != nil {
		return err
	}
	_, err = c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: util.RandomMessageID(),
	})
	if err != nil {
		return fmt.Errorf("failed to send text to %d: %w", dest, err)
	}
	return nil
}

// ResolveChat returns metadata for a canonical chat id.
func (c *Client) ResolveChat(ctx context.Context, id int64) (models.ChatInfo, error) {
	if info, ok := c.peers.info(id); ok {
		return info, nil
	}
	// Cache miss: the account may have gained access since the last warm.
	if err := c.warmPeerCache(ctx); err != nil {
		slog.Debug("Peer cache refresh failed during resolution", "error", err, "id", id)
	}
	if info, ok := c.peers.info(id); ok {
		return info, nil
	}
	return models.ChatInfo{}, fmt.Errorf("chat %d: %w", id, models.ErrPeerNotFound)
}

// ResolveHandle resolves a public @handle to chat metadata and caches its
// access data.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (models.ChatInfo, error) {
	handle = strings.TrimPrefix(handle, "@")
	res, err := c.api.ContactsResolveUsername(ctx, handle)
	if err != nil {
		return models.ChatInfo{}, fmt.Errorf("failed to resolve @%s: %w", handle, err)
	}
	c.peers.addUsers(res.Users)
	c.peers.addChats(res.Chats)

	id := canonicalFromPeer(res.Peer)
	if info, ok := c.peers.info(id); ok {
		return info, nil
	}
	return models.ChatInfo{}, fmt.Errorf("@%s: %w", handle, models.ErrPeerNotFound)
}

// registerUpdateHooks wires the gotd dispatcher to the converted-event fan-out.
func (c *Client) registerUpdateHooks() {
	c.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.peers.harvest(e)
		c.emit(ctx, u.Message, false)
		return nil
	})
	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.peers.harvest(e)
		c.emit(ctx, u.Message, false)
		return nil
	})
	c.dispatcher.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		c.peers.harvest(e)
		c.emit(ctx, u.Message, true)
		return nil
	})
	c.dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		c.peers.harvest(e)
		c.emit(ctx, u.Message, true)
		return nil
	})
}

func (c *Client) emit(ctx context.Context, raw tg.MessageClass, edited bool) {
	msg, ok := c.convert(raw, edited)
	if !ok {
		return
	}
	for _, h := range c.handlers {
		h(ctx, msg)
	}
}

// warmPeerCache learns access hashes from the dialog list.
func (c *Client) warmPeerCache(ctx context.Context) error {
	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      DefaultDialogWarmLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch dialogs: %w", err)
	}
	users, chats := splitDialogs(res)
	c.peers.addUsers(users)
	c.peers.addChats(chats)
	slog.Debug("Peer cache warmed from dialogs", "users", len(users), "chats", len(chats))
	return nil
}

func (c *Client) inputPeer(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	if peer, ok := c.peers.inputPeer(id); ok {
		return peer, nil
	}
	if err := c.warmPeerCache(ctx); err != nil {
		slog.Debug("Peer cache refresh failed", "error", err, "id", id)
	}
	if peer, ok := c.peers.inputPeer(id); ok {
		return peer, nil
	}
	return nil, fmt.Errorf("peer %d: %w", id, models.ErrPeerNotFound)
}

// promptCode reads the login confirmation code from stdin.
func promptCode(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the Telegram login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read login code: %w", err)
	}
	return strings.TrimSpace(code), nil
}
