package telegram

import (
	"sync"

	"github.com/gotd/td/tg"

	"github.com/tgvault/vaultbot/internal/models"
)

// peerInfo caches what the engine needs to address and describe a peer.
type peerInfo struct {
	kind       models.ChatKind
	accessHash int64
	title      string
	username   string
}

// peerCache maps canonical ids to access data. It fills from update entity
// batches, dialog warms and resolution calls; entries are overwritten freely
// since Telegram may rotate titles and usernames.
type peerCache struct {
	mu    sync.RWMutex
	peers map[int64]peerInfo
}

func newPeerCache() *peerCache {
	return &peerCache{peers: make(map[int64]peerInfo)}
}

func (p *peerCache) harvest(e tg.Entities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range e.Users {
		p.putUserLocked(u)
	}
	for _, ch := range e.Chats {
		p.putChatLocked(ch)
	}
	for _, ch := range e.Channels {
		p.putChannelLocked(ch)
	}
}

func (p *peerCache) addUser(u *tg.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.putUserLocked(u)
}

func (p *peerCache) addUsers(users []tg.UserClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			p.putUserLocked(u)
		}
	}
}

func (p *peerCache) addChats(chats []tg.ChatClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cc := range chats {
		switch ch := cc.(type) {
		case *tg.Chat:
			p.putChatLocked(ch)
		case *tg.Channel:
			p.putChannelLocked(ch)
		}
	}
}

func (p *peerCache) putUserLocked(u *tg.User) {
	hash, _ := u.GetAccessHash()
	username, _ := u.GetUsername()
	p.peers[models.CanonicalUserID(u.ID)] = peerInfo{
		kind:       models.ChatKindUser,
		accessHash: hash,
		title:      displayNameOfUser(u),
		username:   username,
	}
}

func (p *peerCache) putChatLocked(ch *tg.Chat) {
	p.peers[models.CanonicalChatID(ch.ID)] = peerInfo{
		kind:  models.ChatKindGroup,
		title: ch.Title,
	}
}

func (p *peerCache) putChannelLocked(ch *tg.Channel) {
	kind := models.ChatKindChannel
	if ch.Megagroup {
		kind = models.ChatKindSupergroup
	}
	hash, _ := ch.GetAccessHash()
	username, _ := ch.GetUsername()
	p.peers[models.CanonicalChannelID(ch.ID)] = peerInfo{
		kind:       kind,
		accessHash: hash,
		title:      ch.Title,
		username:   username,
	}
}

// inputPeer builds the typed input peer for a canonical id.
func (p *peerCache) inputPeer(id int64) (tg.InputPeerClass, bool) {
	p.mu.RLock()
	info, ok := p.peers[id]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	switch {
	case models.IsChannelID(id):
		return &tg.InputPeerChannel{ChannelID: models.BareChannelID(id), AccessHash: info.accessHash}, true
	case models.IsChatID(id):
		return &tg.InputPeerChat{ChatID: models.BareChatID(id)}, true
	default:
		return &tg.InputPeerUser{UserID: id, AccessHash: info.accessHash}, true
	}
}

// info returns resolved chat metadata for a canonical id.
func (p *peerCache) info(id int64) (models.ChatInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pi, ok := p.peers[id]
	if !ok {
		return models.ChatInfo{}, false
	}
	return models.ChatInfo{ID: id, Title: pi.title, Username: pi.username, Kind: pi.kind}, true
}

// username returns the cached public handle of a canonical id, or "".
func (p *peerCache) username(id int64) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.peers[id].username
}
