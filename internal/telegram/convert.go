package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/tgvault/vaultbot/internal/models"
)

// convert maps a raw MTProto message onto the transport-neutral shape.
// Service messages and empty placeholders are dropped.
func (c *Client) convert(raw tg.MessageClass, edited bool) (models.InboundMessage, bool) {
	m, ok := raw.(*tg.Message)
	if !ok {
		return models.InboundMessage{}, false
	}

	msg := models.InboundMessage{
		Source:   canonicalFromPeer(m.PeerID),
		ID:       m.ID,
		Edited:   edited,
		Outgoing: m.Out,
		Body:     m.Message,
		Time:     time.Unix(int64(m.Date), 0),
	}

	if from, ok := m.GetFromID(); ok {
		switch p := from.(type) {
		case *tg.PeerUser:
			msg.SenderID = p.UserID
			if info, ok := c.peers.info(models.CanonicalUserID(p.UserID)); ok {
				msg.SenderName = info.DisplayName()
			}
		case *tg.PeerChannel:
			msg.SenderEntity = models.CanonicalChannelID(p.ChannelID)
			msg.SenderEntityHandle = c.peers.username(msg.SenderEntity)
			if info, ok := c.peers.info(msg.SenderEntity); ok {
				msg.SenderName = info.DisplayName()
			}
		case *tg.PeerChat:
			msg.SenderEntity = models.CanonicalChatID(p.ChatID)
			if info, ok := c.peers.info(msg.SenderEntity); ok {
				msg.SenderName = info.DisplayName()
			}
		}
	}

	if media, ok := m.GetMedia(); ok {
		msg.Media = mediaLabel(media)
	}

	if fwd, ok := m.GetFwdFrom(); ok {
		msg.FwdSource, msg.FwdMessageID = forwardProvenance(fwd)
	}

	return msg, true
}

// forwardProvenance extracts (source, message id) from a forward header.
// Saved-from fields are present on forwards this account created and carry
// the exact origin; the channel-post fallback covers channel forwards where
// only the public header survived.
func forwardProvenance(fwd tg.MessageFwdHeader) (int64, int) {
	if peer, ok := fwd.GetSavedFromPeer(); ok {
		if msgID, ok := fwd.GetSavedFromMsgID(); ok {
			return canonicalFromPeer(peer), msgID
		}
	}
	if post, ok := fwd.GetChannelPost(); ok && post > 0 {
		if from, ok := fwd.GetFromID(); ok {
			return canonicalFromPeer(from), post
		}
	}
	return 0, 0
}

// canonicalFromPeer converts an MTProto peer to its canonical id.
func canonicalFromPeer(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return models.CanonicalUserID(p.UserID)
	case *tg.PeerChat:
		return models.CanonicalChatID(p.ChatID)
	case *tg.PeerChannel:
		return models.CanonicalChannelID(p.ChannelID)
	default:
		return 0
	}
}

// splitHistory flattens the polymorphic history result into messages plus
// the entity lists that came along for cache harvesting.
func splitHistory(res tg.MessagesMessagesClass) ([]tg.MessageClass, []tg.UserClass, []tg.ChatClass) {
	switch h := res.(type) {
	case *tg.MessagesMessages:
		return h.Messages, h.Users, h.Chats
	case *tg.MessagesMessagesSlice:
		return h.Messages, h.Users, h.Chats
	case *tg.MessagesChannelMessages:
		return h.Messages, h.Users, h.Chats
	default:
		return nil, nil, nil
	}
}

// splitDialogs extracts the entity lists from the polymorphic dialogs result.
func splitDialogs(res tg.MessagesDialogsClass) ([]tg.UserClass, []tg.ChatClass) {
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		return d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		return d.Users, d.Chats
	default:
		return nil, nil
	}
}

// displayNameOfUser builds the best human-readable name for a user.
func displayNameOfUser(u *tg.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name != "" {
		return name
	}
	if username, ok := u.GetUsername(); ok {
		return "@" + username
	}
	return ""
}

// mediaLabel names a media attachment for fallback-copy placeholders.
func mediaLabel(media tg.MessageMediaClass) string {
	switch media.(type) {
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaDocument:
		return "document"
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive, *tg.MessageMediaVenue:
		return "location"
	case *tg.MessageMediaContact:
		return "contact"
	case *tg.MessageMediaPoll:
		return "poll"
	case *tg.MessageMediaWebPage:
		return "" // link previews keep their text body
	default:
		return "media"
	}
}
