package models

// Canonical peer ids follow the Bot API convention so that watch-list entries
// written by operators match what the transport reports:
//
//	user            -> id
//	basic group     -> -id
//	channel/megagroup -> -1_000_000_000_000 - id
const channelIDOffset int64 = 1_000_000_000_000

// CanonicalUserID returns the canonical id for a user peer.
func CanonicalUserID(id int64) int64 { return id }

// CanonicalChatID returns the canonical id for a basic group peer.
func CanonicalChatID(id int64) int64 { return -id }

// CanonicalChannelID returns the canonical id for a channel or megagroup peer.
func CanonicalChannelID(id int64) int64 { return -channelIDOffset - id }

// IsChannelID reports whether a canonical id refers to a channel/megagroup.
func IsChannelID(id int64) bool { return id < -channelIDOffset }

// IsChatID reports whether a canonical id refers to a basic group.
func IsChatID(id int64) bool { return id < 0 && id >= -channelIDOffset }

// BareChannelID recovers the raw MTProto channel id from a canonical id.
func BareChannelID(id int64) int64 { return -id - channelIDOffset }

// BareChatID recovers the raw MTProto chat id from a canonical id.
func BareChatID(id int64) int64 { return -id }
