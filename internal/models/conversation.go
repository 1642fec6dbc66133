package models

import (
	"fmt"
	"time"
)

// Party is one side of a conversation: either a resolved identity or an
// unresolved address token.
type Party struct {
	UserID  uint
	Address string
}

// Resolved reports whether the party refers to a registered identity.
func (p Party) Resolved() bool {
	return p.UserID != 0
}

func (p Party) key() string {
	if p.Resolved() {
		return fmt.Sprintf("u:%d", p.UserID)
	}
	return "a:" + NormalizeEmail(p.Address)
}

// Conversation is the per-pair aggregate: last message pointer and one
// unread counter per participant. Side A is always a resolved identity.
type Conversation struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	PairKey       string     `json:"-" gorm:"uniqueIndex;size:400;not null"`
	UserAID       uint       `json:"user_a_id" gorm:"column:user_a_id;index;not null"`
	UserBID       *uint      `json:"user_b_id,omitempty" gorm:"column:user_b_id;index"`
	UserBAddress  string     `json:"user_b_address,omitempty" gorm:"column:user_b_address;size:320"`
	LastMessageID *uint      `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadA       int        `json:"unread_a" gorm:"column:unread_a;not null;default:0"`
	UnreadB       int        `json:"unread_b" gorm:"column:unread_b;not null;default:0"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName overrides the table name
func (Conversation) TableName() string {
	return "conversations"
}

// NewConversation orders the two parties so that an unordered pair always
// produces the same record shape and pair key.
func NewConversation(a, b Party) (*Conversation, error) {
	if !a.Resolved() && !b.Resolved() {
		return nil, fmt.Errorf("conversation needs at least one registered participant")
	}
	if !a.Resolved() || (b.Resolved() && b.UserID < a.UserID) {
		a, b = b, a
	}

	conv := &Conversation{
		PairKey: PairKey(a, b),
		UserAID: a.UserID,
	}
	if b.Resolved() {
		id := b.UserID
		conv.UserBID = &id
	} else {
		conv.UserBAddress = NormalizeEmail(b.Address)
	}
	return conv, nil
}

// PairKey is the unique key of an unordered participant pair.
func PairKey(a, b Party) string {
	ka, kb := a.key(), b.key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// HasParticipant reports whether userID is one of the resolved participants.
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.UserAID == userID || (c.UserBID != nil && *c.UserBID == userID)
}

// UnreadColumn returns the counter column owned by userID.
func (c *Conversation) UnreadColumn(userID uint) (string, bool) {
	switch {
	case c.UserAID == userID:
		return "unread_a", true
	case c.UserBID != nil && *c.UserBID == userID:
		return "unread_b", true
	}
	return "", false
}

// RecipientColumn returns the counter column of the non-sender side. A
// conversation with oneself uses side A.
func (c *Conversation) RecipientColumn(senderID uint) string {
	selfChat := c.UserBID != nil && *c.UserBID == c.UserAID
	if c.UserAID == senderID && !selfChat {
		return "unread_b"
	}
	return "unread_a"
}

// UnreadFor returns the unread counter owned by userID.
func (c *Conversation) UnreadFor(userID uint) int {
	col, ok := c.UnreadColumn(userID)
	if !ok {
		return 0
	}
	if col == "unread_a" {
		return c.UnreadA
	}
	return c.UnreadB
}

// ParticipantIDs returns the resolved participant identities.
func (c *Conversation) ParticipantIDs() []uint {
	ids := []uint{c.UserAID}
	if c.UserBID != nil && *c.UserBID != c.UserAID {
		ids = append(ids, *c.UserBID)
	}
	return ids
}

// ConversationSummary is the per-viewer projection pushed to clients.
type ConversationSummary struct {
	ID            uint       `json:"id"`
	PeerID        *uint      `json:"peer_id,omitempty"`
	PeerAddress   string     `json:"peer_address,omitempty"`
	LastMessageID *uint      `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Unread        int        `json:"unread"`
}

// SummaryFor builds the summary as seen by viewerID.
func (c *Conversation) SummaryFor(viewerID uint) ConversationSummary {
	s := ConversationSummary{
		ID:            c.ID,
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		Unread:        c.UnreadFor(viewerID),
	}
	if c.UserAID == viewerID {
		s.PeerID = c.UserBID
		s.PeerAddress = c.UserBAddress
	} else {
		peer := c.UserAID
		s.PeerID = &peer
	}
	return s
}
