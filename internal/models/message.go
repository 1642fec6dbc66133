package models

import (
	"time"
)

// MessageStatus is the delivery lifecycle state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses so transitions can be checked for monotonicity.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status
func (s MessageStatus) Valid() bool {
	return s.Rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward step.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Message represents a persisted direct message
type Message struct {
	ID               uint          `json:"id" gorm:"primaryKey"`
	ClientID         string        `json:"client_id,omitempty" gorm:"index;size:64"`
	ConversationID   uint          `json:"conversation_id" gorm:"index"`
	SenderID         uint          `json:"sender_id" gorm:"index"`
	RecipientID      *uint         `json:"recipient_id,omitempty" gorm:"index"`
	RecipientAddress string        `json:"recipient_address,omitempty" gorm:"size:320"`
	Content          string        `json:"content" gorm:"type:text;not null"`
	Status           MessageStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	Counted          bool          `json:"-" gorm:"not null;default:false"`
	CreatedAt        time.Time     `json:"created_at"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	ReadAt           *time.Time    `json:"read_at,omitempty"`
}

// TableName overrides the table name
func (Message) TableName() string {
	return "messages"
}

// AddressedTo reports whether the message is addressed to the given identity.
func (m *Message) AddressedTo(userID uint) bool {
	return m.RecipientID != nil && *m.RecipientID == userID
}

// StatusChange describes one message moving to a new status.
type StatusChange struct {
	MessageID uint          `json:"message_id"`
	SenderID  uint          `json:"sender_id"`
	Status    MessageStatus `json:"status"`
	At        time.Time     `json:"at"`
}
