// Package ws defines the websocket event vocabulary shared by the socket
// layer and the services that push to live connections.
package ws

import (
	"encoding/json"
	"time"

	"mentorchat/backend/internal/models"
)

// Inbound event types
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventMarkRead    = "mark_read"
	EventPing        = "ping"
)

// Outbound event types
const (
	EventConnected           = "connected"
	EventPong                = "pong"
	EventMessageAccepted     = "message_accepted"
	EventMessageDelivered    = "message_delivered"
	EventMessageBroadcast    = "message_broadcast"
	EventMessageBlocked      = "message_blocked"
	EventStatusChanged       = "status_changed"
	EventConversationChanged = "conversation_changed"
	EventError               = "error"
)

// Message is the frame exchanged over the socket
type Message struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content,omitempty"`
}

// Inbound is a decoded client frame whose content is parsed per type
type Inbound struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// SendMessagePayload submits a message to a recipient address
type SendMessagePayload struct {
	To       string `json:"to"`
	Content  string `json:"content"`
	ClientID string `json:"client_id,omitempty"`
}

// TypingPayload signals typing activity in a conversation
type TypingPayload struct {
	ConversationID uint `json:"conversation_id"`
	IsTyping       bool `json:"is_typing"`
}

// TypingNotice is pushed to the other participant
type TypingNotice struct {
	ConversationID uint `json:"conversation_id"`
	UserID         uint `json:"user_id"`
	IsTyping       bool `json:"is_typing"`
}

// MarkReadPayload acknowledges a conversation
type MarkReadPayload struct {
	ConversationID uint `json:"conversation_id"`
}

// ConnectedPayload confirms the handshake
type ConnectedPayload struct {
	UserID uint   `json:"user_id"`
	ConnID string `json:"conn_id"`
}

// MessageAcceptedPayload returns the persisted form to the sender
type MessageAcceptedPayload struct {
	ClientID string          `json:"client_id,omitempty"`
	Message  *models.Message `json:"message"`
}

// MessageDeliveredPayload carries a new message to its recipient
type MessageDeliveredPayload struct {
	Message *models.Message `json:"message"`
}

// MessageBroadcastPayload carries a message for an unresolved address
type MessageBroadcastPayload struct {
	RecipientAddress string          `json:"recipient_address"`
	Message          *models.Message `json:"message"`
}

// MessageBlockedPayload tells the sender why a message was refused
type MessageBlockedPayload struct {
	ClientID string `json:"client_id,omitempty"`
	Reason   string `json:"reason"`
}

// StatusChangedPayload reports a lifecycle transition
type StatusChangedPayload struct {
	MessageID      uint                 `json:"message_id"`
	ConversationID uint                 `json:"conversation_id"`
	Status         models.MessageStatus `json:"status"`
	At             time.Time            `json:"at"`
}

// ErrorPayload names the failed operation
type ErrorPayload struct {
	Operation string `json:"operation"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	ClientID  string `json:"client_id,omitempty"`
}
