// Package store persists messages, conversation aggregates and moderation
// audit records.
package store

import (
	"context"
	"errors"
	"time"

	"mentorchat/backend/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
	ErrInvalidDraft   = errors.New("invalid message draft")
)

// Default and maximum page sizes for list queries
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ReadResult is the outcome of a bulk mark-read.
type ReadResult struct {
	Conversation *models.Conversation
	// Changed holds the messages that moved to read in this call.
	Changed []models.Message
}

// MessageQuery pages through a conversation, newest first.
type MessageQuery struct {
	BeforeID uint
	Limit    int
}

// ModerationLogFilter narrows ListModerationLogs
type ModerationLogFilter struct {
	Verdict  models.ModerationVerdict
	SenderID uint
	Limit    int
	Offset   int
}

// Store is the durable boundary used by the chat pipeline.
type Store interface {
	// InsertMessage persists a draft with status sent and assigns its id.
	InsertMessage(ctx context.Context, draft *models.Message) (*models.Message, error)
	// UpdateMessageStatus advances a message. It reports false when the
	// transition would not move the status forward.
	UpdateMessageStatus(ctx context.Context, id uint, status models.MessageStatus, at time.Time) (bool, error)
	GetMessage(ctx context.Context, id uint) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uint, q MessageQuery) ([]models.Message, error)

	// FindOrCreateConversation returns the single conversation of an
	// unordered pair, creating it on first use.
	FindOrCreateConversation(ctx context.Context, a, b models.Party) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error)
	// ApplyInboundMessage folds every not-yet-counted message of the
	// conversation into the aggregate. Each message is counted once.
	ApplyInboundMessage(ctx context.Context, conversationID uint, messageID uint) (*models.Conversation, bool, error)
	// MarkConversationRead moves every message addressed to userID to read
	// and zeroes userID's unread counter in one step.
	MarkConversationRead(ctx context.Context, conversationID, userID uint, at time.Time) (*ReadResult, error)

	AuditLog
}

// AuditLog stores moderation decisions.
type AuditLog interface {
	InsertModerationLog(ctx context.Context, entry *models.ModerationLog) error
	MarkAlertSent(ctx context.Context, id uint) error
	ListModerationLogs(ctx context.Context, filter ModerationLogFilter) ([]models.ModerationLog, error)
}

func validateDraft(draft *models.Message) error {
	switch {
	case draft == nil:
		return ErrInvalidDraft
	case draft.ID != 0:
		return errors.Join(ErrInvalidDraft, errors.New("draft already has an id"))
	case draft.SenderID == 0, draft.ConversationID == 0:
		return errors.Join(ErrInvalidDraft, errors.New("sender and conversation are required"))
	case draft.RecipientID == nil && draft.RecipientAddress == "":
		return errors.Join(ErrInvalidDraft, errors.New("recipient is required"))
	}
	return nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// newerThanLast reports whether msg should become the conversation's last
// message pointer.
func newerThanLast(conv *models.Conversation, msg *models.Message) bool {
	if conv.LastMessageAt == nil || conv.LastMessageID == nil {
		return true
	}
	if msg.CreatedAt.After(*conv.LastMessageAt) {
		return true
	}
	return msg.CreatedAt.Equal(*conv.LastMessageAt) && msg.ID > *conv.LastMessageID
}
