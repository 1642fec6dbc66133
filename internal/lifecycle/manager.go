// Package lifecycle advances messages through sent, delivered and read and
// keeps conversation aggregates in step.
//
// Every durable write happens before its notification. When a write fails
// nothing is pushed and the error goes back to the caller.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"mentorchat/backend/internal/delivery"
	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/ws"
)

// Manager owns every message status transition.
type Manager struct {
	store  store.Store
	router *delivery.Router
	log    *logger.Logger
	now    func() time.Time
}

// NewManager creates a lifecycle manager
func NewManager(st store.Store, router *delivery.Router, log *logger.Logger) *Manager {
	return &Manager{
		store:  st,
		router: router,
		log:    log.WithComponent("lifecycle"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MarkDelivered moves msg from sent to delivered after a live push and
// notifies both parties. It reports whether the transition applied.
func (m *Manager) MarkDelivered(ctx context.Context, msg *models.Message) (bool, error) {
	at := m.now()
	applied, err := m.store.UpdateMessageStatus(ctx, msg.ID, models.StatusDelivered, at)
	if err != nil {
		return false, fmt.Errorf("mark message %d delivered: %w", msg.ID, err)
	}
	if !applied {
		return false, nil
	}

	msg.Status = models.StatusDelivered
	msg.DeliveredAt = &at

	m.notifyStatus(msg, models.StatusDelivered, at, participants(msg))
	return true, nil
}

// ApplyInbound updates the conversation aggregate for a persisted message
// and pushes the new summary to both participants when it changed.
func (m *Manager) ApplyInbound(ctx context.Context, msg *models.Message) (*models.Conversation, error) {
	conv, changed, err := m.store.ApplyInboundMessage(ctx, msg.ConversationID, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("apply message %d to conversation: %w", msg.ID, err)
	}
	if changed {
		m.notifyConversation(conv)
	}
	return conv, nil
}

// MarkRead moves every message in the conversation addressed to userID to
// read and zeroes that user's unread counter.
func (m *Manager) MarkRead(ctx context.Context, conversationID, userID uint) (*store.ReadResult, error) {
	at := m.now()
	res, err := m.store.MarkConversationRead(ctx, conversationID, userID, at)
	if err != nil {
		return nil, fmt.Errorf("mark conversation %d read: %w", conversationID, err)
	}

	for i := range res.Changed {
		msg := &res.Changed[i]
		m.notifyStatus(msg, models.StatusRead, at, participants(msg))
	}
	m.notifyConversation(res.Conversation)

	m.log.Debug("conversation marked read",
		"conversation_id", conversationID,
		"user_id", userID,
		"messages", len(res.Changed),
	)
	return res, nil
}

func participants(msg *models.Message) []uint {
	ids := []uint{msg.SenderID}
	if msg.RecipientID != nil {
		ids = append(ids, *msg.RecipientID)
	}
	return ids
}

func (m *Manager) notifyStatus(msg *models.Message, status models.MessageStatus, at time.Time, userIDs []uint) {
	payload := ws.StatusChangedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         status,
		At:             at,
	}
	m.router.Notify(userIDs, ws.EventStatusChanged, func(uint) any { return payload })
}

func (m *Manager) notifyConversation(conv *models.Conversation) {
	m.router.Notify(conv.ParticipantIDs(), ws.EventConversationChanged, func(userID uint) any {
		return conv.SummaryFor(userID)
	})
}
