package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mentorchat/backend/internal/models"
)

// MemoryStore is an in-process Store. Every operation holds one lock, which
// gives the same atomicity the gorm store gets from transactions.
type MemoryStore struct {
	mu            sync.Mutex
	nextMsgID     uint
	nextConvID    uint
	nextLogID     uint
	messages      map[uint]*models.Message
	conversations map[uint]*models.Conversation
	byPair        map[string]uint
	logs          []*models.ModerationLog
	failures      map[string]error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      make(map[uint]*models.Message),
		conversations: make(map[uint]*models.Conversation),
		byPair:        make(map[string]uint),
		failures:      make(map[string]error),
	}
}

// Operation names accepted by FailNext
const (
	OpInsertMessage        = "InsertMessage"
	OpUpdateMessageStatus  = "UpdateMessageStatus"
	OpFindOrCreate         = "FindOrCreateConversation"
	OpApplyInbound         = "ApplyInboundMessage"
	OpMarkConversationRead = "MarkConversationRead"
	OpInsertModerationLog  = "InsertModerationLog"
)

// FailNext makes the next call of op return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *MemoryStore) injected(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	if m.RecipientID != nil {
		id := *m.RecipientID
		c.RecipientID = &id
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	if c.UserBID != nil {
		id := *c.UserBID
		out.UserBID = &id
	}
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

// InsertMessage implements Store
func (s *MemoryStore) InsertMessage(_ context.Context, draft *models.Message) (*models.Message, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpInsertMessage); err != nil {
		return nil, err
	}
	if _, ok := s.conversations[draft.ConversationID]; !ok {
		return nil, ErrNotFound
	}

	s.nextMsgID++
	msg := cloneMessage(draft)
	msg.ID = s.nextMsgID
	msg.Status = models.StatusSent
	msg.Counted = false
	msg.DeliveredAt = nil
	msg.ReadAt = nil
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = msg
	return cloneMessage(msg), nil
}

// UpdateMessageStatus implements Store
func (s *MemoryStore) UpdateMessageStatus(_ context.Context, id uint, status models.MessageStatus, at time.Time) (bool, error) {
	if _, _, err := transitionUpdates(status, at); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpdateMessageStatus); err != nil {
		return false, err
	}

	msg, ok := s.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	if !msg.Status.CanAdvanceTo(status) {
		return false, nil
	}
	msg.Status = status
	ts := at
	switch status {
	case models.StatusDelivered:
		msg.DeliveredAt = &ts
	case models.StatusRead:
		msg.ReadAt = &ts
	}
	return true, nil
}

// GetMessage implements Store
func (s *MemoryStore) GetMessage(_ context.Context, id uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(msg), nil
}

// ListMessages implements Store
func (s *MemoryStore) ListMessages(_ context.Context, conversationID uint, q MessageQuery) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Message
	for _, msg := range s.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if q.BeforeID > 0 && msg.ID >= q.BeforeID {
			continue
		}
		out = append(out, *cloneMessage(msg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit := pageSize(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindOrCreateConversation implements Store
func (s *MemoryStore) FindOrCreateConversation(_ context.Context, a, b models.Party) (*models.Conversation, error) {
	conv, err := models.NewConversation(a, b)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpFindOrCreate); err != nil {
		return nil, err
	}

	if id, ok := s.byPair[conv.PairKey]; ok {
		return cloneConversation(s.conversations[id]), nil
	}

	s.nextConvID++
	now := time.Now().UTC()
	conv.ID = s.nextConvID
	conv.CreatedAt = now
	conv.UpdatedAt = now
	s.conversations[conv.ID] = conv
	s.byPair[conv.PairKey] = conv.ID
	return cloneConversation(conv), nil
}

// GetConversation implements Store
func (s *MemoryStore) GetConversation(_ context.Context, id uint) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// ListConversations implements Store
func (s *MemoryStore) ListConversations(_ context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return out[i].ID > out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].ID > out[j].ID
		}
		return a.After(*b)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit := pageSize(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyInboundMessage implements Store
func (s *MemoryStore) ApplyInboundMessage(_ context.Context, conversationID uint, messageID uint) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpApplyInbound); err != nil {
		return nil, false, err
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, false, ErrNotFound
	}

	var pending []*models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && (!msg.Counted || msg.ID == messageID) {
			pending = append(pending, msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	changed := false
	for _, msg := range pending {
		if !msg.Counted {
			msg.Counted = true
			if msg.Status != models.StatusRead {
				if conv.RecipientColumn(msg.SenderID) == "unread_a" {
					conv.UnreadA++
				} else {
					conv.UnreadB++
				}
				changed = true
			}
		}
		if newerThanLast(conv, msg) {
			id, at := msg.ID, msg.CreatedAt
			conv.LastMessageID = &id
			conv.LastMessageAt = &at
			changed = true
		}
	}
	if changed {
		conv.UpdatedAt = time.Now().UTC()
	}
	return cloneConversation(conv), changed, nil
}

// MarkConversationRead implements Store
func (s *MemoryStore) MarkConversationRead(_ context.Context, conversationID, userID uint, at time.Time) (*ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpMarkConversationRead); err != nil {
		return nil, err
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	col, ok := conv.UnreadColumn(userID)
	if !ok {
		return nil, ErrNotParticipant
	}

	result := &ReadResult{}
	ids := make([]uint, 0)
	for id, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.AddressedTo(userID) && msg.Status != models.StatusRead {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		msg := s.messages[id]
		ts := at
		msg.Status = models.StatusRead
		msg.ReadAt = &ts
		msg.Counted = true
		result.Changed = append(result.Changed, *cloneMessage(msg))
	}

	if col == "unread_a" {
		conv.UnreadA = 0
	} else {
		conv.UnreadB = 0
	}
	conv.UpdatedAt = time.Now().UTC()
	result.Conversation = cloneConversation(conv)
	return result, nil
}

// InsertModerationLog implements AuditLog
func (s *MemoryStore) InsertModerationLog(_ context.Context, entry *models.ModerationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpInsertModerationLog); err != nil {
		return err
	}

	s.nextLogID++
	entry.ID = s.nextLogID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	stored := *entry
	s.logs = append(s.logs, &stored)
	return nil
}

// MarkAlertSent implements AuditLog
func (s *MemoryStore) MarkAlertSent(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			l.AlertSent = true
			return nil
		}
	}
	return ErrNotFound
}

// ListModerationLogs implements AuditLog
func (s *MemoryStore) ListModerationLogs(_ context.Context, filter ModerationLogFilter) ([]models.ModerationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ModerationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if filter.Verdict != "" && l.Verdict != filter.Verdict {
			continue
		}
		if filter.SenderID != 0 && l.SenderID != filter.SenderID {
			continue
		}
		out = append(out, *l)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if limit := pageSize(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
