package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the tables the store needs
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.ModerationLog{},
		&models.BlacklistEntry{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// InsertMessage implements Store
func (s *GormStore) InsertMessage(ctx context.Context, draft *models.Message) (*models.Message, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	msg := *draft
	msg.Status = models.StatusSent
	msg.Counted = false
	msg.DeliveredAt = nil
	msg.ReadAt = nil
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// UpdateMessageStatus implements Store
func (s *GormStore) UpdateMessageStatus(ctx context.Context, id uint, status models.MessageStatus, at time.Time) (bool, error) {
	updates, from, err := transitionUpdates(status, at)
	if err != nil {
		return false, err
	}

	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("update message %d status: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check message %d: %w", id, err)
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// transitionUpdates returns the column updates for a forward move to status
// and the statuses it may be applied from.
func transitionUpdates(status models.MessageStatus, at time.Time) (map[string]any, []models.MessageStatus, error) {
	switch status {
	case models.StatusDelivered:
		return map[string]any{"status": status, "delivered_at": at},
			[]models.MessageStatus{models.StatusSent}, nil
	case models.StatusRead:
		return map[string]any{"status": status, "read_at": at},
			[]models.MessageStatus{models.StatusSent, models.StatusDelivered}, nil
	}
	return nil, nil, fmt.Errorf("unsupported status transition to %q", status)
}

// GetMessage implements Store
func (s *GormStore) GetMessage(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

// ListMessages implements Store
func (s *GormStore) ListMessages(ctx context.Context, conversationID uint, q MessageQuery) ([]models.Message, error) {
	query := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(pageSize(q.Limit))
	if q.BeforeID > 0 {
		query = query.Where("id < ?", q.BeforeID)
	}

	var msgs []models.Message
	if err := query.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// FindOrCreateConversation implements Store
func (s *GormStore) FindOrCreateConversation(ctx context.Context, a, b models.Party) (*models.Conversation, error) {
	conv, err := models.NewConversation(a, b)
	if err != nil {
		return nil, err
	}

	// concurrent creators race on the pair key; the loser reads the winner's row
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "pair_key"}}, DoNothing: true}).
		Create(conv).Error
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	var existing models.Conversation
	if err := s.db.WithContext(ctx).Where("pair_key = ?", conv.PairKey).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load conversation: %w", notFound(err))
	}
	return &existing, nil
}

// GetConversation implements Store
func (s *GormStore) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// ListConversations implements Store
func (s *GormStore) ListConversations(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_message_at IS NULL, last_message_at DESC, id DESC").
		Limit(pageSize(limit)).
		Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// ApplyInboundMessage implements Store. Messages left uncounted by an
// earlier failure are folded in here as well.
func (s *GormStore) ApplyInboundMessage(ctx context.Context, conversationID uint, messageID uint) (*models.Conversation, bool, error) {
	var conv models.Conversation
	changed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConversation(tx, &conv, conversationID); err != nil {
			return notFound(err)
		}

		var pending []models.Message
		if err := tx.Where("conversation_id = ? AND (counted = ? OR id = ?)", conversationID, false, messageID).
			Order("id ASC").
			Find(&pending).Error; err != nil {
			return err
		}

		for i := range pending {
			msg := &pending[i]
			if !msg.Counted {
				res := tx.Model(&models.Message{}).
					Where("id = ? AND counted = ?", msg.ID, false).
					Update("counted", true)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 1 && msg.Status != models.StatusRead {
					col := conv.RecipientColumn(msg.SenderID)
					if err := tx.Model(&models.Conversation{}).
						Where("id = ?", conv.ID).
						Update(col, gorm.Expr(col+" + 1")).Error; err != nil {
						return err
					}
					changed = true
				}
			}

			res := tx.Model(&models.Conversation{}).
				Where("id = ? AND (last_message_at IS NULL OR last_message_at < ? OR (last_message_at = ? AND last_message_id < ?))",
					conv.ID, msg.CreatedAt, msg.CreatedAt, msg.ID).
				Updates(map[string]any{"last_message_id": msg.ID, "last_message_at": msg.CreatedAt})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				changed = true
			}
		}

		return tx.First(&conv, conversationID).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("apply message %d to conversation %d: %w", messageID, conversationID, err)
	}
	return &conv, changed, nil
}

// MarkConversationRead implements Store
func (s *GormStore) MarkConversationRead(ctx context.Context, conversationID, userID uint, at time.Time) (*ReadResult, error) {
	result := &ReadResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := lockConversation(tx, &conv, conversationID); err != nil {
			return notFound(err)
		}
		col, ok := conv.UnreadColumn(userID)
		if !ok {
			return ErrNotParticipant
		}

		var unread []models.Message
		if err := tx.Where("conversation_id = ? AND recipient_id = ? AND status <> ?",
			conversationID, userID, models.StatusRead).
			Order("id ASC").
			Find(&unread).Error; err != nil {
			return err
		}

		for _, msg := range unread {
			res := tx.Model(&models.Message{}).
				Where("id = ? AND status <> ?", msg.ID, models.StatusRead).
				Updates(map[string]any{"status": models.StatusRead, "read_at": at, "counted": true})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				msg.Status = models.StatusRead
				msg.ReadAt = &at
				msg.Counted = true
				result.Changed = append(result.Changed, msg)
			}
		}

		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update(col, 0).Error; err != nil {
			return err
		}

		if err := tx.First(&conv, conversationID).Error; err != nil {
			return err
		}
		result.Conversation = &conv
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotParticipant) {
			return nil, err
		}
		return nil, fmt.Errorf("mark conversation %d read: %w", conversationID, err)
	}
	return result, nil
}

// lockConversation loads the aggregate row FOR UPDATE, serialising counter
// writers on one conversation. SQLite ignores the clause and serialises
// through its database lock instead.
func lockConversation(tx *gorm.DB, conv *models.Conversation, id uint) error {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).First(conv, id).Error
}

// InsertModerationLog implements AuditLog
func (s *GormStore) InsertModerationLog(ctx context.Context, entry *models.ModerationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert moderation log: %w", err)
	}
	return nil
}

// MarkAlertSent implements AuditLog. The flag only moves from false to true.
func (s *GormStore) MarkAlertSent(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.ModerationLog{}).
		Where("id = ? AND alert_sent = ?", id, false).
		Update("alert_sent", true)
	if res.Error != nil {
		return fmt.Errorf("mark alert sent for log %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.ModerationLog{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// ListModerationLogs implements AuditLog
func (s *GormStore) ListModerationLogs(ctx context.Context, filter ModerationLogFilter) ([]models.ModerationLog, error) {
	query := s.db.WithContext(ctx).Order("id DESC").Limit(pageSize(filter.Limit)).Offset(filter.Offset)
	if filter.Verdict != "" {
		query = query.Where("verdict = ?", filter.Verdict)
	}
	if filter.SenderID != 0 {
		query = query.Where("sender_id = ?", filter.SenderID)
	}

	var logs []models.ModerationLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list moderation logs: %w", err)
	}
	return logs, nil
}
