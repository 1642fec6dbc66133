package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"mentorchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func TestGormStoreContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewGormStore(newTestDB(t)) })
}

func TestGormStoreLocksConversationForCounterWrites(t *testing.T) {
	db := newTestDB(t)

	var locked atomic.Int64
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("store_test:locks", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok && tx.Statement.Table == "conversations" {
			locked.Add(1)
		}
	}))

	st := NewGormStore(db)
	ctx := context.Background()
	conv, err := st.FindOrCreateConversation(ctx, models.Party{UserID: 1}, models.Party{UserID: 2})
	require.NoError(t, err)
	assert.Zero(t, locked.Load())

	rid := uint(2)
	msg, err := st.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, SenderID: 1, RecipientID: &rid, Content: "hi"})
	require.NoError(t, err)

	_, _, err = st.ApplyInboundMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), locked.Load())

	res, err := st.MarkConversationRead(ctx, conv.ID, 2, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(2), locked.Load())
	assert.Len(t, res.Changed, 1)
	assert.Equal(t, 0, res.Conversation.UnreadFor(2))
}
