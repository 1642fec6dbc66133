package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"mentorchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises behaviour every Store implementation must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAssignsIDAndSentStatus", func(t *testing.T) { testInsert(t, newStore(t)) })
	t.Run("StatusIsMonotonic", func(t *testing.T) { testMonotonicStatus(t, newStore(t)) })
	t.Run("UpdateMissingMessage", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("OneConversationPerPair", func(t *testing.T) { testFindOrCreate(t, newStore(t)) })
	t.Run("ApplyInboundIsIdempotent", func(t *testing.T) { testApplyIdempotent(t, newStore(t)) })
	t.Run("ApplyInboundKeepsNewestPointer", func(t *testing.T) { testApplyOutOfOrder(t, newStore(t)) })
	t.Run("ApplyInboundSelfCorrects", func(t *testing.T) { testApplySelfCorrects(t, newStore(t)) })
	t.Run("ApplyInboundConcurrentSenders", func(t *testing.T) { testApplyConcurrent(t, newStore(t)) })
	t.Run("MarkReadZeroesOnlyReader", func(t *testing.T) { testMarkRead(t, newStore(t)) })
	t.Run("MarkReadIsIdempotent", func(t *testing.T) { testMarkReadIdempotent(t, newStore(t)) })
	t.Run("MarkReadRejectsOutsiders", func(t *testing.T) { testMarkReadOutsider(t, newStore(t)) })
	t.Run("ReadBeforeApplyIsNotCounted", func(t *testing.T) { testReadBeforeApply(t, newStore(t)) })
	t.Run("ListConversationsAndMessages", func(t *testing.T) { testListing(t, newStore(t)) })
	t.Run("ModerationLogs", func(t *testing.T) { testModerationLogs(t, newStore(t)) })
}

func uintPtr(v uint) *uint { return &v }

func mustConversation(t *testing.T, s Store, a, b uint) *models.Conversation {
	t.Helper()
	conv, err := s.FindOrCreateConversation(context.Background(), models.Party{UserID: a}, models.Party{UserID: b})
	require.NoError(t, err)
	return conv
}

func mustInsert(t *testing.T, s Store, conv *models.Conversation, from, to uint, body string, at time.Time) *models.Message {
	t.Helper()
	msg, err := s.InsertMessage(context.Background(), &models.Message{
		ConversationID: conv.ID,
		SenderID:       from,
		RecipientID:    uintPtr(to),
		Content:        body,
		CreatedAt:      at,
	})
	require.NoError(t, err)
	return msg
}

func testInsert(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)

	msg, err := s.InsertMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		SenderID:       1,
		RecipientID:    uintPtr(2),
		Content:        "hi",
		Status:         models.StatusRead,
	})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.Nil(t, msg.DeliveredAt)

	_, err = s.InsertMessage(ctx, &models.Message{ConversationID: conv.ID, Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidDraft)
}

func testMonotonicStatus(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	msg := mustInsert(t, s, conv, 1, 2, "hello", time.Now().UTC())

	t1 := time.Now().UTC().Truncate(time.Millisecond)
	ok, err := s.UpdateMessageStatus(ctx, msg.ID, models.StatusDelivered, t1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateMessageStatus(ctx, msg.ID, models.StatusDelivered, t1.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "delivered twice")

	t2 := t1.Add(time.Second)
	ok, err = s.UpdateMessageStatus(ctx, msg.ID, models.StatusRead, t2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateMessageStatus(ctx, msg.ID, models.StatusDelivered, t2.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "read must not regress")

	stored, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, stored.Status)
	require.NotNil(t, stored.DeliveredAt)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.DeliveredAt.Equal(t1))
	assert.True(t, stored.ReadAt.Equal(t2))

	_, err = s.UpdateMessageStatus(ctx, msg.ID, models.StatusSent, t2)
	assert.Error(t, err)
}

func testUpdateMissing(t *testing.T, s Store) {
	_, err := s.UpdateMessageStatus(context.Background(), 999, models.StatusDelivered, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testFindOrCreate(t *testing.T, s Store) {
	ctx := context.Background()
	a := mustConversation(t, s, 3, 8)
	b := mustConversation(t, s, 8, 3)
	assert.Equal(t, a.ID, b.ID)

	other := mustConversation(t, s, 3, 9)
	assert.NotEqual(t, a.ID, other.ID)

	byAddr1, err := s.FindOrCreateConversation(ctx, models.Party{UserID: 3}, models.Party{Address: "New@Mentor.io"})
	require.NoError(t, err)
	byAddr2, err := s.FindOrCreateConversation(ctx, models.Party{Address: "new@mentor.io"}, models.Party{UserID: 3})
	require.NoError(t, err)
	assert.Equal(t, byAddr1.ID, byAddr2.ID)
	assert.Equal(t, "new@mentor.io", byAddr1.UserBAddress)

	got, err := s.GetConversation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.PairKey, got.PairKey)

	_, err = s.GetConversation(ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testApplyIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	msg := mustInsert(t, s, conv, 1, 2, "hi", time.Now().UTC())

	updated, changed, err := s.ApplyInboundMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, updated.UnreadFor(2))
	assert.Equal(t, 0, updated.UnreadFor(1))
	require.NotNil(t, updated.LastMessageID)
	assert.Equal(t, msg.ID, *updated.LastMessageID)

	again, changed, err := s.ApplyInboundMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, again.UnreadFor(2))
}

func testApplyOutOfOrder(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	now := time.Now().UTC().Truncate(time.Millisecond)
	older := mustInsert(t, s, conv, 1, 2, "first", now.Add(-time.Minute))
	newer := mustInsert(t, s, conv, 2, 1, "second", now)

	_, _, err := s.ApplyInboundMessage(ctx, conv.ID, newer.ID)
	require.NoError(t, err)
	updated, _, err := s.ApplyInboundMessage(ctx, conv.ID, older.ID)
	require.NoError(t, err)

	require.NotNil(t, updated.LastMessageID)
	assert.Equal(t, newer.ID, *updated.LastMessageID)
	assert.Equal(t, 1, updated.UnreadFor(1))
	assert.Equal(t, 1, updated.UnreadFor(2))
}

func testApplySelfCorrects(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	now := time.Now().UTC()
	mustInsert(t, s, conv, 1, 2, "lost aggregate", now)
	second := mustInsert(t, s, conv, 1, 2, "next", now.Add(time.Millisecond))

	updated, _, err := s.ApplyInboundMessage(ctx, conv.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.UnreadFor(2))
	assert.Equal(t, second.ID, *updated.LastMessageID)
}

func testApplyConcurrent(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)

	const perSender = 10
	var ids []uint
	for i := 0; i < perSender; i++ {
		ids = append(ids, mustInsert(t, s, conv, 1, 2, "a", time.Now().UTC()).ID)
		ids = append(ids, mustInsert(t, s, conv, 2, 1, "b", time.Now().UTC()).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, _, err := s.ApplyInboundMessage(ctx, conv.ID, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	final, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, perSender, final.UnreadFor(1))
	assert.Equal(t, perSender, final.UnreadFor(2))
}

func testMarkRead(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	now := time.Now().UTC()
	toR1 := mustInsert(t, s, conv, 1, 2, "one", now)
	toR2 := mustInsert(t, s, conv, 1, 2, "two", now.Add(time.Millisecond))
	toS := mustInsert(t, s, conv, 2, 1, "reply", now.Add(2*time.Millisecond))
	for _, m := range []*models.Message{toR1, toR2, toS} {
		_, _, err := s.ApplyInboundMessage(ctx, conv.ID, m.ID)
		require.NoError(t, err)
	}
	_, err := s.UpdateMessageStatus(ctx, toR1.ID, models.StatusDelivered, now)
	require.NoError(t, err)

	readAt := now.Add(time.Second).Truncate(time.Millisecond)
	res, err := s.MarkConversationRead(ctx, conv.ID, 2, readAt)
	require.NoError(t, err)

	require.Len(t, res.Changed, 2)
	assert.Equal(t, toR1.ID, res.Changed[0].ID)
	assert.Equal(t, toR2.ID, res.Changed[1].ID)
	assert.Equal(t, 0, res.Conversation.UnreadFor(2))
	assert.Equal(t, 1, res.Conversation.UnreadFor(1), "other participant's counter untouched")

	for _, id := range []uint{toR1.ID, toR2.ID} {
		m, err := s.GetMessage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRead, m.Status)
		require.NotNil(t, m.ReadAt)
		assert.True(t, m.ReadAt.Equal(readAt))
	}

	reply, err := s.GetMessage(ctx, toS.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, reply.Status)
}

func testMarkReadIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	msg := mustInsert(t, s, conv, 1, 2, "one", time.Now().UTC())
	_, _, err := s.ApplyInboundMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)

	first := time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.MarkConversationRead(ctx, conv.ID, 2, first)
	require.NoError(t, err)
	assert.Len(t, res.Changed, 1)
	assert.Equal(t, 0, res.Conversation.UnreadFor(2))

	res, err = s.MarkConversationRead(ctx, conv.ID, 2, first.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, 0, res.Conversation.UnreadFor(2))

	m, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, m.ReadAt.Equal(first), "read_at is set once")
}

func testMarkReadOutsider(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)

	_, err := s.MarkConversationRead(ctx, conv.ID, 3, time.Now())
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.MarkConversationRead(ctx, 4242, 1, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testReadBeforeApply(t *testing.T, s Store) {
	ctx := context.Background()
	conv := mustConversation(t, s, 1, 2)
	msg := mustInsert(t, s, conv, 1, 2, "fast reader", time.Now().UTC())

	_, err := s.MarkConversationRead(ctx, conv.ID, 2, time.Now().UTC())
	require.NoError(t, err)

	updated, _, err := s.ApplyInboundMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.UnreadFor(2))
	assert.Equal(t, msg.ID, *updated.LastMessageID)
}

func testListing(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	quiet := mustConversation(t, s, 1, 5)
	busy := mustConversation(t, s, 1, 2)
	for i := 0; i < 5; i++ {
		m := mustInsert(t, s, busy, 2, 1, "m", now.Add(time.Duration(i)*time.Millisecond))
		_, _, err := s.ApplyInboundMessage(ctx, busy.ID, m.ID)
		require.NoError(t, err)
	}

	convs, err := s.ListConversations(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, busy.ID, convs[0].ID)
	assert.Equal(t, quiet.ID, convs[1].ID)

	none, err := s.ListConversations(ctx, 77, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	page, err := s.ListMessages(ctx, busy.ID, MessageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Greater(t, page[0].ID, page[1].ID)

	next, err := s.ListMessages(ctx, busy.ID, MessageQuery{BeforeID: page[1].ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, next, 3)
}

func testModerationLogs(t *testing.T, s Store) {
	ctx := context.Background()

	blocked := &models.ModerationLog{
		SenderID:    1,
		RecipientID: uintPtr(2),
		Content:     "meet in a hotel room",
		Verdict:     models.VerdictBlocked,
		Method:      models.MethodRuleBased,
		Reason:      "blocked phrase",
	}
	require.NoError(t, s.InsertModerationLog(ctx, blocked))
	require.NotZero(t, blocked.ID)
	require.NoError(t, s.InsertModerationLog(ctx, &models.ModerationLog{
		SenderID: 1, Content: "hi", Verdict: models.VerdictAllowed, Method: models.MethodRuleBased,
	}))

	require.NoError(t, s.MarkAlertSent(ctx, blocked.ID))
	require.NoError(t, s.MarkAlertSent(ctx, blocked.ID))
	assert.ErrorIs(t, s.MarkAlertSent(ctx, 999), ErrNotFound)

	logs, err := s.ListModerationLogs(ctx, ModerationLogFilter{Verdict: models.VerdictBlocked})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].AlertSent)
	assert.Equal(t, models.MethodRuleBased, logs[0].Method)

	all, err := s.ListModerationLogs(ctx, ModerationLogFilter{SenderID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
