package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversationIsOrderIndependent(t *testing.T) {
	ab, err := NewConversation(Party{UserID: 9}, Party{UserID: 4})
	require.NoError(t, err)
	ba, err := NewConversation(Party{UserID: 4}, Party{UserID: 9})
	require.NoError(t, err)

	assert.Equal(t, ab.PairKey, ba.PairKey)
	assert.Equal(t, uint(4), ab.UserAID)
	require.NotNil(t, ab.UserBID)
	assert.Equal(t, uint(9), *ab.UserBID)
}

func TestNewConversationWithAddressToken(t *testing.T) {
	conv, err := NewConversation(Party{Address: " Mentor@Example.com "}, Party{UserID: 2})
	require.NoError(t, err)

	assert.Equal(t, uint(2), conv.UserAID)
	assert.Nil(t, conv.UserBID)
	assert.Equal(t, "mentor@example.com", conv.UserBAddress)

	other, err := NewConversation(Party{UserID: 2}, Party{Address: "mentor@example.com"})
	require.NoError(t, err)
	assert.Equal(t, conv.PairKey, other.PairKey)
}

func TestNewConversationNeedsResolvedParty(t *testing.T) {
	_, err := NewConversation(Party{Address: "a@x"}, Party{Address: "b@x"})
	assert.Error(t, err)
}

func TestCounterColumns(t *testing.T) {
	conv, _ := NewConversation(Party{UserID: 1}, Party{UserID: 2})

	assert.Equal(t, "unread_b", conv.RecipientColumn(1))
	assert.Equal(t, "unread_a", conv.RecipientColumn(2))

	col, ok := conv.UnreadColumn(2)
	assert.True(t, ok)
	assert.Equal(t, "unread_b", col)

	_, ok = conv.UnreadColumn(3)
	assert.False(t, ok)

	self, _ := NewConversation(Party{UserID: 5}, Party{UserID: 5})
	selfCol, _ := self.UnreadColumn(5)
	assert.Equal(t, selfCol, self.RecipientColumn(5))
	assert.Equal(t, []uint{5}, self.ParticipantIDs())
}

func TestSummaryFor(t *testing.T) {
	conv, _ := NewConversation(Party{UserID: 1}, Party{UserID: 2})
	conv.UnreadA, conv.UnreadB = 3, 7

	s1 := conv.SummaryFor(1)
	require.NotNil(t, s1.PeerID)
	assert.Equal(t, uint(2), *s1.PeerID)
	assert.Equal(t, 3, s1.Unread)

	s2 := conv.SummaryFor(2)
	assert.Equal(t, uint(1), *s2.PeerID)
	assert.Equal(t, 7, s2.Unread)
}

func TestStatusOrdering(t *testing.T) {
	assert.True(t, StatusSent.CanAdvanceTo(StatusDelivered))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.True(t, StatusDelivered.CanAdvanceTo(StatusRead))
	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusSent.CanAdvanceTo("archived"))
}
