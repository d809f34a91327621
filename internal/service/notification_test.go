package service

import (
	"context"
	"testing"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	s := NewNotificationService(nil, nil, "usd")
	assert.Equal(t, "$400.00", s.FormatAmount(40000))
	assert.Equal(t, "$1,250.05", s.FormatAmount(125005))
	assert.Equal(t, "$0.01", s.FormatAmount(1))

	eur := NewNotificationService(nil, nil, "eur")
	assert.Equal(t, "€12.50", eur.FormatAmount(1250))
}

func TestNotificationMessages(t *testing.T) {
	s := NewNotificationService(nil, nil, "usd")

	confirmed := s.DepositConfirmed("alice", "g1", 40000)
	assert.Equal(t, model.NotificationDepositConfirmed, confirmed.Type)
	assert.Equal(t, "Deposit Confirmed", confirmed.Title)
	assert.Equal(t, "We received your deposit of $400.00 toward your goal.", confirmed.Message)

	completed := s.GoalCompleted("alice", "g1")
	assert.Equal(t, model.NotificationGoalCompleted, completed.Type)
	assert.Equal(t, "Goal Completed 🎉", completed.Title)
}

func TestNotifyAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	n := f.notifications.DepositConfirmed(alice.ID, "g1", 100)
	f.notifications.Notify(ctx, n, alice.Email)
	require.NotEmpty(t, n.ID)

	unread, err := f.notifications.Notifications(ctx, alice.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, f.notifications.MarkRead(ctx, alice.ID, n.ID))
	assert.ErrorIs(t, f.notifications.MarkRead(ctx, bob.ID, n.ID), repository.ErrNotificationNotFound)

	unread, err = f.notifications.Notifications(ctx, alice.ID, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
