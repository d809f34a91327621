package service

import (
	"context"
	"testing"
	"time"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrUpdateGoal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	goal, created, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "bike", TargetAmount: 100000})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.GoalStatusActive, goal.Status)
	assert.Equal(t, int64(0), goal.Saved)
	assert.Equal(t, int64(100000), goal.LockedPrice)
	assert.Equal(t, "usd", goal.Currency)

	date := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, created, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "bike", TargetAmount: 120000, TargetDate: &date})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, goal.ID, updated.ID)

	got := f.reload(t, goal)
	assert.Equal(t, int64(120000), got.TargetAmount)
	assert.Equal(t, int64(100000), got.LockedPrice, "locked price is the price at creation")
	require.NotNil(t, got.EndDate)
	assert.True(t, date.Equal(*got.EndDate))

	list, err := f.goals.Goals(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrUpdateGoalValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "bike", TargetAmount: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: " ", TargetAmount: 100})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "yacht", TargetAmount: model.MaxAmountMinor + 1})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, err, model.ErrAmountTooLarge)

	_, err = f.goals.Goals(ctx, alice.ID, "alphabetical")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGoalLimitByPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, product := range []string{"a", "b", "c"} {
		f.goal(t, alice, product, 1000)
	}

	_, _, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "d", TargetAmount: 1000})
	assert.ErrorIs(t, err, ErrGoalLimitReached)

	_, created, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "a", TargetAmount: 2000})
	require.NoError(t, err, "updating an existing goal is not limited")
	assert.False(t, created)

	for _, product := range []string{"a", "b", "c", "d"} {
		f.goal(t, bob, product, 1000)
	}
}

func TestUpdateRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 400)))

	_, _, err := f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "bike", TargetAmount: 400})
	assert.ErrorIs(t, err, ErrInvalidArgument, "target at or below saved is rejected")

	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_2", alloc(goal.ID, 600)))

	_, _, err = f.goals.CreateOrUpdate(ctx, alice, GoalInput{ProductRef: "bike", TargetAmount: 5000})
	assert.ErrorIs(t, err, ErrGoalLocked)
}

func TestUpdateAfterConcurrentDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	stale := f.reload(t, goal)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 400)))

	_, err := f.goals.update(ctx, stale, GoalInput{ProductRef: "bike", TargetAmount: 300})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, int64(1000), f.reload(t, goal).TargetAmount)

	stale = f.reload(t, goal)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_2", alloc(goal.ID, 600)))

	_, err = f.goals.update(ctx, stale, GoalInput{ProductRef: "bike", TargetAmount: 5000})
	assert.ErrorIs(t, err, ErrGoalLocked)
	assert.Equal(t, int64(1000), f.reload(t, goal).TargetAmount)
}

func TestDeleteGoal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := f.goal(t, alice, "empty", 1000)
	funded := f.goal(t, alice, "funded", 1000)

	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(funded.ID, 100)))

	assert.ErrorIs(t, f.goals.Delete(ctx, bob.ID, empty.ID), ErrGoalNotFound)
	require.NoError(t, f.goals.Delete(ctx, alice.ID, empty.ID))
	assert.ErrorIs(t, f.goals.Delete(ctx, alice.ID, empty.ID), ErrGoalNotFound)
	assert.ErrorIs(t, f.goals.Delete(ctx, alice.ID, funded.ID), ErrGoalNotDeletable)

	_, err := f.goals.Goal(ctx, alice.ID, funded.ID)
	assert.NoError(t, err)
}

func TestExportRequiresFeature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.goal(t, bob, "bike", 1000)

	_, err := f.goals.Export(ctx, alice)
	assert.ErrorIs(t, err, ErrFeatureUnavailable)

	goals, err := f.goals.Export(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, goals, 1)
}

func TestApplyDepositErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	_, err := f.goals.applyDeposit(ctx, f.db, alice.ID, goal.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.goals.applyDeposit(ctx, f.db, bob.ID, goal.ID, 10)
	assert.ErrorIs(t, err, repository.ErrGoalNotFound)

	completed, err := f.goals.applyDeposit(ctx, f.db, alice.ID, goal.ID, 1000)
	require.NoError(t, err)
	assert.True(t, completed)

	_, err = f.goals.applyDeposit(ctx, f.db, alice.ID, goal.ID, 10)
	assert.ErrorIs(t, err, ErrGoalLocked)
	assert.Equal(t, int64(1000), f.reload(t, goal).Saved)
}
