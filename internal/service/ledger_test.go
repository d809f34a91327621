package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/service/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	in := DepositInput{GoalID: goal.ID, OwnerID: alice.ID, Amount: 100, PaymentMethod: model.PaymentMethodStripe, ProviderPaymentID: "cs_1"}

	first, err := f.ledger.recordDeposit(ctx, f.db, in)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^DS-\d{8}-[0-9A-F]{12}$`), first.ReceiptNumber)
	assert.Equal(t, model.DepositStatusCompleted, first.Status)

	again, err := f.ledger.recordDeposit(ctx, f.db, in)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, first.ID, again.ID)

	in.Amount = 0
	_, err = f.ledger.recordDeposit(ctx, f.db, in)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	sum, err := f.ledger.SumDeposits(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), sum)
}

func TestDepositsRequireOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 100)))

	_, err := f.ledger.Deposits(ctx, bob.ID, goal.ID)
	assert.ErrorIs(t, err, ErrGoalNotFound)

	deposits, err := f.ledger.Deposits(ctx, alice.ID, goal.ID)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.NotNil(t, deposits[0].ProviderPaymentID)
	assert.Equal(t, "cs_1", *deposits[0].ProviderPaymentID)
}

func TestAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 100)))

	found, err := f.ledger.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.db.Exec(`UPDATE goals SET saved = saved + 1 WHERE id = $1`, goal.ID)
	require.NoError(t, err)

	found, err = f.ledger.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, goal.ID, found[0].GoalID)
	assert.Equal(t, int64(101), found[0].Saved)
	assert.Equal(t, int64(100), found[0].LedgerSum)
}
