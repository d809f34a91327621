package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
	"github.com/nzoschke/dreamsaver/internal/service/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDepositsCompleteGoal(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	result := f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 400)))
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	got := f.reload(t, goal)
	assert.Equal(t, int64(400), got.Saved)
	assert.Equal(t, model.GoalStatusActive, got.Status)
	assert.Nil(t, got.EndDate)

	result = f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_2", alloc(goal.ID, 600)))
	require.Len(t, result.Goals, 1)
	assert.True(t, result.Goals[0].GoalCompleted)

	got = f.reload(t, goal)
	assert.Equal(t, int64(1000), got.Saved)
	assert.Equal(t, model.GoalStatusCompleted, got.Status)
	assert.NotNil(t, got.EndDate)

	assert.Len(t, f.notificationsOf(t, alice.ID, model.NotificationGoalCompleted), 1)
	confirmed := f.notificationsOf(t, alice.ID, model.NotificationDepositConfirmed)
	require.Len(t, confirmed, 1)
	assert.Contains(t, confirmed[0].Message, "$4.00")

	assert.Equal(t, 2, f.archive.count())
	f.requireLedgerMatches(t, goal)
}

func TestCompletionBoundary(t *testing.T) {
	f := newFixture(t)
	short := f.goal(t, alice, "short", 1000)
	exact := f.goal(t, alice, "exact", 1000)

	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(short.ID, 999)))
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_2", alloc(exact.ID, 1000)))

	assert.Equal(t, model.GoalStatusActive, f.reload(t, short).Status)
	assert.Equal(t, int64(1), f.reload(t, short).Remaining())
	assert.Equal(t, model.GoalStatusCompleted, f.reload(t, exact).Status)
}

func TestOvershootIsKept(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 1500)))

	got := f.reload(t, goal)
	assert.Equal(t, int64(1500), got.Saved)
	assert.True(t, got.IsCompleted())
	assert.Equal(t, int64(-500), got.Remaining())
	assert.Equal(t, "150", got.ProgressPercent().String())
}

func TestStrayEventOnCompletedGoalIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 1000)))

	result := f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_stray", alloc(goal.ID, 50)))
	assert.Equal(t, OutcomeRejected, result.Outcome)

	deposits, err := f.ledger.Deposits(context.Background(), alice.ID, goal.ID)
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
	assert.Equal(t, int64(1000), f.reload(t, goal).Saved)
	f.requireLedgerMatches(t, goal)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 100000)
	event := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 40000))

	assert.Equal(t, OutcomeProcessed, f.webhook(t, event).Outcome)
	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeDuplicate, f.webhook(t, event).Outcome)
	}

	assert.Equal(t, int64(40000), f.reload(t, goal).Saved)
	deposits, err := f.ledger.Deposits(context.Background(), alice.ID, goal.ID)
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
	assert.Len(t, f.notificationsOf(t, alice.ID, model.NotificationDepositConfirmed), 1)
}

func TestConcurrentDepositsCompleteOnce(t *testing.T) {
	for run := 0; run < 5; run++ {
		f := newFixture(t)
		goal := f.goal(t, alice, "bike", 1000)

		var wg sync.WaitGroup
		for i, amount := range []int64{300, 700} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				payload, headers := paymenttest.Sign(paymenttest.PaidEvent(testNamespace, alice.ID, fmt.Sprintf("cs_%d", i), alloc(goal.ID, amount)))
				_, err := f.reconcile.HandleWebhook(context.Background(), payload, headers)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got := f.reload(t, goal)
		assert.Equal(t, int64(1000), got.Saved)
		assert.True(t, got.IsCompleted())
		assert.Len(t, f.notificationsOf(t, alice.ID, model.NotificationGoalCompleted), 1)
		assert.Len(t, f.notificationsOf(t, alice.ID, model.NotificationDepositConfirmed), 1)
		f.requireLedgerMatches(t, goal)
	}
}

func TestWebhookGates(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	payload, _ := paymenttest.Sign(paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 100)))
	result, err := f.reconcile.HandleWebhook(context.Background(), payload, http.Header{})
	require.NoError(t, err, "invalid signatures are acknowledged")
	assert.Equal(t, OutcomeRejected, result.Outcome)

	result = f.webhook(t, paymenttest.PaidEvent("another-app", alice.ID, "cs_2", alloc(goal.ID, 100)))
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	unpaid := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_3", alloc(goal.ID, 100))
	unpaid.Paid = false
	assert.Equal(t, OutcomeIgnored, f.webhook(t, unpaid).Outcome)

	result = f.webhook(t, paymenttest.PaidEvent(testNamespace, bob.ID, "cs_4", alloc(goal.ID, 100)))
	assert.Equal(t, OutcomeRejected, result.Outcome, "goal must belong to the paying owner")

	assert.Equal(t, int64(0), f.reload(t, goal).Saved)
}

func TestWebhookBatch(t *testing.T) {
	f := newFixture(t)
	first := f.goal(t, alice, "a", 10000)
	second := f.goal(t, alice, "b", 10000)
	done := f.goal(t, alice, "c", 100)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_0", alloc(done.ID, 100)))

	result := f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_batch",
		alloc(first.ID, 334), alloc(second.ID, 333), alloc(done.ID, 333)))
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	require.Len(t, result.Goals, 3)
	assert.Equal(t, OutcomeRejected, result.Goals[2].Outcome)

	assert.Equal(t, int64(334), f.reload(t, first).Saved)
	assert.Equal(t, int64(333), f.reload(t, second).Saved)
	assert.Equal(t, int64(100), f.reload(t, done).Saved)
}

func TestWebhookBatchAllocationMismatch(t *testing.T) {
	f := newFixture(t)
	first := f.goal(t, alice, "a", 10000)
	second := f.goal(t, alice, "b", 10000)

	event := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(first.ID, 500), alloc(second.ID, 500))
	event.AmountTotal = 900

	result := f.webhook(t, event)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, int64(0), f.reload(t, first).Saved)
}

func TestSingleGoalCreditsGatewayAmount(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 10000)

	event := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 500))
	event.AmountTotal = 750

	f.webhook(t, event)
	assert.Equal(t, int64(750), f.reload(t, goal).Saved)
}

func TestWebhookPartialFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.goal(t, alice, "a", 10000)
	second := f.goal(t, alice, "b", 10000)

	_, err := f.db.Exec(fmt.Sprintf(`CREATE TRIGGER fail_second BEFORE INSERT ON deposits
		WHEN NEW.goal_id = '%s' BEGIN SELECT RAISE(ABORT, 'disk unavailable'); END`, second.ID))
	require.NoError(t, err)

	payload, headers := paymenttest.Sign(paymenttest.PaidEvent(testNamespace, alice.ID, "cs_batch",
		alloc(first.ID, 500), alloc(second.ID, 500)))

	_, err = f.reconcile.HandleWebhook(ctx, payload, headers)
	require.Error(t, err, "infrastructure failures ask the gateway to retry")
	assert.Equal(t, int64(500), f.reload(t, first).Saved)
	assert.Equal(t, int64(0), f.reload(t, second).Saved)

	_, err = f.db.Exec(`DROP TRIGGER fail_second`)
	require.NoError(t, err)

	result, err := f.reconcile.HandleWebhook(ctx, payload, headers)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Goals[0].Outcome)
	assert.Equal(t, OutcomeProcessed, result.Goals[1].Outcome)

	assert.Equal(t, int64(500), f.reload(t, first).Saved)
	assert.Equal(t, int64(500), f.reload(t, second).Saved)
	f.requireLedgerMatches(t, first)
	f.requireLedgerMatches(t, second)
}

func TestNotificationFailureKeepsDeposit(t *testing.T) {
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	_, err := f.db.Exec(`DROP TABLE notifications`)
	require.NoError(t, err)

	result := f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 1000)))
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	got := f.reload(t, goal)
	assert.Equal(t, int64(1000), got.Saved)
	assert.True(t, got.IsCompleted())
	f.requireLedgerMatches(t, goal)
}

func TestConfirmWithSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	event := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 1000))
	f.provider.AddSession(event)

	result, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 900, SessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.True(t, result.GoalCompleted)
	assert.Equal(t, int64(1000), result.Goal.Saved, "the gateway amount is credited")
	assert.Equal(t, "stripe", result.Deposit.PaymentMethod)

	// The webhook for the same payment arrives afterwards.
	webhook := f.webhook(t, event)
	assert.Equal(t, OutcomeDuplicate, webhook.Outcome)

	// A second confirm after completion is still a success.
	again, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 1000, SessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.True(t, again.GoalCompleted)

	assert.Len(t, f.notificationsOf(t, alice.ID, model.NotificationGoalCompleted), 1)
	f.requireLedgerMatches(t, goal)
}

func TestConfirmAfterWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	event := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 400))
	f.provider.AddSession(event)
	f.webhook(t, event)

	result, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 400, SessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, int64(400), result.Goal.Saved)
}

func TestConfirmErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)
	f.provider.AddSession(paymenttest.PaidEvent(testNamespace, bob.ID, "cs_bob", alloc(goal.ID, 100)))
	f.provider.AddSession(paymenttest.PaidEvent(testNamespace, alice.ID, "cs_other", alloc("other-goal", 100)))

	tests := []struct {
		name  string
		owner model.Owner
		in    ConfirmInput
		err   error
	}{
		{"zero amount", alice, ConfirmInput{GoalID: goal.ID, Amount: 0, SessionID: "cs_1"}, ErrInvalidAmount},
		{"unknown goal", alice, ConfirmInput{GoalID: "missing", Amount: 100, SessionID: "cs_1"}, ErrGoalNotFound},
		{"other owner's goal", bob, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_bob"}, ErrGoalNotFound},
		{"no session", alice, ConfirmInput{GoalID: goal.ID, Amount: 100}, ErrInvalidArgument},
		{"unknown session", alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_missing"}, ErrInvalidArgument},
		{"session of another owner", alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_bob"}, ErrInvalidArgument},
		{"session for another goal", alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_other"}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reconcile.Confirm(ctx, tt.owner, tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Equal(t, int64(0), f.reload(t, goal).Saved)
}

func TestConfirmCompletedGoalIsLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)
	f.webhook(t, paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 1000)))
	f.provider.AddSession(paymenttest.PaidEvent(testNamespace, alice.ID, "cs_2", alloc(goal.ID, 50)))

	_, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 50, SessionID: "cs_2"})
	assert.ErrorIs(t, err, ErrGoalLocked)
	assert.Equal(t, int64(1000), f.reload(t, goal).Saved)
}

func TestConfirmPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	goal := f.goal(t, alice, "bike", 1000)

	unpaid := paymenttest.PaidEvent(testNamespace, alice.ID, "cs_1", alloc(goal.ID, 100))
	unpaid.Paid = false
	f.provider.AddSession(unpaid)

	result, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)

	f.provider.VerifyErr = payment.ErrVerifyUnsupported
	result, err = f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)

	f.provider.VerifyErr = fmt.Errorf("%w: timeout", payment.ErrGateway)
	_, err = f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 100, SessionID: "cs_3"})
	assert.True(t, errors.Is(err, payment.ErrGateway))

	assert.Equal(t, int64(0), f.reload(t, goal).Saved)
}

func TestConfirmTrustedClientAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *ReconcileOptions) { o.TrustClientAmount = true })
	goal := f.goal(t, alice, "bike", 1000)

	result, err := f.reconcile.Confirm(ctx, alice, ConfirmInput{GoalID: goal.ID, Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, model.PaymentMethodManual, result.Deposit.PaymentMethod)
	assert.Nil(t, result.Deposit.ProviderPaymentID)
	assert.Equal(t, int64(250), result.Goal.Saved)
	f.requireLedgerMatches(t, goal)
}
