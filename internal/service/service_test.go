package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/db/dbtest"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
	"github.com/nzoschke/dreamsaver/internal/service/payment/paymenttest"
	"github.com/stretchr/testify/require"
)

const testNamespace = "dreamsaver"

var (
	alice = model.Owner{ID: "alice", Email: "alice@example.com", Plan: model.PlanFree}
	bob   = model.Owner{ID: "bob", Email: "bob@example.com", Plan: model.PlanPro}
)

type fakeArchive struct {
	mu       sync.Mutex
	receipts []string
}

func (a *fakeArchive) ArchiveReceipt(ctx context.Context, deposit *model.Deposit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receipts = append(a.receipts, deposit.ReceiptNumber)
	return nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.receipts)
}

type fixture struct {
	db            *sqlx.DB
	provider      *paymenttest.Provider
	archive       *fakeArchive
	goals         *GoalService
	ledger        *LedgerService
	notifications *NotificationService
	checkout      *CheckoutService
	reconcile     *ReconcileService
}

func newFixture(t *testing.T, opts ...func(*ReconcileOptions)) *fixture {
	t.Helper()

	database := dbtest.New(t)
	goalRepo := repository.NewGoalRepository(database)
	depositRepo := repository.NewDepositRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)

	f := &fixture{
		db:       database,
		provider: paymenttest.New(),
		archive:  &fakeArchive{},
	}

	options := ReconcileOptions{
		Namespace:          testNamespace,
		WebhookTimeout:     10 * time.Second,
		WebhookConcurrency: 4,
	}
	for _, opt := range opts {
		opt(&options)
	}

	email := NewEmailService("", "noreply@example.com", "https://app.test", "DreamSaver", true)

	f.goals = NewGoalService(goalRepo, NewPlanCapabilities(), "usd")
	f.ledger = NewLedgerService(depositRepo, goalRepo)
	f.notifications = NewNotificationService(notificationRepo, email, "usd")
	f.checkout = NewCheckoutService(goalRepo, f.provider, "usd", "DreamSaver")
	f.reconcile = NewReconcileService(
		repository.NewTransactor(database),
		f.goals,
		f.ledger,
		f.notifications,
		f.archive,
		f.provider,
		options,
	)
	return f
}

func (f *fixture) goal(t *testing.T, owner model.Owner, product string, target int64) *model.Goal {
	t.Helper()
	goal, _, err := f.goals.CreateOrUpdate(context.Background(), owner, GoalInput{ProductRef: product, TargetAmount: target})
	require.NoError(t, err)
	return goal
}

func (f *fixture) webhook(t *testing.T, event *payment.Event) *WebhookResult {
	t.Helper()
	payload, headers := paymenttest.Sign(event)
	result, err := f.reconcile.HandleWebhook(context.Background(), payload, headers)
	require.NoError(t, err)
	return result
}

func (f *fixture) reload(t *testing.T, goal *model.Goal) *model.Goal {
	t.Helper()
	got, err := f.goals.Goal(context.Background(), goal.OwnerID, goal.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) notificationsOf(t *testing.T, ownerID, kind string) []*model.Notification {
	t.Helper()
	all, err := f.notifications.Notifications(context.Background(), ownerID, false, 100)
	require.NoError(t, err)

	var out []*model.Notification
	for _, n := range all {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

func (f *fixture) requireLedgerMatches(t *testing.T, goal *model.Goal) {
	t.Helper()
	sum, err := f.ledger.SumDeposits(context.Background(), goal.ID)
	require.NoError(t, err)
	require.Equal(t, f.reload(t, goal).Saved, sum, "saved must equal the ledger sum")
}

func alloc(goalID string, amount int64) payment.Allocation {
	return payment.Allocation{GoalID: goalID, Amount: amount}
}
