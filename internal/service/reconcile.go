package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
	"golang.org/x/sync/errgroup"
)

var ErrAllocationMismatch = errors.New("goal allocations do not match the amount paid")

// Outcome is how a payment was handled for one goal or one event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomePending   Outcome = "pending"
)

// ReceiptArchiver keeps an external copy of recorded deposits.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, deposit *model.Deposit) error
}

type DepositResult struct {
	GoalID        string
	Outcome       Outcome
	Reason        string
	Deposit       *model.Deposit
	GoalCompleted bool // this deposit moved the goal to completed
}

type ConfirmInput struct {
	GoalID    string
	Amount    int64
	SessionID string
}

type ConfirmResult struct {
	Goal          *model.Goal
	Outcome       Outcome
	Deposit       *model.Deposit
	GoalCompleted bool
}

type WebhookResult struct {
	EventID   string
	EventType string
	SessionID string
	Outcome   Outcome
	Reason    string
	Goals     []DepositResult
}

type ReconcileOptions struct {
	Namespace          string
	TrustClientAmount  bool
	WebhookTimeout     time.Duration
	WebhookConcurrency int
}

type ReconcileService struct {
	tx            repository.Transactor
	goals         *GoalService
	ledger        *LedgerService
	notifications *NotificationService
	archive       ReceiptArchiver
	provider      payment.Provider
	opts          ReconcileOptions
}

func NewReconcileService(
	tx repository.Transactor,
	goals *GoalService,
	ledger *LedgerService,
	notifications *NotificationService,
	archive ReceiptArchiver,
	provider payment.Provider,
	opts ReconcileOptions,
) *ReconcileService {
	if opts.WebhookConcurrency <= 0 {
		opts.WebhookConcurrency = 1
	}
	return &ReconcileService{
		tx:            tx,
		goals:         goals,
		ledger:        ledger,
		notifications: notifications,
		archive:       archive,
		provider:      provider,
		opts:          opts,
	}
}

// reconcile records one deposit and applies it to its goal in a single transaction.
// Notification and receipt archiving run after commit and cannot undo it.
func (s *ReconcileService) reconcile(ctx context.Context, in DepositInput, email string) (*DepositResult, error) {
	result := &DepositResult{GoalID: in.GoalID}

	err := s.tx.WithTx(ctx, func(q sqlx.ExtContext) error {
		_, err := repository.NewGoalRepository(q).ByID(ctx, in.OwnerID, in.GoalID)
		if err != nil {
			return err
		}

		deposit, err := s.ledger.recordDeposit(ctx, q, in)
		if errors.Is(err, ErrDuplicateEvent) {
			result.Outcome = OutcomeDuplicate
			result.Deposit = deposit
			return nil
		}
		if err != nil {
			return err
		}

		completed, err := s.goals.applyDeposit(ctx, q, in.OwnerID, in.GoalID, in.Amount)
		if err != nil {
			return err
		}

		result.Outcome = OutcomeProcessed
		result.Deposit = deposit
		result.GoalCompleted = completed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome != OutcomeProcessed {
		slog.Info("deposit already recorded", "goal_id", in.GoalID, "owner_id", in.OwnerID, "provider_payment_id", in.ProviderPaymentID)
		return result, nil
	}

	slog.Info("deposit recorded",
		"goal_id", in.GoalID,
		"owner_id", in.OwnerID,
		"amount", in.Amount,
		"receipt", result.Deposit.ReceiptNumber,
		"goal_completed", result.GoalCompleted,
	)

	s.afterCommit(context.WithoutCancel(ctx), result, email)
	return result, nil
}

func (s *ReconcileService) afterCommit(ctx context.Context, result *DepositResult, email string) {
	deposit := result.Deposit

	if s.notifications != nil {
		n := s.notifications.DepositConfirmed(deposit.OwnerID, deposit.GoalID, deposit.Amount)
		if result.GoalCompleted {
			n = s.notifications.GoalCompleted(deposit.OwnerID, deposit.GoalID)
		}
		s.notifications.Notify(ctx, n, email)
	}

	if s.archive != nil {
		err := s.archive.ArchiveReceipt(ctx, deposit)
		if err != nil {
			slog.Error("failed to archive receipt", "error", err, "goal_id", deposit.GoalID, "receipt", deposit.ReceiptNumber)
		}
	}
}

// Confirm handles the client's return from the gateway. With a session id the gateway is asked
// for the paid amount and the session id becomes the idempotency key shared with the webhook.
func (s *ReconcileService) Confirm(ctx context.Context, owner model.Owner, in ConfirmInput) (*ConfirmResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}

	goal, err := s.goals.Goal(ctx, owner.ID, in.GoalID)
	if err != nil {
		return nil, err
	}

	if in.SessionID != "" {
		existing, err := s.ledger.PaymentDeposit(ctx, in.SessionID, in.GoalID)
		if err == nil {
			return &ConfirmResult{Goal: goal, Outcome: OutcomeDuplicate, Deposit: existing, GoalCompleted: goal.IsCompleted()}, nil
		}
		if !errors.Is(err, repository.ErrDepositNotFound) {
			return nil, fmt.Errorf("failed to check recorded deposits: %w", err)
		}
	}

	if goal.IsCompleted() {
		return nil, ErrGoalLocked
	}

	deposit := DepositInput{
		GoalID:  in.GoalID,
		OwnerID: owner.ID,
	}

	if in.SessionID == "" {
		if !s.opts.TrustClientAmount {
			return nil, fmt.Errorf("%w: session id is required to confirm a payment", ErrInvalidArgument)
		}
		deposit.Amount = in.Amount
		deposit.PaymentMethod = model.PaymentMethodManual
	} else {
		event, err := s.provider.VerifySession(ctx, in.SessionID)
		if errors.Is(err, payment.ErrVerifyUnsupported) {
			return &ConfirmResult{Goal: goal, Outcome: OutcomePending}, nil
		}
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: unknown checkout session", ErrInvalidArgument)
		}
		if err != nil {
			return nil, err
		}
		if !event.Paid {
			return &ConfirmResult{Goal: goal, Outcome: OutcomePending}, nil
		}
		if event.Metadata.Namespace != s.opts.Namespace || event.Metadata.OwnerID != owner.ID {
			return nil, fmt.Errorf("%w: checkout session does not belong to this owner", ErrInvalidArgument)
		}
		err = event.DecodeMetadata()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}

		amount, err := allocationFor(event, in.GoalID)
		if err != nil {
			return nil, err
		}
		if amount != in.Amount {
			slog.Warn("confirm amount differs from gateway, crediting gateway amount",
				"goal_id", in.GoalID, "owner_id", owner.ID, "client_amount", in.Amount, "gateway_amount", amount)
		}

		deposit.Amount = amount
		deposit.PaymentMethod = s.provider.Name()
		deposit.ProviderPaymentID = in.SessionID
	}

	result, err := s.reconcile(ctx, deposit, owner.Email)
	if err != nil {
		return nil, err
	}

	goal, err = s.goals.Goal(ctx, owner.ID, in.GoalID)
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{
		Goal:          goal,
		Outcome:       result.Outcome,
		Deposit:       result.Deposit,
		GoalCompleted: goal.IsCompleted(),
	}, nil
}

// HandleWebhook verifies and applies a gateway event. Events this application does not own or
// cannot apply are acknowledged with a nil error; only failures a retry can fix are returned.
func (s *ReconcileService) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookResult, error) {
	if s.opts.WebhookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WebhookTimeout)
		defer cancel()
	}

	// Gate 1: signature
	event, err := s.provider.ParseWebhook(payload, headers)
	if err != nil {
		if errors.Is(err, payment.ErrWebhookSignatureInvalid) {
			slog.Warn("webhook rejected", "reason", "signature", "error", err, "provider", s.provider.Name())
		} else {
			slog.Error("webhook rejected", "reason", "unreadable event", "error", err, "provider", s.provider.Name())
		}
		return &WebhookResult{Outcome: OutcomeRejected, Reason: err.Error()}, nil
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: event.Type,
		SessionID: event.SessionID,
	}

	if !event.Paid {
		result.Outcome = OutcomeIgnored
		result.Reason = "not a completed payment"
		slog.Debug("webhook ignored", "event_id", event.ID, "event_type", event.Type)
		return result, nil
	}

	// Gate 2: namespace
	if event.Metadata.Namespace != s.opts.Namespace {
		result.Outcome = OutcomeIgnored
		result.Reason = "foreign namespace"
		slog.Info("webhook ignored", "reason", "namespace", "event_id", event.ID, "namespace", event.Metadata.Namespace)
		return result, nil
	}

	err = event.DecodeMetadata()
	if err != nil {
		result.Outcome = OutcomeRejected
		result.Reason = err.Error()
		slog.Error("webhook rejected", "reason", "metadata", "error", err, "event_id", event.ID, "session_id", event.SessionID)
		return result, nil
	}

	allocations, err := creditedAllocations(event)
	if err != nil {
		result.Outcome = OutcomeRejected
		result.Reason = err.Error()
		slog.Error("webhook rejected", "reason", "allocation", "error", err,
			"event_id", event.ID, "session_id", event.SessionID, "amount_total", event.AmountTotal)
		return result, nil
	}

	result.Goals = make([]DepositResult, len(allocations))

	var g errgroup.Group
	g.SetLimit(s.opts.WebhookConcurrency)

	for i, allocation := range allocations {
		g.Go(func() error {
			r, err := s.reconcile(ctx, DepositInput{
				GoalID:            allocation.GoalID,
				OwnerID:           event.Metadata.OwnerID,
				Amount:            allocation.Amount,
				PaymentMethod:     s.provider.Name(),
				ProviderPaymentID: event.SessionID,
			}, event.Metadata.OwnerEmail)

			switch {
			case err == nil:
				result.Goals[i] = *r
				return nil
			case errors.Is(err, ErrGoalLocked), errors.Is(err, ErrGoalNotFound), errors.Is(err, ErrInvalidAmount):
				// Retrying cannot resolve a state conflict.
				result.Goals[i] = DepositResult{GoalID: allocation.GoalID, Outcome: OutcomeRejected, Reason: err.Error()}
				slog.Warn("webhook deposit dropped", "error", err,
					"event_id", event.ID, "session_id", event.SessionID, "goal_id", allocation.GoalID, "amount", allocation.Amount)
				return nil
			default:
				result.Goals[i] = DepositResult{GoalID: allocation.GoalID, Reason: err.Error()}
				return fmt.Errorf("goal %s: %w", allocation.GoalID, err)
			}
		})
	}

	err = g.Wait()
	if err != nil {
		slog.Error("webhook reconciliation failed, awaiting retry", "error", err, "event_id", event.ID, "session_id", event.SessionID)
		return result, fmt.Errorf("failed to reconcile webhook: %w", err)
	}

	result.Outcome = summarize(result.Goals)
	slog.Info("webhook reconciled", "event_id", event.ID, "session_id", event.SessionID, "outcome", result.Outcome, "goals", len(result.Goals))
	return result, nil
}

// creditedAllocations returns the per-goal amounts to credit for a paid event. A single-goal
// payment credits the amount the gateway collected; a batch must add up to it exactly.
func creditedAllocations(event *payment.Event) ([]payment.Allocation, error) {
	allocations := event.Metadata.Allocations
	if len(allocations) == 0 || event.AmountTotal <= 0 {
		return nil, ErrAllocationMismatch
	}

	if len(allocations) == 1 {
		return []payment.Allocation{{GoalID: allocations[0].GoalID, Amount: event.AmountTotal}}, nil
	}

	if payment.SumAllocations(allocations) != event.AmountTotal {
		return nil, fmt.Errorf("%w: allocated %d, paid %d", ErrAllocationMismatch, payment.SumAllocations(allocations), event.AmountTotal)
	}
	return allocations, nil
}

func allocationFor(event *payment.Event, goalID string) (int64, error) {
	allocations, err := creditedAllocations(event)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	for _, a := range allocations {
		if a.GoalID == goalID {
			return a.Amount, nil
		}
	}
	return 0, fmt.Errorf("%w: checkout session does not cover goal %s", ErrInvalidArgument, goalID)
}

func summarize(results []DepositResult) Outcome {
	outcome := OutcomeRejected
	for _, r := range results {
		switch r.Outcome {
		case OutcomeProcessed:
			return OutcomeProcessed
		case OutcomeDuplicate:
			outcome = OutcomeDuplicate
		}
	}
	return outcome
}
