package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
)

// ErrDuplicateEvent marks an idempotency hit. It is a no-op success, not a failure.
var ErrDuplicateEvent = errors.New("payment already recorded")

// DepositInput is one payment credited to one goal.
type DepositInput struct {
	GoalID            string
	OwnerID           string
	Amount            int64
	PaymentMethod     string
	ProviderPaymentID string // empty for deposits without a gateway reference
}

type LedgerService struct {
	repo  repository.DepositRepository
	goals repository.GoalRepository
}

func NewLedgerService(repo repository.DepositRepository, goals repository.GoalRepository) *LedgerService {
	return &LedgerService{
		repo:  repo,
		goals: goals,
	}
}

// recordDeposit appends a deposit within the caller's transaction. When the provider payment
// was already recorded for the goal it returns the existing deposit and ErrDuplicateEvent.
func (s *LedgerService) recordDeposit(ctx context.Context, q sqlx.ExtContext, in DepositInput) (*model.Deposit, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	deposit := &model.Deposit{
		ID:            uuid.New().String(),
		GoalID:        in.GoalID,
		OwnerID:       in.OwnerID,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		Status:        model.DepositStatusCompleted,
		ReceiptNumber: receiptNumber(now),
		CreatedAt:     now,
	}
	if in.ProviderPaymentID != "" {
		deposit.ProviderPaymentID = &in.ProviderPaymentID
	}

	deposits := repository.NewDepositRepository(q)

	inserted, err := deposits.Create(ctx, deposit)
	if err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}
	if !inserted {
		existing, err := deposits.ByProviderPaymentID(ctx, in.ProviderPaymentID, in.GoalID)
		if err != nil {
			return nil, fmt.Errorf("failed to load recorded deposit: %w", err)
		}
		return existing, ErrDuplicateEvent
	}

	return deposit, nil
}

// PaymentDeposit returns the deposit recorded for a provider payment on a goal.
func (s *LedgerService) PaymentDeposit(ctx context.Context, providerPaymentID, goalID string) (*model.Deposit, error) {
	return s.repo.ByProviderPaymentID(ctx, providerPaymentID, goalID)
}

func (s *LedgerService) SumDeposits(ctx context.Context, goalID string) (int64, error) {
	return s.repo.Sum(ctx, goalID)
}

func (s *LedgerService) Deposits(ctx context.Context, ownerID, goalID string) ([]*model.Deposit, error) {
	// Verify ownership
	_, err := s.goals.ByID(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	return s.repo.Deposits(ctx, goalID)
}

// Deposit returns the owner's deposit on a goal by receipt number.
func (s *LedgerService) Deposit(ctx context.Context, ownerID, goalID, receiptNumber string) (*model.Deposit, error) {
	_, err := s.goals.ByID(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	return s.repo.ByReceipt(ctx, goalID, receiptNumber)
}

// Audit returns every goal whose saved amount differs from the sum of its deposits.
func (s *LedgerService) Audit(ctx context.Context) ([]*model.LedgerDiscrepancy, error) {
	found, err := s.repo.Discrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to audit ledger: %w", err)
	}

	for _, d := range found {
		slog.Error("ledger discrepancy", "goal_id", d.GoalID, "saved", d.Saved, "ledger_sum", d.LedgerSum)
	}

	return found, nil
}

// RunAudit audits the ledger every interval until ctx is done.
func (s *LedgerService) RunAudit(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			found, err := s.Audit(ctx)
			if err != nil {
				slog.Error("ledger audit failed", "error", err)
				continue
			}
			slog.Info("ledger audit completed", "discrepancies", len(found))
		}
	}
}

func receiptNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
	return fmt.Sprintf("DS-%s-%s", now.Format("20060102"), suffix)
}
