package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service/payment"
)

// MaxBatchGoals bounds a batched checkout so its allocations fit in gateway metadata.
const MaxBatchGoals = 10

// CheckoutRequest asks for one hosted payment covering one or more goals.
type CheckoutRequest struct {
	GoalIDs     []string
	Amount      int64 // total in minor units, split evenly across goals
	SuccessPath string
	CancelPath  string
}

type CheckoutService struct {
	goals    repository.GoalRepository
	provider payment.Provider
	currency string
	appName  string
}

func NewCheckoutService(goals repository.GoalRepository, provider payment.Provider, currency, appName string) *CheckoutService {
	return &CheckoutService{
		goals:    goals,
		provider: provider,
		currency: currency,
		appName:  appName,
	}
}

// CreateSession creates a gateway checkout for the owner's goals. Nothing is written locally.
func (s *CheckoutService) CreateSession(ctx context.Context, owner model.Owner, req CheckoutRequest) (*payment.Session, error) {
	err := validateCheckout(req)
	if err != nil {
		return nil, err
	}

	for _, goalID := range req.GoalIDs {
		goal, err := s.goals.ByID(ctx, owner.ID, goalID)
		if err != nil {
			return nil, err
		}
		if goal.IsCompleted() {
			return nil, fmt.Errorf("%w: %s", ErrGoalLocked, goalID)
		}
	}

	description := fmt.Sprintf("%s savings deposit", s.appName)
	if len(req.GoalIDs) > 1 {
		description = fmt.Sprintf("%s savings deposit (%d goals)", s.appName, len(req.GoalIDs))
	}

	sess, err := s.provider.CreateSession(ctx, payment.SessionRequest{
		OwnerID:     owner.ID,
		OwnerEmail:  owner.Email,
		Currency:    s.currency,
		Description: description,
		Allocations: SplitAmount(req.GoalIDs, req.Amount),
		SuccessPath: req.SuccessPath,
		CancelPath:  req.CancelPath,
	})
	if err != nil {
		slog.Error("failed to create checkout session", "error", err, "owner_id", owner.ID, "provider", s.provider.Name())
		if errors.Is(err, payment.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", payment.ErrGateway, err)
	}

	return sess, nil
}

func validateCheckout(req CheckoutRequest) error {
	if len(req.GoalIDs) == 0 {
		return fmt.Errorf("%w: at least one goal is required", ErrInvalidArgument)
	}
	if len(req.GoalIDs) > MaxBatchGoals {
		return fmt.Errorf("%w: at most %d goals per checkout", ErrInvalidArgument, MaxBatchGoals)
	}

	seen := make(map[string]bool, len(req.GoalIDs))
	for _, id := range req.GoalIDs {
		if id == "" || seen[id] {
			return fmt.Errorf("%w: goal ids must be distinct and non-empty", ErrInvalidArgument)
		}
		seen[id] = true
	}

	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if req.Amount > model.MaxAmountMinor {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, model.ErrAmountTooLarge)
	}
	if req.Amount < int64(len(req.GoalIDs)) {
		return fmt.Errorf("%w: amount too small to split across %d goals", ErrInvalidAmount, len(req.GoalIDs))
	}

	for _, path := range []string{req.SuccessPath, req.CancelPath} {
		if path != "" && (!strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//")) {
			return fmt.Errorf("%w: redirect paths must be relative to the app", ErrInvalidArgument)
		}
	}

	return nil
}

// SplitAmount divides total evenly across goals; leftover cents go to the first goals.
func SplitAmount(goalIDs []string, total int64) []payment.Allocation {
	n := int64(len(goalIDs))
	if n == 0 {
		return nil
	}

	share := total / n
	remainder := total % n

	allocations := make([]payment.Allocation, 0, n)
	for i, id := range goalIDs {
		amount := share
		if int64(i) < remainder {
			amount++
		}
		allocations = append(allocations, payment.Allocation{GoalID: id, Amount: amount})
	}
	return allocations
}
