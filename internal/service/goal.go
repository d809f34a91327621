package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrGoalNotFound       = repository.ErrGoalNotFound
	ErrGoalLocked         = errors.New("goal is completed")
	ErrGoalNotDeletable   = errors.New("goal has deposits and cannot be deleted")
	ErrGoalLimitReached   = errors.New("plan goal limit reached")
	ErrFeatureUnavailable = errors.New("feature not available on current plan")
)

// GoalInput sets the parameters of the owner's goal for a product.
type GoalInput struct {
	ProductRef   string
	TargetAmount int64
	TargetDate   *time.Time
}

type GoalService struct {
	repo         repository.GoalRepository
	capabilities Capabilities
	currency     string
}

func NewGoalService(repo repository.GoalRepository, capabilities Capabilities, currency string) *GoalService {
	return &GoalService{
		repo:         repo,
		capabilities: capabilities,
		currency:     currency,
	}
}

// CreateOrUpdate sets the goal for (owner, product). An existing goal is updated in place,
// otherwise a new active goal is created with the target as its locked price.
// The returned bool reports whether a goal was created.
func (s *GoalService) CreateOrUpdate(ctx context.Context, owner model.Owner, in GoalInput) (*model.Goal, bool, error) {
	in.ProductRef = strings.TrimSpace(in.ProductRef)
	if in.ProductRef == "" {
		return nil, false, fmt.Errorf("%w: product reference is required", ErrInvalidArgument)
	}
	if in.TargetAmount <= 0 {
		return nil, false, fmt.Errorf("%w: target amount must be greater than zero", ErrInvalidArgument)
	}
	if in.TargetAmount > model.MaxAmountMinor {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidAmount, model.ErrAmountTooLarge)
	}

	// A concurrent create for the same product loses the insert and falls back to an update.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.ByProduct(ctx, owner.ID, in.ProductRef)
		if err == nil {
			goal, err := s.update(ctx, existing, in)
			return goal, false, err
		}
		if !errors.Is(err, repository.ErrGoalNotFound) {
			return nil, false, fmt.Errorf("failed to get goal: %w", err)
		}

		goal, err := s.create(ctx, owner, in)
		if errors.Is(err, repository.ErrGoalExists) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return goal, true, nil
	}

	return nil, false, fmt.Errorf("failed to create goal: %w", repository.ErrGoalExists)
}

func (s *GoalService) create(ctx context.Context, owner model.Owner, in GoalInput) (*model.Goal, error) {
	// Check goal limit based on plan
	limit := s.capabilities.GoalLimit(ctx, owner)
	if limit != -1 { // -1 means unlimited
		count, err := s.repo.CountActiveGoals(ctx, owner.ID)
		if err != nil {
			return nil, err
		}

		if count >= limit {
			return nil, ErrGoalLimitReached
		}
	}

	now := time.Now().UTC()
	goal := &model.Goal{
		ID:           uuid.New().String(),
		OwnerID:      owner.ID,
		ProductRef:   in.ProductRef,
		TargetAmount: in.TargetAmount,
		Saved:        0,
		Status:       model.GoalStatusActive,
		LockedPrice:  in.TargetAmount,
		Currency:     s.currency,
		EndDate:      in.TargetDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.repo.Create(ctx, goal)
	if err != nil {
		if errors.Is(err, repository.ErrGoalExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	return goal, nil
}

func (s *GoalService) update(ctx context.Context, goal *model.Goal, in GoalInput) (*model.Goal, error) {
	if goal.IsCompleted() {
		return nil, ErrGoalLocked
	}
	if goal.Saved > 0 && in.TargetAmount <= goal.Saved {
		return nil, fmt.Errorf("%w: target amount must exceed the amount already saved", ErrInvalidArgument)
	}

	goal.TargetAmount = in.TargetAmount
	if in.TargetDate != nil {
		goal.EndDate = in.TargetDate
	}
	goal.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.UpdateTarget(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}
	if !updated {
		// A deposit landed between the read and the write.
		current, err := s.repo.ByID(ctx, goal.OwnerID, goal.ID)
		if err != nil {
			return nil, err
		}
		if current.IsCompleted() {
			return nil, ErrGoalLocked
		}
		return nil, fmt.Errorf("%w: target amount must exceed the amount already saved", ErrInvalidArgument)
	}

	return goal, nil
}

func (s *GoalService) Goal(ctx context.Context, ownerID, goalID string) (*model.Goal, error) {
	return s.repo.ByID(ctx, ownerID, goalID)
}

func (s *GoalService) Goals(ctx context.Context, ownerID, sortBy string) ([]*model.Goal, error) {
	switch sortBy {
	case "", repository.GoalSortRecent, repository.GoalSortProgress, repository.GoalSortTarget:
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidArgument, sortBy)
	}
	return s.repo.Goals(ctx, ownerID, sortBy)
}

// Export lists every goal of the owner for plans that include exports.
func (s *GoalService) Export(ctx context.Context, owner model.Owner) ([]*model.Goal, error) {
	if !s.capabilities.HasFeature(ctx, owner, model.FeatureExport) {
		return nil, ErrFeatureUnavailable
	}
	return s.repo.Goals(ctx, owner.ID, repository.GoalSortRecent)
}

// Delete removes a goal that has no deposits.
func (s *GoalService) Delete(ctx context.Context, ownerID, goalID string) error {
	deleted, err := s.repo.DeleteIfEmpty(ctx, ownerID, goalID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if deleted {
		return nil
	}

	_, err = s.repo.ByID(ctx, ownerID, goalID)
	if err != nil {
		return err
	}
	return ErrGoalNotDeletable
}

// applyDeposit credits amount to the goal within the caller's transaction and completes
// the goal when the target is reached. It reports whether this call completed the goal.
func (s *GoalService) applyDeposit(ctx context.Context, q sqlx.ExtContext, ownerID, goalID string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	goals := repository.NewGoalRepository(q)
	now := time.Now().UTC()

	applied, err := goals.IncrementSaved(ctx, ownerID, goalID, amount, now)
	if err != nil {
		return false, fmt.Errorf("failed to apply deposit: %w", err)
	}
	if !applied {
		_, err := goals.ByID(ctx, ownerID, goalID)
		if err != nil {
			return false, err
		}
		return false, ErrGoalLocked
	}

	completed, err := goals.CompleteIfReached(ctx, goalID, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete goal: %w", err)
	}

	return completed, nil
}
