package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
)

const (
	GoalSortRecent   = "recent"
	GoalSortProgress = "progress"
	GoalSortTarget   = "target"
)

var (
	ErrGoalNotFound = errors.New("goal not found")
	ErrGoalExists   = errors.New("goal already exists for product")
)

type GoalRepository interface {
	Create(ctx context.Context, goal *model.Goal) error
	ByID(ctx context.Context, ownerID, goalID string) (*model.Goal, error)
	ByProduct(ctx context.Context, ownerID, productRef string) (*model.Goal, error)
	Goals(ctx context.Context, ownerID, sortBy string) ([]*model.Goal, error)
	CountActiveGoals(ctx context.Context, ownerID string) (int, error)
	UpdateTarget(ctx context.Context, goal *model.Goal) (bool, error)
	IncrementSaved(ctx context.Context, ownerID, goalID string, amount int64, now time.Time) (bool, error)
	CompleteIfReached(ctx context.Context, goalID string, now time.Time) (bool, error)
	DeleteIfEmpty(ctx context.Context, ownerID, goalID string) (bool, error)
}

type goalRepository struct {
	db sqlx.ExtContext
}

func NewGoalRepository(db sqlx.ExtContext) GoalRepository {
	return &goalRepository{db: db}
}

// Create inserts a goal. ErrGoalExists is returned when the owner already has a goal for the product.
func (r *goalRepository) Create(ctx context.Context, goal *model.Goal) error {
	query := `INSERT INTO goals (id, owner_id, product_ref, target_amount, saved, status, locked_price, currency, end_date, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (owner_id, product_ref) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		goal.ID,
		goal.OwnerID,
		goal.ProductRef,
		goal.TargetAmount,
		goal.Saved,
		goal.Status,
		goal.LockedPrice,
		goal.Currency,
		goal.EndDate,
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return requireRow(result, ErrGoalExists)
}

func (r *goalRepository) ByID(ctx context.Context, ownerID, goalID string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE id = $1 AND owner_id = $2`

	err := sqlx.GetContext(ctx, r.db, goal, query, goalID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return goal, nil
}

func (r *goalRepository) ByProduct(ctx context.Context, ownerID, productRef string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE owner_id = $1 AND product_ref = $2`

	err := sqlx.GetContext(ctx, r.db, goal, query, ownerID, productRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	return goal, nil
}

func (r *goalRepository) Goals(ctx context.Context, ownerID, sortBy string) ([]*model.Goal, error) {
	var goals []*model.Goal

	var orderBy string
	switch sortBy {
	case GoalSortProgress:
		orderBy = "ORDER BY (saved * 1.0 / target_amount) DESC, created_at DESC"
	case GoalSortTarget:
		orderBy = "ORDER BY target_amount ASC, created_at DESC"
	default: // GoalSortRecent or empty
		orderBy = "ORDER BY created_at DESC"
	}

	query := `SELECT * FROM goals WHERE owner_id = $1 ` + orderBy

	err := sqlx.SelectContext(ctx, r.db, &goals, query, ownerID)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) CountActiveGoals(ctx context.Context, ownerID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM goals WHERE owner_id = $1 AND status = $2`
	err := sqlx.GetContext(ctx, r.db, &count, query, ownerID, model.GoalStatusActive)
	return count, err
}

// UpdateTarget changes the non-financial goal parameters. Completed goals and goals that have
// already saved the new target are left untouched and reported as not updated.
func (r *goalRepository) UpdateTarget(ctx context.Context, goal *model.Goal) (bool, error) {
	query := `UPDATE goals
	          SET target_amount = $1, end_date = $2, updated_at = $3
	          WHERE id = $4 AND owner_id = $5 AND status <> $6 AND saved < $7`

	result, err := r.db.ExecContext(ctx, query,
		goal.TargetAmount,
		goal.EndDate,
		goal.UpdatedAt,
		goal.ID,
		goal.OwnerID,
		model.GoalStatusCompleted,
		goal.TargetAmount,
	)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// IncrementSaved atomically adds amount to saved unless the goal is completed.
// The conditional update holds the row lock until the surrounding transaction ends,
// which serializes concurrent deposits against one goal.
func (r *goalRepository) IncrementSaved(ctx context.Context, ownerID, goalID string, amount int64, now time.Time) (bool, error) {
	query := `UPDATE goals
	          SET saved = saved + $1, updated_at = $2
	          WHERE id = $3 AND owner_id = $4 AND status <> $5`

	result, err := r.db.ExecContext(ctx, query, amount, now, goalID, ownerID, model.GoalStatusCompleted)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// CompleteIfReached flips the goal to completed when saved reached the target.
// Only the call that performs the transition reports true.
func (r *goalRepository) CompleteIfReached(ctx context.Context, goalID string, now time.Time) (bool, error) {
	query := `UPDATE goals
	          SET status = $1, end_date = $2, updated_at = $2
	          WHERE id = $3 AND status <> $1 AND saved >= target_amount`

	result, err := r.db.ExecContext(ctx, query, model.GoalStatusCompleted, now, goalID)
	if err != nil {
		return false, err
	}

	return affected(result)
}

// DeleteIfEmpty removes a goal only while no deposit references it.
func (r *goalRepository) DeleteIfEmpty(ctx context.Context, ownerID, goalID string) (bool, error) {
	query := `DELETE FROM goals
	          WHERE id = $1 AND owner_id = $2
	          AND NOT EXISTS (SELECT 1 FROM deposits WHERE goal_id = $1)`

	result, err := r.db.ExecContext(ctx, query, goalID, ownerID)
	if err != nil {
		return false, err
	}

	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func requireRow(result sql.Result, notAffected error) error {
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return notAffected
	}
	return nil
}
