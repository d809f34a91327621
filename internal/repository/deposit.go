package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
)

var ErrDepositNotFound = errors.New("deposit not found")

type DepositRepository interface {
	Create(ctx context.Context, deposit *model.Deposit) (bool, error)
	ByProviderPaymentID(ctx context.Context, providerPaymentID, goalID string) (*model.Deposit, error)
	ByReceipt(ctx context.Context, goalID, receiptNumber string) (*model.Deposit, error)
	Deposits(ctx context.Context, goalID string) ([]*model.Deposit, error)
	Sum(ctx context.Context, goalID string) (int64, error)
	Discrepancies(ctx context.Context) ([]*model.LedgerDiscrepancy, error)
}

type depositRepository struct {
	db sqlx.ExtContext
}

func NewDepositRepository(db sqlx.ExtContext) DepositRepository {
	return &depositRepository{db: db}
}

// Create appends a deposit to the ledger. It reports false without error when a deposit
// with the same provider payment id already exists for the goal.
func (r *depositRepository) Create(ctx context.Context, deposit *model.Deposit) (bool, error) {
	query := `INSERT INTO deposits (id, goal_id, owner_id, amount, payment_method, status, receipt_number, provider_payment_id, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (provider_payment_id, goal_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.GoalID,
		deposit.OwnerID,
		deposit.Amount,
		deposit.PaymentMethod,
		deposit.Status,
		deposit.ReceiptNumber,
		deposit.ProviderPaymentID,
		deposit.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	return affected(result)
}

func (r *depositRepository) ByProviderPaymentID(ctx context.Context, providerPaymentID, goalID string) (*model.Deposit, error) {
	deposit := &model.Deposit{}
	query := `SELECT * FROM deposits WHERE provider_payment_id = $1 AND goal_id = $2`

	err := sqlx.GetContext(ctx, r.db, deposit, query, providerPaymentID, goalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}

	return deposit, nil
}

func (r *depositRepository) ByReceipt(ctx context.Context, goalID, receiptNumber string) (*model.Deposit, error) {
	deposit := &model.Deposit{}
	query := `SELECT * FROM deposits WHERE goal_id = $1 AND receipt_number = $2`

	err := sqlx.GetContext(ctx, r.db, deposit, query, goalID, receiptNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, err
	}

	return deposit, nil
}

func (r *depositRepository) Deposits(ctx context.Context, goalID string) ([]*model.Deposit, error) {
	var deposits []*model.Deposit
	query := `SELECT * FROM deposits WHERE goal_id = $1 ORDER BY created_at ASC, id ASC`

	err := sqlx.SelectContext(ctx, r.db, &deposits, query, goalID)
	if err != nil {
		return nil, err
	}

	return deposits, nil
}

func (r *depositRepository) Sum(ctx context.Context, goalID string) (int64, error) {
	var sum int64
	query := `SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM deposits WHERE goal_id = $1`
	err := sqlx.GetContext(ctx, r.db, &sum, query, goalID)
	return sum, err
}

// Discrepancies lists goals whose saved amount differs from the sum of their deposits.
func (r *depositRepository) Discrepancies(ctx context.Context) ([]*model.LedgerDiscrepancy, error) {
	var out []*model.LedgerDiscrepancy
	query := `SELECT g.id AS goal_id, g.saved AS saved, CAST(COALESCE(SUM(d.amount), 0) AS BIGINT) AS ledger_sum
	          FROM goals g
	          LEFT JOIN deposits d ON d.goal_id = g.id
	          GROUP BY g.id, g.saved
	          HAVING g.saved <> COALESCE(SUM(d.amount), 0)
	          ORDER BY g.id`

	err := sqlx.SelectContext(ctx, r.db, &out, query)
	if err != nil {
		return nil, err
	}

	return out, nil
}
