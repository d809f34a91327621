package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
)

// Presentation stages layered on top of GoalStatusActive.
const (
	GoalStageSaved     = "saved"
	GoalStageStarted   = "started"
	GoalStageCompleted = "completed"
)

// Goal amounts are stored in minor currency units (cents).
type Goal struct {
	ID           string     `db:"id"`
	OwnerID      string     `db:"owner_id"`
	ProductRef   string     `db:"product_ref"`
	TargetAmount int64      `db:"target_amount"`
	Saved        int64      `db:"saved"`
	Status       string     `db:"status"`
	LockedPrice  int64      `db:"locked_price"`
	Currency     string     `db:"currency"`
	EndDate      *time.Time `db:"end_date"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (g *Goal) IsCompleted() bool {
	return g.Status == GoalStatusCompleted
}

// Stage returns the presentation label: saved (no money yet), started, or completed.
// Any stage other than completed still accepts deposits.
func (g *Goal) Stage() string {
	switch {
	case g.IsCompleted():
		return GoalStageCompleted
	case g.Saved > 0:
		return GoalStageStarted
	default:
		return GoalStageSaved
	}
}

// ProgressPercent is saved / target * 100, rounded to two places. Overshoot is not capped.
func (g *Goal) ProgressPercent() decimal.Decimal {
	if g.TargetAmount <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(g.Saved).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(g.TargetAmount)).
		Round(2)
}

// Remaining is target - saved in minor units; negative when the goal was overpaid.
func (g *Goal) Remaining() int64 {
	return g.TargetAmount - g.Saved
}
