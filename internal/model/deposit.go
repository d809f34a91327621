package model

import (
	"time"
)

const (
	PaymentMethodStripe = "stripe"
	PaymentMethodPolar  = "polar"
	PaymentMethodManual = "manual"
)

// DepositStatusCompleted is the only status the ledger stores: failed payments are never recorded.
const DepositStatusCompleted = "completed"

type Deposit struct {
	ID                string    `db:"id"`
	GoalID            string    `db:"goal_id"`
	OwnerID           string    `db:"owner_id"`
	Amount            int64     `db:"amount"`
	PaymentMethod     string    `db:"payment_method"`
	Status            string    `db:"status"`
	ReceiptNumber     string    `db:"receipt_number"`
	ProviderPaymentID *string   `db:"provider_payment_id"`
	CreatedAt         time.Time `db:"created_at"`
}

// LedgerDiscrepancy is a goal whose cached saved amount no longer matches its deposits.
type LedgerDiscrepancy struct {
	GoalID    string `db:"goal_id"`
	Saved     int64  `db:"saved"`
	LedgerSum int64  `db:"ledger_sum"`
}
