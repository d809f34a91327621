package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nzoschke/dreamsaver/internal/model"
)

const receiptTimeout = 10 * time.Second

// Receipt is the archived copy of a recorded deposit.
type Receipt struct {
	ReceiptNumber     string    `json:"receiptNumber"`
	DepositID         string    `json:"depositId"`
	GoalID            string    `json:"goalId"`
	OwnerID           string    `json:"ownerId"`
	Amount            string    `json:"amount"`
	AmountMinor       int64     `json:"amountMinor"`
	PaymentMethod     string    `json:"paymentMethod"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	RecordedAt        time.Time `json:"recordedAt"`
}

// ReceiptArchive writes deposit receipts to object storage.
type ReceiptArchive struct {
	store Store
}

func NewReceiptArchive(store Store) *ReceiptArchive {
	return &ReceiptArchive{store: store}
}

func ReceiptKey(ownerID, receiptNumber string) string {
	return fmt.Sprintf("receipts/%s/%s.json", ownerID, receiptNumber)
}

// NewReceipt renders a deposit as a receipt.
func NewReceipt(deposit *model.Deposit) *Receipt {
	receipt := &Receipt{
		ReceiptNumber: deposit.ReceiptNumber,
		DepositID:     deposit.ID,
		GoalID:        deposit.GoalID,
		OwnerID:       deposit.OwnerID,
		Amount:        model.FromMinorUnits(deposit.Amount).StringFixed(2),
		AmountMinor:   deposit.Amount,
		PaymentMethod: deposit.PaymentMethod,
		RecordedAt:    deposit.CreatedAt,
	}
	if deposit.ProviderPaymentID != nil {
		receipt.ProviderPaymentID = *deposit.ProviderPaymentID
	}
	return receipt
}

func (a *ReceiptArchive) ArchiveReceipt(ctx context.Context, deposit *model.Deposit) error {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	body, err := json.Marshal(NewReceipt(deposit))
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	return a.store.Put(ctx, ReceiptKey(deposit.OwnerID, deposit.ReceiptNumber), body, "application/json")
}

// Receipt loads an archived receipt.
func (a *ReceiptArchive) Receipt(ctx context.Context, ownerID, receiptNumber string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	body, err := a.store.Get(ctx, ReceiptKey(ownerID, receiptNumber))
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	err = json.Unmarshal(body, &receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}
