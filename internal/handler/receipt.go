package handler

import (
	"log/slog"
	"net/http"

	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/nzoschke/dreamsaver/internal/storage"
)

type ReceiptHandler struct {
	ledgerService *service.LedgerService
	archive       *storage.ReceiptArchive // nil when archiving is disabled
}

func NewReceiptHandler(ledgerService *service.LedgerService, archive *storage.ReceiptArchive) *ReceiptHandler {
	return &ReceiptHandler{
		ledgerService: ledgerService,
		archive:       archive,
	}
}

type receiptResponse struct {
	*storage.Receipt
	Archived bool `json:"archived"`
}

// Get returns a deposit receipt, preferring the archived copy over the ledger row.
func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())
	goalID := r.PathValue("id")

	deposit, err := h.ledgerService.Deposit(r.Context(), owner.ID, goalID, r.PathValue("receipt"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.archive != nil {
		archived, err := h.archive.Receipt(r.Context(), owner.ID, deposit.ReceiptNumber)
		if err == nil && archived.GoalID == deposit.GoalID {
			writeJSON(w, http.StatusOK, receiptResponse{Receipt: archived, Archived: true})
			return
		}
		slog.Warn("archived receipt unavailable", "error", err, "goal_id", goalID, "receipt", deposit.ReceiptNumber)
	}

	writeJSON(w, http.StatusOK, receiptResponse{Receipt: storage.NewReceipt(deposit)})
}
