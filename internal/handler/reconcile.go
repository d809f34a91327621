package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/shopspring/decimal"
)

type ReconcileHandler struct {
	reconcileService *service.ReconcileService
	providerName     string
}

func NewReconcileHandler(reconcileService *service.ReconcileService, providerName string) *ReconcileHandler {
	return &ReconcileHandler{
		reconcileService: reconcileService,
		providerName:     providerName,
	}
}

type confirmRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	SessionID string          `json:"sessionId" validate:"omitempty,max=255"`
}

type confirmResponse struct {
	Goal          goalResponse     `json:"goal"`
	Outcome       service.Outcome  `json:"outcome"`
	GoalCompleted bool             `json:"goalCompleted"`
	Deposit       *depositResponse `json:"deposit,omitempty"`
}

// Confirm records the deposit the client just paid for. A pending outcome means the
// gateway has not settled yet and the webhook will credit the goal.
func (h *ReconcileHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	var req confirmRequest
	err := decode(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := model.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.reconcileService.Confirm(r.Context(), *owner, service.ConfirmInput{
		GoalID:    r.PathValue("id"),
		Amount:    amount,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == service.OutcomePending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, confirmResponse{
		Goal:          newGoalResponse(result.Goal),
		Outcome:       result.Outcome,
		GoalCompleted: result.GoalCompleted,
		Deposit:       newDepositResponse(result.Deposit),
	})
}

// Webhook acknowledges every event it has settled, including ones it rejected.
// Only failures a redelivery could fix get a 5xx.
func (h *ReconcileHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read webhook payload", "error", err, "provider", h.providerName)
		http.Error(w, "Failed to read payload", http.StatusBadRequest)
		return
	}
	defer func() {
		closeErr := r.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close request body", "error", closeErr)
		}
	}()

	result, err := h.reconcileService.HandleWebhook(r.Context(), payload, r.Header)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("webhook handled",
		"provider", h.providerName,
		"event_id", result.EventID,
		"event_type", result.EventType,
		"session_id", result.SessionID,
		"outcome", result.Outcome,
		"reason", result.Reason,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"outcome":  result.Outcome,
	})
}
