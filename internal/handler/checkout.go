package handler

import (
	"log/slog"
	"net/http"

	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/shopspring/decimal"
)

type CheckoutHandler struct {
	checkoutService *service.CheckoutService
	providerName    string
}

func NewCheckoutHandler(checkoutService *service.CheckoutService, providerName string) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		providerName:    providerName,
	}
}

type checkoutRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	SuccessPath string          `json:"successPath" validate:"omitempty,startswith=/,max=500"`
	CancelPath  string          `json:"cancelPath" validate:"omitempty,startswith=/,max=500"`
}

type batchCheckoutRequest struct {
	GoalIDs []string `json:"goalIds" validate:"required,min=1,max=10,unique,dive,required"`
	checkoutRequest
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Goal starts a checkout for a deposit into one goal.
func (h *CheckoutHandler) Goal(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	err := decode(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.create(w, r, []string{r.PathValue("id")}, req)
}

// Batch starts one checkout whose total is split evenly across several goals.
func (h *CheckoutHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchCheckoutRequest
	err := decode(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.create(w, r, req.GoalIDs, req.checkoutRequest)
}

func (h *CheckoutHandler) create(w http.ResponseWriter, r *http.Request, goalIDs []string, req checkoutRequest) {
	owner := ctxkeys.Owner(r.Context())

	amount, err := model.ToMinorUnits(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.checkoutService.CreateSession(r.Context(), *owner, service.CheckoutRequest{
		GoalIDs:     goalIDs,
		Amount:      amount,
		SuccessPath: req.SuccessPath,
		CancelPath:  req.CancelPath,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("checkout session created",
		"owner_id", owner.ID,
		"goal_ids", goalIDs,
		"session_id", session.ID,
		"provider", h.providerName,
	)
	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID: session.ID,
		URL:       session.URL,
	})
}
