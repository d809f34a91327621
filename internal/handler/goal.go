package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/shopspring/decimal"
)

type GoalHandler struct {
	goalService   *service.GoalService
	ledgerService *service.LedgerService
}

func NewGoalHandler(goalService *service.GoalService, ledgerService *service.LedgerService) *GoalHandler {
	return &GoalHandler{
		goalService:   goalService,
		ledgerService: ledgerService,
	}
}

type goalRequest struct {
	ProductRef   string          `json:"productRef" validate:"required,max=200"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	TargetDate   *time.Time      `json:"targetDate"`
	AcceptTerms  bool            `json:"acceptTerms" validate:"required"`
}

type goalResponse struct {
	ID              string     `json:"id"`
	ProductRef      string     `json:"productRef"`
	TargetAmount    string     `json:"targetAmount"`
	Saved           string     `json:"saved"`
	Remaining       string     `json:"remaining"`
	ProgressPercent string     `json:"progressPercent"`
	LockedPrice     string     `json:"lockedPrice"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type depositResponse struct {
	ID                string    `json:"id"`
	GoalID            string    `json:"goalId"`
	Amount            string    `json:"amount"`
	PaymentMethod     string    `json:"paymentMethod"`
	Status            string    `json:"status"`
	ReceiptNumber     string    `json:"receiptNumber"`
	ProviderPaymentID *string   `json:"providerPaymentId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func money(cents int64) string {
	return model.FromMinorUnits(cents).StringFixed(2)
}

func newGoalResponse(g *model.Goal) goalResponse {
	return goalResponse{
		ID:              g.ID,
		ProductRef:      g.ProductRef,
		TargetAmount:    money(g.TargetAmount),
		Saved:           money(g.Saved),
		Remaining:       money(g.Remaining()),
		ProgressPercent: g.ProgressPercent().StringFixed(2),
		LockedPrice:     money(g.LockedPrice),
		Currency:        g.Currency,
		Status:          g.Status,
		Stage:           g.Stage(),
		EndDate:         g.EndDate,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

func newGoalResponses(goals []*model.Goal) []goalResponse {
	out := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		out = append(out, newGoalResponse(g))
	}
	return out
}

func newDepositResponse(d *model.Deposit) *depositResponse {
	if d == nil {
		return nil
	}
	return &depositResponse{
		ID:                d.ID,
		GoalID:            d.GoalID,
		Amount:            money(d.Amount),
		PaymentMethod:     d.PaymentMethod,
		Status:            d.Status,
		ReceiptNumber:     d.ReceiptNumber,
		ProviderPaymentID: d.ProviderPaymentID,
		CreatedAt:         d.CreatedAt,
	}
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	goals, err := h.goalService.Goals(r.Context(), owner.ID, r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newGoalResponses(goals))
}

// Save creates the owner's goal for a product, or updates it when one already exists.
func (h *GoalHandler) Save(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	var req goalRequest
	err := decode(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	target, err := model.ToMinorUnits(req.TargetAmount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	goal, created, err := h.goalService.CreateOrUpdate(r.Context(), *owner, service.GoalInput{
		ProductRef:   req.ProductRef,
		TargetAmount: target,
		TargetDate:   req.TargetDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("goal created", "goal_id", goal.ID, "owner_id", owner.ID)
	}
	writeJSON(w, status, newGoalResponse(goal))
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	goal, err := h.goalService.Goal(r.Context(), owner.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newGoalResponse(goal))
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())
	goalID := r.PathValue("id")

	err := h.goalService.Delete(r.Context(), owner.ID, goalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("goal deleted", "goal_id", goalID, "owner_id", owner.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) Deposits(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	deposits, err := h.ledgerService.Deposits(r.Context(), owner.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]*depositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, newDepositResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *GoalHandler) Export(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	goals, err := h.goalService.Export(r.Context(), *owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=goals-export.json")
	writeJSON(w, http.StatusOK, newGoalResponses(goals))
}
