package routes

import (
	"net/http"

	"github.com/nzoschke/dreamsaver/internal/app"
	"github.com/nzoschke/dreamsaver/internal/handler"
	"github.com/nzoschke/dreamsaver/internal/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	goal := handler.NewGoalHandler(app.GoalService, app.LedgerService)
	checkout := handler.NewCheckoutHandler(app.CheckoutService, app.PaymentService.Name())
	reconcile := handler.NewReconcileHandler(app.ReconcileService, app.PaymentService.Name())
	notification := handler.NewNotificationHandler(app.NotificationService)
	receipt := handler.NewReceiptHandler(app.LedgerService, app.ReceiptArchive)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /healthz", health.Health)

	// ============================================================================
	// PROTECTED ROUTES (/api/*)
	// ============================================================================

	// Checkout creation is rate limited per owner
	rateLimit := middleware.RateLimit(app.CheckoutLimiter)

	// Goals
	mux.HandleFunc("GET /api/goals", middleware.RequireAuth(goal.List))
	mux.HandleFunc("POST /api/goals", middleware.RequireAuth(goal.Save))
	mux.HandleFunc("GET /api/goals/export", middleware.RequireAuth(goal.Export))
	mux.HandleFunc("GET /api/goals/{id}", middleware.RequireAuth(goal.Get))
	mux.HandleFunc("DELETE /api/goals/{id}", middleware.RequireAuth(goal.Delete))
	mux.HandleFunc("GET /api/goals/{id}/deposits", middleware.RequireAuth(goal.Deposits))
	mux.HandleFunc("GET /api/goals/{id}/deposits/{receipt}", middleware.RequireAuth(receipt.Get))

	// Checkout + confirm
	mux.HandleFunc("POST /api/goals/{id}/checkout", middleware.RequireAuth(rateLimit(checkout.Goal)))
	mux.HandleFunc("POST /api/checkout", middleware.RequireAuth(rateLimit(checkout.Batch)))
	mux.HandleFunc("POST /api/goals/{id}/confirm", middleware.RequireAuth(reconcile.Confirm))

	// Notifications
	mux.HandleFunc("GET /api/notifications", middleware.RequireAuth(notification.List))
	mux.HandleFunc("POST /api/notifications/{id}/read", middleware.RequireAuth(notification.MarkRead))

	// ============================================================================
	// WEBHOOKS
	// ============================================================================

	// Payment provider webhook (works with both Polar and Stripe)
	mux.HandleFunc("POST /webhooks/payment", reconcile.Webhook)

	// Global middleware - executed in order (top to bottom)
	return middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.AuthMiddleware(app.TokenVerifier),
	)
}
