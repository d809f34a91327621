package payment

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nzoschke/dreamsaver/internal/config"
	"github.com/nzoschke/dreamsaver/internal/model"
)

// NewProvider creates a payment provider based on configuration
func NewProvider(cfg *config.Config) (Provider, error) {
	provider := cfg.PaymentProvider

	slog.Info("initializing payment provider", "provider", provider)

	switch provider {
	case model.PaymentMethodPolar:
		if cfg.PolarAPIKey == "" {
			return nil, fmt.Errorf("POLAR_API_KEY is required when using Polar provider")
		}
		return NewPolarProvider(cfg), nil

	case model.PaymentMethodStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when using Stripe provider")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when using Stripe provider")
		}
		return NewStripeProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s (supported: polar, stripe)", provider)
	}
}

// redirectURLs builds the success and cancel URLs for a checkout. Single-goal checkouts
// return to the goal page, batches to the goal list.
func redirectURLs(appURL string, req SessionRequest, withSessionID bool) (string, string) {
	base := strings.TrimRight(appURL, "/")

	successPath := req.SuccessPath
	cancelPath := req.CancelPath
	if successPath == "" || cancelPath == "" {
		page := "/goals"
		if len(req.Allocations) == 1 {
			page = "/goals/" + req.Allocations[0].GoalID
		}
		if successPath == "" {
			successPath = page + "?payment=success"
		}
		if cancelPath == "" {
			cancelPath = page + "?payment=cancel"
		}
	}

	successURL := base + successPath
	if withSessionID {
		sep := "?"
		if strings.Contains(successPath, "?") {
			sep = "&"
		}
		successURL += sep + "session_id={CHECKOUT_SESSION_ID}"
	}

	return successURL, base + cancelPath
}
