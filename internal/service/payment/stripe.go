package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nzoschke/dreamsaver/internal/config"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	stripeEventCheckoutCompleted     = "checkout.session.completed"
	stripeEventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

type StripeProvider struct {
	cfg *config.Config
}

func NewStripeProvider(cfg *config.Config) *StripeProvider {
	// Set Stripe API key
	stripe.Key = cfg.StripeSecretKey

	slog.Info("stripe provider initialized", "app_env", cfg.AppEnv)

	return &StripeProvider{cfg: cfg}
}

func (s *StripeProvider) Name() string {
	return model.PaymentMethodStripe
}

func (s *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckoutTimeout)
	defer cancel()

	successURL, cancelURL := redirectURLs(s.cfg.AppURL, req, true)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.Total()),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.OwnerID),
		Metadata: EncodeMetadata(Metadata{
			Namespace:   s.cfg.AppNamespace,
			OwnerID:     req.OwnerID,
			OwnerEmail:  req.OwnerEmail,
			Allocations: req.Allocations,
		}),
	}
	if req.OwnerEmail != "" {
		params.CustomerEmail = stripe.String(req.OwnerEmail)
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %w", ErrGateway, err)
	}

	slog.Info("stripe checkout created", "owner_id", req.OwnerID, "session_id", sess.ID, "amount", req.Total())
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeProvider) VerifySession(ctx context.Context, sessionID string) (*Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckoutTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: failed to retrieve checkout session: %w", ErrGateway, err)
	}

	return stripeSessionEvent("", "checkout.session.retrieved", sess), nil
}

func (s *StripeProvider) ParseWebhook(payload []byte, headers http.Header) (*Event, error) {
	signature := headers.Get("Stripe-Signature")

	// Use ConstructEventWithOptions to ignore API version mismatch
	// Stripe's API versions are backwards compatible, so this is safe
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.cfg.StripeWebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWebhookSignatureInvalid, err)
	}

	eventType := string(event.Type)
	slog.Info("stripe webhook received", "event_type", eventType, "event_id", event.ID)

	switch eventType {
	case stripeEventCheckoutCompleted, stripeEventAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		err := json.Unmarshal(event.Data.Raw, &sess)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return stripeSessionEvent(event.ID, eventType, &sess), nil
	default:
		return &Event{ID: event.ID, Type: eventType}, nil
	}
}

func stripeSessionEvent(eventID, eventType string, sess *stripe.CheckoutSession) *Event {
	return &Event{
		ID:          eventID,
		Type:        eventType,
		SessionID:   sess.ID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
		Metadata:    PeekMetadata(sess.Metadata),
		RawMetadata: sess.Metadata,
	}
}
