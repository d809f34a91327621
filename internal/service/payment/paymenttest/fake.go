// Package paymenttest provides an in-memory payment provider for tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/nzoschke/dreamsaver/internal/service/payment"
)

const (
	SignatureHeader = "X-Test-Signature"
	Secret          = "test-secret"
)

// Provider records created sessions and serves events registered with AddSession.
type Provider struct {
	mu        sync.Mutex
	sessions  map[string]*payment.Event
	requests  []payment.SessionRequest
	CreateErr error
	VerifyErr error
}

func New() *Provider {
	return &Provider{sessions: make(map[string]*payment.Event)}
}

func (p *Provider) Name() string {
	return "stripe"
}

func (p *Provider) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	p.requests = append(p.requests, req)
	id := fmt.Sprintf("cs_test_%d", len(p.requests))
	return &payment.Session{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *Provider) VerifySession(ctx context.Context, sessionID string) (*payment.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.VerifyErr != nil {
		return nil, p.VerifyErr
	}

	event, ok := p.sessions[sessionID]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	copied := *event
	return &copied, nil
}

// ParseWebhook accepts JSON-encoded payment.Event payloads carrying the test signature header.
func (p *Provider) ParseWebhook(payload []byte, headers http.Header) (*payment.Event, error) {
	if headers.Get(SignatureHeader) != Secret {
		return nil, payment.ErrWebhookSignatureInvalid
	}

	var event payment.Event
	err := json.Unmarshal(payload, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook: %w", err)
	}
	return &event, nil
}

// AddSession registers a session for VerifySession.
func (p *Provider) AddSession(event *payment.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[event.SessionID] = event
}

// Requests returns the session requests received so far.
func (p *Provider) Requests() []payment.SessionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.SessionRequest(nil), p.requests...)
}

// PaidEvent builds a paid event for one owner's allocations in the given namespace.
func PaidEvent(namespace, ownerID, sessionID string, allocations ...payment.Allocation) *payment.Event {
	return &payment.Event{
		ID:          "evt_" + sessionID,
		Type:        "checkout.session.completed",
		SessionID:   sessionID,
		Paid:        true,
		AmountTotal: payment.SumAllocations(allocations),
		Currency:    "usd",
		Metadata: payment.Metadata{
			Namespace:   namespace,
			OwnerID:     ownerID,
			OwnerEmail:  ownerID + "@example.com",
			Allocations: allocations,
		},
	}
}

// Sign encodes an event as a webhook delivery the fake provider accepts.
func Sign(event *payment.Event) ([]byte, http.Header) {
	payload, err := json.Marshal(event)
	if err != nil {
		panic(err)
	}
	headers := http.Header{}
	headers.Set(SignatureHeader, Secret)
	return payload, headers
}
