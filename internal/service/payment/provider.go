package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrGateway                 = errors.New("payment gateway error")
	ErrSessionNotFound         = errors.New("checkout session not found")
	ErrWebhookSignatureInvalid = errors.New("invalid webhook signature")
	ErrVerifyUnsupported       = errors.New("provider cannot verify checkout sessions")
)

// Allocation is the share of a checkout credited to one goal, in minor units.
type Allocation struct {
	GoalID string
	Amount int64
}

// SessionRequest describes a hosted checkout for one or more goals.
type SessionRequest struct {
	OwnerID     string
	OwnerEmail  string
	Currency    string
	Description string
	Allocations []Allocation
	SuccessPath string // optional, relative to the app URL
	CancelPath  string // optional, relative to the app URL
}

// Total is the amount the gateway should charge.
func (r SessionRequest) Total() int64 {
	return SumAllocations(r.Allocations)
}

// Session is a created hosted checkout.
type Session struct {
	ID  string
	URL string
}

// Event is a gateway payment notification or a verified session, normalized across providers.
type Event struct {
	ID          string // gateway event id, empty for verified sessions
	Type        string
	SessionID   string // dedupe key shared by the confirm and webhook paths
	Paid        bool
	AmountTotal int64
	Currency    string
	Metadata    Metadata          // namespace and owner are always set; allocations only after DecodeMetadata
	RawMetadata map[string]string `json:",omitempty"`
}

// DecodeMetadata parses the allocations in RawMetadata into Metadata. Call it only once the
// namespace is known to be ours: other applications attach metadata we cannot parse.
func (e *Event) DecodeMetadata() error {
	if e.RawMetadata == nil {
		return nil
	}
	m, err := DecodeMetadata(e.RawMetadata)
	if err != nil {
		return err
	}
	e.Metadata = m
	return nil
}

// Provider defines the interface that all payment providers must implement
type Provider interface {
	// CreateSession creates a hosted checkout carrying the goal allocations in its metadata
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)

	// VerifySession fetches a checkout session from the gateway
	VerifySession(ctx context.Context, sessionID string) (*Event, error)

	// ParseWebhook authenticates a webhook delivery and normalizes it
	ParseWebhook(payload []byte, headers http.Header) (*Event, error)

	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string
}

func SumAllocations(allocations []Allocation) int64 {
	var total int64
	for _, a := range allocations {
		total += a.Amount
	}
	return total
}
