package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodHead, http.MethodPut:
		if !strings.Contains(key, "/") {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestReceiptArchiveS3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3Store(ctx, S3Config{
		Region:    "us-east-1",
		Bucket:    "receipts",
		AccessKey: "test",
		SecretKey: "test",
		Endpoint:  srv.URL,
	})
	require.NoError(t, err)

	paymentID := "cs_test_1"
	deposit := &model.Deposit{
		ID:                "d1",
		GoalID:            "g1",
		OwnerID:           "alice",
		Amount:            40050,
		PaymentMethod:     model.PaymentMethodStripe,
		Status:            model.DepositStatusCompleted,
		ReceiptNumber:     "DS-20260101-ABCDEF123456",
		ProviderPaymentID: &paymentID,
		CreatedAt:         time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	archive := NewReceiptArchive(store)
	require.NoError(t, archive.ArchiveReceipt(ctx, deposit))

	fake.mu.Lock()
	stored, ok := fake.objects["receipts/receipts/alice/DS-20260101-ABCDEF123456.json"]
	contentType := fake.types["receipts/receipts/alice/DS-20260101-ABCDEF123456.json"]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "application/json", contentType)
	assert.Contains(t, string(stored), `"amount":"400.50"`)

	receipt, err := archive.Receipt(ctx, "alice", deposit.ReceiptNumber)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", receipt.ProviderPaymentID)
	assert.Equal(t, int64(40050), receipt.AmountMinor)
}

func TestReceiptKey(t *testing.T) {
	assert.Equal(t, "receipts/alice/DS-1.json", ReceiptKey("alice", "DS-1"))
}
