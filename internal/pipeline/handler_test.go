package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lns-pipeline/lns-pipeline/internal/shared"
	_ "github.com/lns-pipeline/lns-pipeline/testing"
)

func newTestServer(t *testing.T) (*httptest.Server, *memRepo) {
	t.Helper()
	server, repo, _ := newIdempotentTestServer(t)
	return server, repo
}

func newIdempotentTestServer(t *testing.T) (*httptest.Server, *memRepo, *memIdempotency) {
	t.Helper()
	repo := newMemRepo()
	svc := newTestService(repo, time.Date(2025, time.May, 10, 8, 0, 0, 0, time.UTC))
	guard := &memIdempotency{keys: map[string]bool{}}
	handler := NewHandler(svc, guard, nil)

	r := chi.NewRouter()
	r.Route("/pipeline", handler.MountRoutes)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, repo, guard
}

// memIdempotency mirrors shared.IdempotencyStore over a map.
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) claimed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

func TestHandlerCreateInquiry(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/pipeline/inquiries", "application/json", strings.NewReader(`{"customer_id": 7}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var inquiry Inquiry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inquiry))
	assert.Equal(t, "1/I/LNS/V/2025", inquiry.Code)
	assert.Equal(t, int64(7), inquiry.CustomerID)
}

func TestHandlerCreateInquiryValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/pipeline/inquiries", "application/json", strings.NewReader(`{"customer_id": 0}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerQuotationFlow(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/pipeline/inquiries", "application/json", strings.NewReader(`{"customer_id": 7}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(server.URL+"/pipeline/inquiries/1/quotation", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var quotation Quotation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quotation))
	assert.Equal(t, "1/Q/LNS/V/2025", quotation.Code)

	// second quotation under the same inquiry conflicts
	resp, err = http.Post(server.URL+"/pipeline/inquiries/1/quotation", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerIdempotencyKeyReplayConflicts(t *testing.T) {
	server, _, _ := newIdempotentTestServer(t)

	post := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/pipeline/inquiries", strings.NewReader(`{"customer_id": 7}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "create-inq-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post()
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = post()
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerIdempotencyKeyReleasedOnFailure(t *testing.T) {
	server, _, guard := newIdempotentTestServer(t)

	// quotation under a nonexistent inquiry fails after the claim
	req, err := http.NewRequest(http.MethodPost, server.URL+"/pipeline/inquiries/999/quotation", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "create-quot-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, guard.claimed("create-quot-1"))

	// the same key works once the inquiry exists
	resp, err = http.Post(server.URL+"/pipeline/inquiries", "application/json", strings.NewReader(`{"customer_id": 7}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, server.URL+"/pipeline/inquiries/1/quotation", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "create-quot-1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHandlerRecomputeUnknownQuotation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/pipeline/quotations/999/recompute", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/pipeline/inquiries/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(server.URL + "/pipeline/inquiries/not-a-number")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
