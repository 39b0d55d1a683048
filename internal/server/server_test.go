// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devchat/internal/gateway"
	"devchat/internal/sse"
)

// fakeProvider streams a canned set of deltas, optionally failing afterwards.
type fakeProvider struct {
	deltas []string
	err    error
}

func (f *fakeProvider) GenerateStream(ctx context.Context, messages []gateway.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(f.deltas)+1)
	errChan := make(chan error, 1)
	for _, d := range f.deltas {
		contentChan <- d
	}
	if f.err != nil {
		errChan <- f.err
	}
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEvents(t *testing.T, body []byte) []sse.Event {
	t.Helper()
	var dec sse.Decoder
	return dec.Feed(body)
}

// ============================================================================
// VALIDATION
// ============================================================================

func TestHandleChat_InvalidBody(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{})

	rec := postChat(t, s, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MissingMessages(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{})

	rec := postChat(t, s, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MessagesNotArray(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{})

	rec := postChat(t, s, `{"messages":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// JSON null unmarshals cleanly into a nil slice; it is not a list.
	rec = postChat(t, s, `{"messages":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_InvalidRole(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{})

	rec := postChat(t, s, `{"messages":[{"role":"tool","content":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_NoGateway(t *testing.T) {
	s := New("127.0.0.1:0", nil)

	rec := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

// ============================================================================
// STREAMING
// ============================================================================

func TestHandleChat_StreamsDeltas(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{deltas: []string{"Hel", "lo"}})

	rec := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := decodeEvents(t, rec.Body.Bytes())
	require.Len(t, events, 3)
	assert.Equal(t, "Hel", events[0].Content)
	assert.Equal(t, "lo", events[1].Content)
	assert.True(t, events[2].Done)
}

func TestHandleChat_EmptyHistoryStillStreams(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{deltas: []string{"hello"}})

	rec := postChat(t, s, `{"messages":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decodeEvents(t, rec.Body.Bytes())
	require.Len(t, events, 2)
	assert.True(t, events[1].Done)
}

func TestHandleChat_ProviderErrorEndsStream(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{
		deltas: []string{"partial"},
		err:    errors.New("upstream 503"),
	})

	rec := postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decodeEvents(t, rec.Body.Bytes())
	require.Len(t, events, 3)
	assert.Equal(t, "partial", events[0].Content)
	assert.True(t, events[1].IsError())
	// Upstream detail must not leak to the client.
	assert.NotContains(t, events[1].Error, "503")
	assert.True(t, events[2].Done)
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

func TestHandleHealth(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{}).WithVersion("1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, "configured", health.GatewayStatus)
}

func TestHandleHealth_Degraded(t *testing.T) {
	s := New("127.0.0.1:0", nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
}

func TestHandleStats_CountsStreams(t *testing.T) {
	s := New("127.0.0.1:0", &fakeProvider{deltas: []string{"a", "b", "c"}})

	postChat(t, s, `{"messages":[{"role":"user","content":"hi"}]}`)
	postChat(t, s, `{"messages":[{"role":"user","content":"again"}]}`)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.StreamsStarted)
	assert.Equal(t, int64(6), stats.DeltasSent)
	assert.Equal(t, int64(0), stats.StreamErrors)
}

// ============================================================================
// MIDDLEWARE
// ============================================================================

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(2)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_PerClient(t *testing.T) {
	limiter := NewRateLimiter(1)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	// A different client has its own bucket.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
