// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the devchat HTTP API.
//
// Endpoints:
//   - POST /api/chat - stream a completion for a conversation history (SSE)
//   - GET  /health   - health check
//   - GET  /stats    - usage statistics
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"devchat/internal/gateway"
	"devchat/internal/sse"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize caps the request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 200

	// MaxMessageLength is the maximum length of a single message.
	MaxMessageLength = 100000
)

// validRoles is the set of acceptable message roles.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks server usage counters.
type Stats struct {
	TotalRequests  int64
	StreamsStarted int64
	StreamErrors   int64
	DeltasSent     int64
	StartTime      time.Time
}

// statsCounters is the atomic backing for Stats.
type statsCounters struct {
	totalRequests  atomic.Int64
	streamsStarted atomic.Int64
	streamErrors   atomic.Int64
	deltasSent     atomic.Int64
	startTime      time.Time
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		TotalRequests:  s.totalRequests.Load(),
		StreamsStarted: s.streamsStarted.Load(),
		StreamErrors:   s.streamErrors.Load(),
		DeltasSent:     s.deltasSent.Load(),
		StartTime:      s.startTime,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the devchat HTTP API server. It owns no conversation state:
// clients send the full history with every request and fold the streamed
// deltas themselves.
type Server struct {
	addr    string
	version string
	router  *http.ServeMux
	server  *http.Server
	stats   *statsCounters

	rateLimit int

	mu       sync.RWMutex
	provider gateway.Provider
}

// New creates a Server listening on addr. provider may be nil when the
// gateway could not be configured; chat requests then fail with a plain
// HTTP error instead of a broken stream.
func New(addr string, provider gateway.Provider) *Server {
	s := &Server{
		addr:     addr,
		version:  "dev",
		router:   http.NewServeMux(),
		provider: provider,
		stats:    &statsCounters{startTime: time.Now()},
	}
	s.setupRoutes()
	return s
}

// WithRateLimit caps chat requests per client per minute. 0 disables.
func (s *Server) WithRateLimit(perMin int) *Server {
	s.rateLimit = perMin
	return s
}

// WithVersion sets the version reported by /health and startup logs.
// The binary's build-time version is the single source of truth.
func (s *Server) WithVersion(v string) *Server {
	if v != "" {
		s.version = v
	}
	return s
}

// SetProvider swaps the upstream provider.
func (s *Server) SetProvider(p gateway.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
}

func (s *Server) getProvider() gateway.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the full middleware-wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
	}
	if s.rateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(s.rateLimit)))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// chatRequest is the POST /api/chat body. Messages is kept raw so a
// missing or non-array value can be told apart from a decode failure.
type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// handleChat streams a completion for the posted history.
//
// The stream always terminates with a [DONE] record, whether generation
// finished or failed. Failures after the stream opened are delivered as
// in-band error records since the 200 status is already on the wire.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("CHAT_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	// A nil decoded slice means the key was absent or carried JSON null;
	// neither is a list. An empty array decodes to a non-nil slice.
	var messages []gateway.Message
	if req.Messages == nil || json.Unmarshal(req.Messages, &messages) != nil || messages == nil {
		s.writeError(w, http.StatusBadRequest, "Messages array is required")
		return
	}

	if len(messages) > MaxMessageCount {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Too many messages: maximum is %d", MaxMessageCount))
		return
	}
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid role at message %d", i))
			return
		}
		if len(msg.Content) > MaxMessageLength {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Message %d exceeds maximum length of %d", i, MaxMessageLength))
			return
		}
	}

	provider := s.getProvider()
	if provider == nil {
		log.Printf("CHAT_NO_GATEWAY | client_ip=%s", GetClientIP(r))
		s.writeError(w, http.StatusInternalServerError, "Chat gateway is not configured")
		return
	}

	s.stats.totalRequests.Add(1)
	s.streamCompletion(w, r, provider, messages)
}

// streamCompletion relays provider deltas as SSE records.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, provider gateway.Provider, messages []gateway.Message) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	ctx := r.Context()
	start := time.Now()
	s.stats.streamsStarted.Add(1)

	contentChan, errChan := provider.GenerateStream(ctx, messages)

	var deltas int64
	var failed bool
loop:
	for {
		select {
		case delta, ok := <-contentChan:
			if !ok {
				break loop
			}
			if err := writer.WriteContent(delta); err != nil {
				// Client went away; nothing left to deliver.
				log.Printf("STREAM_CLIENT_GONE | error=%v", err)
				return
			}
			deltas++
		case <-ctx.Done():
			log.Printf("STREAM_CANCELED | client_ip=%s", GetClientIP(r))
			return
		}
	}

	// The provider closes the content channel after delivering any
	// failure, so a pending error is ready to collect here. Deltas
	// already written stay on the wire ahead of the error record.
	select {
	case err, ok := <-errChan:
		if ok {
			log.Printf("STREAM_ERROR | error=%v", err)
			s.stats.streamErrors.Add(1)
			writer.WriteError("An error occurred while generating the response")
			failed = true
		}
	default:
	}

	writer.WriteDone()
	s.stats.deltasSent.Add(deltas)

	log.Printf("STREAM_COMPLETE | deltas=%d failed=%t latency=%dms",
		deltas, failed, time.Since(start).Milliseconds())
}

// ============================================================================
// HEALTH AND STATS HANDLERS
// ============================================================================

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	GatewayStatus string `json:"gateway_status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		GatewayStatus: "configured",
	}
	if s.getProvider() == nil {
		health.Status = "degraded"
		health.GatewayStatus = "not_configured"
	}
	s.writeJSON(w, http.StatusOK, health)
}

// StatsResponse is the GET /stats body.
type StatsResponse struct {
	TotalRequests  int64 `json:"total_requests"`
	StreamsStarted int64 `json:"streams_started"`
	StreamErrors   int64 `json:"stream_errors"`
	DeltasSent     int64 `json:"deltas_sent"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.snapshot()
	s.writeJSON(w, http.StatusOK, StatsResponse{
		TotalRequests:  stats.TotalRequests,
		StreamsStarted: stats.StreamsStarted,
		StreamErrors:   stats.StreamErrors,
		DeltasSent:     stats.DeltasSent,
		UptimeSeconds:  int64(time.Since(stats.StartTime).Seconds()),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: SSE streams stay open as long as generation
		// runs. Stream duration is bounded by the client disconnecting.
		IdleTimeout: 120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", s.addr, s.version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    status,
		},
	})
}
