// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"devchat/internal/gateway"
	"devchat/internal/sse"
)

// Client issues streaming chat requests against a devchat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// No overall timeout: the response body is a long-lived
			// stream. Liveness is the orchestrator's concern.
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Messages []gateway.Message `json:"messages"`
}

// StreamChat posts the history and returns the decoded event stream. The
// event channel closes when the stream ends; a transport failure or
// non-success status is delivered on the error channel before both close.
func (c *Client) StreamChat(ctx context.Context, messages []gateway.Message) (<-chan sse.Event, <-chan error) {
	events := make(chan sse.Event, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errChan)

		body, err := json.Marshal(chatRequest{Messages: messages})
		if err != nil {
			errChan <- fmt.Errorf("marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			errChan <- fmt.Errorf("create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errChan <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			errChan <- fmt.Errorf("server returned %d: %s",
				resp.StatusCode, strings.TrimSpace(string(detail)))
			return
		}

		reader := sse.NewReader(resp.Body)
		for {
			ev, err := reader.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errChan <- fmt.Errorf("read stream: %w", err)
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return events, errChan
}
