// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// OPENAI-COMPATIBLE PROVIDER
// =============================================================================

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// sharedStreamingClient is reused across requests for connection pooling.
// No overall timeout: stream duration is governed by the request context.
var sharedStreamingClient = &http.Client{
	Timeout: 0,
	Transport: &http.Transport{
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	},
}

type openAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	system  string
}

func newOpenAIProvider(cfg Config) *openAIProvider {
	p := &openAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
	}
	if p.baseURL == "" {
		p.baseURL = defaultOpenAIBaseURL
	}
	if p.model == "" {
		p.model = defaultOpenAIModel
	}
	return p
}

// completionRequest is the chat-completions request body.
type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// streamChunk is one decoded record of the upstream SSE stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

func (c *streamChunk) finished() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// GenerateStream implements Provider.
func (p *openAIProvider) GenerateStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		resp, err := p.sendStreamRequest(ctx, messages)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		if err := p.processStream(ctx, resp.Body, contentChan); err != nil {
			log.Printf("OPENAI_STREAM_ERROR | model=%s error=%v", p.model, err)
			errChan <- err
		}
	}()

	return contentChan, errChan
}

func (p *openAIProvider) sendStreamRequest(ctx context.Context, messages []Message) (*http.Response, error) {
	history := messages
	if p.system != "" {
		history = append([]Message{{Role: "system", Content: p.system}}, messages...)
	}

	bodyBytes, err := json.Marshal(completionRequest{
		Model:    p.model,
		Messages: history,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// processStream reads the upstream SSE body and forwards content deltas.
// Malformed records are skipped rather than aborting the stream.
func (p *openAIProvider) processStream(ctx context.Context, body io.Reader, out chan<- string) error {
	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if content := chunk.content(); content != "" {
			select {
			case out <- content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if chunk.finished() {
			return nil
		}
	}
}
