// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway adapts third-party generative-completion services to a
// single streaming contract: an ordered history of role-tagged messages in,
// a lazy sequence of text deltas out. The concatenation of the deltas is
// the full completion. Providers are swappable behind the Provider
// interface; the engine depends only on this contract.
package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Message is one role-tagged entry of the history handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider streams one completion for the given history. The content
// channel closes when generation finishes; a failure is delivered on the
// error channel before both close. Configuration problems (missing
// credentials) are reported by the constructor, never mid-stream.
type Provider interface {
	GenerateStream(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is "gemini" (default) or "openai" (any OpenAI-compatible
	// endpoint, e.g. OpenRouter or a local inference server).
	Provider string

	// APIKey is the upstream credential. Required.
	APIKey string

	// Model is the upstream model identifier.
	Model string

	// BaseURL overrides the endpoint for OpenAI-compatible providers.
	BaseURL string

	// SystemPrompt is the fixed system instruction sent with every
	// request. Loaded once at startup; see prompt.go.
	SystemPrompt string
}

// New constructs the configured provider. A missing credential fails here,
// before any stream is opened, so the server can answer with a plain HTTP
// error instead of a broken stream.
func New(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gateway: api key is not set")
	}

	switch cfg.Provider {
	case "", "gemini":
		return newGeminiProvider(cfg)
	case "openai":
		return newOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("gateway: unsupported provider %q", cfg.Provider)
	}
}
