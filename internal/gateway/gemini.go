// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// =============================================================================
// GEMINI PROVIDER
// =============================================================================

// Generation parameters for every request. Tuned for conversational
// assistance rather than determinism.
const (
	geminiTemperature     = 0.7
	geminiTopK            = 40
	geminiTopP            = 0.95
	geminiMaxOutputTokens = 8192
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiProvider struct {
	client *genai.Client
	model  string
	system string
}

func newGeminiProvider(cfg Config) (*geminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiProvider{
		client: client,
		model:  model,
		system: cfg.SystemPrompt,
	}, nil
}

// GenerateStream implements Provider.
func (g *geminiProvider) GenerateStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		contents := toGeminiContents(messages)
		config := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](geminiTemperature),
			TopK:            genai.Ptr[float32](geminiTopK),
			TopP:            genai.Ptr[float32](geminiTopP),
			MaxOutputTokens: geminiMaxOutputTokens,
		}
		if g.system != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: g.system}},
			}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				log.Printf("GEMINI_STREAM_ERROR | model=%s error=%v", g.model, err)
				errChan <- fmt.Errorf("gemini stream: %w", err)
				return
			}
			text := chunkText(resp)
			if text == "" {
				continue
			}
			select {
			case contentChan <- text:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return contentChan, errChan
}

// toGeminiContents maps the role-tagged history onto the Gemini content
// schema. Gemini names the assistant side "model"; anything that is not an
// assistant turn is treated as a user turn.
func toGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == "assistant" || m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

// chunkText extracts the visible text of one streamed response chunk.
func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var text string
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text += part.Text
	}
	return text
}
