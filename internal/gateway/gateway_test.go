// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/genai"
)

// =============================================================================
// FACTORY
// =============================================================================

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")

	_, err = New(Config{Provider: "openai", APIKey: "   "})
	require.Error(t, err)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(Config{Provider: "anthropic", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestNew_DefaultsToGemini(t *testing.T) {
	p, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	_, ok := p.(*geminiProvider)
	assert.True(t, ok)
}

// =============================================================================
// SYSTEM PROMPT
// =============================================================================

func TestLoadSystemPrompt(t *testing.T) {
	t.Run("missing file falls back", func(t *testing.T) {
		got := loadSystemPrompt(filepath.Join(t.TempDir(), "nope.md"))
		assert.Equal(t, fallbackSystemPrompt, got)
	})

	t.Run("empty path falls back", func(t *testing.T) {
		assert.Equal(t, fallbackSystemPrompt, loadSystemPrompt(""))
	})

	t.Run("empty file falls back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.md")
		require.NoError(t, os.WriteFile(path, []byte("  \n\t\n"), 0o644))
		assert.Equal(t, fallbackSystemPrompt, loadSystemPrompt(path))
	})

	t.Run("reads and trims file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.md")
		require.NoError(t, os.WriteFile(path, []byte("You are terse.\n"), 0o644))
		assert.Equal(t, "You are terse.", loadSystemPrompt(path))
	})
}

// =============================================================================
// GEMINI MAPPING
// =============================================================================

func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "bye"},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, "", chunkText(nil))
	assert.Equal(t, "", chunkText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: "par"}, {Text: "tial"}},
			},
		}},
	}
	assert.Equal(t, "partial", chunkText(resp))
}

// =============================================================================
// OPENAI-COMPATIBLE STREAMING
// =============================================================================

func openAIStreamHandler(deltas []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func drain(t *testing.T, contentChan <-chan string, errChan <-chan error) (string, error) {
	t.Helper()

	var sb strings.Builder
	var streamErr error
	for contentChan != nil || errChan != nil {
		select {
		case delta, ok := <-contentChan:
			if !ok {
				contentChan = nil
				continue
			}
			sb.WriteString(delta)
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			streamErr = err
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not finish")
		}
	}
	return sb.String(), streamErr
}

func TestOpenAIProvider_StreamsDeltas(t *testing.T) {
	srv := httptest.NewServer(openAIStreamHandler([]string{"Hel", "lo, ", "world"}))
	defer srv.Close()

	p := newOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	contentChan, errChan := p.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}})

	got, err := drain(t, contentChan, errChan)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got)
}

func TestOpenAIProvider_InjectsSystemPrompt(t *testing.T) {
	var sawSystem bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sawSystem = len(req.Messages) > 0 && req.Messages[0].Role == "system"
		openAIStreamHandler(nil)(w, r)
	}))
	defer srv.Close()

	p := newOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL, SystemPrompt: "be terse"})
	contentChan, errChan := p.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}})

	_, err := drain(t, contentChan, errChan)
	require.NoError(t, err)
	assert.True(t, sawSystem)
}

func TestOpenAIProvider_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL})
	contentChan, errChan := p.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}})

	got, err := drain(t, contentChan, errChan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Empty(t, got)
}

func TestOpenAIProvider_SkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newOpenAIProvider(Config{APIKey: "k", BaseURL: srv.URL})
	contentChan, errChan := p.GenerateStream(context.Background(), []Message{{Role: "user", Content: "hi"}})

	got, err := drain(t, contentChan, errChan)
	require.NoError(t, err)
	assert.Equal(t, "ok!", got)
}
