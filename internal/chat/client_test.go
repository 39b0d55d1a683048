// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devchat/internal/gateway"
	"devchat/internal/server"
	"devchat/internal/sse"
)

// scriptedProvider is a gateway.Provider for end-to-end tests.
type scriptedProvider struct {
	deltas []string
	err    error
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, messages []gateway.Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(p.deltas)+1)
	errChan := make(chan error, 1)
	for _, d := range p.deltas {
		contentChan <- d
	}
	if p.err != nil {
		errChan <- p.err
	}
	close(contentChan)
	close(errChan)
	return contentChan, errChan
}

func collectEvents(t *testing.T, events <-chan sse.Event, errChan <-chan error) ([]sse.Event, error) {
	t.Helper()
	var got []sse.Event
	var streamErr error
	for events != nil || errChan != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			got = append(got, ev)
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			streamErr = err
		}
	}
	return got, streamErr
}

func TestClient_StreamChat_EndToEnd(t *testing.T) {
	srv := server.New("127.0.0.1:0", &scriptedProvider{deltas: []string{"Hel", "lo"}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL)
	events, errChan := client.StreamChat(context.Background(), []gateway.Message{
		{Role: "user", Content: "hi"},
	})

	got, err := collectEvents(t, events, errChan)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Hel", got[0].Content)
	assert.Equal(t, "lo", got[1].Content)
	assert.True(t, got[2].Done)
}

func TestClient_StreamChat_NonSuccessStatus(t *testing.T) {
	// A server with no gateway answers 500 before any stream opens.
	srv := server.New("127.0.0.1:0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL)
	events, errChan := client.StreamChat(context.Background(), nil)

	got, err := collectEvents(t, events, errChan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Empty(t, got)
}

func TestClient_StreamChat_ServerUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	events, errChan := client.StreamChat(context.Background(), nil)

	got, err := collectEvents(t, events, errChan)
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestOrchestratorAgainstRealServer(t *testing.T) {
	srv := server.New("127.0.0.1:0", &scriptedProvider{deltas: []string{"Go ", "rocks"}})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	st := newTestStore(t)
	convID := st.ActiveID()
	orch := NewOrchestrator(st, NewClient(ts.URL))

	updates, err := orch.SendUserMessage(context.Background(), convID, "opinion on go?")
	require.NoError(t, err)
	got := drainUpdates(t, updates)

	final := got[len(got)-1]
	assert.Equal(t, TurnFinalized, final.State)
	assert.Equal(t, "Go rocks", final.Content)

	conv, _ := st.Get(convID)
	assert.Equal(t, "Go rocks", conv.LastMessage().Content)
}

func TestOrchestratorAgainstRealServer_UpstreamError(t *testing.T) {
	srv := server.New("127.0.0.1:0", &scriptedProvider{
		deltas: []string{"part"},
		err:    errors.New("upstream down"),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	st := newTestStore(t)
	convID := st.ActiveID()
	orch := NewOrchestrator(st, NewClient(ts.URL))

	updates, err := orch.SendUserMessage(context.Background(), convID, "hi")
	require.NoError(t, err)
	got := drainUpdates(t, updates)

	final := got[len(got)-1]
	assert.Equal(t, TurnErrored, final.State)

	conv, _ := st.Get(convID)
	assert.Equal(t, FallbackMessage, conv.LastMessage().Content)
}
