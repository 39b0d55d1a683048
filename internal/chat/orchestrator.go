// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat coordinates a conversation turn: it appends the user
// message, opens one streaming request, folds the incoming deltas into
// the in-progress assistant message, and finalizes or error-recovers the
// turn. The conversation store owns all durable state; this package owns
// the per-turn state machine.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"devchat/internal/gateway"
	"devchat/internal/sse"
	"devchat/internal/store"
)

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState is the lifecycle of one conversation turn.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaitingFirstByte
	TurnStreaming
	TurnFinalized
	TurnErrored
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnAwaitingFirstByte:
		return "awaiting_first_byte"
	case TurnStreaming:
		return "streaming"
	case TurnFinalized:
		return "finalized"
	case TurnErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Update is one progress notification for an in-flight turn. Content is
// the full accumulated assistant text so far, not a delta.
type Update struct {
	State   TurnState
	Content string
	Err     error
}

// =============================================================================
// ERRORS AND CONSTANTS
// =============================================================================

var (
	// ErrTurnInFlight is returned when a conversation already has an
	// active stream.
	ErrTurnInFlight = errors.New("chat: a turn is already in flight for this conversation")

	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("chat: message is empty")

	// errStreamStalled marks an inactivity timeout, treated like any
	// other transport failure.
	errStreamStalled = errors.New("chat: stream stalled, no events received")
)

// FallbackMessage replaces the assistant slot when a turn fails. The
// conversation stays usable afterwards.
const FallbackMessage = "Sorry, an error occurred while processing your message. Please try again."

// defaultInactivityTimeout bounds how long a turn may sit without any
// stream event before it is abandoned. Guards against an upstream that
// reports an in-band error and then never terminates.
const defaultInactivityTimeout = 60 * time.Second

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Streamer is the transport the orchestrator reads completions from.
// Satisfied by *Client.
type Streamer interface {
	StreamChat(ctx context.Context, messages []gateway.Message) (<-chan sse.Event, <-chan error)
}

// Orchestrator runs turns against a conversation store. At most one turn
// may be in flight per conversation; overlapping sends are rejected.
type Orchestrator struct {
	store    *store.Store
	streamer Streamer
	timeout  time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewOrchestrator creates an orchestrator over the given store and
// transport.
func NewOrchestrator(st *store.Store, streamer Streamer) *Orchestrator {
	return &Orchestrator{
		store:    st,
		streamer: streamer,
		timeout:  defaultInactivityTimeout,
		inFlight: make(map[string]bool),
	}
}

// WithInactivityTimeout overrides the stall timeout. Zero disables it.
func (o *Orchestrator) WithInactivityTimeout(d time.Duration) *Orchestrator {
	o.timeout = d
	return o
}

// Streaming reports whether a turn is in flight for the conversation.
func (o *Orchestrator) Streaming(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight[conversationID]
}

// SendUserMessage starts one turn: appends the user message, derives the
// title on a first message, appends the empty assistant placeholder, and
// streams the completion into it. The returned channel reports progress
// and closes when the turn reaches Finalized or Errored.
func (o *Orchestrator) SendUserMessage(ctx context.Context, conversationID, text string) (<-chan Update, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.inFlight[conversationID] {
		o.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	o.inFlight[conversationID] = true
	o.mu.Unlock()

	conv, err := o.store.AppendMessage(conversationID, store.RoleUser, text)
	if err != nil {
		o.clearFlag(conversationID)
		return nil, err
	}
	if len(conv.Messages) == 1 {
		o.store.SetTitle(conversationID, DeriveTitle(text))
	}

	// The request carries the history up to and including the user
	// message; the empty placeholder appended next never goes on the wire.
	history := make([]gateway.Message, len(conv.Messages))
	for i, m := range conv.Messages {
		history[i] = gateway.Message{Role: string(m.Role), Content: m.Content}
	}
	o.store.AppendMessage(conversationID, store.RoleAssistant, "")

	updates := make(chan Update, 32)
	go o.runTurn(ctx, conversationID, history, updates)
	return updates, nil
}

func (o *Orchestrator) clearFlag(conversationID string) {
	o.mu.Lock()
	delete(o.inFlight, conversationID)
	o.mu.Unlock()
}

// runTurn drives the state machine for one turn.
func (o *Orchestrator) runTurn(ctx context.Context, conversationID string, history []gateway.Message, updates chan<- Update) {
	defer close(updates)
	defer o.clearFlag(conversationID)

	updates <- Update{State: TurnAwaitingFirstByte}

	events, errChan := o.streamer.StreamChat(ctx, history)

	var acc strings.Builder
	state := TurnAwaitingFirstByte

	// An error event is only terminal when nothing follows it before the
	// sentinel; one followed by more content was a mid-stream report.
	var pendingErr string
	haveErr := false

	fail := func(err error) {
		log.Printf("TURN_ERRORED | conversation=%s state=%s error=%v", conversationID, state, err)
		o.store.UpdateLastMessageContent(conversationID, FallbackMessage)
		updates <- Update{State: TurnErrored, Content: FallbackMessage, Err: err}
	}
	finish := func() {
		if haveErr {
			fail(fmt.Errorf("stream ended in error: %s", pendingErr))
			return
		}
		log.Printf("TURN_FINALIZED | conversation=%s chars=%d", conversationID, acc.Len())
		updates <- Update{State: TurnFinalized, Content: acc.String()}
	}

	stall := make(<-chan time.Time)
	var timer *time.Timer
	if o.timeout > 0 {
		timer = time.NewTimer(o.timeout)
		defer timer.Stop()
		stall = timer.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Stream exhausted. A transport error may already be
				// buffered; it takes precedence over a clean finish.
				if errChan != nil {
					select {
					case err, pending := <-errChan:
						if pending {
							fail(err)
							return
						}
					default:
					}
				}
				// A truncated stream keeps whatever was folded.
				finish()
				return
			}
			if timer != nil {
				timer.Stop()
				timer.Reset(o.timeout)
			}

			switch {
			case ev.Done:
				finish()
				return
			case ev.IsError():
				log.Printf("STREAM_EVENT_ERROR | conversation=%s error=%s", conversationID, ev.Error)
				haveErr = true
				pendingErr = ev.Error
			default:
				haveErr = false
				acc.WriteString(ev.Content)
				o.store.UpdateLastMessageContent(conversationID, acc.String())
				state = TurnStreaming
				updates <- Update{State: TurnStreaming, Content: acc.String()}
			}

		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			fail(err)
			return

		case <-stall:
			fail(errStreamStalled)
			return

		case <-ctx.Done():
			fail(ctx.Err())
			return
		}
	}
}
