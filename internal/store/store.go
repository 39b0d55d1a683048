// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when an operation references a
// conversation ID that is not in the store.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a store-level error.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// Store owns all conversation state. Every public operation is atomic with
// respect to the in-memory state and rewrites the snapshot file before
// returning, so the persisted state never lags by more than one crash.
type Store struct {
	mu    sync.Mutex
	state State
	path  string // empty disables persistence (tests, ephemeral sessions)
}

// Open loads the snapshot at path and returns a ready store. A missing or
// corrupt snapshot yields an empty state rather than an error. An empty
// store bootstraps exactly one fresh conversation and makes it active.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		state: loadState(path),
	}

	if len(s.state.Conversations) == 0 {
		conv := newConversation("")
		s.state.Conversations = []Conversation{conv}
		s.state.ActiveID = conv.ID
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to persist initial state: %w", err)
		}
	}
	return s, nil
}

// newConversation builds an empty conversation with a placeholder title.
func newConversation(titleOverride string) Conversation {
	now := time.Now()
	title := titleOverride
	if title == "" {
		title = "New chat " + now.Format("2006-01-02")
	}
	return Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Conversations returns a copy of every conversation in insertion order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.state.Conversations))
	for i, c := range s.state.Conversations {
		out[i] = c.clone()
	}
	return out
}

// ActiveID returns the id of the active conversation, or "" when the store
// is empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveID
}

// Get returns a copy of one conversation.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Conversation{}, ErrConversationNotFound
	}
	return s.state.Conversations[idx].clone(), nil
}

// indexOf returns the slice index for id, or -1. Caller must hold mu.
func (s *Store) indexOf(id string) int {
	for i := range s.state.Conversations {
		if s.state.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// MUTATING OPERATIONS
// =============================================================================

// CreateConversation inserts a new empty conversation and makes it active.
// An empty titleOverride yields the dated placeholder title.
func (s *Store) CreateConversation(titleOverride string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := newConversation(titleOverride)
	s.state.Conversations = append(s.state.Conversations, conv)
	s.state.ActiveID = conv.ID
	s.persistLocked()
	return conv.clone()
}

// AppendMessage appends a message to the conversation and bumps UpdatedAt.
// Returns ErrConversationNotFound for an unknown id. The store never infers
// titles from content; the orchestrator owns title derivation.
func (s *Store) AppendMessage(conversationID string, role Role, content string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(conversationID)
	if idx < 0 {
		return Conversation{}, ErrConversationNotFound
	}

	now := time.Now()
	conv := &s.state.Conversations[idx]
	conv.Messages = append(conv.Messages, Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	conv.UpdatedAt = now
	s.persistLocked()
	return conv.clone(), nil
}

// UpdateLastMessageContent replaces the content of the final message. This
// sits on the hot streaming path: it never fails. An unknown conversation
// or an empty message log returns the state unchanged.
func (s *Store) UpdateLastMessageContent(conversationID, content string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(conversationID)
	if idx < 0 {
		return Conversation{}
	}

	conv := &s.state.Conversations[idx]
	if len(conv.Messages) == 0 {
		return conv.clone()
	}

	conv.Messages[len(conv.Messages)-1].Content = content
	conv.UpdatedAt = time.Now()
	s.persistLocked()
	return conv.clone()
}

// SetTitle replaces a conversation's title.
func (s *Store) SetTitle(conversationID, title string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(conversationID)
	if idx < 0 {
		return Conversation{}, ErrConversationNotFound
	}

	conv := &s.state.Conversations[idx]
	conv.Title = title
	conv.UpdatedAt = time.Now()
	s.persistLocked()
	return conv.clone(), nil
}

// SetReaction toggles a reaction on a message. Setting the reaction the
// message already carries clears it; setting a different one replaces it;
// an empty reaction clears unconditionally. Unknown conversation or
// message ids and reactions outside the allowed set are no-ops.
func (s *Store) SetReaction(conversationID, messageID, reaction string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(conversationID)
	if idx < 0 {
		return Conversation{}
	}
	conv := &s.state.Conversations[idx]

	if reaction != "" && !reactionAllowed(reaction) {
		return conv.clone()
	}

	for i := range conv.Messages {
		if conv.Messages[i].ID != messageID {
			continue
		}
		if reaction != "" && conv.Messages[i].Reaction == reaction {
			conv.Messages[i].Reaction = ""
		} else {
			conv.Messages[i].Reaction = reaction
		}
		conv.UpdatedAt = time.Now()
		s.persistLocked()
		break
	}
	return conv.clone()
}

// SelectConversation moves the active pointer. Unknown ids are ignored so
// a stale UI selection can never break the invariant that the pointer
// always references an existing conversation.
func (s *Store) SelectConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return
	}
	s.state.ActiveID = id
	s.persistLocked()
}

// DeleteConversation removes a conversation. Deleting the active one
// promotes the first remaining conversation; deleting the last one
// bootstraps a fresh empty conversation so the store is never left empty.
func (s *Store) DeleteConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return
	}

	s.state.Conversations = append(s.state.Conversations[:idx], s.state.Conversations[idx+1:]...)

	if s.state.ActiveID == id {
		if len(s.state.Conversations) > 0 {
			s.state.ActiveID = s.state.Conversations[0].ID
		} else {
			conv := newConversation("")
			s.state.Conversations = []Conversation{conv}
			s.state.ActiveID = conv.ID
		}
	}
	s.persistLocked()
}
