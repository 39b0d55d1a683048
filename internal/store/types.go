// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the conversation state machine: every conversation,
// every message, the active-conversation pointer, and the snapshot
// persistence boundary. All mutations go through the Store; callers only
// ever see value copies, so a renderer iterating a returned Conversation
// can never observe a half-applied update.
package store

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AllowedReactions is the fixed set of reactions a message may carry.
var AllowedReactions = []string{"❤️", "👍", "✅", "😊"}

// Message is a single entry in a conversation transcript. Content is
// mutable only while the message is the streaming target; Reaction may be
// toggled at any time. Everything else is immutable after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Reaction  string    `json:"reaction,omitempty"`
}

// Conversation is an append-only message log with derived metadata.
// Messages are never reordered and never individually deleted; the only
// in-place mutation is the last message's content during an active stream.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State is the full persisted snapshot.
type State struct {
	Conversations []Conversation `json:"conversations"`
	ActiveID      string         `json:"currentConversationId,omitempty"`
}

// LastMessage returns the final message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// clone returns a deep copy so callers can hold the result across later
// store mutations.
func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// reactionAllowed reports whether r is in the fixed reaction set.
func reactionAllowed(r string) bool {
	for _, allowed := range AllowedReactions {
		if r == allowed {
			return true
		}
	}
	return false
}
