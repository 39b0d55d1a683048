// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse implements the wire framing between the chat server and the
// client engine: server-sent events where each record is one line
// "data: <JSON>" terminated by a blank line, and the stream always ends
// with the literal sentinel "data: [DONE]".
//
// Payload shapes on the wire:
//
//	{"content": "<delta text>"}  incremental model output
//	{"error": "<message>"}       in-band failure report
//	[DONE]                       terminal sentinel, never JSON
package sse

// doneSentinel is the terminal record's payload. It is matched byte for
// byte before any JSON decoding is attempted.
const doneSentinel = "[DONE]"

// Event is one decoded record. Exactly one of the three shapes applies:
// Done, or Error != "", or a content delta (possibly empty).
type Event struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"-"`
}

// IsError reports whether the event carries an in-band error.
func (e Event) IsError() bool {
	return e.Error != ""
}
