// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// =============================================================================
// STREAM FRAMER (server side)
// =============================================================================

// Writer frames events onto an HTTP response and flushes after every
// record so the client sees each delta as soon as it exists. A Writer is
// request-scoped; it is not safe for concurrent use.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming and returns the framer. It
// fails if the underlying ResponseWriter cannot flush, which must be
// detected before the 200 status is committed.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteContent frames one text delta.
func (w *Writer) WriteContent(delta string) error {
	return w.writeJSON(Event{Content: delta})
}

// WriteError frames one in-band error record. The stream is still expected
// to terminate with WriteDone afterwards.
func (w *Writer) WriteError(msg string) error {
	return w.writeJSON(Event{Error: msg})
}

// WriteDone frames the terminal sentinel. It must be the last record on
// every stream, error or not, so the consumer always observes a
// deterministic end.
func (w *Writer) WriteDone() error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *Writer) writeJSON(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
