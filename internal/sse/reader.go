// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"io"
)

// readChunkSize is the per-read buffer for the response body. Small enough
// to surface deltas promptly, large enough to not thrash on long frames.
const readChunkSize = 4096

// Reader pulls decoded events off an incrementally-readable byte stream,
// typically an HTTP response body. The sequence is finite and
// non-restartable: it ends when the terminal sentinel is decoded or the
// underlying stream does.
type Reader struct {
	r       io.Reader
	dec     Decoder
	pending []Event
	chunk   []byte
}

// NewReader wraps r for event iteration.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next decoded event. It returns io.EOF once the stream
// is exhausted, including after a Done event has been delivered. Transport
// errors from the underlying reader pass through unchanged.
func (r *Reader) Next() (Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.dec.Done() {
			return Event{}, io.EOF
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.pending = r.dec.Feed(r.chunk[:n])
		}
		if err != nil {
			if len(r.pending) > 0 {
				continue
			}
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
	}
}
