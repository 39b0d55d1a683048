// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"encoding/json"
)

// =============================================================================
// STREAM CONSUMER (client side)
// =============================================================================

// Decoder turns arbitrarily-chunked bytes back into the framed event
// sequence. Network reads split records wherever they like, so the decoder
// only ever decodes complete lines and keeps the trailing partial line
// buffered for the next Feed. Record order is preserved exactly.
//
// A malformed record degrades to "skip this record": one corrupt frame
// must never cost the frames after it, and decode failures never surface
// to the caller.
type Decoder struct {
	buf  []byte
	done bool
}

// dataPrefix marks a record-bearing line. Other SSE field lines (id:,
// event:, retry:, comments) are ignored.
var dataPrefix = []byte("data: ")

// Feed appends p to the internal buffer and returns every complete event
// now decodable, in wire order. After the terminal sentinel has been
// observed all further input is discarded.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		ev, ok := decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Done {
			d.done = true
			d.buf = nil
			break
		}
	}
	return events
}

// Done reports whether the terminal sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// decodeLine decodes one complete line into an event. Blank separator
// lines, non-data fields, and malformed JSON all report ok=false.
func decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := line[len(dataPrefix):]

	if bytes.Equal(payload, []byte(doneSentinel)) {
		return Event{Done: true}, true
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Corrupt frame: drop it, keep the stream alive.
		return Event{}, false
	}
	if ev.Content == "" && ev.Error == "" {
		// A record carrying neither field has nothing to fold.
		return Event{}, false
	}
	return ev, true
}
