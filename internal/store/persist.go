// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"log"
	"os"

	"devchat/internal/util"
)

// loadState reads the snapshot at path. Any failure - missing file,
// unreadable file, unparseable JSON - degrades to the empty state; history
// loss on a corrupt snapshot beats refusing to start.
func loadState(path string) State {
	if path == "" {
		return State{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("SNAPSHOT_LOAD_FAILED | path=%s error=%v", path, err)
		}
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("SNAPSHOT_CORRUPT | path=%s error=%v", path, err)
		return State{}
	}

	// A snapshot edited by hand could point at a deleted conversation;
	// repair rather than carry a dangling active pointer.
	if state.ActiveID != "" {
		found := false
		for i := range state.Conversations {
			if state.Conversations[i].ID == state.ActiveID {
				found = true
				break
			}
		}
		if !found {
			state.ActiveID = ""
			if len(state.Conversations) > 0 {
				state.ActiveID = state.Conversations[0].ID
			}
		}
	}
	return state
}

// persistLocked rewrites the snapshot after a mutation. Caller holds mu.
// Persistence failures are logged, not returned: the in-memory state is
// already consistent and a full snapshot rewrite follows the next mutation.
func (s *Store) persistLocked() {
	if err := s.saveLocked(); err != nil {
		log.Printf("SNAPSHOT_SAVE_FAILED | path=%s error=%v", s.path, err)
	}
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0644)
}
