// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devchat/internal/chat"
	"devchat/internal/store"
)

func newTestModel(t *testing.T) (Model, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "conversations.json"))
	require.NoError(t, err)
	m := New(st, chat.NewOrchestrator(st, nil))
	return m, st
}

func TestSelectAdjacent(t *testing.T) {
	m, st := newTestModel(t)
	first := st.ActiveID()
	second := st.CreateConversation("second").ID
	require.Equal(t, second, st.ActiveID())

	m.selectAdjacent(-1)
	assert.Equal(t, first, st.ActiveID())

	// Already at the top; stays put.
	m.selectAdjacent(-1)
	assert.Equal(t, first, st.ActiveID())

	m.selectAdjacent(1)
	assert.Equal(t, second, st.ActiveID())
}

func TestToggleReaction_TargetsLastAssistantMessage(t *testing.T) {
	m, st := newTestModel(t)
	convID := st.ActiveID()
	st.AppendMessage(convID, store.RoleUser, "q1")
	st.AppendMessage(convID, store.RoleAssistant, "a1")
	st.AppendMessage(convID, store.RoleUser, "q2")
	st.AppendMessage(convID, store.RoleAssistant, "a2")

	m.toggleReaction(0)

	conv, _ := st.Get(convID)
	assert.Empty(t, conv.Messages[1].Reaction)
	assert.Equal(t, store.AllowedReactions[0], conv.Messages[3].Reaction)

	// Same reaction again clears it.
	m.toggleReaction(0)
	conv, _ = st.Get(convID)
	assert.Empty(t, conv.Messages[3].Reaction)
}

func TestRenderConversation_ShowsRolesAndReactions(t *testing.T) {
	m, st := newTestModel(t)
	convID := st.ActiveID()
	st.AppendMessage(convID, store.RoleUser, "how do I test in Go?")
	conv, _ := st.AppendMessage(convID, store.RoleAssistant, "use the testing package")
	st.SetReaction(convID, conv.Messages[1].ID, "👍")

	conv, _ = st.Get(convID)
	out := m.renderConversation(conv)

	assert.Contains(t, out, "You")
	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "how do I test in Go?")
	assert.Contains(t, out, "use the testing package")
	assert.Contains(t, out, "👍")
}

func TestUpdate_QuitKeys(t *testing.T) {
	m, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestUpdate_NewConversation(t *testing.T) {
	m, st := newTestModel(t)
	before := len(st.Conversations())

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.Len(t, st.Conversations(), before+1)
}
