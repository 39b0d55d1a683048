// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatui provides the terminal chat interface. It is a pure
// consumer of the conversation engine: it renders read-only conversation
// views and invokes the engine's operations, nothing more.
package chatui

import (
	"context"
	"fmt"
	"log"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"devchat/internal/chat"
	"devchat/internal/store"
)

// sidebarWidth is the fixed conversation list width.
const sidebarWidth = 24

// =============================================================================
// MESSAGES
// =============================================================================

// turnUpdateMsg carries one orchestrator progress update into the Bubble
// Tea loop, along with the channel to keep reading from.
type turnUpdateMsg struct {
	update chat.Update
	ch     <-chan chat.Update
}

// turnFinishedMsg signals that the update channel closed.
type turnFinishedMsg struct{}

// waitForUpdate reads the next orchestrator update as a command.
func waitForUpdate(ch <-chan chat.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return turnFinishedMsg{}
		}
		return turnUpdateMsg{update: u, ch: ch}
	}
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	store *store.Store
	orch  *chat.Orchestrator

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	streaming bool
	status    string
}

// New creates the chat screen over the given store and orchestrator.
func New(st *store.Store, orch *chat.Orchestrator) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a development question..."
	ta.Prompt = "> "
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.Focus()

	return Model{
		store:    st,
		orch:     orch,
		textarea: ta,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case turnUpdateMsg:
		return m.handleTurnUpdate(msg)

	case turnFinishedMsg:
		m.streaming = false
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	mainWidth := m.width - sidebarWidth
	viewportHeight := m.height - m.textarea.Height() - 5
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(mainWidth, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = viewportHeight
	}
	m.textarea.SetWidth(mainWidth - 4)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(mainWidth-4),
	)
	if err != nil {
		log.Printf("GLAMOUR_INIT_FAILED | error=%v", err)
	} else {
		m.renderer = renderer
	}

	m.refreshViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		return m.sendMessage()

	case "ctrl+n":
		if !m.streaming {
			m.store.CreateConversation("")
			m.status = "new conversation"
			m.refreshViewport()
		}
		return m, nil

	case "ctrl+x":
		if !m.streaming {
			m.store.DeleteConversation(m.store.ActiveID())
			m.status = "conversation deleted"
			m.refreshViewport()
		}
		return m, nil

	case "ctrl+p":
		m.selectAdjacent(-1)
		return m, nil

	case "ctrl+o":
		m.selectAdjacent(1)
		return m, nil

	case "alt+1", "alt+2", "alt+3", "alt+4":
		m.toggleReaction(int(msg.String()[4] - '1'))
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// sendMessage starts a turn for the active conversation. Sends are
// disabled while a stream is in flight; this is the cooperative lock the
// orchestrator expects from its caller.
func (m Model) sendMessage() (tea.Model, tea.Cmd) {
	if m.streaming {
		m.status = "still responding..."
		return m, nil
	}

	text := m.textarea.Value()
	updates, err := m.orch.SendUserMessage(context.Background(), m.store.ActiveID(), text)
	if err != nil {
		if err != chat.ErrEmptyMessage {
			m.status = err.Error()
		}
		return m, nil
	}

	m.textarea.Reset()
	m.streaming = true
	m.status = ""
	m.refreshViewport()
	return m, waitForUpdate(updates)
}

func (m Model) handleTurnUpdate(msg turnUpdateMsg) (tea.Model, tea.Cmd) {
	switch msg.update.State {
	case chat.TurnErrored:
		m.status = "response failed"
	case chat.TurnFinalized:
		m.status = ""
	}
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, waitForUpdate(msg.ch)
}

// selectAdjacent moves the active conversation by offset within the list.
func (m *Model) selectAdjacent(offset int) {
	conversations := m.store.Conversations()
	activeID := m.store.ActiveID()
	for i, c := range conversations {
		if c.ID == activeID {
			next := i + offset
			if next >= 0 && next < len(conversations) {
				m.store.SelectConversation(conversations[next].ID)
				m.refreshViewport()
			}
			return
		}
	}
}

// toggleReaction applies the nth allowed reaction to the most recent
// assistant message of the active conversation.
func (m *Model) toggleReaction(n int) {
	if n < 0 || n >= len(store.AllowedReactions) {
		return
	}
	conv, err := m.store.Get(m.store.ActiveID())
	if err != nil {
		return
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == store.RoleAssistant {
			m.store.SetReaction(conv.ID, conv.Messages[i].ID, store.AllowedReactions[n])
			m.refreshViewport()
			return
		}
	}
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	conv, err := m.store.Get(m.store.ActiveID())
	if err != nil {
		m.viewport.SetContent(fmt.Sprintf("failed to load conversation: %v", err))
		return
	}
	m.viewport.SetContent(m.renderConversation(conv))
}
