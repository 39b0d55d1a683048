// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"devchat/internal/store"
	"devchat/internal/ui/styles"
	"devchat/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	conv, err := m.store.Get(m.store.ActiveID())
	if err != nil {
		return styles.ErrorText.Render(err.Error())
	}

	header := styles.Header.Render(conv.Title)
	if m.streaming {
		header += " " + styles.Streaming.Render("● streaming")
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		styles.InputFrame.Render(m.textarea.View()),
		m.statusLine(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
}

func (m Model) statusLine() string {
	if m.status != "" {
		return styles.StatusBar.Render(styles.ErrorText.Render(m.status))
	}
	return styles.StatusBar.Render(
		"enter send · ctrl+n new · ctrl+x delete · ctrl+p/o switch · alt+1-4 react · esc quit")
}

// renderSidebar draws the conversation list, newest last, active marked.
func (m Model) renderSidebar() string {
	var b strings.Builder
	activeID := m.store.ActiveID()

	for _, c := range m.store.Conversations() {
		// Titles are verbatim first messages and may contain newlines.
		title := util.TruncateWidth(util.FirstLine(c.Title), sidebarWidth-4)
		if c.ID == activeID {
			b.WriteString(styles.SidebarActive.Render("▸ " + title))
		} else {
			b.WriteString(styles.SidebarItem.Render("  " + title))
		}
		b.WriteString("\n")
	}

	return styles.Sidebar.
		Width(sidebarWidth).
		Height(m.height - 1).
		Render(b.String())
}

// renderConversation renders the transcript for the viewport. Assistant
// messages go through the markdown renderer; user messages stay plain.
func (m Model) renderConversation(conv store.Conversation) string {
	var b strings.Builder

	for _, msg := range conv.Messages {
		ts := styles.Timestamp.Render(msg.Timestamp.Format("15:04"))

		switch msg.Role {
		case store.RoleUser:
			b.WriteString(styles.UserLabel.Render("You") + " " + ts + "\n")
			b.WriteString(styles.UserMessage.Render(msg.Content) + "\n")
		case store.RoleAssistant:
			b.WriteString(styles.AssistantLabel.Render("Assistant") + " " + ts + "\n")
			b.WriteString(m.renderMarkdown(msg.Content))
		}

		if msg.Reaction != "" {
			b.WriteString(styles.Reaction.Render(msg.Reaction) + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderMarkdown(content string) string {
	if content == "" {
		return styles.Streaming.Render("  ...") + "\n"
	}
	if m.renderer == nil {
		return content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}
