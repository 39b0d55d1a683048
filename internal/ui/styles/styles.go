// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the devchat TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLORS
// =============================================================================

// Purple - primary accent, assistant messages, selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - user highlights, info
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - success states, reactions
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - streaming indicator
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Overlay - borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// TextPrimary - main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextMuted - hints, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// STYLES
// =============================================================================

var (
	// Header is the conversation title bar.
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		Padding(0, 1)

	// UserLabel prefixes user messages.
	UserLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan)

	// AssistantLabel prefixes assistant messages.
	AssistantLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(Purple)

	// UserMessage styles the user's message text.
	UserMessage = lipgloss.NewStyle().
			Foreground(TextPrimary).
			PaddingLeft(2)

	// Reaction styles the reaction marker under a message.
	Reaction = lipgloss.NewStyle().
			Foreground(Emerald).
			PaddingLeft(2)

	// Timestamp styles per-message timestamps.
	Timestamp = lipgloss.NewStyle().
			Foreground(TextMuted)

	// ErrorText styles error lines in the status bar.
	ErrorText = lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true)

	// Streaming styles the in-flight indicator.
	Streaming = lipgloss.NewStyle().
			Foreground(Amber)

	// StatusBar is the bottom key hint line.
	StatusBar = lipgloss.NewStyle().
			Foreground(TextMuted).
			Padding(0, 1)

	// Sidebar frames the conversation list.
	Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	// SidebarItem is one conversation entry.
	SidebarItem = lipgloss.NewStyle().
			Foreground(TextPrimary).
			PaddingLeft(1)

	// SidebarActive marks the active conversation.
	SidebarActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan).
			PaddingLeft(1)

	// InputFrame wraps the textarea.
	InputFrame = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Overlay).
			Padding(0, 1)
)
