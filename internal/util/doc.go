// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for devchat: crash-safe file
// writes for the conversation snapshot and rune/width-aware string
// truncation used by title derivation and the TUI layout.
package util
