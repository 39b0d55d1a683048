// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"devchat/internal/util"
)

// titleMaxRunes is the longest a derived conversation title may be before
// truncation. Counted in runes so multibyte text is not cut mid-character.
const titleMaxRunes = 30

// DeriveTitle derives a conversation title from its first user message:
// the message verbatim when short enough, otherwise a truncated prefix
// with an ellipsis marker.
func DeriveTitle(firstMessage string) string {
	return util.TruncateRunes(firstMessage, titleMaxRunes)
}
