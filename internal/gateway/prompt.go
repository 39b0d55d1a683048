// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"log"
	"os"
	"strings"
	"sync"
)

// fallbackSystemPrompt keeps the assistant usable when the prompt file is
// missing or unreadable.
const fallbackSystemPrompt = "You are a friendly and knowledgeable software-development " +
	"assistant. Answer development questions accurately and concisely, and say so " +
	"when you do not know."

var (
	promptOnce   sync.Once
	promptCached string
)

// SystemPrompt returns the process-wide system instruction. The file is
// read exactly once; editing it requires a restart. Failure to read falls
// back to the built-in prompt instead of refusing to serve.
func SystemPrompt(path string) string {
	promptOnce.Do(func() {
		promptCached = loadSystemPrompt(path)
	})
	return promptCached
}

func loadSystemPrompt(path string) string {
	if path == "" {
		return fallbackSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("SYSTEM_PROMPT_FALLBACK | path=%s error=%v", path, err)
		return fallbackSystemPrompt
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallbackSystemPrompt
	}
	return text
}
