// Package channel implements the per-external-channel poller described in
// spec §4.9: conversation-to-session resolution, typing indicators, rate-
// limited streaming edits, and length-limited chunked delivery. Concrete
// transports (telegram, slack) live in their own subpackages and share the
// Handler in this package so ordering stays sequential per channel instance.
//
// Grounded on internal/channels/chunk/chunk.go of the teacher repo.
package channel

import (
	"strings"
	"unicode"
)

// DefaultChunkLimit is used for channels with no configured length limit.
const DefaultChunkLimit = 4000

// ChannelLimits holds the known per-platform message length ceilings.
var ChannelLimits = map[string]int{
	"telegram": 4096,
	"slack":    40000,
}

// LimitFor returns the message size ceiling for a channel type.
func LimitFor(channelType string) int {
	if limit, ok := ChannelLimits[strings.ToLower(channelType)]; ok {
		return limit
	}
	return DefaultChunkLimit
}

// Chunk splits text into pieces no longer than limit, preferring to break
// on a newline, then whitespace, then hard-breaking at limit (spec §4.9
// step 5: "if the final text exceeds channel length limits ... send as
// chunks").
func Chunk(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > limit {
		window := remaining[:limit]
		lastNewline, lastWhitespace := -1, -1
		for i := 0; i < len(window); i++ {
			switch {
			case window[i] == '\n':
				lastNewline = i
			case unicode.IsSpace(rune(window[i])):
				lastWhitespace = i
			}
		}

		breakIdx := limit
		switch {
		case lastNewline > 0:
			breakIdx = lastNewline
		case lastWhitespace > 0:
			breakIdx = lastWhitespace
		}

		chunk := strings.TrimRight(remaining[:breakIdx], " \t")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[breakIdx:], " \t\n")
	}

	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
