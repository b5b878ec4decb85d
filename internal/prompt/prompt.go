// Package prompt holds the assistant persona sent ahead of every conversation.
//
// The text is compiled into the binary so the service never reads it from disk
// at runtime.
package prompt

import (
	_ "embed"
	"strings"

	"github.com/ent0n29/summitchat/internal/completion"
)

//go:embed system_prompt.md
var systemPrompt string

var system = strings.TrimSpace(systemPrompt)

// System returns the fixed system instruction.
func System() string { return system }

// Assemble prepends the system instruction to the caller's history.
func Assemble(history []completion.Message) []completion.Message {
	out := make([]completion.Message, 0, len(history)+1)
	out = append(out, completion.Message{Role: completion.RoleSystem, Content: system})
	return append(out, history...)
}
