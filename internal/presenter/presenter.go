// Package presenter projects a conversation into transcript lines.
package presenter

import "voicebot/internal/domain"

const (
	userPrefix      = "You: "
	assistantPrefix = "AI: "
)

// Resetter is the part of a conversation store the reset trigger needs.
type Resetter interface {
	Reset() int
	Snapshot() []domain.Turn
}

// Render formats turns in order. System turns are skipped; they only exist
// while a prompt is being built.
func Render(turns []domain.Turn) []string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser:
			lines = append(lines, userPrefix+t.Content)
		case domain.RoleAssistant:
			lines = append(lines, assistantPrefix+t.Content)
		}
	}
	return lines
}

// Reset clears the store and returns the fresh render.
func Reset(r Resetter) []string {
	r.Reset()
	return Render(r.Snapshot())
}
