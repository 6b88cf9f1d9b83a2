package usecase

import "voicebot/internal/domain"

// Persona is the fixed system instruction sent ahead of every history. It is
// never stored in a conversation.
const Persona = "You are Mahesh Kumar Jangid, a Generative AI Engineer candidate.\n" +
	"Answer in first person.\n" +
	"Be confident, concise, and professional."

// buildPromptMessages returns [persona] followed by the whole history. There
// is no windowing; every prior turn is resent.
func buildPromptMessages(persona string, history []domain.Turn) []domain.Turn {
	messages := make([]domain.Turn, 0, len(history)+1)
	messages = append(messages, domain.SystemTurn(persona))
	for _, t := range history {
		if t.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, t)
	}
	return messages
}
