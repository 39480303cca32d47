package services

import (
	"errors"

	"github.com/google/generative-ai-go/genai"

	"pagesmith-backend/internal/models"
)

// Gemini chat history admits exactly two roles.
const (
	providerRoleUser  = "user"
	providerRoleModel = "model"
)

// ErrEmptyTurn is returned when a conversation turn carries no messages, so
// there is no prompt to send.
var ErrEmptyTurn = errors.New("conversation turn has no messages")

// providerRole maps an application message role onto the provider vocabulary.
// The mapping is total: "user" stays "user", everything else (assistant,
// model, system) is carried as model-side context. Behavioral instructions
// travel in the preamble pair, so system messages get no separate channel.
func providerRole(role string) string {
	switch role {
	case models.RoleUser:
		return providerRoleUser
	case models.RoleAssistant, models.RoleSystem:
		return providerRoleModel
	default:
		// Unknown roles are still model-side context.
		return providerRoleModel
	}
}

// buildChatHistory converts a conversation turn into the provider shape: the
// fixed instruction/acknowledgment preamble, then one entry per message
// except the last, whose content is returned separately as the prompt.
func buildChatHistory(messages []models.ChatMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", ErrEmptyTurn
	}

	history := make([]*genai.Content, 0, len(messages)+1)

	// Preamble pair, always first.
	history = append(history,
		&genai.Content{
			Role:  providerRoleUser,
			Parts: []genai.Part{genai.Text("I need you to follow these instructions: " + systemInstruction)},
		},
		&genai.Content{
			Role:  providerRoleModel,
			Parts: []genai.Part{genai.Text(instructionAck)},
		},
	)

	for _, msg := range messages[:len(messages)-1] {
		history = append(history, &genai.Content{
			Role:  providerRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	prompt := messages[len(messages)-1].Content
	return history, prompt, nil
}
