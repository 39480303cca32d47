package services

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"pagesmith-backend/internal/models"
)

func contentText(c *genai.Content) string {
	var out string
	for _, part := range c.Parts {
		if t, ok := part.(genai.Text); ok {
			out += string(t)
		}
	}
	return out
}

func TestBuildChatHistory_EmptyTurn(t *testing.T) {
	_, _, err := buildChatHistory(nil)
	if !errors.Is(err, ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}

	_, _, err = buildChatHistory([]models.ChatMessage{})
	if !errors.Is(err, ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn for empty slice, got %v", err)
	}
}

func TestBuildChatHistory_SingleMessage(t *testing.T) {
	history, prompt, err := buildChatHistory([]models.ChatMessage{
		{Role: models.RoleUser, Content: "a button"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prompt != "a button" {
		t.Errorf("expected prompt 'a button', got %q", prompt)
	}

	// Single-message turn carries only the preamble pair.
	if len(history) != 2 {
		t.Fatalf("expected 2 preamble entries, got %d", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("expected preamble instruction role 'user', got %q", history[0].Role)
	}
	if history[1].Role != "model" {
		t.Errorf("expected preamble ack role 'model', got %q", history[1].Role)
	}
	if contentText(history[1]) != instructionAck {
		t.Errorf("preamble ack content mismatch: %q", contentText(history[1]))
	}
}

func TestBuildChatHistory_EntryCount(t *testing.T) {
	// n messages must produce n+1 entries: 2 preamble + n-1 history.
	for n := 1; n <= 5; n++ {
		messages := make([]models.ChatMessage, n)
		for i := range messages {
			messages[i] = models.ChatMessage{Role: models.RoleUser, Content: "msg"}
		}
		messages[n-1].Content = "latest"

		history, prompt, err := buildChatHistory(messages)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if len(history) != n+1 {
			t.Errorf("n=%d: expected %d entries, got %d", n, n+1, len(history))
		}
		if prompt != "latest" {
			t.Errorf("n=%d: expected prompt 'latest', got %q", n, prompt)
		}
	}
}

func TestBuildChatHistory_LastMessageExcluded(t *testing.T) {
	history, prompt, err := buildChatHistory([]models.ChatMessage{
		{Role: models.RoleUser, Content: "first ask"},
		{Role: models.RoleAssistant, Content: "first reply"},
		{Role: models.RoleUser, Content: "make it blue"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prompt != "make it blue" {
		t.Errorf("expected prompt 'make it blue', got %q", prompt)
	}

	for _, entry := range history {
		if contentText(entry) == "make it blue" {
			t.Error("prompt message must not appear in the history sequence")
		}
	}

	if got := contentText(history[2]); got != "first ask" {
		t.Errorf("expected first real history entry 'first ask', got %q", got)
	}
	if got := contentText(history[3]); got != "first reply" {
		t.Errorf("expected second real history entry 'first reply', got %q", got)
	}
}

func TestProviderRole_Mapping(t *testing.T) {
	tests := []struct {
		role     string
		expected string
	}{
		{"user", "user"},
		{"assistant", "model"},
		{"model", "model"},
		{"system", "model"},
		{"anything-else", "model"},
		{"", "model"},
	}

	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			if got := providerRole(tc.role); got != tc.expected {
				t.Errorf("providerRole(%q) = %q, expected %q", tc.role, got, tc.expected)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("hello "), genai.Text("world")}}},
		},
	}

	if got := extractText(resp); got != "hello world" {
		t.Errorf("expected 'hello world', got %q", got)
	}

	empty := &genai.GenerateContentResponse{}
	if got := extractText(empty); got != "" {
		t.Errorf("expected empty string for empty response, got %q", got)
	}
}
