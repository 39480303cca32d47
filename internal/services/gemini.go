package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"pagesmith-backend/internal/models"
)

// FragmentStream is a lazy, finite, non-restartable sequence of generated
// text fragments. Next returns io.EOF when the provider signals completion;
// fragments already returned stand regardless of later errors. Callers must
// Close the stream when done with it, even after Next returned io.EOF or an
// error; Close is idempotent.
type FragmentStream interface {
	Next() (string, error)
	Close()
}

// ProviderUnavailableError means the generation session failed before any
// fragment was produced.
type ProviderUnavailableError struct{ Err error }

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("generation provider unavailable: %v", e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// ProviderStreamError means the fragment stream terminated abnormally after
// at least one fragment was delivered.
type ProviderStreamError struct{ Err error }

func (e *ProviderStreamError) Error() string {
	return fmt.Sprintf("generation stream failed: %v", e.Err)
}

func (e *ProviderStreamError) Unwrap() error { return e.Err }

type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// StreamChat opens a stateful chat session seeded with the adapted history
// and returns the fragment stream for the newest user prompt. The session is
// per-call; the stream cannot be replayed. Cancelling ctx tears the provider
// call down.
func (s *GeminiService) StreamChat(ctx context.Context, messages []models.ChatMessage) (FragmentStream, error) {
	history, prompt, err := buildChatHistory(messages)
	if err != nil {
		return nil, err
	}

	if err := s.acquireRate(ctx); err != nil {
		return nil, &ProviderUnavailableError{Err: err}
	}

	session := s.model.StartChat()
	session.History = history

	iter := session.SendMessageStream(ctx, genai.Text(prompt))

	return &geminiStream{iter: iter, release: s.releaseRate}, nil
}

type geminiStream struct {
	iter        *genai.GenerateContentResponseIterator
	release     func()
	releaseOnce sync.Once
	yielded     bool
	finished    bool
}

func (g *geminiStream) Next() (string, error) {
	if g.finished {
		return "", io.EOF
	}

	for {
		resp, err := g.iter.Next()
		if err == iterator.Done {
			g.finish()
			return "", io.EOF
		}
		if err != nil {
			g.finish()
			// Failure before the first fragment means the session never
			// really started; after that it is a mid-stream death.
			if !g.yielded {
				return "", &ProviderUnavailableError{Err: err}
			}
			return "", &ProviderStreamError{Err: err}
		}

		text := extractText(resp)
		if text == "" {
			continue
		}

		g.yielded = true
		return text, nil
	}
}

// Close returns the rate slot. The relay defers it so an aborted response
// (client gone mid-stream) cannot strand a slot that Next would otherwise
// have released on completion.
func (g *geminiStream) Close() {
	g.finish()
}

func (g *geminiStream) finish() {
	g.finished = true
	g.releaseOnce.Do(g.release)
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
