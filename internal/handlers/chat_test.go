package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"pagesmith-backend/internal/middleware"
	"pagesmith-backend/internal/models"
	"pagesmith-backend/internal/services"
	"pagesmith-backend/internal/stream"
)

type fakeStream struct {
	fragments  []string
	err        error
	pos        int
	closeCalls int
}

func (f *fakeStream) Next() (string, error) {
	if f.pos < len(f.fragments) {
		text := f.fragments[f.pos]
		f.pos++
		return text, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() {
	f.closeCalls++
}

type fakeStreamer struct {
	stream services.FragmentStream
	err    error
	calls  int
	got    []models.ChatMessage
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []models.ChatMessage) (services.FragmentStream, error) {
	f.calls++
	f.got = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeStore struct {
	createCalls int
	createErr   error
	gotMessages []models.ChatMessage
}

func (f *fakeStore) Create(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) (uuid.UUID, error) {
	f.createCalls++
	f.gotMessages = messages
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	return uuid.New(), nil
}

func (f *fakeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return nil, errors.New("not implemented")
}

func streamRequest(t *testing.T, messages []models.ChatMessage) *http.Request {
	t.Helper()
	body, err := json.Marshal(models.ChatRequest{Messages: messages})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New())
	return req.WithContext(ctx)
}

func TestStream_RelaysFragmentsAsNDJSON(t *testing.T) {
	fs := &fakeStream{
		fragments: []string{"```html\n<di", "v>Hi</div>\n```"},
	}
	streamer := &fakeStreamer{stream: fs}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()
	h.Stream(rr, streamRequest(t, []models.ChatMessage{{Role: "user", Content: "a button"}}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	lines := strings.Split(strings.TrimRight(rr.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON records, got %d: %q", len(lines), rr.Body.String())
	}

	var first models.StreamRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first record is not valid JSON: %v", err)
	}
	if first.Text != "```html\n<di" {
		t.Errorf("first fragment = %q", first.Text)
	}

	// The consumer sees the artifact only after the closing fence.
	state, err := stream.Consume(strings.NewReader(rr.Body.String()), nil)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if !state.HasArtifact || state.Artifact != "<div>Hi</div>" {
		t.Errorf("artifact = %q (found=%v)", state.Artifact, state.HasArtifact)
	}

	if store.createCalls != 1 {
		t.Errorf("expected 1 persistence call, got %d", store.createCalls)
	}
	if streamer.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", streamer.calls)
	}
	if fs.closeCalls == 0 {
		t.Error("stream must be closed after a completed relay")
	}
}

func TestStream_EmptyTurnRejectedBeforeAnyCall(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{}}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()
	h.Stream(rr, streamRequest(t, []models.ChatMessage{}))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if store.createCalls != 0 {
		t.Errorf("persistence must not be touched, got %d calls", store.createCalls)
	}
	if streamer.calls != 0 {
		t.Errorf("provider must not be called, got %d calls", streamer.calls)
	}
}

func TestStream_ProviderUnavailableReturns500(t *testing.T) {
	streamer := &fakeStreamer{err: &services.ProviderUnavailableError{Err: errors.New("connection refused")}}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()
	h.Stream(rr, streamRequest(t, []models.ChatMessage{{Role: "user", Content: "a button"}}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not valid JSON: %v", err)
	}
	if resp.Message != "An error occurred during chat" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestStream_FailureBeforeFirstFragmentReturns500(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{
		err: &services.ProviderUnavailableError{Err: errors.New("session rejected")},
	}}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()
	h.Stream(rr, streamRequest(t, []models.ChatMessage{{Role: "user", Content: "a button"}}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestStream_MidStreamErrorAbortsConnection(t *testing.T) {
	fs := &fakeStream{
		fragments: []string{"```html\n<p>par"},
		err:       &services.ProviderStreamError{Err: errors.New("stream reset")},
	}
	streamer := &fakeStreamer{stream: fs}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected handler to abort via panic")
		}
		if r != http.ErrAbortHandler {
			t.Fatalf("expected http.ErrAbortHandler, got %v", r)
		}

		// The fragment sent before the failure stands, and no error record
		// was appended after it.
		lines := strings.Split(strings.TrimRight(rr.Body.String(), "\n"), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected exactly 1 record before abort, got %d", len(lines))
		}
		var rec models.StreamRecord
		if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
			t.Fatalf("record is not valid JSON: %v", err)
		}

		// The abort path must still close the stream, or its rate slot
		// would be stranded.
		if fs.closeCalls == 0 {
			t.Error("stream must be closed when the relay aborts")
		}
	}()

	h.Stream(rr, streamRequest(t, []models.ChatMessage{{Role: "user", Content: "a button"}}))
}

func TestStream_PersistenceFailureDoesNotGateStreaming(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{fragments: []string{"hello"}}}
	store := &fakeStore{createErr: errors.New("database down")}
	h := NewChatHandler(store, streamer, 5*time.Second)

	rr := httptest.NewRecorder()
	h.Stream(rr, streamRequest(t, []models.ChatMessage{{Role: "user", Content: "a button"}}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 despite persistence failure, got %d", rr.Code)
	}
	if streamer.calls != 1 {
		t.Errorf("expected generation to proceed, got %d calls", streamer.calls)
	}
}

func TestStream_UnauthenticatedRequestHasNoSideEffects(t *testing.T) {
	streamer := &fakeStreamer{stream: &fakeStream{fragments: []string{"hello"}}}
	store := &fakeStore{}
	h := NewChatHandler(store, streamer, 5*time.Second)

	jwtAuth := middleware.NewJWTAuth("test-secret")
	protected := jwtAuth.Middleware(http.HandlerFunc(h.Stream))

	body, _ := json.Marshal(models.ChatRequest{Messages: []models.ChatMessage{{Role: "user", Content: "a button"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	// No Authorization header.

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if store.createCalls != 0 {
		t.Errorf("persistence must not be touched, got %d calls", store.createCalls)
	}
	if streamer.calls != 0 {
		t.Errorf("provider must not be called, got %d calls", streamer.calls)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not valid JSON: %v", err)
	}
	if resp.Message != "Unauthorized" {
		t.Errorf("message = %q", resp.Message)
	}
}
