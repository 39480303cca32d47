package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pagesmith-backend/internal/middleware"
	"pagesmith-backend/internal/models"
	"pagesmith-backend/internal/services"
)

type chatStreamer interface {
	StreamChat(ctx context.Context, messages []models.ChatMessage) (services.FragmentStream, error)
}

type conversationStore interface {
	Create(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

type ChatHandler struct {
	conversations conversationStore
	streamer      chatStreamer
	streamTimeout time.Duration
}

func NewChatHandler(conversations conversationStore, streamer chatStreamer, streamTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		streamer:      streamer,
		streamTimeout: streamTimeout,
	}
}

// Stream relays the model's response as newline-delimited JSON records, one
// {"text":...} per fragment. The conversation turn is persisted before
// streaming starts; a persistence failure is logged but never gates the
// live response.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("EMPTY_TURN", "Messages are required", r))
		return
	}

	// Bound the whole turn: client disconnect or the timeout cancels the
	// in-flight provider call through this context.
	ctx, cancel := context.WithTimeout(r.Context(), h.streamTimeout)
	defer cancel()

	userID := middleware.GetUserID(ctx)
	if _, err := h.conversations.Create(ctx, userID, req.Messages); err != nil {
		log.Printf("failed to save conversation for user %s: %v", userID, err)
	}

	stream, err := h.streamer.StreamChat(ctx, req.Messages)
	if err != nil {
		if errors.Is(err, services.ErrEmptyTurn) {
			writeJSON(w, http.StatusBadRequest, errorResp("EMPTY_TURN", "Messages are required", r))
			return
		}
		log.Printf("chat stream failed to start: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("AI_ERROR", "An error occurred during chat", r))
		return
	}
	// Runs during panic unwinding too, so an aborted connection still gives
	// the rate slot back.
	defer stream.Close()

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	started := false

	for {
		text, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !started {
				log.Printf("chat stream failed before first fragment: %v", err)
				writeJSON(w, http.StatusInternalServerError, errorResp("AI_ERROR", "An error occurred during chat", r))
				return
			}
			// Mid-stream death: abort the connection rather than append a
			// record the client could mistake for generated text.
			log.Printf("chat stream aborted mid-flight: %v", err)
			panic(http.ErrAbortHandler)
		}

		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		if err := enc.Encode(models.StreamRecord{Text: text}); err != nil {
			log.Printf("failed to write stream record: %v", err)
			panic(http.ErrAbortHandler)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !started {
		// Provider completed without emitting anything; an empty body is
		// still a well-formed (artifact-less) response.
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conversations, err := h.conversations.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list conversations", r))
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid conversation ID", r))
		return
	}

	conversation, err := h.conversations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load conversation", r))
		return
	}

	if conversation.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	writeJSON(w, http.StatusOK, conversation)
}
