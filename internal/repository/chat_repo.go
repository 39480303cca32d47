package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"pagesmith-backend/internal/models"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// Create appends a conversation turn: one conversation row plus its ordered
// messages, in a single transaction. Only the request transcript is stored;
// the generated response is not persisted.
func (r *ConversationRepo) Create(ctx context.Context, userID uuid.UUID, messages []models.ChatMessage) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	conversationID := uuid.New()
	_, err = tx.Exec(ctx,
		"INSERT INTO conversations (id, user_id) VALUES ($1, $2)",
		conversationID, userID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	for i, msg := range messages {
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_messages (id, conversation_id, position, role, content)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), conversationID, i, msg.Role, msg.Content,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit conversation: %w", err)
	}

	return conversationID, nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, user_id, created_at FROM conversations WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, user_id, created_at FROM conversations WHERE id = $1", id,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT role, content FROM conversation_messages
		 WHERE conversation_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, err
		}
		c.Messages = append(c.Messages, msg)
	}

	return c, rows.Err()
}
