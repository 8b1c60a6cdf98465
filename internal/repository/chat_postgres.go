package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ioms/backend/internal/model"
)

// PostgresChatRepository implements ChatRepository for PostgreSQL.
type PostgresChatRepository struct {
	db *sqlx.DB
}

func NewPostgresChatRepository(db *sqlx.DB) *PostgresChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) CreateConversation(ctx context.Context, c *model.ChatConversation) error {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO chat_conversations (id, company_id, outage_id, title, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.CompanyID, c.OutageID, c.Title, c.CreatedBy, c.CreatedAt); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO chat_participants (conversation_id, user_id)
		SELECT $1, u FROM unnest($2::uuid[]) AS u
		ON CONFLICT DO NOTHING
	`, c.ID, uuidStrings(c.ParticipantIDs))
	if err != nil {
		return fmt.Errorf("add participants: %w", err)
	}
	return nil
}

func (r *PostgresChatRepository) GetConversation(ctx context.Context, companyID, id uuid.UUID) (*model.ChatConversation, error) {
	var c model.ChatConversation
	q := conn(ctx, r.db)
	if err := q.GetContext(ctx, &c, `
		SELECT id, company_id, outage_id, title, created_by, created_at, last_message_at
		FROM chat_conversations WHERE company_id = $1 AND id = $2
	`, companyID, id); err != nil {
		return nil, notFound(err)
	}
	if err := q.SelectContext(ctx, &c.ParticipantIDs, `
		SELECT user_id FROM chat_participants WHERE conversation_id = $1 ORDER BY user_id
	`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresChatRepository) ListConversations(ctx context.Context, companyID, userID uuid.UUID) ([]*model.ChatConversation, error) {
	var convs []*model.ChatConversation
	err := conn(ctx, r.db).SelectContext(ctx, &convs, `
		SELECT c.id, c.company_id, c.outage_id, c.title, c.created_by, c.created_at, c.last_message_at
		FROM chat_conversations c
		JOIN chat_participants p ON p.conversation_id = c.id
		WHERE c.company_id = $1 AND p.user_id = $2
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`, companyID, userID)
	return convs, err
}

func (r *PostgresChatRepository) AddMessage(ctx context.Context, m *model.ChatMessage) error {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `UPDATE chat_conversations SET last_message_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt)
	return err
}

func (r *PostgresChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, pagination model.Pagination) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	err := conn(ctx, r.db).SelectContext(ctx, &msgs, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM chat_messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id LIMIT $2 OFFSET $3
	`, conversationID, pagination.PageSize, pagination.Offset())
	return msgs, err
}
