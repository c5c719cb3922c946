package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

// -- Conversation Repository --

type conversationRepoPG struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepoPG{pool: pool}
}

func (r *conversationRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const conversationColumns = `id, match_id, participants::text[], created_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var participants []string
	err := row.Scan(&c.ID, &c.MatchID, &participants, &c.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Participants = make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		c.Participants = append(c.Participants, id)
	}
	return &c, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *conversationRepoPG) Create(ctx context.Context, c *Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO conversation (id, match_id, participants, created_at)
		VALUES ($1, $2, $3::uuid[], $4)`,
		c.ID, c.MatchID, uuidStrings(c.Participants), c.CreatedAt,
	)
	return err
}

func (r *conversationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return scanConversation(r.conn(ctx).QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversation WHERE id = $1`, id))
}

func (r *conversationRepoPG) GetByMatch(ctx context.Context, matchID uuid.UUID) (*Conversation, error) {
	return scanConversation(r.conn(ctx).QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversation WHERE match_id = $1
		ORDER BY created_at LIMIT 1`, matchID))
}

func (r *conversationRepoPG) ListForParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation WHERE participants @> ARRAY[$1::uuid]`, userID.String(),
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+conversationColumns+` FROM conversation
		WHERE participants @> ARRAY[$1::uuid]
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, userID.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// -- Message Repository --

type messageRepoPG struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.SentAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_message (id, conversation_id, sender_id, body, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.SenderID, m.Body, m.SentAt,
	)
	return err
}

func (r *messageRepoPG) List(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_message WHERE conversation_id = $1`, conversationID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, conversation_id, sender_id, body, sent_at FROM chat_message
		WHERE conversation_id = $1
		ORDER BY sent_at, id LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &m)
	}
	return items, total, rows.Err()
}
