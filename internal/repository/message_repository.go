package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/community-resource-hub/internal/model"
)

// MessageRepo provides access to the messages table. Messages are stored
// before any live delivery is attempted, so an offline recipient finds
// them here later.
type MessageRepo struct{ DB *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{DB: db} }

// Create inserts a message and populates its generated ID and timestamp.
func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO messages (sender, recipient, body) VALUES (?, ?, ?)",
		msg.Sender, msg.Recipient, msg.Body)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = uint64(id)
	const sel = `SELECT created_at FROM messages WHERE id = ?`
	return r.DB.QueryRowContext(ctx, sel, msg.ID).Scan(&msg.CreatedAt)
}

// ListConversation returns the messages exchanged between two users,
// oldest first, capped at limit.
func (r *MessageRepo) ListConversation(ctx context.Context, userA, userB string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	const q = `SELECT id, sender, recipient, body, created_at
	             FROM messages
	            WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
	            ORDER BY created_at ASC, id ASC
	            LIMIT ?`
	userA = NormalizeUsername(userA)
	userB = NormalizeUsername(userB)
	rows, err := r.DB.QueryContext(ctx, q, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
