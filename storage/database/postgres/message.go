package pgrepos

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core/message"
)

type messageRow struct {
	ID          string    `db:"id"`
	SenderID    string    `db:"sender_id"`
	RecipientID string    `db:"recipient_id"`
	Content     string    `db:"content"`
	Read        bool      `db:"read"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row messageRow) message() message.Message {
	return message.Message{
		ID:          row.ID,
		SenderID:    row.SenderID,
		RecipientID: row.RecipientID,
		Content:     row.Content,
		Read:        row.Read,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

const messageColumns = `id, sender_id, recipient_id, content, read, created_at`

type messageRepository struct {
	db *sqlx.DB
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) message.Repository {
	return &messageRepository{db: db}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, m message.Message) (message.Message, error) {
	m.CreatedAt = m.CreatedAt.UTC()
	q := `INSERT INTO messages (` + messageColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := repo.db.ExecContext(ctx, q, m.ID, m.SenderID, m.RecipientID, m.Content, m.Read, m.CreatedAt); err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return m, nil
}

func (repo *messageRepository) QueryConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	var rows []messageRow
	q := `SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, a, b); err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}

	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs, nil
}

func (repo *messageRepository) MarkConversationRead(ctx context.Context, recipientID, senderID string) (int, error) {
	q := `UPDATE messages SET read = TRUE WHERE recipient_id = $1 AND sender_id = $2 AND NOT read`
	res, err := repo.db.ExecContext(ctx, q, recipientID, senderID)
	if err != nil {
		return 0, errors.Wrap(err, "marking conversation read")
	}
	return rowsAffected(res), nil
}

func (repo *messageRepository) QueryConversations(ctx context.Context, userID string) ([]message.Conversation, error) {
	var rows []struct {
		messageRow
		CounterpartID string `db:"counterpart_id"`
	}
	q := `SELECT DISTINCT ON (counterpart_id) counterpart_id, ` + messageColumns + `
		FROM (
			SELECT CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS counterpart_id, ` + messageColumns + `
			FROM messages WHERE sender_id = $1 OR recipient_id = $1
		) m
		ORDER BY counterpart_id, created_at DESC, id DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}

	var unread []struct {
		SenderID string `db:"sender_id"`
		Count    int    `db:"count"`
	}
	q = `SELECT sender_id, COUNT(*) AS count FROM messages WHERE recipient_id = $1 AND NOT read GROUP BY sender_id`
	if err := sqlx.SelectContext(ctx, repo.db, &unread, q, userID); err != nil {
		return nil, errors.Wrap(err, "counting unread messages")
	}
	counts := make(map[string]int, len(unread))
	for _, u := range unread {
		counts[u.SenderID] = u.Count
	}

	convs := make([]message.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, message.Conversation{
			CounterpartID: row.CounterpartID,
			LastMessage:   row.message(),
			UnreadCount:   counts[row.CounterpartID],
		})
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessage.CreatedAt.After(convs[j].LastMessage.CreatedAt)
	})
	return convs, nil
}

func (repo *messageRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, repo.db, &count, `SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT read`, recipientID)
	return count, errors.Wrap(err, "counting unread messages")
}
