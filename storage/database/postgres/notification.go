package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/notification"
)

type notificationRow struct {
	ID          string    `db:"id"`
	RecipientID string    `db:"recipient_id"`
	SenderID    string    `db:"sender_id"`
	Type        string    `db:"type"`
	Message     string    `db:"message"`
	Status      string    `db:"status"`
	Read        bool      `db:"read"`
	CreatedAt   time.Time `db:"created_at"`
}

const notificationColumns = `id, recipient_id, sender_id, type, message, status, read, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	n.Sender = nil
	n.CreatedAt = n.CreatedAt.UTC()
	row := notificationRow{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        n.Type,
		Message:     n.Message,
		Status:      n.Status,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
	q := `INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :recipient_id, :sender_id, :type, :message, :status, :read, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, row); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	var rows []notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC, id LIMIT $2`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, recipientID, limit); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}

	ns := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		ns = append(ns, notification.Notification{
			ID:          row.ID,
			RecipientID: row.RecipientID,
			SenderID:    row.SenderID,
			Type:        row.Type,
			Message:     row.Message,
			Status:      row.Status,
			Read:        row.Read,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return ns, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	if !isUUID(id) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if rowsAffected(res) == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	res, err := repo.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return rowsAffected(res), nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`
	err := sqlx.GetContext(ctx, repo.db, &count, q, recipientID)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) ResolveFollowRequests(ctx context.Context, recipientID, senderID, status string, exec ...core.DBExecutor) error {
	q := `UPDATE notifications SET status = $1, read = TRUE
		WHERE recipient_id = $2 AND sender_id = $3 AND type = $4 AND status = $5`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		status, recipientID, senderID, notification.TypeFollowRequest, notification.StatusPending)
	return errors.Wrap(err, "resolving follow request notifications")
}

func (repo *notificationRepository) DeleteFollowRequests(ctx context.Context, recipientID, senderID string, exec ...core.DBExecutor) error {
	q := `DELETE FROM notifications WHERE recipient_id = $1 AND sender_id = $2 AND type = $3 AND status = $4`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		recipientID, senderID, notification.TypeFollowRequest, notification.StatusPending)
	return errors.Wrap(err, "deleting follow request notifications")
}
