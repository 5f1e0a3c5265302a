package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core/contact"
)

type contactRow struct {
	ID        string    `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Email     string    `db:"email"`
	Message   string    `db:"message"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func (row contactRow) message() contact.Message {
	return contact.Message{
		ID:        row.ID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		Message:   row.Message,
		Status:    row.Status,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

const contactColumns = `id, first_name, last_name, email, message, status, created_at`

type contactRepository struct {
	db *sqlx.DB
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *sqlx.DB) contact.Repository {
	return &contactRepository{db: db}
}

func (repo *contactRepository) CreateContactMessage(ctx context.Context, m contact.Message) (contact.Message, error) {
	m.CreatedAt = m.CreatedAt.UTC()
	q := `INSERT INTO contact_messages (` + contactColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := repo.db.ExecContext(ctx, q, m.ID, m.FirstName, m.LastName, m.Email, m.Message, m.Status, m.CreatedAt); err != nil {
		return contact.Message{}, errors.Wrap(err, "inserting contact message")
	}
	return m, nil
}

func (repo *contactRepository) QueryContactMessages(ctx context.Context, status string) ([]contact.Message, error) {
	w := new(where)
	if status != "" {
		w.add("status = ?", status)
	}
	var rows []contactRow
	q := `SELECT ` + contactColumns + ` FROM contact_messages` + w.String() + ` ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying contact messages")
	}

	msgs := make([]contact.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.message())
	}
	return msgs, nil
}

func (repo *contactRepository) UpdateContactMessageStatus(ctx context.Context, id, status string) (contact.Message, error) {
	if !isUUID(id) {
		return contact.Message{}, contact.ErrNotFound
	}
	var row contactRow
	q := `UPDATE contact_messages SET status = $1 WHERE id = $2 RETURNING ` + contactColumns
	if err := sqlx.GetContext(ctx, repo.db, &row, q, status, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contact.Message{}, contact.ErrNotFound
		}
		return contact.Message{}, errors.Wrap(err, "updating contact message")
	}
	return row.message(), nil
}

func (repo *contactRepository) DeleteContactMessage(ctx context.Context, id string) error {
	if !isUUID(id) {
		return contact.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM contact_messages WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting contact message")
	}
	if rowsAffected(res) == 0 {
		return contact.ErrNotFound
	}
	return nil
}
