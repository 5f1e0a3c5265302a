package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core/moderation"
)

type wordRow struct {
	ID        string         `db:"id"`
	Word      string         `db:"word"`
	AddedBy   sql.NullString `db:"added_by"`
	CreatedAt time.Time      `db:"created_at"`
}

type moderationRepository struct {
	db *sqlx.DB
}

var _ moderation.Repository = (*moderationRepository)(nil) // interface compliance check

func NewModerationRepository(db *sqlx.DB) moderation.Repository {
	return &moderationRepository{db: db}
}

func (repo *moderationRepository) QueryWords(ctx context.Context) ([]moderation.Word, error) {
	var rows []wordRow
	q := `SELECT id, word, added_by, created_at FROM blacklist_words ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying words")
	}

	words := make([]moderation.Word, 0, len(rows))
	for _, row := range rows {
		words = append(words, moderation.Word{
			ID:        row.ID,
			Word:      row.Word,
			AddedBy:   row.AddedBy.String,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return words, nil
}

func (repo *moderationRepository) CreateWord(ctx context.Context, w moderation.Word) (moderation.Word, error) {
	w.CreatedAt = w.CreatedAt.UTC()
	addedBy := sql.NullString{String: w.AddedBy, Valid: isUUID(w.AddedBy)}
	q := `INSERT INTO blacklist_words (id, word, added_by, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, w.ID, w.Word, addedBy, w.CreatedAt); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return moderation.Word{}, moderation.ErrWordExists
		}
		return moderation.Word{}, errors.Wrap(err, "inserting word")
	}
	return w, nil
}

func (repo *moderationRepository) DeleteWord(ctx context.Context, id string) error {
	if !isUUID(id) {
		return moderation.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM blacklist_words WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting word")
	}
	if rowsAffected(res) == 0 {
		return moderation.ErrNotFound
	}
	return nil
}
