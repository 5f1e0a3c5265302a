package inmemdb

import (
	"context"

	"github.com/klunity/klunity/core/moderation"
)

type moderationRepository struct {
	db *moderationTable
}

var _ moderation.Repository = (*moderationRepository)(nil) // interface compliance check

func NewModerationRepository(db *DB) moderation.Repository {
	return &moderationRepository{db: db.moderation}
}

func (repo *moderationRepository) QueryWords(_ context.Context) ([]moderation.Word, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// newest first
	words := make([]moderation.Word, 0, len(repo.db.rows))
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		words = append(words, repo.db.rows[i])
	}
	return words, nil
}

func (repo *moderationRepository) CreateWord(_ context.Context, w moderation.Word) (moderation.Word, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, row := range repo.db.rows {
		if row.Word == w.Word {
			return moderation.Word{}, moderation.ErrWordExists
		}
	}
	repo.db.rows = append(repo.db.rows, w)
	return w, nil
}

func (repo *moderationRepository) DeleteWord(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, row := range repo.db.rows {
		if row.ID == id {
			repo.db.rows = append(repo.db.rows[:i], repo.db.rows[i+1:]...)
			return nil
		}
	}
	return moderation.ErrNotFound
}
