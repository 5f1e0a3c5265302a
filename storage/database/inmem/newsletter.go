package inmemdb

import (
	"context"

	"github.com/klunity/klunity/core/newsletter"
)

type newsletterRepository struct {
	db *newsletterTable
}

var _ newsletter.Repository = (*newsletterRepository)(nil) // interface compliance check

func NewNewsletterRepository(db *DB) newsletter.Repository {
	return &newsletterRepository{db: db.newsletter}
}

func (repo *newsletterRepository) GetSubscription(_ context.Context, email string) (newsletter.Subscription, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.table[email]; ok {
		return sub, nil
	}
	return newsletter.Subscription{}, newsletter.ErrNotFound
}

func (repo *newsletterRepository) SaveSubscription(_ context.Context, sub newsletter.Subscription) (newsletter.Subscription, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing, ok := repo.db.table[sub.Email]; ok {
		sub.ID = existing.ID
	}
	repo.db.table[sub.Email] = sub
	return sub, nil
}
