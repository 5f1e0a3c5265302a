package inmemdb

import (
	"context"

	"github.com/klunity/klunity/core/contact"
)

type contactRepository struct {
	db *contactTable
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *DB) contact.Repository {
	return &contactRepository{db: db.contact}
}

func (repo *contactRepository) CreateContactMessage(_ context.Context, m contact.Message) (contact.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.rows = append(repo.db.rows, m)
	return m, nil
}

func (repo *contactRepository) QueryContactMessages(_ context.Context, status string) ([]contact.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]contact.Message, 0)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		if m := repo.db.rows[i]; status == "" || m.Status == status {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (repo *contactRepository) UpdateContactMessageStatus(_ context.Context, id, status string) (contact.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.rows {
		if m := &repo.db.rows[i]; m.ID == id {
			m.Status = status
			return *m, nil
		}
	}
	return contact.Message{}, contact.ErrNotFound
}

func (repo *contactRepository) DeleteContactMessage(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, m := range repo.db.rows {
		if m.ID == id {
			repo.db.rows = append(repo.db.rows[:i], repo.db.rows[i+1:]...)
			return nil
		}
	}
	return contact.ErrNotFound
}
