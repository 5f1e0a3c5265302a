package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core/newsletter"
)

type subscriptionRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	SubscribedAt time.Time `db:"subscribed_at"`
}

func (row subscriptionRow) subscription() newsletter.Subscription {
	return newsletter.Subscription{
		ID:           row.ID,
		Email:        row.Email,
		IsActive:     row.IsActive,
		SubscribedAt: row.SubscribedAt.UTC(),
	}
}

type newsletterRepository struct {
	db *sqlx.DB
}

var _ newsletter.Repository = (*newsletterRepository)(nil) // interface compliance check

func NewNewsletterRepository(db *sqlx.DB) newsletter.Repository {
	return &newsletterRepository{db: db}
}

func (repo *newsletterRepository) GetSubscription(ctx context.Context, email string) (newsletter.Subscription, error) {
	var row subscriptionRow
	q := `SELECT id, email, is_active, subscribed_at FROM newsletter_subscriptions WHERE email = $1`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newsletter.Subscription{}, newsletter.ErrNotFound
		}
		return newsletter.Subscription{}, errors.Wrap(err, "getting subscription")
	}
	return row.subscription(), nil
}

func (repo *newsletterRepository) SaveSubscription(ctx context.Context, sub newsletter.Subscription) (newsletter.Subscription, error) {
	var row subscriptionRow
	q := `INSERT INTO newsletter_subscriptions (id, email, is_active, subscribed_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET is_active = EXCLUDED.is_active, subscribed_at = EXCLUDED.subscribed_at
		RETURNING id, email, is_active, subscribed_at`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, sub.ID, sub.Email, sub.IsActive, sub.SubscribedAt.UTC()); err != nil {
		return newsletter.Subscription{}, errors.Wrap(err, "saving subscription")
	}
	return row.subscription(), nil
}
