package inmemdb

import (
	"context"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n.Sender = nil
	repo.db.rows = append(repo.db.rows, n)
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ns := make([]notification.Notification, 0)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		if repo.db.rows[i].RecipientID != recipientID {
			continue
		}
		ns = append(ns, repo.db.rows[i])
		if limit > 0 && len(ns) == limit {
			break
		}
	}
	return ns, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, recipientID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.rows {
		if n := &repo.db.rows[i]; n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for i := range repo.db.rows {
		if n := &repo.db.rows[i]; n.RecipientID == recipientID && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, n := range repo.db.rows {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) ResolveFollowRequests(_ context.Context, recipientID, senderID, status string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i := range repo.db.rows {
		if n := &repo.db.rows[i]; isPendingRequest(*n, recipientID, senderID) {
			n.Status = status
			n.Read = true
		}
	}
	return nil
}

func (repo *notificationRepository) DeleteFollowRequests(_ context.Context, recipientID, senderID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rows := repo.db.rows[:0]
	for _, n := range repo.db.rows {
		if !isPendingRequest(n, recipientID, senderID) {
			rows = append(rows, n)
		}
	}
	repo.db.rows = rows
	return nil
}

func isPendingRequest(n notification.Notification, recipientID, senderID string) bool {
	return n.Type == notification.TypeFollowRequest && n.Status == notification.StatusPending &&
		n.RecipientID == recipientID && n.SenderID == senderID
}
