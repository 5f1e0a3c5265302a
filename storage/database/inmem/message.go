package inmemdb

import (
	"context"

	"github.com/klunity/klunity/core/message"
)

type messageRepository struct {
	db *messageTable
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.message}
}

func (repo *messageRepository) CreateMessage(_ context.Context, m message.Message) (message.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.rows = append(repo.db.rows, m)
	return m, nil
}

func (repo *messageRepository) QueryConversation(_ context.Context, a, b string) ([]message.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]message.Message, 0)
	for _, m := range repo.db.rows {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (repo *messageRepository) MarkConversationRead(_ context.Context, recipientID, senderID string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for i := range repo.db.rows {
		if m := &repo.db.rows[i]; m.RecipientID == recipientID && m.SenderID == senderID && !m.Read {
			m.Read = true
			count++
		}
	}
	return count, nil
}

func (repo *messageRepository) QueryConversations(_ context.Context, userID string) ([]message.Conversation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// newest first, so the first message seen for a counterpart is the latest one
	convs := make([]message.Conversation, 0)
	idx := make(map[string]int)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		m := repo.db.rows[i]
		var counterpart string
		switch userID {
		case m.SenderID:
			counterpart = m.RecipientID
		case m.RecipientID:
			counterpart = m.SenderID
		default:
			continue
		}

		j, ok := idx[counterpart]
		if !ok {
			j = len(convs)
			idx[counterpart] = j
			convs = append(convs, message.Conversation{CounterpartID: counterpart, LastMessage: m})
		}
		if m.RecipientID == userID && !m.Read {
			convs[j].UnreadCount++
		}
	}
	return convs, nil
}

func (repo *messageRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, m := range repo.db.rows {
		if m.RecipientID == recipientID && !m.Read {
			count++
		}
	}
	return count, nil
}
