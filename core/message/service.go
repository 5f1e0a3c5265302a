package message

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrSelfMessage  = errors.New("you cannot message yourself")
	ErrNotFollowing = core.NewForbiddenError("you must follow this user to send a message")
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		// QueryConversation returns the messages between a and b, oldest first.
		QueryConversation(ctx context.Context, a, b string) ([]Message, error)
		// MarkConversationRead marks the messages from senderID to recipientID read.
		MarkConversationRead(ctx context.Context, recipientID, senderID string) (int, error)
		// QueryConversations returns one entry per counterpart of userID, latest activity first.
		QueryConversations(ctx context.Context, userID string) ([]Conversation, error)
		CountUnread(ctx context.Context, recipientID string) (int, error)
	}

	UserService interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Summaries(ctx context.Context, ids ...string) (map[string]user.Summary, error)
	}

	// Gate decides who may write to whom.
	Gate interface {
		CanMessage(ctx context.Context, sender, recipient user.User) (bool, error)
	}

	Moderator interface {
		Check(ctx context.Context, texts ...string) error
	}

	Service struct {
		repo  Repository
		users UserService
		gate  Gate
		mod   Moderator
		pub   core.Publisher
	}
)

func NewService(repo Repository, users UserService, gate Gate, mod Moderator, pub core.Publisher) *Service {
	return &Service{repo: repo, users: users, gate: gate, mod: mod, pub: pub}
}

// Send stores a message from sender to recipientID and pushes it to both parties.
func (svc *Service) Send(ctx context.Context, sender user.User, recipientID string, nm NewMessage) (Message, error) {
	if sender.ID == recipientID {
		return Message{}, core.NewValidationError(ErrSelfMessage)
	}
	recipient, err := svc.users.GetByID(ctx, recipientID)
	if err != nil {
		return Message{}, err
	}

	ok, err := svc.gate.CanMessage(ctx, sender, recipient)
	if err != nil {
		return Message{}, errors.Wrap(err, "checking messaging permission")
	}
	if !ok {
		return Message{}, ErrNotFollowing
	}
	if err = svc.mod.Check(ctx, nm.Content); err != nil {
		return Message{}, err
	}

	msg, err := svc.repo.CreateMessage(ctx, Message{
		ID:          uuid.NewString(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Content:     nm.Content,
		CreatedAt:   user.NowFunc().UTC(),
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}
	svc.pub.Publish(core.Event{Type: core.EventMessage, Data: msg}, sender.ID, recipient.ID)
	return msg, nil
}

// Conversation returns the thread between actor and otherID and marks the incoming messages read.
func (svc *Service) Conversation(ctx context.Context, actor user.User, otherID string) ([]Message, error) {
	if _, err := svc.users.GetByID(ctx, otherID); err != nil {
		return nil, err
	}
	if _, err := svc.repo.MarkConversationRead(ctx, actor.ID, otherID); err != nil {
		return nil, errors.Wrap(err, "marking conversation read")
	}
	msgs, err := svc.repo.QueryConversation(ctx, actor.ID, otherID)
	return msgs, errors.Wrap(err, "querying conversation")
}

func (svc *Service) Conversations(ctx context.Context, actor user.User) ([]Conversation, error) {
	convs, err := svc.repo.QueryConversations(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.CounterpartID)
	}
	sums, err := svc.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting counterparts")
	}
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if s, ok := sums[c.CounterpartID]; ok {
			c.User = s
			out = append(out, c)
		}
	}
	return out, nil
}

func (svc *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.CountUnread(ctx, recipientID)
}
