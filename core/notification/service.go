package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError(errors.New("notification not found"))
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		// QueryNotifications returns the newest notifications of recipientID first.
		QueryNotifications(ctx context.Context, recipientID string, limit int) ([]Notification, error)
		// MarkRead returns ErrNotFound if id does not belong to recipientID.
		MarkRead(ctx context.Context, recipientID, id string) error
		MarkAllRead(ctx context.Context, recipientID string) (int, error)
		CountUnread(ctx context.Context, recipientID string) (int, error)
		// ResolveFollowRequests sets status on the pending follow request notifications from senderID and marks them read.
		ResolveFollowRequests(ctx context.Context, recipientID, senderID, status string, exec ...core.DBExecutor) error
		// DeleteFollowRequests removes the pending follow request notifications from senderID.
		DeleteFollowRequests(ctx context.Context, recipientID, senderID string, exec ...core.DBExecutor) error
	}

	UserSummarizer interface {
		Summaries(ctx context.Context, ids ...string) (map[string]user.Summary, error)
	}

	Service struct {
		repo  Repository
		users UserSummarizer
		pub   core.Publisher
	}
)

func NewService(repo Repository, users UserSummarizer, pub core.Publisher) *Service {
	return &Service{repo: repo, users: users, pub: pub}
}

// Create stores n without pushing it. Call Publish once the surrounding transaction is committed.
func (svc *Service) Create(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error) {
	n.ID = uuid.NewString()
	n.CreatedAt = user.NowFunc().UTC()
	n.Read = false
	if n.Type == TypeFollowRequest && n.Status == "" {
		n.Status = StatusPending
	}
	n, err := svc.repo.CreateNotification(ctx, n, exec...)
	return n, errors.Wrap(err, "creating notification")
}

// Publish pushes notifications to their recipients' live connections.
func (svc *Service) Publish(ctx context.Context, ns ...Notification) {
	if len(ns) == 0 {
		return
	}
	ns, err := svc.withSenders(ctx, ns)
	if err != nil {
		return // the notifications are stored; clients catch up on their next listing
	}
	for _, n := range ns {
		svc.pub.Publish(core.Event{Type: core.EventNotification, Data: n}, n.RecipientID)
	}
}

// Notify stores then pushes n.
func (svc *Service) Notify(ctx context.Context, n Notification) (Notification, error) {
	n, err := svc.Create(ctx, n)
	if err != nil {
		return Notification{}, err
	}
	svc.Publish(ctx, n)
	return n, nil
}

func (svc *Service) List(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	page := core.NewPage(1, limit, DefaultLimit, MaxLimit)
	ns, err := svc.repo.QueryNotifications(ctx, recipientID, page.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return svc.withSenders(ctx, ns)
}

func (svc *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	return svc.repo.MarkRead(ctx, recipientID, id)
}

func (svc *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.MarkAllRead(ctx, recipientID)
}

func (svc *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.CountUnread(ctx, recipientID)
}

func (svc *Service) ResolveFollowRequest(ctx context.Context, recipientID, senderID, status string, exec ...core.DBExecutor) error {
	return errors.Wrap(
		svc.repo.ResolveFollowRequests(ctx, recipientID, senderID, status, exec...),
		"resolving follow request notification",
	)
}

func (svc *Service) RemoveFollowRequest(ctx context.Context, recipientID, senderID string, exec ...core.DBExecutor) error {
	return errors.Wrap(
		svc.repo.DeleteFollowRequests(ctx, recipientID, senderID, exec...),
		"deleting follow request notification",
	)
}

func (svc *Service) withSenders(ctx context.Context, ns []Notification) ([]Notification, error) {
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, n.SenderID)
	}
	sums, err := svc.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting senders")
	}
	for i := range ns {
		if s, ok := sums[ns[i].SenderID]; ok {
			s := s
			ns[i].Sender = &s
		}
	}
	return ns, nil
}
