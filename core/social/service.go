package social

import (
	"context"

	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrRequestNotFound  = core.NewNotFoundError(errors.New("follow request not found"))
	ErrRequestExists    = errors.New("follow request already sent")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrNotFollowing     = errors.New("not following this user")
	ErrSelfFollow       = errors.New("you cannot follow yourself")
)

type (
	Repository interface {
		// LockPair serializes the transactions touching the edges between a and b.
		LockPair(ctx context.Context, a, b string, exec ...core.DBExecutor) error
		// CreateFollowRequest returns ErrRequestExists if the pair already has a pending request.
		CreateFollowRequest(ctx context.Context, req FollowRequest, exec ...core.DBExecutor) error
		// DeleteFollowRequest returns ErrRequestNotFound if the pair has no pending request.
		DeleteFollowRequest(ctx context.Context, requesterID, targetID string, exec ...core.DBExecutor) error
		HasFollowRequest(ctx context.Context, requesterID, targetID string, exec ...core.DBExecutor) (bool, error)
		// QueryFollowRequests returns the pending requests to targetID, newest first.
		QueryFollowRequests(ctx context.Context, targetID string) ([]FollowRequest, error)
		// CreateFollow is a no-op if the edge already exists.
		CreateFollow(ctx context.Context, f Follow, exec ...core.DBExecutor) error
		// DeleteFollow returns ErrNotFollowing if the edge does not exist.
		DeleteFollow(ctx context.Context, followerID, followeeID string, exec ...core.DBExecutor) error
		IsFollowing(ctx context.Context, followerID, followeeID string, exec ...core.DBExecutor) (bool, error)
		// QueryFollowers returns the edges pointing to userID, newest first.
		QueryFollowers(ctx context.Context, userID string) ([]Follow, error)
		// QueryFollowing returns the edges starting from userID, newest first.
		QueryFollowing(ctx context.Context, userID string) ([]Follow, error)
		CountFollows(ctx context.Context, userID string) (Counts, error)
	}

	UserService interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Summaries(ctx context.Context, ids ...string) (map[string]user.Summary, error)
	}

	Notifier interface {
		Create(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error)
		Publish(ctx context.Context, ns ...notification.Notification)
		ResolveFollowRequest(ctx context.Context, recipientID, senderID, status string, exec ...core.DBExecutor) error
		RemoveFollowRequest(ctx context.Context, recipientID, senderID string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		users    UserService
		notifier Notifier
	}
)

func NewService(repo Repository, tx core.Transactor, users UserService, notifier Notifier) *Service {
	return &Service{repo: repo, tx: tx, users: users, notifier: notifier}
}

// Follow sends a follow request from actor to targetID and notifies the target.
func (svc *Service) Follow(ctx context.Context, actor user.User, targetID string) error {
	if actor.ID == targetID {
		return core.NewValidationError(ErrSelfFollow)
	}
	target, err := svc.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	var notif notification.Notification
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPair(ctx, actor.ID, target.ID, exec); err != nil {
			return err
		}
		following, err := svc.repo.IsFollowing(ctx, actor.ID, target.ID, exec)
		if err != nil {
			return errors.Wrap(err, "checking follow")
		}
		if following {
			return core.NewValidationError(ErrAlreadyFollowing)
		}

		req := FollowRequest{RequesterID: actor.ID, TargetID: target.ID, CreatedAt: user.NowFunc().UTC()}
		if err = svc.repo.CreateFollowRequest(ctx, req, exec); err != nil {
			if errors.Cause(err) == ErrRequestExists {
				return core.NewValidationError(ErrRequestExists)
			}
			return errors.Wrap(err, "creating follow request")
		}

		notif, err = svc.notifier.Create(ctx, notification.Notification{
			RecipientID: target.ID,
			SenderID:    actor.ID,
			Type:        notification.TypeFollowRequest,
			Status:      notification.StatusPending,
		}, exec)
		return err
	})
	if err != nil {
		return err
	}
	svc.notifier.Publish(ctx, notif)
	return nil
}

// Withdraw cancels actor's pending request to targetID.
func (svc *Service) Withdraw(ctx context.Context, actor user.User, targetID string) error {
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPair(ctx, actor.ID, targetID, exec); err != nil {
			return err
		}
		if err := svc.repo.DeleteFollowRequest(ctx, actor.ID, targetID, exec); err != nil {
			return err
		}
		return svc.notifier.RemoveFollowRequest(ctx, targetID, actor.ID, exec)
	})
}

// Accept turns requesterID's pending request to actor into a follow edge and notifies the requester.
func (svc *Service) Accept(ctx context.Context, actor user.User, requesterID string) error {
	var notif notification.Notification
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPair(ctx, requesterID, actor.ID, exec); err != nil {
			return err
		}
		if err := svc.repo.DeleteFollowRequest(ctx, requesterID, actor.ID, exec); err != nil {
			return err
		}
		follow := Follow{FollowerID: requesterID, FolloweeID: actor.ID, CreatedAt: user.NowFunc().UTC()}
		if err := svc.repo.CreateFollow(ctx, follow, exec); err != nil {
			return errors.Wrap(err, "creating follow")
		}
		if err := svc.notifier.ResolveFollowRequest(ctx, actor.ID, requesterID, notification.StatusAccepted, exec); err != nil {
			return err
		}

		var err error
		notif, err = svc.notifier.Create(ctx, notification.Notification{
			RecipientID: requesterID,
			SenderID:    actor.ID,
			Type:        notification.TypeFollowAccepted,
		}, exec)
		return err
	})
	if err != nil {
		return err
	}
	svc.notifier.Publish(ctx, notif)
	return nil
}

// Reject drops requesterID's pending request to actor.
func (svc *Service) Reject(ctx context.Context, actor user.User, requesterID string) error {
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPair(ctx, requesterID, actor.ID, exec); err != nil {
			return err
		}
		if err := svc.repo.DeleteFollowRequest(ctx, requesterID, actor.ID, exec); err != nil {
			return err
		}
		return svc.notifier.ResolveFollowRequest(ctx, actor.ID, requesterID, notification.StatusRejected, exec)
	})
}

// Unfollow removes the edge from actor to targetID.
func (svc *Service) Unfollow(ctx context.Context, actor user.User, targetID string) error {
	if err := svc.repo.DeleteFollow(ctx, actor.ID, targetID); err != nil {
		if errors.Cause(err) == ErrNotFollowing {
			return core.NewValidationError(ErrNotFollowing)
		}
		return errors.Wrap(err, "deleting follow")
	}
	return nil
}

// RemoveFollower removes the edge from followerID to actor.
func (svc *Service) RemoveFollower(ctx context.Context, actor user.User, followerID string) error {
	if err := svc.repo.DeleteFollow(ctx, followerID, actor.ID); err != nil {
		if errors.Cause(err) == ErrNotFollowing {
			return core.NewValidationError(errors.New("this user does not follow you"))
		}
		return errors.Wrap(err, "deleting follow")
	}
	return nil
}

// ForceFollow makes admin follow targetID without a request.
func (svc *Service) ForceFollow(ctx context.Context, admin user.User, targetID string) error {
	if !admin.IsAdmin() {
		return core.ErrForbidden
	}
	if admin.ID == targetID {
		return core.NewValidationError(ErrSelfFollow)
	}
	target, err := svc.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockPair(ctx, admin.ID, target.ID, exec); err != nil {
			return err
		}
		if err := svc.repo.DeleteFollowRequest(ctx, admin.ID, target.ID, exec); err != nil && errors.Cause(err) != ErrRequestNotFound {
			return errors.Wrap(err, "deleting follow request")
		}
		if err := svc.notifier.RemoveFollowRequest(ctx, target.ID, admin.ID, exec); err != nil {
			return err
		}
		follow := Follow{FollowerID: admin.ID, FolloweeID: target.ID, CreatedAt: user.NowFunc().UTC()}
		return errors.Wrap(svc.repo.CreateFollow(ctx, follow, exec), "creating follow")
	})
}

func (svc *Service) Followers(ctx context.Context, userID string) ([]user.Summary, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	follows, err := svc.repo.QueryFollowers(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying followers")
	}
	ids := make([]string, 0, len(follows))
	for _, f := range follows {
		ids = append(ids, f.FollowerID)
	}
	return svc.summaries(ctx, ids)
}

func (svc *Service) Following(ctx context.Context, userID string) ([]user.Summary, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	follows, err := svc.repo.QueryFollowing(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying following")
	}
	ids := make([]string, 0, len(follows))
	for _, f := range follows {
		ids = append(ids, f.FolloweeID)
	}
	return svc.summaries(ctx, ids)
}

// Requests lists the pending requests sent to actor.
func (svc *Service) Requests(ctx context.Context, actor user.User) ([]Request, error) {
	reqs, err := svc.repo.QueryFollowRequests(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying follow requests")
	}
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.RequesterID)
	}
	sums, err := svc.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting requesters")
	}
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if s, ok := sums[r.RequesterID]; ok {
			out = append(out, Request{Requester: s, CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

func (svc *Service) Relationship(ctx context.Context, viewerID, otherID string) (Relationship, error) {
	var rel Relationship
	if viewerID == "" || viewerID == otherID {
		return rel, nil
	}

	var err error
	if rel.Following, err = svc.repo.IsFollowing(ctx, viewerID, otherID); err != nil {
		return rel, errors.Wrap(err, "checking following")
	}
	if rel.FollowedBy, err = svc.repo.IsFollowing(ctx, otherID, viewerID); err != nil {
		return rel, errors.Wrap(err, "checking followed by")
	}
	if rel.Requested, err = svc.repo.HasFollowRequest(ctx, viewerID, otherID); err != nil {
		return rel, errors.Wrap(err, "checking request")
	}
	if rel.RequestedBy, err = svc.repo.HasFollowRequest(ctx, otherID, viewerID); err != nil {
		return rel, errors.Wrap(err, "checking incoming request")
	}
	return rel, nil
}

func (svc *Service) Counts(ctx context.Context, userID string) (Counts, error) {
	return svc.repo.CountFollows(ctx, userID)
}

// CanMessage reports whether sender may write to recipient: sender follows recipient, or either is an admin.
func (svc *Service) CanMessage(ctx context.Context, sender, recipient user.User) (bool, error) {
	if sender.IsAdmin() || recipient.IsAdmin() {
		return true, nil
	}
	following, err := svc.repo.IsFollowing(ctx, sender.ID, recipient.ID)
	return following, errors.Wrap(err, "checking follow")
}

func (svc *Service) summaries(ctx context.Context, ids []string) ([]user.Summary, error) {
	sums, err := svc.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting users")
	}
	out := make([]user.Summary, 0, len(ids))
	for _, id := range ids {
		if s, ok := sums[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
