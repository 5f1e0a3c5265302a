package newsletter

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError(errors.New("subscription not found"))
	ErrAlreadySubscribed = errors.New("this email is already subscribed")
)

type Subscription struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	SubscribedAt time.Time `json:"subscribed_at"` // UTC
}

type Subscribe struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func (s *Subscribe) Validate(validate *validator.Validate) error {
	s.Email = core.CleanString(s.Email, true /* lower */)
	return validate.Struct(s)
}

type (
	Repository interface {
		GetSubscription(ctx context.Context, email string) (Subscription, error)
		// SaveSubscription inserts sub, or updates the row with the same email.
		SaveSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Subscribe registers email, or reactivates a cancelled subscription.
func (svc *Service) Subscribe(ctx context.Context, data Subscribe) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, data.Email)
	switch {
	case err == nil && sub.IsActive:
		return Subscription{}, core.NewValidationError(ErrAlreadySubscribed, core.FieldError{Field: "email", Error: ErrAlreadySubscribed.Error()})
	case err == nil:
		sub.IsActive = true
		sub.SubscribedAt = user.NowFunc().UTC()
	case errors.Cause(err) == ErrNotFound:
		sub = Subscription{
			ID:           uuid.NewString(),
			Email:        data.Email,
			IsActive:     true,
			SubscribedAt: user.NowFunc().UTC(),
		}
	default:
		return Subscription{}, errors.Wrap(err, "getting subscription")
	}
	sub, err = svc.repo.SaveSubscription(ctx, sub)
	return sub, errors.Wrap(err, "saving subscription")
}

func (svc *Service) Unsubscribe(ctx context.Context, data Subscribe) error {
	sub, err := svc.repo.GetSubscription(ctx, data.Email)
	if err != nil {
		return err
	}
	if !sub.IsActive {
		return nil
	}
	sub.IsActive = false
	_, err = svc.repo.SaveSubscription(ctx, sub)
	return errors.Wrap(err, "saving subscription")
}
