package contact

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

// Statuses
const (
	StatusNew      = "new"
	StatusRead     = "read"
	StatusResolved = "resolved"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError(errors.New("contact message not found"))
)

type Message struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewMessage struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=100"`
	LastName  string `json:"last_name" validate:"required,notblank,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Message   string `json:"message" validate:"required,notblank,max=5000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.FirstName = core.CleanString(nm.FirstName)
	nm.LastName = core.CleanString(nm.LastName)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Message = core.CleanString(nm.Message)
	return validate.Struct(nm)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=new read resolved"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

type (
	Repository interface {
		CreateContactMessage(ctx context.Context, m Message) (Message, error)
		// QueryContactMessages returns the newest messages first, optionally restricted to status.
		QueryContactMessages(ctx context.Context, status string) ([]Message, error)
		UpdateContactMessageStatus(ctx context.Context, id, status string) (Message, error)
		DeleteContactMessage(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nm NewMessage) (Message, error) {
	m, err := svc.repo.CreateContactMessage(ctx, Message{
		ID:        uuid.NewString(),
		FirstName: nm.FirstName,
		LastName:  nm.LastName,
		Email:     nm.Email,
		Message:   nm.Message,
		Status:    StatusNew,
		CreatedAt: user.NowFunc().UTC(),
	})
	return m, errors.Wrap(err, "creating contact message")
}

func (svc *Service) List(ctx context.Context, status string) ([]Message, error) {
	msgs, err := svc.repo.QueryContactMessages(ctx, core.CleanString(status, true /* lower */))
	return msgs, errors.Wrap(err, "querying contact messages")
}

func (svc *Service) UpdateStatus(ctx context.Context, id string, us UpdateStatus) (Message, error) {
	return svc.repo.UpdateContactMessageStatus(ctx, id, us.Status)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteContactMessage(ctx, id)
}
