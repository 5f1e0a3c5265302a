package message

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

const MaxContentLen = 2000

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Conversation is the latest message exchanged with a counterpart, with the count of unread incoming messages.
type Conversation struct {
	CounterpartID string       `json:"-"`
	User          user.Summary `json:"user"`
	LastMessage   Message      `json:"last_message"`
	UnreadCount   int          `json:"unread_count"`
}

type NewMessage struct {
	Content string `json:"content" validate:"required,notblank,max=2000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}
