package notification

import (
	"time"

	"github.com/klunity/klunity/core/user"
)

// Types
const (
	TypeFollowRequest  = "follow_request"
	TypeFollowAccepted = "follow_accepted"
	TypeAdminMessage   = "admin_message"
)

// Follow request statuses
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Notification struct {
	ID          string        `json:"id"`
	RecipientID string        `json:"recipient_id"`
	SenderID    string        `json:"sender_id"`
	Sender      *user.Summary `json:"sender,omitempty"`
	Type        string        `json:"type"`
	Message     string        `json:"message,omitempty"`
	Status      string        `json:"status,omitempty"`
	Read        bool          `json:"read"`
	CreatedAt   time.Time     `json:"created_at"` // UTC
}

// Unread is the counters pushed to a client when it connects.
type Unread struct {
	Notifications int `json:"notifications"`
	Messages      int `json:"messages"`
}
