package core

// Event types pushed to connected clients.
const (
	EventNotification = "notification"
	EventMessage      = "message"
	EventUnread       = "unread"
)

type (
	Event struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}

	// Publisher delivers events to every live connection of the given users.
	// Publishing to a user without connections is a no-op.
	Publisher interface {
		Publish(evt Event, userIDs ...string)
	}
)
