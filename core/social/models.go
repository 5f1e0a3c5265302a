package social

import (
	"time"

	"github.com/klunity/klunity/core/user"
)

// FollowRequest is a pending edge from RequesterID to TargetID.
// There is at most one per ordered pair, and none while RequesterID already follows TargetID.
type FollowRequest struct {
	RequesterID string    `json:"requester_id"`
	TargetID    string    `json:"target_id"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Follow is an accepted edge: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID string    `json:"follower_id"`
	FolloweeID string    `json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// Relationship describes the edges between a viewer and another user, from the viewer's side.
type Relationship struct {
	Following   bool `json:"following"`
	Requested   bool `json:"requested"`
	FollowedBy  bool `json:"followed_by"`
	RequestedBy bool `json:"requested_by"`
}

type Counts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Request is an incoming follow request as listed to its target.
type Request struct {
	Requester user.Summary `json:"requester"`
	CreatedAt time.Time    `json:"created_at"`
}
