// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/user"
)

// DefaultPassword is the password of the users created without one.
const DefaultPassword = "Str0ng.Passw0rd"

// CreateUser stores a user straight through repo, bypassing sign up.
// verified sets both the email and the faculty verification flags.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, role string,
	verified bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		Name:            name,
		Username:        uname,
		Email:           email,
		Role:            role,
		Department:      "CSE",
		IsEmailVerified: verified,
		IsVerified:      verified || role != user.RoleFaculty,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	if err := usr.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateFollow makes follower follow followee.
func CreateFollow(t *testing.T, repo social.Repository, follower, followee user.User) {
	t.Helper()

	err := repo.CreateFollow(context.Background(), social.Follow{
		FollowerID: follower.ID,
		FolloweeID: followee.ID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateFollow() failed: %v", err)
	}
}

// CreateFollowRequest stores a pending request from requester to target.
func CreateFollowRequest(t *testing.T, repo social.Repository, requester, target user.User) {
	t.Helper()

	err := repo.CreateFollowRequest(context.Background(), social.FollowRequest{
		RequesterID: requester.ID,
		TargetID:    target.ID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateFollowRequest() failed: %v", err)
	}
}
