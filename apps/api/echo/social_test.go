package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/klunity/klunity/apps/api/echo"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/user"
	"github.com/klunity/klunity/testutil"
)

func TestSocialAPI_followFlow(t *testing.T) {
	env := setup(t)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	ben := env.createUser(t, "Ben", "ben", user.RoleStudent)
	anaTkn, benTkn := env.token(t, ana), env.token(t, ben)

	status := func(t *testing.T, token, otherID string) social.Relationship {
		req, rec := newAuthRequest(http.MethodGet, "/api/social/status/"+otherID, token)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var rel social.Relationship
		decode(t, rec, &rel)
		return rel
	}

	env.run(t, []httpTest{
		{
			name:     "anonymous",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ben.ID,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "self follow",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ana.ID,
			token:    anaTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "you cannot follow yourself"}),
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/api/social/follow/nope",
			token:    anaTkn,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name:     "request",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "follow request sent"}),
		},
		{
			name:     "request twice",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "follow request already sent"}),
		},
	})

	assert.Equal(t, social.Relationship{Requested: true}, status(t, anaTkn, ben.ID))
	assert.Equal(t, social.Relationship{RequestedBy: true}, status(t, benTkn, ana.ID))

	// ben sees the request and a pending notification
	req, rec := newAuthRequest(http.MethodGet, "/api/social/requests", benTkn)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var reqs []social.Request
	decode(t, rec, &reqs)
	require.Len(t, reqs, 1)
	assert.Equal(t, ana.Summary(), reqs[0].Requester)

	req, rec = newAuthRequest(http.MethodGet, "/api/notifications", benTkn)
	env.serve(req, rec)
	var notifs []notification.Notification
	decode(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeFollowRequest, notifs[0].Type)
	assert.Equal(t, notification.StatusPending, notifs[0].Status)
	assert.Equal(t, ana.ID, notifs[0].SenderID)

	env.run(t, []httpTest{
		{
			name:     "accept own request",
			method:   http.MethodPost,
			path:     "/api/social/accept/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "follow request not found"}),
		},
		{
			name:     "accept",
			method:   http.MethodPost,
			path:     "/api/social/accept/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "follow request accepted"}),
		},
		{
			name:     "accept twice",
			method:   http.MethodPost,
			path:     "/api/social/accept/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "request while following",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "already following this user"}),
		},
		{
			name:     "followers",
			path:     "/api/social/followers/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t, ana.Summary()),
		},
		{
			name:     "following",
			path:     "/api/social/following/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t, ben.Summary()),
		},
		{
			name:     "no more requests",
			path:     "/api/social/requests",
			token:    benTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
	})

	assert.Equal(t, social.Relationship{Following: true}, status(t, anaTkn, ben.ID))
	assert.Equal(t, social.Relationship{FollowedBy: true}, status(t, benTkn, ana.ID))

	// the request notification is resolved and ana is told
	req, rec = newAuthRequest(http.MethodGet, "/api/notifications", benTkn)
	env.serve(req, rec)
	notifs = nil
	decode(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.StatusAccepted, notifs[0].Status)
	assert.True(t, notifs[0].Read)

	req, rec = newAuthRequest(http.MethodGet, "/api/notifications", anaTkn)
	env.serve(req, rec)
	notifs = nil
	decode(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeFollowAccepted, notifs[0].Type)
	require.NotNil(t, notifs[0].Sender)
	assert.Equal(t, ben.Summary(), *notifs[0].Sender)

	env.run(t, []httpTest{
		{
			name:     "unfollow",
			method:   http.MethodPost,
			path:     "/api/social/unfollow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "unfollowed"}),
		},
		{
			name:     "unfollow twice",
			method:   http.MethodPost,
			path:     "/api/social/unfollow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "not following this user"}),
		},
		{
			name:     "followers after unfollow",
			path:     "/api/social/followers/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
	})
}

func TestSocialAPI_withdrawAndReject(t *testing.T) {
	env := setup(t)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	ben := env.createUser(t, "Ben", "ben", user.RoleStudent)
	anaTkn, benTkn := env.token(t, ana), env.token(t, ben)
	testutil.CreateFollowRequest(t, env.socialRepo, ana, ben)

	env.run(t, []httpTest{
		{
			name:     "withdraw",
			method:   http.MethodPost,
			path:     "/api/social/withdraw/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "follow request withdrawn"}),
		},
		{
			name:     "withdraw twice",
			method:   http.MethodPost,
			path:     "/api/social/withdraw/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "reject withdrawn",
			method:   http.MethodPost,
			path:     "/api/social/reject/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "request again",
			method:   http.MethodPost,
			path:     "/api/social/follow/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
		},
		{
			name:     "reject",
			method:   http.MethodPost,
			path:     "/api/social/reject/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "follow request rejected"}),
		},
		{
			name:     "status after reject",
			path:     "/api/social/status/" + ben.ID,
			token:    anaTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, social.Relationship{}),
		},
	})

	following, err := env.socialRepo.IsFollowing(context.Background(), ana.ID, ben.ID)
	require.NoError(t, err)
	assert.False(t, following)
}

func TestSocialAPI_removeFollower(t *testing.T) {
	env := setup(t)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	ben := env.createUser(t, "Ben", "ben", user.RoleStudent)
	testutil.CreateFollow(t, env.socialRepo, ana, ben)
	benTkn := env.token(t, ben)

	env.run(t, []httpTest{
		{
			name:     "remove",
			method:   http.MethodPost,
			path:     "/api/social/remove/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "follower removed"}),
		},
		{
			name:     "remove non follower",
			method:   http.MethodPost,
			path:     "/api/social/remove/" + ana.ID,
			token:    benTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "this user does not follow you"}),
		},
		{
			name:     "followers of unknown user",
			path:     "/api/social/followers/nope",
			token:    benTkn,
			wantCode: http.StatusNotFound,
		},
	})
}
