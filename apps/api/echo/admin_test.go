package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/klunity/klunity/apps/api/echo"
	"github.com/klunity/klunity/core/moderation"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/story"
	"github.com/klunity/klunity/core/user"
	"github.com/klunity/klunity/testutil"
)

func usernames(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

func TestAdminAPI_access(t *testing.T) {
	env := setup(t)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	dr := env.createUser(t, "Dr Rao", "rao", user.RoleFaculty)

	paths := []string{"/api/admin/stats", "/api/admin/users", "/api/admin/faculty/pending", "/api/admin/blacklist", "/api/contact"}
	for _, path := range paths {
		env.run(t, []httpTest{
			{
				name:     "anonymous " + path,
				path:     path,
				wantCode: http.StatusUnauthorized,
				wantData: marchallObj(t, errMissingToken),
			},
			{
				name:     "student " + path,
				path:     path,
				token:    env.token(t, ana),
				wantCode: http.StatusForbidden,
				wantData: marchallObj(t, httpErr{Error: "permission denied"}),
			},
			{
				name:     "faculty " + path,
				path:     path,
				token:    env.token(t, dr),
				wantCode: http.StatusForbidden,
			},
		})
	}
}

func TestAdminAPI_stats(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "Admin", "root", user.RoleAdmin)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	testutil.CreateUser(t, env.usrRepo, "Dr Rao", "rao", "rao@kluniversity.in", user.RoleFaculty, false)
	testutil.CreateUser(t, env.usrRepo, "Dr Iyer", "iyer", "iyer@kluniversity.in", user.RoleFaculty, true)
	env.createStory(t, env.token(t, ana), story.NewStory{Title: "One", Content: "1"})
	env.createStory(t, env.token(t, ana), story.NewStory{Title: "Two", Content: "2"})

	req, rec := newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, LoginRequest{Email: "ana", Password: testutil.DefaultPassword}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env.run(t, []httpTest{
		{
			name:     "stats",
			path:     "/api/admin/stats",
			token:    env.token(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, StatsResponse{Users: 4, Stories: 2, ActiveToday: 1, PendingFaculty: 1}),
		},
	})
}

func TestAdminAPI_users(t *testing.T) {
	env := setup(t)
	now := time.Now().UTC()
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "root", "root@kluniversity.in", user.RoleAdmin, true, now.Add(-72*time.Hour))
	testutil.CreateUser(t, env.usrRepo, "Zoe", "zoe", "2100030001@kluniversity.in", user.RoleStudent, true, now.Add(-48*time.Hour))
	testutil.CreateUser(t, env.usrRepo, "Dr Rao", "rao", "rao@kluniversity.in", user.RoleFaculty, false, now.Add(-24*time.Hour))
	ben := testutil.CreateUser(t, env.usrRepo, "Ben", "ben", "2100030002@kluniversity.in", user.RoleStudent, true, now)
	adminTkn := env.token(t, admin)

	query := func(t *testing.T, q string) []string {
		req, rec := newAuthRequest(http.MethodGet, "/api/admin/users"+q, adminTkn)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		decode(t, rec, &users)
		return usernames(users)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"newest first", "", []string{"ben", "rao", "zoe", "root"}},
		{"ordering", "?ordering=username", []string{"ben", "rao", "root", "zoe"}},
		{"ordering desc", "?ordering=-role,name", []string{"ben", "zoe", "rao", "root"}},
		{"role", "?role=faculty", []string{"rao"}},
		{"roles", "?role=faculty,admin", []string{"rao", "root"}},
		{"repeated roles", "?role=admin&role=student", []string{"ben", "zoe", "root"}},
		{"search", "?search=2100030", []string{"ben", "zoe"}},
		{"search name", "?search=DR", []string{"rao"}},
		{"unverified", "?is_verified=false", []string{"rao"}},
		{"created from", "?created_from=" + now.Add(-30*time.Hour).Format(time.RFC3339), []string{"ben", "rao"}},
		{"created to", "?created_to=" + now.Add(-30*time.Hour).Format(time.RFC3339), []string{"zoe", "root"}},
		{"suspended", "?is_suspended=true", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, query(t, tt.query))
		})
	}

	// update
	benTkn := env.token(t, ben)
	env.run(t, []httpTest{
		{
			name:     "suspend self",
			method:   http.MethodPut,
			path:     "/api/admin/users/" + admin.ID,
			body:     []byte(`{"is_suspended": true}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "you cannot suspend your own account"}),
		},
		{
			name:     "unknown user",
			method:   http.MethodPut,
			path:     "/api/admin/users/nope",
			body:     []byte(`{"bio": "x"}`),
			token:    adminTkn,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "username taken",
			method:   http.MethodPut,
			path:     "/api/admin/users/" + ben.ID,
			body:     []byte(`{"username": "ZOE"}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "a user with this username already exists"}`),
		},
		{
			name:     "invalid role",
			method:   http.MethodPut,
			path:     "/api/admin/users/" + ben.ID,
			body:     []byte(`{"role": "janitor"}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "ben is active",
			path:     "/api/users/profile",
			token:    benTkn,
			wantCode: http.StatusOK,
		},
	})

	req, rec := newAuthRequest(http.MethodPut, "/api/admin/users/"+ben.ID, adminTkn, []byte(`{"is_suspended": true, "department": " ECE "}`))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated user.User
	decode(t, rec, &updated)
	assert.True(t, updated.IsSuspended)
	assert.Equal(t, "ECE", updated.Department)
	assert.Equal(t, ben.Username, updated.Username)

	env.run(t, []httpTest{
		{
			name:     "suspended token",
			path:     "/api/users/profile",
			token:    benTkn,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account suspended"}),
		},
		{
			name:     "suspended login",
			method:   http.MethodPost,
			path:     "/api/auth/login",
			body:     marchallObj(t, LoginRequest{Email: "ben", Password: testutil.DefaultPassword}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account suspended"}),
		},
	})
	assert.Equal(t, []string{"ben"}, query(t, "?is_suspended=true"))

	// lifting the suspension
	req, rec = newAuthRequest(http.MethodPut, "/api/admin/users/"+ben.ID, adminTkn, []byte(`{"is_suspended": false}`))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	req, rec = newAuthRequest(http.MethodGet, "/api/users/profile", benTkn)
	env.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAPI_messageAndFollow(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "Admin", "root", user.RoleAdmin)
	cal := env.createUser(t, "Cal", "cal", user.RoleStudent)
	adminTkn, calTkn := env.token(t, admin), env.token(t, cal)
	testutil.CreateFollowRequest(t, env.socialRepo, admin, cal)

	env.run(t, []httpTest{
		{
			name:     "message unknown user",
			method:   http.MethodPost,
			path:     "/api/admin/users/nope/message",
			body:     []byte(`{"content": "hi"}`),
			token:    adminTkn,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "blank message",
			method:   http.MethodPost,
			path:     "/api/admin/users/" + cal.ID + "/message",
			body:     []byte(`{"content": ""}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "message",
			method:   http.MethodPost,
			path:     "/api/admin/users/" + cal.ID + "/message",
			body:     []byte(`{"content": "Please update your department"}`),
			token:    adminTkn,
			wantCode: http.StatusCreated,
		},
		{
			name:     "follow self",
			method:   http.MethodPost,
			path:     "/api/admin/users/" + admin.ID + "/follow",
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "follow",
			method:   http.MethodPost,
			path:     "/api/admin/users/" + cal.ID + "/follow",
			token:    adminTkn,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: true, Message: "now following"}),
		},
		{
			name:     "follow twice",
			method:   http.MethodPost,
			path:     "/api/admin/users/" + cal.ID + "/follow",
			token:    adminTkn,
			wantCode: http.StatusOK,
		},
		{
			name:     "followers",
			path:     "/api/social/followers/" + cal.ID,
			token:    calTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t, admin.Summary()),
		},
		{
			name:     "request is gone",
			path:     "/api/social/requests",
			token:    calTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
		{
			name:     "message is in the inbox",
			path:     "/api/messages/unread",
			token:    calTkn,
			wantCode: http.StatusOK,
			wantData: []byte(`{"count": 1}`),
		},
	})

	req, rec := newAuthRequest(http.MethodGet, "/api/notifications", calTkn)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []notification.Notification
	decode(t, rec, &notifs)
	require.Len(t, notifs, 1)
	assert.Equal(t, notification.TypeAdminMessage, notifs[0].Type)
	assert.Equal(t, "Please update your department", notifs[0].Message)
	assert.Equal(t, admin.ID, notifs[0].SenderID)
}

func TestAdminAPI_faculty(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "Admin", "root", user.RoleAdmin)
	ana := env.createUser(t, "Ana", "ana", user.RoleStudent)
	rao := testutil.CreateUser(t, env.usrRepo, "Dr Rao", "rao", "rao@kluniversity.in", user.RoleFaculty, false)
	adminTkn := env.token(t, admin)

	env.run(t, []httpTest{
		{
			name:     "pending",
			path:     "/api/admin/faculty/pending",
			token:    adminTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t, rao),
		},
		{
			name:     "verify a student",
			method:   http.MethodPut,
			path:     "/api/admin/faculty/verify/" + ana.ID,
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "user is not a faculty member"}),
		},
		{
			name:     "verify unknown",
			method:   http.MethodPut,
			path:     "/api/admin/faculty/verify/nope",
			token:    adminTkn,
			wantCode: http.StatusNotFound,
		},
	})

	req, rec := newAuthRequest(http.MethodPut, "/api/admin/faculty/verify/"+rao.ID, adminTkn)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got user.User
	decode(t, rec, &got)
	assert.True(t, got.IsVerified)
	assert.Equal(t, rao.ID, got.ID)

	env.run(t, []httpTest{
		{
			name:     "no more pending",
			path:     "/api/admin/faculty/pending",
			token:    adminTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
	})
}

func TestAdminAPI_blacklist(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "Admin", "root", user.RoleAdmin)
	adminTkn := env.token(t, admin)

	req, rec := newAuthRequest(http.MethodPost, "/api/admin/blacklist", adminTkn, []byte(`{"word": " Spoiler "}`))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var w moderation.Word
	decode(t, rec, &w)
	assert.Equal(t, "spoiler", w.Word)
	assert.Equal(t, admin.ID, w.AddedBy)

	env.run(t, []httpTest{
		{
			name:     "duplicate",
			method:   http.MethodPost,
			path:     "/api/admin/blacklist",
			body:     []byte(`{"word": "SPOILER"}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"word": "word already blacklisted"}`),
		},
		{
			name:     "blank",
			method:   http.MethodPost,
			path:     "/api/admin/blacklist",
			body:     []byte(`{"word": "  "}`),
			token:    adminTkn,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "list",
			path:     "/api/admin/blacklist",
			token:    adminTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t, w),
		},
		{
			name:     "remove",
			method:   http.MethodDelete,
			path:     "/api/admin/blacklist/" + w.ID,
			token:    adminTkn,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "remove twice",
			method:   http.MethodDelete,
			path:     "/api/admin/blacklist/" + w.ID,
			token:    adminTkn,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "word not found"}),
		},
		{
			name:     "empty list",
			path:     "/api/admin/blacklist",
			token:    adminTkn,
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
	})
}
