package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/klunity/klunity/apps/api/echo"
	"github.com/klunity/klunity/core/user"
	emailsvc "github.com/klunity/klunity/services/email"
	"github.com/klunity/klunity/testutil"
)

func newUserBody(uname, email, role string) map[string]string {
	return map[string]string{
		"name":             "Ravi Kumar",
		"username":         uname,
		"email":            email,
		"password":         "Campus#2024x",
		"password_confirm": "Campus#2024x",
		"role":             role,
		"department":       "CSE",
	}
}

func Test_userApi_register(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Taken", "taken", "")

	reserved := newUserBody("admin", "2100030001@kluniversity.in", user.RoleStudent)
	outsider := newUserBody("outsider", "ravi@gmail.com", user.RoleStudent)
	badID := newUserBody("badid", "ravi.kumar@kluniversity.in", user.RoleStudent)
	dupUname := newUserBody("taken", "2100030002@kluniversity.in", user.RoleStudent)
	badRole := newUserBody("ravi", "2100030001@kluniversity.in", user.RoleAdmin)
	mismatch := newUserBody("ravi", "2100030001@kluniversity.in", user.RoleStudent)
	mismatch["password_confirm"] = "Other#2024x"
	weak := newUserBody("ravi", "2100030001@kluniversity.in", user.RoleStudent)
	weak["password"], weak["password_confirm"] = "abc", "abc"

	tests := []httpTest{
		{
			name: "reserved username", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, reserved), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this username is reserved"}),
		},
		{
			name: "foreign email domain", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, outsider), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "only @kluniversity.in email addresses are allowed"}),
		},
		{
			name: "student email without university ID", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, badID), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "student email must start with your 10 digit university ID"}),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, dupUname), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
		{
			name: "admin role refused", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, badRole), wantCode: http.StatusBadRequest,
		},
		{
			name: "password mismatch", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, mismatch), wantCode: http.StatusBadRequest,
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/auth/register",
			body: marchallObj(t, weak), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 6 characters"}),
		},
	}
	env.run(t, tests)
	_, sent := emailsvc.LastSentMessage()
	assert.False(t, sent, "no code must be mailed for rejected sign ups")
}

func Test_userApi_signupFlow(t *testing.T) {
	env := setup(t)
	body := newUserBody("ravi_kumar", "2100030001@kluniversity.in", user.RoleStudent)
	login := marchallObj(t, echoapi.LoginRequest{Email: "ravi_kumar", Password: body["password"]})

	req, rec := newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, body))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := lastOTP(t)

	tests := []httpTest{
		{
			name: "login before verification", method: http.MethodPost, path: "/api/auth/login", body: login,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, map[string]interface{}{
				"error":                 "please verify your email before logging in",
				"requires_verification": true,
				"email":                 "2100030001@kluniversity.in",
			}),
		},
		{
			name: "resend throttled", method: http.MethodPost, path: "/api/auth/resend-otp",
			body:     marchallObj(t, map[string]string{"email": "2100030001@kluniversity.in"}),
			wantCode: http.StatusTooManyRequests,
			wantData: marchallObj(t, httpErr{Error: "too many requests, please try again later"}),
		},
		{
			name: "wrong code", method: http.MethodPost, path: "/api/auth/verify-email",
			body:     marchallObj(t, map[string]string{"email": "2100030001@kluniversity.in", "otp": wrongCode(code)}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired code"}),
		},
	}
	env.run(t, tests)

	// verification logs the user in
	req, rec = newRequest(http.MethodPost, "/api/auth/verify-email",
		marchallObj(t, map[string]string{"email": "2100030001@kluniversity.in", "otp": code}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.TokenResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.True(t, resp.User.IsEmailVerified)
	assert.True(t, resp.User.IsVerified)

	env.run(t, []httpTest{
		{
			name: "code is single use", method: http.MethodPost, path: "/api/auth/verify-email",
			body:     marchallObj(t, map[string]string{"email": "2100030001@kluniversity.in", "otp": code}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "email already verified"}),
		},
		{name: "login", method: http.MethodPost, path: "/api/auth/login", body: login, wantCode: http.StatusOK},
		{
			name: "login by email", method: http.MethodPost, path: "/api/auth/login", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Email: "2100030001@KLUniversity.in", Password: body["password"]}),
		},
	})
}

func Test_userApi_facultySignup(t *testing.T) {
	env := setup(t)
	body := newUserBody("prof_rao", "rao.cse@kluniversity.in", user.RoleFaculty)

	req, rec := newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, body))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "prof_rao"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleFaculty, usr.Role)
	assert.False(t, usr.IsVerified, "faculty need an admin's approval")
	assert.False(t, usr.IsEmailVerified)
}

func Test_userApi_reregisterUnverified(t *testing.T) {
	env := setup(t)

	first := newUserBody("ravi", "2100030001@kluniversity.in", user.RoleStudent)
	req, rec := newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, first))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	second := newUserBody("ravi_k", "2100030001@kluniversity.in", user.RoleStudent)
	req, rec = newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, second))
	env.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	usr, err := env.usrRepo.GetUser(context.Background(), user.GetFilter{Email: "2100030001@kluniversity.in"})
	require.NoError(t, err)
	assert.Equal(t, "ravi_k", usr.Username)

	count, err := env.usrRepo.CountUsers(context.Background(), &user.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Ravi", "ravi", "")
	suspended := env.createUser(t, "Sus", "sus", "")
	suspended.IsSuspended = true
	_, err := env.usrRepo.UpdateUser(context.Background(), suspended)
	require.NoError(t, err)

	creds := func(uname, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: uname, Password: pwd})
	}
	invalid := marchallObj(t, httpErr{Error: "invalid credentials"})

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/auth/login", body: []byte("{}"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{name: "unknown user", method: http.MethodPost, path: "/api/auth/login", body: creds("nobody", "x"), wantCode: http.StatusBadRequest, wantData: invalid},
		{name: "wrong password", method: http.MethodPost, path: "/api/auth/login", body: creds("ravi", "wrong"), wantCode: http.StatusBadRequest, wantData: invalid},
		{
			name: "suspended", method: http.MethodPost, path: "/api/auth/login", body: creds("sus", testutil.DefaultPassword),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account suspended"}),
		},
		{name: "success", method: http.MethodPost, path: "/api/auth/login", body: creds("ravi", testutil.DefaultPassword), wantCode: http.StatusOK},
	}
	env.run(t, tests)
}

func Test_userApi_loginLockout(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Ravi", "ravi", "")

	for i := 0; i < 5; i++ {
		req, rec := newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: "nope"}))
		env.serve(req, rec)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	req, rec := newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: testutil.DefaultPassword}))
	env.serve(req, rec)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// another client is not locked out
	req, rec = newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: testutil.DefaultPassword}))
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	env.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_userApi_resetPasswordGuessLimit(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "Ravi", "ravi", "")

	req, rec := newRequest(http.MethodPost, "/api/auth/forgot-password", marchallObj(t, map[string]string{"email": usr.Email}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	code := lastOTP(t)

	reset := func(code string) []byte {
		return marchallObj(t, map[string]string{"email": usr.Email, "otp": code, "password": "N3w.Secret99"})
	}
	tests := make([]httpTest, 0, 6)
	for i := 1; i < 5; i++ {
		tests = append(tests, httpTest{
			name: fmt.Sprintf("wrong code %d", i), method: http.MethodPost, path: "/api/auth/reset-password", body: reset(wrongCode(code)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid or expired code"}),
		})
	}
	tests = append(tests,
		httpTest{
			name: "last wrong code revokes", method: http.MethodPost, path: "/api/auth/reset-password", body: reset(wrongCode(code)),
			wantCode: http.StatusTooManyRequests,
		},
		httpTest{
			name: "right code after revocation", method: http.MethodPost, path: "/api/auth/reset-password", body: reset(code),
			wantCode: http.StatusTooManyRequests,
		},
		httpTest{
			name: "password unchanged", method: http.MethodPost, path: "/api/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: testutil.DefaultPassword}),
			wantCode: http.StatusOK,
		},
	)
	env.run(t, tests)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "Ravi", "ravi", "")
	generic := marchallObj(t, echoapi.SuccessResponse{
		Success: true,
		Message: "if an account exists for this email, a reset code has been sent",
	})

	env.run(t, []httpTest{
		{
			name: "unknown email", method: http.MethodPost, path: "/api/auth/forgot-password",
			body: marchallObj(t, map[string]string{"email": "ghost@kluniversity.in"}), wantCode: http.StatusOK, wantData: generic,
		},
		{
			name: "known email", method: http.MethodPost, path: "/api/auth/forgot-password",
			body: marchallObj(t, map[string]string{"email": usr.Email}), wantCode: http.StatusOK, wantData: generic,
		},
		{
			name: "throttled but silent", method: http.MethodPost, path: "/api/auth/forgot-password",
			body: marchallObj(t, map[string]string{"email": usr.Email}), wantCode: http.StatusOK, wantData: generic,
		},
	})

	code := lastOTP(t)
	reset := func(code, pwd string) []byte {
		return marchallObj(t, map[string]string{"email": usr.Email, "otp": code, "password": pwd})
	}

	env.run(t, []httpTest{
		{
			name: "wrong code", method: http.MethodPost, path: "/api/auth/reset-password", body: reset(wrongCode(code), "N3w.Secret99"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid or expired code"}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/auth/reset-password", body: reset(code, "a b c d e f"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password": "password must not contain whitespace"}),
		},
		{
			name: "reset", method: http.MethodPost, path: "/api/auth/reset-password", body: reset(code, "N3w.Secret99"),
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.SuccessResponse{Success: true, Message: "password updated"}),
		},
		{
			name: "old password rejected", method: http.MethodPost, path: "/api/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: testutil.DefaultPassword}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "new password accepted", method: http.MethodPost, path: "/api/auth/login",
			body:     marchallObj(t, echoapi.LoginRequest{Email: "ravi", Password: "N3w.Secret99"}),
			wantCode: http.StatusOK,
		},
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "Ravi", "ravi", "")

	env.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/auth/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", method: http.MethodPost, path: "/api/auth/token-refresh", token: "not.a.jwt",
			wantCode: http.StatusUnauthorized,
		},
		{name: "refresh", method: http.MethodPost, path: "/api/auth/token-refresh", token: env.token(t, usr), wantCode: http.StatusOK},
	})

	expired := echoapi.GetUserClaims(usr, env.conf, 1 /* oriat: 1970 */)
	token, err := echoapi.GenerateToken(expired, env.conf)
	require.NoError(t, err)
	env.run(t, []httpTest{
		{
			name: "refresh window over", method: http.MethodPost, path: "/api/auth/token-refresh", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})
}

func Test_userApi_profile(t *testing.T) {
	env := setup(t)
	ravi := env.createUser(t, "Ravi", "ravi", "")
	sita := env.createUser(t, "Sita", "sita", "")
	testutil.CreateFollow(t, env.socialRepo, sita, ravi)

	env.run(t, []httpTest{
		{name: "auth required", path: "/api/users/profile", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
	})

	req, rec := newAuthRequest(http.MethodGet, "/api/users/profile", env.token(t, ravi))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me echoapi.ProfileResponse
	decode(t, rec, &me)
	assert.Equal(t, ravi.ID, me.ID)
	assert.Equal(t, 1, me.Followers)
	assert.Equal(t, 0, me.Following)
	assert.Nil(t, me.Relationship)
	assert.NotContains(t, rec.Body.String(), "password")

	// update
	bio := "final year CSE"
	req, rec = newAuthRequest(http.MethodPut, "/api/users/profile", env.token(t, ravi),
		marchallObj(t, map[string]interface{}{"bio": "  " + bio + " ", "links": map[string]string{"github": "https://github.com/ravi"}}))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &me)
	assert.Equal(t, bio, me.Bio)
	assert.Equal(t, "https://github.com/ravi", me.Links.GitHub)
	assert.Equal(t, "ravi", me.Username)

	env.run(t, []httpTest{
		{
			name: "invalid link", method: http.MethodPut, path: "/api/users/profile", token: env.token(t, ravi),
			body:     marchallObj(t, map[string]interface{}{"links": map[string]string{"github": "not a url"}}),
			wantCode: http.StatusBadRequest,
		},
	})

	// public views
	req, rec = newAuthRequest(http.MethodGet, "/api/users/ravi", env.token(t, sita))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var other echoapi.ProfileResponse
	decode(t, rec, &other)
	require.NotNil(t, other.Relationship)
	assert.True(t, other.Relationship.Following)
	assert.False(t, other.Relationship.FollowedBy)

	req, rec = newRequest(http.MethodGet, "/api/users/id/"+ravi.ID)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var anon echoapi.ProfileResponse
	decode(t, rec, &anon)
	assert.Equal(t, ravi.ID, anon.ID)
	assert.Nil(t, anon.Relationship)

	env.run(t, []httpTest{
		{name: "unknown username", path: "/api/users/ghost", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"})},
		{name: "unknown id", path: "/api/users/id/ghost", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"})},
	})
}

func Test_userApi_search(t *testing.T) {
	env := setup(t)
	ravi := env.createUser(t, "Ravi Kumar", "ravi", "")
	raviT := env.createUser(t, "Ravi Teja", "teja", "")
	env.createUser(t, "Sita", "sita", "")
	hidden := env.createUser(t, "Ravi Hidden", "ravih", "")
	hidden.IsSuspended = true
	_, err := env.usrRepo.UpdateUser(context.Background(), hidden)
	require.NoError(t, err)

	token := env.token(t, ravi)
	env.run(t, []httpTest{
		{name: "auth required", path: "/api/users/search/query?q=ravi", wantCode: http.StatusUnauthorized},
		{name: "empty query", path: "/api/users/search/query?q=", token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "by name", path: "/api/users/search/query?q=RAVI", token: token, wantCode: http.StatusOK,
			wantData: marchallList(t, ravi.Summary(), raviT.Summary()),
		},
	})
}

func Test_userApi_uploadAvatar(t *testing.T) {
	env := setup(t)
	ravi := env.createUser(t, "Ravi", "ravi", "")
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	req, rec := newMultipartRequest(t, "/api/users/avatar", env.token(t, ravi), nil, "avatar", "me.txt", []byte("hello"))
	env.serve(req, rec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"avatar": "only jpeg, png, gif and webp images are accepted"}`, rec.Body.String())

	req, rec = newMultipartRequest(t, "/api/users/avatar", env.token(t, ravi), nil, "", "", nil)
	env.serve(req, rec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newMultipartRequest(t, "/api/users/avatar", env.token(t, ravi), nil, "avatar", "me.png", png)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Regexp(t, `^/media/avatars/[0-9a-f-]{36}\.png$`, usr.Avatar)

	// served back by the static handler
	req, rec = newRequest(http.MethodGet, usr.Avatar)
	env.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())
}

func Test_userApi_deletedAccountToken(t *testing.T) {
	env := setup(t)
	ravi := env.createUser(t, "Ravi", "ravi", "")
	token := env.token(t, ravi)
	require.NoError(t, env.usrRepo.DeleteUser(context.Background(), ravi.ID))

	env.run(t, []httpTest{
		{name: "deleted", path: "/api/users/profile", token: token, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
	})
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
