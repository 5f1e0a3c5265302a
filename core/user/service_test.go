package user_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
	emailsvc "github.com/klunity/klunity/services/email"
	logsvc "github.com/klunity/klunity/services/logger"
	inmemdb "github.com/klunity/klunity/storage/database/inmem"
)

func newService(t *testing.T) *user.Service {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	core.ParseEmailTemplates(conf, logger)

	genOTP := user.GenerateOTPFunc
	user.GenerateOTPFunc = func() (string, error) { return "424242", nil }
	t.Cleanup(func() { user.GenerateOTPFunc = genOTP })

	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
}

func TestService_VerifyEmailGuessLimit(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	usr, err := svc.Register(ctx, user.NewUser{
		Name:       "Ravi",
		Username:   "ravi",
		Email:      "2100031234@kluniversity.in",
		Password:   "Campus#2024x",
		Role:       user.RoleStudent,
		Department: "CSE",
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "000000"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, user.ErrInvalidOTP, vErr.Err)
	}
	_, err = svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "000000"})
	assert.Equal(t, core.ErrThrottled, err)

	_, err = svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "424242"})
	assert.Equal(t, core.ErrThrottled, err)

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.False(t, got.IsEmailVerified)
}

func TestService_AuthenticateLockoutPerClient(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	usr, err := svc.Register(ctx, user.NewUser{
		Name:       "Ravi",
		Username:   "ravi",
		Email:      "2100031234@kluniversity.in",
		Password:   "Campus#2024x",
		Role:       user.RoleStudent,
		Department: "CSE",
	})
	require.NoError(t, err)
	_, err = svc.VerifyEmail(ctx, user.VerifyEmail{Email: usr.Email, Code: "424242"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.Authenticate(ctx, "ravi", "wrong", "203.0.113.9")
		assert.Equal(t, user.ErrInvalidCredentials, err)
	}
	_, err = svc.Authenticate(ctx, "ravi", "Campus#2024x", "203.0.113.9")
	assert.Equal(t, core.ErrThrottled, err)

	got, err := svc.Authenticate(ctx, "RAVI", "Campus#2024x", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
}

func TestService_SearchSkipsUnverified(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	register := func(name, username, email string) user.User {
		usr, err := svc.Register(ctx, user.NewUser{
			Name:       name,
			Username:   username,
			Email:      email,
			Password:   "Campus#2024x",
			Role:       user.RoleStudent,
			Department: "CSE",
		})
		require.NoError(t, err)
		return usr
	}

	// more pending sign-ups than a page of results, all sorting before the verified user
	for i := 0; i < 25; i++ {
		register(fmt.Sprintf("Ravi A%02d", i), fmt.Sprintf("ravi_a%02d", i), fmt.Sprintf("21000312%02d@kluniversity.in", i))
	}
	verified := register("Ravi Z", "ravi_z", "2100039999@kluniversity.in")
	_, err := svc.VerifyEmail(ctx, user.VerifyEmail{Email: verified.Email, Code: "424242"})
	require.NoError(t, err)

	sums, err := svc.Search(ctx, "ravi")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, verified.ID, sums[0].ID)
}
