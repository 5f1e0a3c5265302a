package user

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
)

const (
	maxSearchResults  = 20
	maxFailedLogins   = 5
	maxOTPAttempts    = 5
	failedLoginWindow = 15 * time.Minute
	throttleCacheSize = 10000
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError(errors.New("user not found"))
	ErrOTPNotFound        = errors.New("otp not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSuspended          = core.NewForbiddenError("account suspended")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrNotFaculty         = errors.New("user is not a faculty member")

	studentLocalPartRegex = regexp.MustCompile(`^\d{10}$`)
)

// UnverifiedEmailError is returned on login while the account email is not verified yet.
type UnverifiedEmailError struct {
	Email string
}

func (err UnverifiedEmailError) Error() string {
	return "please verify your email before logging in"
}

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken by a user not in excludedIDs.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		GetUsersByID(ctx context.Context, ids []string) ([]User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		CountUsers(ctx context.Context, filter *QueryFilter) (int, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUser(ctx context.Context, id string, exec ...core.DBExecutor) error

		SaveOTP(ctx context.Context, otp OTP, exec ...core.DBExecutor) error
		GetOTP(ctx context.Context, userID, purpose string) (OTP, error)
		DeleteOTP(ctx context.Context, userID, purpose string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		conf     *core.Config
		otpSends *expirable.LRU[string, struct{}]
		failures *expirable.LRU[string, int]
		otpMiss  *expirable.LRU[string, int]
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	svc := &Service{
		repo:     repo,
		mailSvc:  mailSvc,
		conf:     conf,
		failures: expirable.NewLRU[string, int](throttleCacheSize, nil, failedLoginWindow),
		otpMiss:  expirable.NewLRU[string, int](throttleCacheSize, nil, conf.OTPTTL),
	}
	if conf.OTPResendInterval > 0 {
		svc.otpSends = expirable.NewLRU[string, struct{}](throttleCacheSize, nil, conf.OTPResendInterval)
	}
	return svc
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, excludedIDs...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

// checkSignupEmail restricts sign ups to university addresses.
// Students must use their 10 digit ID as the local part.
func (svc *Service) checkSignupEmail(email, role string) error {
	domain := svc.conf.AllowedEmailDomain
	at := strings.LastIndex(email, "@")
	if at <= 0 || email[at+1:] != domain {
		return core.NewValidationError(nil, core.FieldError{
			Field: "email",
			Error: fmt.Sprintf("only @%s email addresses are allowed", domain),
		})
	}
	if role == RoleStudent && !studentLocalPartRegex.MatchString(email[:at]) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "email",
			Error: "student email must start with your 10 digit university ID",
		})
	}
	return nil
}

// Register creates an unverified account and mails it a verification code.
// Signing up again with the email of an unverified account overwrites it.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := NowFunc().UTC()
	usr, err := svc.GetByEmail(ctx, nu.Email)
	switch {
	case err == nil && usr.IsEmailVerified:
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case err != nil && errors.Cause(err) != ErrNotFound:
		return User{}, errors.Wrap(err, "finding user by email")
	case err != nil:
		usr = User{CreatedAt: now}
	}

	usr.Name = nu.Name
	usr.Username = nu.Username
	usr.Email = nu.Email
	usr.Role = nu.Role
	usr.Department = nu.Department
	usr.College = nu.College
	usr.Major = nu.Major
	usr.Year = nu.Year
	usr.IsEmailVerified = false
	usr.IsVerified = nu.Role != RoleFaculty
	usr.UpdatedAt = now
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	if usr, err = svc.repo.UpdateOrCreateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "saving user")
	}
	if err = svc.sendOTP(ctx, usr, PurposeEmailVerification, true); err != nil {
		return User{}, errors.Wrap(err, "sending verification code")
	}
	return usr, nil
}

// VerifyEmail consumes the verification code of the account registered with email.
func (svc *Service) VerifyEmail(ctx context.Context, data VerifyEmail) (User, error) {
	usr, err := svc.GetByEmail(ctx, data.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(ErrInvalidOTP)
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if usr.IsEmailVerified {
		return User{}, core.NewValidationError(ErrAlreadyVerified)
	}
	if err = svc.consumeOTP(ctx, usr, PurposeEmailVerification, data.Code); err != nil {
		return User{}, err
	}

	usr.IsEmailVerified = true
	usr.LastLogin = NowFunc().UTC()
	usr.UpdatedAt = usr.LastLogin
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// ResendOTP mails a fresh verification code to an unverified account.
func (svc *Service) ResendOTP(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.IsEmailVerified {
		return core.NewValidationError(ErrAlreadyVerified)
	}
	if !svc.allowOTPSend(usr.Email, PurposeEmailVerification) {
		return core.ErrThrottled
	}
	return svc.sendOTP(ctx, usr, PurposeEmailVerification, false)
}

// Authenticate checks the credentials of a user identified by username or email.
// Too many failures from one client lock that client out of the identifier for a while.
func (svc *Service) Authenticate(ctx context.Context, identifier, pwd, clientIP string) (User, error) {
	identifier = core.CleanString(identifier, true /* lower */)
	key := identifier + "|" + clientIP
	if n, ok := svc.failures.Get(key); ok && n >= maxFailedLogins {
		return User{}, core.ErrThrottled
	}
	failed := func() (User, error) {
		n, _ := svc.failures.Get(key)
		svc.failures.Add(key, n+1)
		return User{}, ErrInvalidCredentials
	}

	usr, err := svc.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return failed()
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return failed()
	}
	svc.failures.Remove(key)

	if usr.IsSuspended {
		return User{}, ErrSuspended
	}
	if !usr.IsEmailVerified {
		if svc.allowOTPSend(usr.Email, PurposeEmailVerification) {
			if err = svc.sendOTP(ctx, usr, PurposeEmailVerification, false); err != nil {
				return User{}, errors.Wrap(err, "sending verification code")
			}
		}
		return User{}, UnverifiedEmailError{Email: usr.Email}
	}

	usr.LastLogin = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// RequestPasswordReset mails a reset code to a verified account.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsEmailVerified || usr.IsSuspended {
		return ErrNotFound
	}
	if !svc.allowOTPSend(usr.Email, PurposePasswordReset) {
		return core.ErrThrottled
	}
	return svc.sendOTP(ctx, usr, PurposePasswordReset, false)
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	usr, err := svc.GetByEmail(ctx, data.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrInvalidOTP)
		}
		return errors.Wrap(err, "finding user by email")
	}
	if err = PasswordPolicyError(data.Password, usr); err != nil {
		return err
	}
	if err = svc.consumeOTP(ctx, usr, PurposePasswordReset, data.Code); err != nil {
		return err
	}
	_, err = svc.SetPassword(ctx, usr, data.Password)
	return err
}

func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Summaries returns the public cards of the given users keyed by ID. Unknown IDs are skipped.
func (svc *Service) Summaries(ctx context.Context, ids ...string) (map[string]Summary, error) {
	ids = core.Unique(ids)
	sums := make(map[string]Summary, len(ids))
	if len(ids) == 0 {
		return sums, nil
	}
	users, err := svc.repo.GetUsersByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting users by ID")
	}
	for _, u := range users {
		sums[u.ID] = u.Summary()
	}
	return sums, nil
}

// Search looks up active users by name, username or department.
func (svc *Service) Search(ctx context.Context, q string) ([]Summary, error) {
	q = core.CleanString(q)
	if q == "" {
		return []Summary{}, nil
	}
	notSuspended, verified := false, true
	users, err := svc.repo.QueryUsers(
		ctx,
		&QueryFilter{Search: q, IsEmailVerified: &verified, IsSuspended: &notSuspended, Limit: maxSearchResults},
		[]core.DBOrdering{{Field: "name", Ascending: true}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	sums := make([]Summary, 0, len(users))
	for _, u := range users {
		sums = append(sums, u.Summary())
	}
	return sums, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	return svc.repo.CountUsers(ctx, filter)
}

func (svc *Service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) (User, error) {
	up.apply(&usr)
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) SetAvatar(ctx context.Context, usr User, url string) (User, error) {
	usr.Avatar = url
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) AdminUpdate(ctx context.Context, usr User, au AdminUpdateUser) (User, error) {
	au.apply(&usr)
	usr.UpdatedAt = NowFunc().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// VerifyFaculty approves a faculty account.
func (svc *Service) VerifyFaculty(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsFaculty() {
		return User{}, core.NewValidationError(ErrNotFaculty)
	}
	usr.IsVerified = true
	usr.UpdatedAt = NowFunc().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) PendingFaculty(ctx context.Context) ([]User, error) {
	verified := false
	return svc.Query(ctx, &QueryFilter{Roles: []string{RoleFaculty}, IsVerified: &verified}, nil)
}

func (svc *Service) allowOTPSend(email, purpose string) bool {
	if svc.otpSends == nil {
		return true
	}
	key := purpose + ":" + email
	if svc.otpSends.Contains(key) {
		return false
	}
	svc.otpSends.Add(key, struct{}{})
	return true
}

// sendOTP replaces the user's code for purpose and mails the new one.
func (svc *Service) sendOTP(ctx context.Context, usr User, purpose string, markSent bool) error {
	otp, code, err := newOTP(usr.ID, purpose, svc.conf.OTPTTL)
	if err != nil {
		return errors.Wrap(err, "generating otp")
	}
	if err = svc.repo.SaveOTP(ctx, otp); err != nil {
		return errors.Wrap(err, "saving otp")
	}
	svc.otpMiss.Remove(purpose + ":" + usr.ID)
	if markSent && svc.otpSends != nil {
		svc.otpSends.Add(purpose+":"+usr.Email, struct{}{})
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		TemplateName: "otp_verification",
		TemplateData: OTPMailData{Name: usr.Name, Code: code, ExpiresIn: formatTTL(svc.conf.OTPTTL)},
	}
	switch purpose {
	case PurposeEmailVerification:
		msg.Subject = "Verify your email"
	case PurposePasswordReset:
		msg.Subject = "Password reset code"
		msg.TemplateName = "password_reset"
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

// consumeOTP checks code against the user's current code for purpose.
// After maxOTPAttempts wrong guesses the code is revoked and a new one must be requested.
func (svc *Service) consumeOTP(ctx context.Context, usr User, purpose, code string) error {
	key := purpose + ":" + usr.ID
	if n, _ := svc.otpMiss.Get(key); n >= maxOTPAttempts {
		return core.ErrThrottled
	}
	otp, err := svc.repo.GetOTP(ctx, usr.ID, purpose)
	if err != nil {
		if errors.Cause(err) == ErrOTPNotFound {
			return core.NewValidationError(ErrInvalidOTP)
		}
		return errors.Wrap(err, "getting otp")
	}
	if err = otp.verify(code); err != nil {
		n, _ := svc.otpMiss.Get(key)
		svc.otpMiss.Add(key, n+1)
		if n+1 < maxOTPAttempts {
			return core.NewValidationError(err)
		}
		if err = svc.repo.DeleteOTP(ctx, usr.ID, purpose); err != nil && errors.Cause(err) != ErrOTPNotFound {
			return errors.Wrap(err, "revoking otp")
		}
		return core.ErrThrottled
	}
	svc.otpMiss.Remove(key)
	return errors.Wrap(svc.repo.DeleteOTP(ctx, usr.ID, purpose), "deleting otp")
}

func formatTTL(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}
