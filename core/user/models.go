package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/klunity/klunity/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

var (
	SignupRoles = []string{RoleStudent, RoleFaculty}
	AllRoles    = []string{RoleStudent, RoleFaculty, RoleAdmin}
)

type Links struct {
	LinkedIn  string `json:"linkedin" validate:"omitempty,url,max=255"`
	GitHub    string `json:"github" validate:"omitempty,url,max=255"`
	Portfolio string `json:"portfolio" validate:"omitempty,url,max=255"`
	Twitter   string `json:"twitter" validate:"omitempty,url,max=255"`
}

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Department      string    `json:"department"`
	College         string    `json:"college"`
	Major           string    `json:"major"`
	Year            string    `json:"year"`
	Bio             string    `json:"bio"`
	Avatar          string    `json:"avatar"`
	Links           Links     `json:"links"`
	IsEmailVerified bool      `json:"is_email_verified"`
	IsVerified      bool      `json:"is_verified"` // faculty accounts need an admin's approval
	IsSuspended     bool      `json:"is_suspended"`
	PasswordHash    []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
	LastLogin       time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsFaculty() bool { return u.Role == RoleFaculty }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Summary returns the public card of the user embedded in other resources.
func (u *User) Summary() Summary {
	return Summary{
		ID:         u.ID,
		Name:       u.Name,
		Username:   u.Username,
		Avatar:     u.Avatar,
		Role:       u.Role,
		Department: u.Department,
		IsVerified: u.IsVerified,
	}
}

type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar"`
	Role       string `json:"role"`
	Department string `json:"department"`
	IsVerified bool   `json:"is_verified"`
}

// NewUser contains information needed to sign up.
type NewUser struct {
	Name            string `json:"name" validate:"required,notblank,max=100"`
	Username        string `json:"username" validate:"required,min=3,max=30,alphanum_"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"required,oneof=student faculty"`
	Department      string `json:"department" validate:"required,notblank,max=100"`
	College         string `json:"college" validate:"max=100"`
	Major           string `json:"major" validate:"max=100"`
	Year            string `json:"year" validate:"max=20"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.College = core.CleanString(nu.College)
	nu.Major = core.CleanString(nu.Major)
	nu.Year = core.CleanString(nu.Year)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if err := svc.checkSignupEmail(nu.Email, nu.Role); err != nil {
		return err
	}

	// an unverified account may sign up again with the same email
	var excluded []string
	if usr, err := svc.GetByEmail(ctx, nu.Email); err == nil && !usr.IsEmailVerified {
		excluded = append(excluded, usr.ID)
	}
	return svc.checkUniqueness(ctx, nu.Username, nu.Email, excluded...)
}

// UpdateProfile defines what a user may change on their own profile.
type UpdateProfile struct {
	Name       *string `json:"name" validate:"omitempty,notblank,max=100"`
	Department *string `json:"department" validate:"omitempty,notblank,max=100"`
	College    *string `json:"college" validate:"omitempty,max=100"`
	Major      *string `json:"major" validate:"omitempty,max=100"`
	Year       *string `json:"year" validate:"omitempty,max=20"`
	Bio        *string `json:"bio" validate:"omitempty,max=500"`
	Links      *Links  `json:"links"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	cleanPtr(up.Name, up.Department, up.College, up.Major, up.Year, up.Bio)
	if up.Links != nil {
		up.Links.clean()
	}
	return validate.Struct(up)
}

func (up *UpdateProfile) apply(usr *User) {
	setIfNotNil(&usr.Name, up.Name)
	setIfNotNil(&usr.Department, up.Department)
	setIfNotNil(&usr.College, up.College)
	setIfNotNil(&usr.Major, up.Major)
	setIfNotNil(&usr.Year, up.Year)
	setIfNotNil(&usr.Bio, up.Bio)
	if up.Links != nil {
		usr.Links = *up.Links
	}
}

// AdminUpdateUser defines what an admin may change on any account.
type AdminUpdateUser struct {
	UpdateProfile
	Username        *string `json:"username" validate:"omitempty,min=3,max=30,alphanum_"`
	Email           *string `json:"email" validate:"omitempty,email,max=255"`
	Role            *string `json:"role" validate:"omitempty,oneof=student faculty admin"`
	IsSuspended     *bool   `json:"is_suspended"`
	IsEmailVerified *bool   `json:"is_email_verified"`
	IsVerified      *bool   `json:"is_verified"`
}

func (au *AdminUpdateUser) Validate(ctx context.Context, validate *validator.Validate, orig User, svc *Service) error {
	if err := au.UpdateProfile.Validate(validate); err != nil {
		return err
	}
	if au.Username != nil {
		*au.Username = core.CleanString(*au.Username, true /* lower */)
	}
	if au.Email != nil {
		*au.Email = core.CleanString(*au.Email, true /* lower */)
	}
	if au.Role != nil {
		*au.Role = core.CleanString(*au.Role, true /* lower */)
	}
	if err := validate.Struct(au); err != nil {
		return err
	}

	uname, email := orig.Username, orig.Email
	if au.Username != nil {
		uname = *au.Username
	}
	if au.Email != nil {
		email = *au.Email
	}
	return svc.checkUniqueness(ctx, uname, email, orig.ID)
}

func (au *AdminUpdateUser) apply(usr *User) {
	au.UpdateProfile.apply(usr)
	setIfNotNil(&usr.Username, au.Username)
	setIfNotNil(&usr.Email, au.Email)
	setIfNotNil(&usr.Role, au.Role)
	if au.IsSuspended != nil {
		usr.IsSuspended = *au.IsSuspended
	}
	if au.IsEmailVerified != nil {
		usr.IsEmailVerified = *au.IsEmailVerified
	}
	if au.IsVerified != nil {
		usr.IsVerified = *au.IsVerified
	}
}

type VerifyEmail struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"otp" validate:"required,len=6,numeric"`
}

func (ve *VerifyEmail) Validate(validate *validator.Validate) error {
	ve.Email = core.CleanString(ve.Email, true /* lower */)
	ve.Code = core.CleanString(ve.Code)
	return validate.Struct(ve)
}

type ResetUserPassword struct {
	Email           string `json:"email" validate:"required,email"`
	Code            string `json:"otp" validate:"required,len=6,numeric"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"omitempty,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	rp.Code = core.CleanString(rp.Code)
	return validate.Struct(rp)
}

// GetFilter selects a single user; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search          string
	Roles           []string
	IsEmailVerified *bool
	IsVerified      *bool
	IsSuspended     *bool
	ActiveSince     time.Time
	CreatedFrom     time.Time
	CreatedTo       time.Time
	Limit           int
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsEmailVerified == nil && qf.IsVerified == nil && qf.IsSuspended == nil &&
		qf.ActiveSince.IsZero() && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := qf.Roles[:0]
	for _, r := range qf.Roles {
		if r = core.CleanString(r, true /* lower */); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		roles = nil
	}
	qf.Roles = roles
}

// Match reports whether usr satisfies every set field of the filter.
// Search does a case-insensitive match on one of Name, Username, Email or Department.
func (qf *QueryFilter) Match(usr User) bool {
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(usr.Username, s) ||
			strings.Contains(usr.Email, s) ||
			strings.Contains(strings.ToLower(usr.Department), s)) {
			return false
		}
	}
	if len(qf.Roles) > 0 {
		var found bool
		for _, r := range qf.Roles {
			if usr.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsEmailVerified != nil && usr.IsEmailVerified != *qf.IsEmailVerified {
		return false
	}
	if qf.IsVerified != nil && usr.IsVerified != *qf.IsVerified {
		return false
	}
	if qf.IsSuspended != nil && usr.IsSuspended != *qf.IsSuspended {
		return false
	}
	if !qf.ActiveSince.IsZero() && usr.LastLogin.Before(qf.ActiveSince) {
		return false
	}
	if !qf.CreatedFrom.IsZero() && usr.CreatedAt.Before(qf.CreatedFrom) {
		return false
	}
	if !qf.CreatedTo.IsZero() && usr.CreatedAt.After(qf.CreatedTo) {
		return false
	}
	return true
}

func (l *Links) clean() {
	l.LinkedIn = core.CleanString(l.LinkedIn)
	l.GitHub = core.CleanString(l.GitHub)
	l.Portfolio = core.CleanString(l.Portfolio)
	l.Twitter = core.CleanString(l.Twitter)
}

func cleanPtr(ss ...*string) {
	for _, s := range ss {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
}

func setIfNotNil(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
