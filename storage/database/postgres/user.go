package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

type userRow struct {
	ID              string       `db:"id"`
	Name            string       `db:"name"`
	Username        string       `db:"username"`
	Email           string       `db:"email"`
	Role            string       `db:"role"`
	Department      string       `db:"department"`
	College         string       `db:"college"`
	Major           string       `db:"major"`
	Year            string       `db:"year"`
	Bio             string       `db:"bio"`
	Avatar          string       `db:"avatar"`
	LinkLinkedIn    string       `db:"link_linkedin"`
	LinkGitHub      string       `db:"link_github"`
	LinkPortfolio   string       `db:"link_portfolio"`
	LinkTwitter     string       `db:"link_twitter"`
	IsEmailVerified bool         `db:"is_email_verified"`
	IsVerified      bool         `db:"is_verified"`
	IsSuspended     bool         `db:"is_suspended"`
	PasswordHash    []byte       `db:"password_hash"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	LastLogin       sql.NullTime `db:"last_login"`
}

type otpRow struct {
	UserID    string    `db:"user_id"`
	Purpose   string    `db:"purpose"`
	CodeHash  []byte    `db:"code_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	userColumns = `id, name, username, email, role, department, college, major, year, bio, avatar,
		link_linkedin, link_github, link_portfolio, link_twitter, is_email_verified, is_verified, is_suspended,
		password_hash, created_at, updated_at, last_login`
	userValues = `:id, :name, :username, :email, :role, :department, :college, :major, :year, :bio, :avatar,
		:link_linkedin, :link_github, :link_portfolio, :link_twitter, :is_email_verified, :is_verified, :is_suspended,
		:password_hash, :created_at, :updated_at, :last_login`
)

var userOrderColumns = map[string]string{
	"name":         "name",
	"username":     "username",
	"email":        "email",
	"role":         "role",
	"department":   "department",
	"is_verified":  "is_verified",
	"is_suspended": "is_suspended",
	"created_at":   "created_at",
	"last_login":   "last_login",
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:              usr.ID,
		Name:            usr.Name,
		Username:        usr.Username,
		Email:           usr.Email,
		Role:            usr.Role,
		Department:      usr.Department,
		College:         usr.College,
		Major:           usr.Major,
		Year:            usr.Year,
		Bio:             usr.Bio,
		Avatar:          usr.Avatar,
		LinkLinkedIn:    usr.Links.LinkedIn,
		LinkGitHub:      usr.Links.GitHub,
		LinkPortfolio:   usr.Links.Portfolio,
		LinkTwitter:     usr.Links.Twitter,
		IsEmailVerified: usr.IsEmailVerified,
		IsVerified:      usr.IsVerified,
		IsSuspended:     usr.IsSuspended,
		PasswordHash:    usr.PasswordHash,
		CreatedAt:       usr.CreatedAt.UTC(),
		UpdatedAt:       usr.UpdatedAt.UTC(),
		LastLogin:       sql.NullTime{Time: usr.LastLogin.UTC(), Valid: !usr.LastLogin.IsZero()},
	}
}

func (repo *userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:         row.ID,
		Name:       row.Name,
		Username:   row.Username,
		Email:      row.Email,
		Role:       row.Role,
		Department: row.Department,
		College:    row.College,
		Major:      row.Major,
		Year:       row.Year,
		Bio:        row.Bio,
		Avatar:     row.Avatar,
		Links: user.Links{
			LinkedIn:  row.LinkLinkedIn,
			GitHub:    row.LinkGitHub,
			Portfolio: row.LinkPortfolio,
			Twitter:   row.LinkTwitter,
		},
		IsEmailVerified: row.IsEmailVerified,
		IsVerified:      row.IsVerified,
		IsSuspended:     row.IsSuspended,
		PasswordHash:    row.PasswordHash,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo *userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo *userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique violations to the matching user error.
func (repo *userRepository) trapUniqueErr(err error, msg string) error {
	switch constraint, _ := uniqueConstraint(err); constraint {
	case "users_username_key":
		return user.ErrUsernameExists
	case "users_email_key":
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := `SELECT username, email FROM users WHERE (username = $1 OR email = $2) AND NOT (id = ANY($3::uuid[]))`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, username, email, stringArray(excludedIDs)); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username == username {
			return user.ErrUsernameExists
		}
	}
	for _, row := range rows {
		if email != "" && row.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.NewString()
	q := `INSERT INTO users (` + userColumns + `) VALUES (` + userValues + `)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(usr)); err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		cond string
		arg  string
	)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		cond, arg = "id = $1", filter.ID
	case filter.Username != "":
		cond, arg = "username = $1", filter.Username
	case filter.Email != "":
		cond, arg = "email = $1", filter.Email
	case filter.UsernameOrEmail != "":
		cond, arg = "(username = $1 OR email = $1)", filter.UsernameOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + cond + ` LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, arg); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return repo.fromRow(row), nil
}

func (repo *userRepository) GetUsersByID(ctx context.Context, ids []string) ([]user.User, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []user.User{}, nil
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1::uuid[])`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, stringArray(valid)); err != nil {
		return nil, errors.Wrap(err, "getting users by ID")
	}
	return repo.fromRows(rows), nil
}

func (repo *userRepository) filter(filter *user.QueryFilter) *where {
	w := new(where)
	if filter == nil {
		return w
	}
	// users with Name, Username, Email or Department matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ? OR department ILIKE ?)", val, val, val, val)
	}
	if len(filter.Roles) > 0 {
		w.add("role = ANY(?)", stringArray(filter.Roles))
	}
	if filter.IsEmailVerified != nil {
		w.add("is_email_verified = ?", *filter.IsEmailVerified)
	}
	if filter.IsVerified != nil {
		w.add("is_verified = ?", *filter.IsVerified)
	}
	if filter.IsSuspended != nil {
		w.add("is_suspended = ?", *filter.IsSuspended)
	}
	if !filter.ActiveSince.IsZero() {
		w.add("last_login >= ?", filter.ActiveSince.UTC())
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}
	return w
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	w := repo.filter(filter)
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + orderBy(ordering, userOrderColumns, "id")
	if filter != nil && filter.Limit > 0 {
		q += " LIMIT " + w.next(filter.Limit)
	}

	var rows []userRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.fromRows(rows), nil
}

func (repo *userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter) (int, error) {
	w := repo.filter(filter)
	var count int
	if err := sqlx.GetContext(ctx, repo.db, &count, `SELECT COUNT(*) FROM users`+w.String(), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return count, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE users SET name = :name, username = :username, email = :email, role = :role,
		department = :department, college = :college, major = :major, year = :year, bio = :bio, avatar = :avatar,
		link_linkedin = :link_linkedin, link_github = :link_github, link_portfolio = :link_portfolio,
		link_twitter = :link_twitter, is_email_verified = :is_email_verified, is_verified = :is_verified,
		is_suspended = :is_suspended, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, repo.toRow(usr))
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	if rowsAffected(res) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return user.ErrNotFound
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if rowsAffected(res) == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) SaveOTP(ctx context.Context, otp user.OTP, exec ...core.DBExecutor) error {
	q := `INSERT INTO otp_codes (user_id, purpose, code_hash, expires_at, created_at)
		VALUES (:user_id, :purpose, :code_hash, :expires_at, :created_at)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`
	row := otpRow{
		UserID:    otp.UserID,
		Purpose:   otp.Purpose,
		CodeHash:  otp.CodeHash,
		ExpiresAt: otp.ExpiresAt.UTC(),
		CreatedAt: otp.CreatedAt.UTC(),
	}
	_, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, row)
	return errors.Wrap(err, "saving otp")
}

func (repo *userRepository) GetOTP(ctx context.Context, userID, purpose string) (user.OTP, error) {
	if !isUUID(userID) {
		return user.OTP{}, user.ErrOTPNotFound
	}
	var row otpRow
	q := `SELECT user_id, purpose, code_hash, expires_at, created_at FROM otp_codes WHERE user_id = $1 AND purpose = $2`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, userID, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.OTP{}, user.ErrOTPNotFound
		}
		return user.OTP{}, errors.Wrap(err, "getting otp")
	}
	return user.OTP{
		UserID:    row.UserID,
		Purpose:   row.Purpose,
		CodeHash:  row.CodeHash,
		ExpiresAt: row.ExpiresAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (repo *userRepository) DeleteOTP(ctx context.Context, userID, purpose string, exec ...core.DBExecutor) error {
	_, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM otp_codes WHERE user_id = $1 AND purpose = $2`, userID, purpose)
	return errors.Wrap(err, "deleting otp")
}
