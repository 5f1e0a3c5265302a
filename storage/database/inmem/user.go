package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

type userRepository struct {
	db  *userTable
	seq func() int64
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user, seq: db.nextSeq}
}

func (repo *userRepository) query() []userRow {
	rows := make([]userRow, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		rows = append(rows, *r)
	}
	return rows
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}
	for _, r := range repo.db.table {
		if _, ok := excluded[r.usr.ID]; ok {
			continue
		}
		if username != "" && r.usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && r.usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.NewString()
	repo.db.table[usr.ID] = &userRow{usr: usr, seq: repo.seq()}
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if r, ok := repo.db.table[filter.ID]; ok {
			return r.usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, r := range repo.db.table {
		u := r.usr
		switch {
		case filter.Username != "":
			if u.Username == filter.Username {
				return u, nil
			}
		case filter.Email != "":
			if u.Email == filter.Email {
				return u, nil
			}
		case filter.UsernameOrEmail != "":
			if u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail {
				return u, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(_ context.Context, ids []string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(ids))
	for _, id := range ids {
		if r, ok := repo.db.table[id]; ok {
			users = append(users, r.usr)
		}
	}
	return users, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := repo.query()
	sort.Slice(rows, func(i, j int) bool { return lessUsers(rows[i], rows[j], ordering) })

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		if filter == nil || filter.Match(r.usr) {
			users = append(users, r.usr)
		}
		if filter != nil && filter.Limit > 0 && len(users) == filter.Limit {
			break
		}
	}
	return users, nil
}

func (repo *userRepository) CountUsers(ctx context.Context, filter *user.QueryFilter) (int, error) {
	if filter != nil {
		f := *filter
		f.Limit = 0
		filter = &f
	}
	users, err := repo.QueryUsers(ctx, filter, nil)
	return len(users), err
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.CreatedAt = r.usr.CreatedAt
	r.usr = usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUser(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *userRepository) SaveOTP(_ context.Context, otp user.OTP, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.otps[pairKey(otp.UserID, otp.Purpose)] = otp
	return nil
}

func (repo *userRepository) GetOTP(_ context.Context, userID, purpose string) (user.OTP, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if otp, ok := repo.db.otps[pairKey(userID, purpose)]; ok {
		return otp, nil
	}
	return user.OTP{}, user.ErrOTPNotFound
}

func (repo *userRepository) DeleteOTP(_ context.Context, userID, purpose string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.otps, pairKey(userID, purpose))
	return nil
}

func lessUsers(a, b userRow, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var c int
		switch ord.Field {
		case "name":
			c = compareStrings(a.usr.Name, b.usr.Name)
		case "username":
			c = compareStrings(a.usr.Username, b.usr.Username)
		case "email":
			c = compareStrings(a.usr.Email, b.usr.Email)
		case "role":
			c = compareStrings(a.usr.Role, b.usr.Role)
		case "department":
			c = compareStrings(a.usr.Department, b.usr.Department)
		case "is_verified":
			c = compareBools(a.usr.IsVerified, b.usr.IsVerified)
		case "is_suspended":
			c = compareBools(a.usr.IsSuspended, b.usr.IsSuspended)
		case "created_at":
			c = compareTimes(a.usr.CreatedAt, b.usr.CreatedAt)
		case "last_login":
			c = compareTimes(a.usr.LastLogin, b.usr.LastLogin)
		}
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return a.seq < b.seq
}
