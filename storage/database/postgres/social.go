package pgrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/social"
)

type followRequestRow struct {
	RequesterID string    `db:"requester_id"`
	TargetID    string    `db:"target_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type followRow struct {
	FollowerID string    `db:"follower_id"`
	FolloweeID string    `db:"followee_id"`
	CreatedAt  time.Time `db:"created_at"`
}

type socialRepository struct {
	db *sqlx.DB
}

var _ social.Repository = (*socialRepository)(nil) // interface compliance check

func NewSocialRepository(db *sqlx.DB) social.Repository {
	return &socialRepository{db: db}
}

// LockPair takes a transaction scoped advisory lock on the unordered user pair.
// It is a no-op outside a transaction.
func (repo *socialRepository) LockPair(ctx context.Context, a, b string, exec ...core.DBExecutor) error {
	if len(exec) == 0 || exec[0] == nil {
		return nil
	}
	if b < a {
		a, b = b, a
	}
	q := `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`
	_, err := exec[0].ExecContext(ctx, q, a, b)
	return errors.Wrap(err, "locking user pair")
}

func (repo *socialRepository) CreateFollowRequest(ctx context.Context, req social.FollowRequest, exec ...core.DBExecutor) error {
	q := `INSERT INTO follow_requests (requester_id, target_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, req.RequesterID, req.TargetID, req.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "inserting follow request")
	}
	if rowsAffected(res) == 0 {
		return social.ErrRequestExists
	}
	return nil
}

func (repo *socialRepository) DeleteFollowRequest(ctx context.Context, requesterID, targetID string, exec ...core.DBExecutor) error {
	if !isUUID(requesterID) || !isUUID(targetID) {
		return social.ErrRequestNotFound
	}
	q := `DELETE FROM follow_requests WHERE requester_id = $1 AND target_id = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, requesterID, targetID)
	if err != nil {
		return errors.Wrap(err, "deleting follow request")
	}
	if rowsAffected(res) == 0 {
		return social.ErrRequestNotFound
	}
	return nil
}

func (repo *socialRepository) HasFollowRequest(ctx context.Context, requesterID, targetID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(requesterID) || !isUUID(targetID) {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM follow_requests WHERE requester_id = $1 AND target_id = $2)`
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &exists, q, requesterID, targetID)
	return exists, errors.Wrap(err, "checking follow request")
}

func (repo *socialRepository) QueryFollowRequests(ctx context.Context, targetID string) ([]social.FollowRequest, error) {
	if !isUUID(targetID) {
		return []social.FollowRequest{}, nil
	}
	var rows []followRequestRow
	q := `SELECT requester_id, target_id, created_at FROM follow_requests WHERE target_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, targetID); err != nil {
		return nil, errors.Wrap(err, "querying follow requests")
	}

	reqs := make([]social.FollowRequest, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, social.FollowRequest{
			RequesterID: row.RequesterID,
			TargetID:    row.TargetID,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return reqs, nil
}

func (repo *socialRepository) CreateFollow(ctx context.Context, f social.Follow, exec ...core.DBExecutor) error {
	q := `INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q, f.FollowerID, f.FolloweeID, f.CreatedAt.UTC())
	return errors.Wrap(err, "inserting follow")
}

func (repo *socialRepository) DeleteFollow(ctx context.Context, followerID, followeeID string, exec ...core.DBExecutor) error {
	if !isUUID(followerID) || !isUUID(followeeID) {
		return social.ErrNotFollowing
	}
	q := `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, followerID, followeeID)
	if err != nil {
		return errors.Wrap(err, "deleting follow")
	}
	if rowsAffected(res) == 0 {
		return social.ErrNotFollowing
	}
	return nil
}

func (repo *socialRepository) IsFollowing(ctx context.Context, followerID, followeeID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(followerID) || !isUUID(followeeID) {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`
	err := sqlx.GetContext(ctx, getExec(repo.db, exec), &exists, q, followerID, followeeID)
	return exists, errors.Wrap(err, "checking follow")
}

func (repo *socialRepository) QueryFollowers(ctx context.Context, userID string) ([]social.Follow, error) {
	return repo.queryFollows(ctx, "followee_id", userID)
}

func (repo *socialRepository) QueryFollowing(ctx context.Context, userID string) ([]social.Follow, error) {
	return repo.queryFollows(ctx, "follower_id", userID)
}

func (repo *socialRepository) queryFollows(ctx context.Context, column, userID string) ([]social.Follow, error) {
	if !isUUID(userID) {
		return []social.Follow{}, nil
	}
	var rows []followRow
	q := `SELECT follower_id, followee_id, created_at FROM follows WHERE ` + column + ` = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying follows")
	}

	follows := make([]social.Follow, 0, len(rows))
	for _, row := range rows {
		follows = append(follows, social.Follow{
			FollowerID: row.FollowerID,
			FolloweeID: row.FolloweeID,
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return follows, nil
}

func (repo *socialRepository) CountFollows(ctx context.Context, userID string) (social.Counts, error) {
	if !isUUID(userID) {
		return social.Counts{}, nil
	}
	var row struct {
		Followers int `db:"followers"`
		Following int `db:"following"`
	}
	q := `SELECT
		(SELECT COUNT(*) FROM follows WHERE followee_id = $1) AS followers,
		(SELECT COUNT(*) FROM follows WHERE follower_id = $1) AS following`
	if err := sqlx.GetContext(ctx, repo.db, &row, q, userID); err != nil {
		return social.Counts{}, errors.Wrap(err, "counting follows")
	}
	return social.Counts{Followers: row.Followers, Following: row.Following}, nil
}
