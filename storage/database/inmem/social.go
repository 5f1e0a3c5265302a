package inmemdb

import (
	"context"
	"sort"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/social"
)

type socialRepository struct {
	db  *socialTable
	seq func() int64
}

var _ social.Repository = (*socialRepository)(nil) // interface compliance check

func NewSocialRepository(db *DB) social.Repository {
	return &socialRepository{db: db.social, seq: db.nextSeq}
}

// LockPair is a no-op: InTx already serializes transactions.
func (repo *socialRepository) LockPair(context.Context, string, string, ...core.DBExecutor) error {
	return nil
}

func (repo *socialRepository) CreateFollowRequest(_ context.Context, req social.FollowRequest, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(req.RequesterID, req.TargetID)
	if _, ok := repo.db.requests[key]; ok {
		return social.ErrRequestExists
	}
	repo.db.requests[key] = requestRow{req: req, seq: repo.seq()}
	return nil
}

func (repo *socialRepository) DeleteFollowRequest(_ context.Context, requesterID, targetID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(requesterID, targetID)
	if _, ok := repo.db.requests[key]; !ok {
		return social.ErrRequestNotFound
	}
	delete(repo.db.requests, key)
	return nil
}

func (repo *socialRepository) HasFollowRequest(_ context.Context, requesterID, targetID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.requests[pairKey(requesterID, targetID)]
	return ok, nil
}

func (repo *socialRepository) QueryFollowRequests(_ context.Context, targetID string) ([]social.FollowRequest, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]requestRow, 0)
	for _, r := range repo.db.requests {
		if r.req.TargetID == targetID {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	reqs := make([]social.FollowRequest, len(rows))
	for i, r := range rows {
		reqs[i] = r.req
	}
	return reqs, nil
}

func (repo *socialRepository) CreateFollow(_ context.Context, f social.Follow, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(f.FollowerID, f.FolloweeID)
	if _, ok := repo.db.follows[key]; !ok {
		repo.db.follows[key] = followRow{follow: f, seq: repo.seq()}
	}
	return nil
}

func (repo *socialRepository) DeleteFollow(_ context.Context, followerID, followeeID string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(followerID, followeeID)
	if _, ok := repo.db.follows[key]; !ok {
		return social.ErrNotFollowing
	}
	delete(repo.db.follows, key)
	return nil
}

func (repo *socialRepository) IsFollowing(_ context.Context, followerID, followeeID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.follows[pairKey(followerID, followeeID)]
	return ok, nil
}

func (repo *socialRepository) QueryFollowers(_ context.Context, userID string) ([]social.Follow, error) {
	return repo.queryFollows(func(f social.Follow) bool { return f.FolloweeID == userID }), nil
}

func (repo *socialRepository) QueryFollowing(_ context.Context, userID string) ([]social.Follow, error) {
	return repo.queryFollows(func(f social.Follow) bool { return f.FollowerID == userID }), nil
}

func (repo *socialRepository) CountFollows(_ context.Context, userID string) (social.Counts, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var counts social.Counts
	for _, r := range repo.db.follows {
		if r.follow.FolloweeID == userID {
			counts.Followers++
		}
		if r.follow.FollowerID == userID {
			counts.Following++
		}
	}
	return counts, nil
}

func (repo *socialRepository) queryFollows(match func(social.Follow) bool) []social.Follow {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]followRow, 0)
	for _, r := range repo.db.follows {
		if match(r.follow) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	follows := make([]social.Follow, len(rows))
	for i, r := range rows {
		follows[i] = r.follow
	}
	return follows
}
