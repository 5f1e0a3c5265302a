package inmemdb

import (
	"context"
	"sort"

	"github.com/klunity/klunity/core/story"
)

type storyRepository struct {
	db  *storyTable
	seq func() int64
}

var _ story.Repository = (*storyRepository)(nil) // interface compliance check

func NewStoryRepository(db *DB) story.Repository {
	return &storyRepository{db: db.story, seq: db.nextSeq}
}

// load returns a copy of the story row with its reactions and comments attached.
func (repo *storyRepository) load(r *storyRow) story.Story {
	s := r.story
	s.Author = nil
	s.Tags = append([]string(nil), s.Tags...)
	s.Reactions = append([]string(nil), repo.db.reactions[s.ID]...)
	s.Comments = append([]story.Comment(nil), repo.db.comments[s.ID]...)
	s.ReactionCount = len(s.Reactions)
	return s
}

func (repo *storyRepository) CreateStory(_ context.Context, s story.Story) (story.Story, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.Reactions, s.Comments, s.ReactionCount = nil, nil, 0
	r := &storyRow{story: s, seq: repo.seq()}
	repo.db.table[s.ID] = r
	return repo.load(r), nil
}

func (repo *storyRepository) GetStory(_ context.Context, id string) (story.Story, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	r, ok := repo.db.table[id]
	if !ok {
		return story.Story{}, story.ErrNotFound
	}
	return repo.load(r), nil
}

func (repo *storyRepository) QueryStories(_ context.Context, filter story.QueryFilter) ([]story.Story, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]*storyRow, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		if filter.Match(r.story) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	total := len(rows)
	start, end := filter.Page.Offset(), filter.Page.Offset()+filter.Page.Limit
	if start > total {
		start = total
	}
	if end > total || filter.Page.Limit <= 0 {
		end = total
	}

	stories := make([]story.Story, 0, end-start)
	for _, r := range rows[start:end] {
		stories = append(stories, repo.load(r))
	}
	return stories, total, nil
}

func (repo *storyRepository) UpdateStory(_ context.Context, s story.Story) (story.Story, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.table[s.ID]
	if !ok {
		return story.Story{}, story.ErrNotFound
	}
	r.story.Title = s.Title
	r.story.Content = s.Content
	r.story.Category = s.Category
	r.story.Tags = append([]string(nil), s.Tags...)
	r.story.Image = s.Image
	r.story.UpdatedAt = s.UpdatedAt
	return repo.load(r), nil
}

func (repo *storyRepository) DeleteStory(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return story.ErrNotFound
	}
	delete(repo.db.table, id)
	delete(repo.db.reactions, id)
	delete(repo.db.comments, id)
	return nil
}

func (repo *storyRepository) ToggleReaction(_ context.Context, storyID, userID string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[storyID]; !ok {
		return false, story.ErrNotFound
	}
	reactions := repo.db.reactions[storyID]
	for i, id := range reactions {
		if id == userID {
			repo.db.reactions[storyID] = append(reactions[:i:i], reactions[i+1:]...)
			return false, nil
		}
	}
	repo.db.reactions[storyID] = append(reactions, userID)
	return true, nil
}

func (repo *storyRepository) CreateComment(_ context.Context, c story.Comment) (story.Comment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[c.StoryID]; !ok {
		return story.Comment{}, story.ErrNotFound
	}
	c.Author = nil
	repo.db.comments[c.StoryID] = append(repo.db.comments[c.StoryID], c)
	return c, nil
}

func (repo *storyRepository) CountStories(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return len(repo.db.table), nil
}
