package story

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError(errors.New("story not found"))
)

type (
	Repository interface {
		CreateStory(ctx context.Context, s Story) (Story, error)
		// GetStory returns the story with its reactions and comments.
		GetStory(ctx context.Context, id string) (Story, error)
		// QueryStories returns a page of matching stories, newest first, and the total number of matches.
		QueryStories(ctx context.Context, filter QueryFilter) ([]Story, int, error)
		UpdateStory(ctx context.Context, s Story) (Story, error)
		DeleteStory(ctx context.Context, id string) error
		// ToggleReaction adds userID's reaction or removes it if present, and returns whether it is now set.
		ToggleReaction(ctx context.Context, storyID, userID string) (bool, error)
		CreateComment(ctx context.Context, c Comment) (Comment, error)
		CountStories(ctx context.Context) (int, error)
	}

	UserSummarizer interface {
		Summaries(ctx context.Context, ids ...string) (map[string]user.Summary, error)
	}

	Moderator interface {
		Check(ctx context.Context, texts ...string) error
	}

	Service struct {
		repo  Repository
		users UserSummarizer
		mod   Moderator
	}
)

func NewService(repo Repository, users UserSummarizer, mod Moderator) *Service {
	return &Service{repo: repo, users: users, mod: mod}
}

func (svc *Service) Create(ctx context.Context, author user.User, ns NewStory, image string) (Story, error) {
	if err := svc.mod.Check(ctx, ns.Title, ns.Content); err != nil {
		return Story{}, err
	}
	now := user.NowFunc().UTC()
	s, err := svc.repo.CreateStory(ctx, Story{
		ID:        uuid.NewString(),
		AuthorID:  author.ID,
		Title:     ns.Title,
		Content:   ns.Content,
		Category:  ns.Category,
		Tags:      ns.Tags,
		Image:     image,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Story{}, errors.Wrap(err, "creating story")
	}
	return svc.hydrateOne(ctx, s)
}

func (svc *Service) Get(ctx context.Context, id string) (Story, error) {
	s, err := svc.repo.GetStory(ctx, id)
	if err != nil {
		return Story{}, err
	}
	return svc.hydrateOne(ctx, s)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) (Listing, error) {
	filter.Search = core.CleanString(filter.Search)
	filter.Category = core.CleanString(filter.Category, true /* lower */)
	filter.Page = core.NewPage(filter.Page.Number, filter.Page.Limit, DefaultLimit, MaxLimit)

	stories, total, err := svc.repo.QueryStories(ctx, filter)
	if err != nil {
		return Listing{}, errors.Wrap(err, "querying stories")
	}
	if stories, err = svc.hydrate(ctx, stories...); err != nil {
		return Listing{}, err
	}
	return Listing{Stories: stories, Page: filter.Page.Number, Limit: filter.Page.Limit, Total: total}, nil
}

// Update applies us to the story; only its author or an admin may do so.
func (svc *Service) Update(ctx context.Context, actor user.User, id string, us UpdateStory) (Story, error) {
	s, err := svc.editable(ctx, actor, id)
	if err != nil {
		return Story{}, err
	}
	us.apply(&s)
	if err = svc.mod.Check(ctx, s.Title, s.Content); err != nil {
		return Story{}, err
	}
	s.UpdatedAt = user.NowFunc().UTC()
	if s, err = svc.repo.UpdateStory(ctx, s); err != nil {
		return Story{}, errors.Wrap(err, "updating story")
	}
	return svc.Get(ctx, s.ID)
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	if _, err := svc.editable(ctx, actor, id); err != nil {
		return err
	}
	return svc.repo.DeleteStory(ctx, id)
}

// React toggles actor's reaction on the story.
func (svc *Service) React(ctx context.Context, actor user.User, id string) (Reaction, error) {
	if _, err := svc.repo.GetStory(ctx, id); err != nil {
		return Reaction{}, err
	}
	reacted, err := svc.repo.ToggleReaction(ctx, id, actor.ID)
	if err != nil {
		return Reaction{}, errors.Wrap(err, "toggling reaction")
	}
	s, err := svc.repo.GetStory(ctx, id)
	if err != nil {
		return Reaction{}, err
	}
	return Reaction{Reacted: reacted, Count: len(s.Reactions)}, nil
}

func (svc *Service) Comment(ctx context.Context, actor user.User, id string, nc NewComment) (Comment, error) {
	if _, err := svc.repo.GetStory(ctx, id); err != nil {
		return Comment{}, err
	}
	if err := svc.mod.Check(ctx, nc.Content); err != nil {
		return Comment{}, err
	}
	c, err := svc.repo.CreateComment(ctx, Comment{
		ID:        uuid.NewString(),
		StoryID:   id,
		AuthorID:  actor.ID,
		Content:   nc.Content,
		CreatedAt: user.NowFunc().UTC(),
	})
	if err != nil {
		return Comment{}, errors.Wrap(err, "creating comment")
	}
	sum := actor.Summary()
	c.Author = &sum
	return c, nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountStories(ctx)
}

func (svc *Service) editable(ctx context.Context, actor user.User, id string) (Story, error) {
	s, err := svc.repo.GetStory(ctx, id)
	if err != nil {
		return Story{}, err
	}
	if s.AuthorID != actor.ID && !actor.IsAdmin() {
		return Story{}, core.ErrForbidden
	}
	return s, nil
}

func (svc *Service) hydrateOne(ctx context.Context, s Story) (Story, error) {
	stories, err := svc.hydrate(ctx, s)
	if err != nil {
		return Story{}, err
	}
	return stories[0], nil
}

// hydrate attaches author summaries and fills the derived counters.
func (svc *Service) hydrate(ctx context.Context, stories ...Story) ([]Story, error) {
	ids := make([]string, 0, len(stories))
	for _, s := range stories {
		ids = append(ids, s.AuthorID)
		for _, c := range s.Comments {
			ids = append(ids, c.AuthorID)
		}
	}
	sums, err := svc.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting authors")
	}

	author := func(id string) *user.Summary {
		if s, ok := sums[id]; ok {
			return &s
		}
		return nil
	}
	for i := range stories {
		s := &stories[i]
		s.Author = author(s.AuthorID)
		if s.Tags == nil {
			s.Tags = []string{}
		}
		if s.Reactions == nil {
			s.Reactions = []string{}
		}
		if s.Comments == nil {
			s.Comments = []Comment{}
		}
		s.ReactionCount = len(s.Reactions)
		for j := range s.Comments {
			s.Comments[j].Author = author(s.Comments[j].AuthorID)
		}
	}
	return stories, nil
}
