package story

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Story struct {
	ID            string        `json:"id"`
	AuthorID      string        `json:"author_id"`
	Author        *user.Summary `json:"author,omitempty"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	Category      string        `json:"category"`
	Tags          []string      `json:"tags"`
	Image         string        `json:"image"`
	Reactions     []string      `json:"reactions"` // IDs of the users who reacted
	ReactionCount int           `json:"reaction_count"`
	Comments      []Comment     `json:"comments"`
	CreatedAt     time.Time     `json:"created_at"` // UTC
	UpdatedAt     time.Time     `json:"updated_at"` // UTC
}

type Comment struct {
	ID        string        `json:"id"`
	StoryID   string        `json:"story_id"`
	AuthorID  string        `json:"author_id"`
	Author    *user.Summary `json:"author,omitempty"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"` // UTC
}

type NewStory struct {
	Title    string   `json:"title" form:"title" validate:"required,notblank,max=200"`
	Content  string   `json:"content" form:"content" validate:"required,notblank,max=20000"`
	Category string   `json:"category" form:"category" validate:"max=50"`
	Tags     []string `json:"tags" form:"tags" validate:"max=10,dive,max=30"`
}

func (ns *NewStory) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Content = core.CleanString(ns.Content)
	ns.Category = core.CleanString(ns.Category, true /* lower */)
	ns.Tags = cleanTags(ns.Tags)
	return validate.Struct(ns)
}

type UpdateStory struct {
	Title    *string  `json:"title" validate:"omitempty,notblank,max=200"`
	Content  *string  `json:"content" validate:"omitempty,notblank,max=20000"`
	Category *string  `json:"category" validate:"omitempty,max=50"`
	Tags     []string `json:"tags" validate:"omitempty,max=10,dive,max=30"`
}

func (us *UpdateStory) Validate(validate *validator.Validate) error {
	if us.Title != nil {
		*us.Title = core.CleanString(*us.Title)
	}
	if us.Content != nil {
		*us.Content = core.CleanString(*us.Content)
	}
	if us.Category != nil {
		*us.Category = core.CleanString(*us.Category, true /* lower */)
	}
	if us.Tags != nil {
		us.Tags = cleanTags(us.Tags)
	}
	return validate.Struct(us)
}

func (us *UpdateStory) apply(s *Story) {
	if us.Title != nil {
		s.Title = *us.Title
	}
	if us.Content != nil {
		s.Content = *us.Content
	}
	if us.Category != nil {
		s.Category = *us.Category
	}
	if us.Tags != nil {
		s.Tags = us.Tags
	}
}

type NewComment struct {
	Content string `json:"content" validate:"required,notblank,max=2000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Content = core.CleanString(nc.Content)
	return validate.Struct(nc)
}

type QueryFilter struct {
	AuthorID string
	Category string
	Search   string
	Page     core.Page
}

// Match reports whether s satisfies every set field of the filter.
// Search does a case-insensitive match on the title, content or tags.
func (qf *QueryFilter) Match(s Story) bool {
	if qf.AuthorID != "" && s.AuthorID != qf.AuthorID {
		return false
	}
	if qf.Category != "" && s.Category != qf.Category {
		return false
	}
	if qf.Search != "" {
		q := strings.ToLower(qf.Search)
		if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Content), q) {
			return true
		}
		for _, t := range s.Tags {
			if strings.Contains(t, q) {
				return true
			}
		}
		return false
	}
	return true
}

// Listing is a page of stories.
type Listing struct {
	Stories []Story `json:"stories"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	Total   int     `json:"total"`
}

type Reaction struct {
	Reacted bool `json:"reacted"`
	Count   int  `json:"reaction_count"`
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(core.CleanString(t, true /* lower */), "#")
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
