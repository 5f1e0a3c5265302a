package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core/story"
)

type storyRow struct {
	ID        string         `db:"id"`
	AuthorID  string         `db:"author_id"`
	Title     string         `db:"title"`
	Content   string         `db:"content"`
	Category  string         `db:"category"`
	Tags      pq.StringArray `db:"tags"`
	Image     string         `db:"image"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

type commentRow struct {
	ID        string    `db:"id"`
	StoryID   string    `db:"story_id"`
	AuthorID  string    `db:"author_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

const storyColumns = `id, author_id, title, content, category, tags, image, created_at, updated_at`

type storyRepository struct {
	db *sqlx.DB
}

var _ story.Repository = (*storyRepository)(nil) // interface compliance check

func NewStoryRepository(db *sqlx.DB) story.Repository {
	return &storyRepository{db: db}
}

func (repo *storyRepository) toRow(s story.Story) storyRow {
	return storyRow{
		ID:        s.ID,
		AuthorID:  s.AuthorID,
		Title:     s.Title,
		Content:   s.Content,
		Category:  s.Category,
		Tags:      stringArray(s.Tags),
		Image:     s.Image,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (repo *storyRepository) fromRow(row storyRow) story.Story {
	return story.Story{
		ID:        row.ID,
		AuthorID:  row.AuthorID,
		Title:     row.Title,
		Content:   row.Content,
		Category:  row.Category,
		Tags:      []string(row.Tags),
		Image:     row.Image,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to story.ErrNotFound
func (repo *storyRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return story.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// attach loads the reactions and comments of stories.
func (repo *storyRepository) attach(ctx context.Context, stories []story.Story) error {
	if len(stories) == 0 {
		return nil
	}
	ids := make([]string, 0, len(stories))
	idx := make(map[string]int, len(stories))
	for i, s := range stories {
		ids = append(ids, s.ID)
		idx[s.ID] = i
	}

	var reactions []struct {
		StoryID string `db:"story_id"`
		UserID  string `db:"user_id"`
	}
	q := `SELECT story_id, user_id FROM story_reactions WHERE story_id = ANY($1::uuid[]) ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, repo.db, &reactions, q, stringArray(ids)); err != nil {
		return errors.Wrap(err, "querying reactions")
	}
	for _, r := range reactions {
		s := &stories[idx[r.StoryID]]
		s.Reactions = append(s.Reactions, r.UserID)
	}

	var comments []commentRow
	q = `SELECT id, story_id, author_id, content, created_at FROM story_comments
		WHERE story_id = ANY($1::uuid[]) ORDER BY created_at, id`
	if err := sqlx.SelectContext(ctx, repo.db, &comments, q, stringArray(ids)); err != nil {
		return errors.Wrap(err, "querying comments")
	}
	for _, c := range comments {
		s := &stories[idx[c.StoryID]]
		s.Comments = append(s.Comments, story.Comment{
			ID:        c.ID,
			StoryID:   c.StoryID,
			AuthorID:  c.AuthorID,
			Content:   c.Content,
			CreatedAt: c.CreatedAt.UTC(),
		})
	}

	for i := range stories {
		stories[i].ReactionCount = len(stories[i].Reactions)
	}
	return nil
}

func (repo *storyRepository) CreateStory(ctx context.Context, s story.Story) (story.Story, error) {
	q := `INSERT INTO stories (` + storyColumns + `)
		VALUES (:id, :author_id, :title, :content, :category, :tags, :image, :created_at, :updated_at)`
	row := repo.toRow(s)
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return story.Story{}, errors.Wrap(err, "inserting story")
	}
	return repo.fromRow(row), nil
}

func (repo *storyRepository) GetStory(ctx context.Context, id string) (story.Story, error) {
	if !isUUID(id) {
		return story.Story{}, story.ErrNotFound
	}
	var row storyRow
	if err := sqlx.GetContext(ctx, repo.db, &row, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id); err != nil {
		return story.Story{}, repo.trapNoRowsErr(err, "getting story")
	}
	stories := []story.Story{repo.fromRow(row)}
	if err := repo.attach(ctx, stories); err != nil {
		return story.Story{}, err
	}
	return stories[0], nil
}

func (repo *storyRepository) QueryStories(ctx context.Context, filter story.QueryFilter) ([]story.Story, int, error) {
	w := new(where)
	if filter.AuthorID != "" {
		if !isUUID(filter.AuthorID) {
			return []story.Story{}, 0, nil
		}
		w.add("author_id = ?", filter.AuthorID)
	}
	if filter.Category != "" {
		w.add("category = ?", filter.Category)
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(title ILIKE ? OR content ILIKE ? OR EXISTS (SELECT 1 FROM unnest(tags) tag WHERE tag ILIKE ?))", val, val, val)
	}

	var total int
	if err := sqlx.GetContext(ctx, repo.db, &total, `SELECT COUNT(*) FROM stories`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting stories")
	}

	q := `SELECT ` + storyColumns + ` FROM stories` + w.String() + ` ORDER BY created_at DESC, id`
	if filter.Page.Limit > 0 {
		q += " LIMIT " + w.next(filter.Page.Limit) + " OFFSET " + w.next(filter.Page.Offset())
	}
	var rows []storyRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying stories")
	}

	stories := make([]story.Story, 0, len(rows))
	for _, row := range rows {
		stories = append(stories, repo.fromRow(row))
	}
	if err := repo.attach(ctx, stories); err != nil {
		return nil, 0, err
	}
	return stories, total, nil
}

func (repo *storyRepository) UpdateStory(ctx context.Context, s story.Story) (story.Story, error) {
	q := `UPDATE stories SET title = :title, content = :content, category = :category, tags = :tags,
		image = :image, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, repo.toRow(s))
	if err != nil {
		return story.Story{}, errors.Wrap(err, "updating story")
	}
	if rowsAffected(res) == 0 {
		return story.Story{}, story.ErrNotFound
	}
	return s, nil
}

func (repo *storyRepository) DeleteStory(ctx context.Context, id string) error {
	if !isUUID(id) {
		return story.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting story")
	}
	if rowsAffected(res) == 0 {
		return story.ErrNotFound
	}
	return nil
}

func (repo *storyRepository) ToggleReaction(ctx context.Context, storyID, userID string) (bool, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM story_reactions WHERE story_id = $1 AND user_id = $2`, storyID, userID)
	if err != nil {
		return false, errors.Wrap(err, "deleting reaction")
	}
	if rowsAffected(res) > 0 {
		return false, nil
	}

	q := `INSERT INTO story_reactions (story_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err = repo.db.ExecContext(ctx, q, storyID, userID, time.Now().UTC()); err != nil {
		return false, errors.Wrap(err, "inserting reaction")
	}
	return true, nil
}

func (repo *storyRepository) CreateComment(ctx context.Context, c story.Comment) (story.Comment, error) {
	c.Author = nil
	c.CreatedAt = c.CreatedAt.UTC()
	q := `INSERT INTO story_comments (id, story_id, author_id, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, q, c.ID, c.StoryID, c.AuthorID, c.Content, c.CreatedAt); err != nil {
		return story.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo *storyRepository) CountStories(ctx context.Context) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, repo.db, &count, `SELECT COUNT(*) FROM stories`)
	return count, errors.Wrap(err, "counting stories")
}
