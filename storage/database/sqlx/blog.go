package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
)

const postColumns = `id, author_id, title, slug, summary, body, tags, published, published_at, created_at, updated_at`

type postRow struct {
	ID          string         `db:"id"`
	AuthorID    string         `db:"author_id"`
	Title       string         `db:"title"`
	Slug        string         `db:"slug"`
	Summary     string         `db:"summary"`
	Body        string         `db:"body"`
	Tags        pq.StringArray `db:"tags"`
	Published   bool           `db:"published"`
	PublishedAt null.Time      `db:"published_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func toPostRow(p blog.Post) postRow {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return postRow{
		ID:          p.ID,
		AuthorID:    p.AuthorID,
		Title:       p.Title,
		Slug:        p.Slug,
		Summary:     p.Summary,
		Body:        p.Body,
		Tags:        tags,
		Published:   p.Published,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (r postRow) toPost() blog.Post {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	if r.PublishedAt.Valid {
		r.PublishedAt.Time = r.PublishedAt.Time.UTC()
	}
	return blog.Post{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		Title:       r.Title,
		Slug:        r.Slug,
		Summary:     r.Summary,
		Body:        r.Body,
		Tags:        tags,
		Published:   r.Published,
		PublishedAt: r.PublishedAt,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type blogRepository struct {
	db *sqlx.DB
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(db *sqlx.DB) blog.Repository {
	return &blogRepository{db: db}
}

func (repo *blogRepository) CreatePost(ctx context.Context, p blog.Post) (blog.Post, error) {
	p.ID = newID()
	row := toPostRow(p)
	q := `INSERT INTO post (` + postColumns + `)
		VALUES (:id, :author_id, :title, :slug, :summary, :body, :tags, :published, :published_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return blog.Post{}, blog.ErrSlugExists
		}
		return blog.Post{}, errors.Wrap(err, "inserting post")
	}
	return row.toPost(), nil
}

func (repo *blogRepository) QueryPosts(ctx context.Context, filter *blog.QueryFilter, page core.Page) ([]blog.Post, int, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.add("(title ILIKE ? OR summary ILIKE ? OR body ILIKE ?)", val, val, val)
		}
		if filter.Tag != "" {
			w.add("? = ANY(tags)", filter.Tag)
		}
		if filter.AuthorID != "" {
			if !isUUID(filter.AuthorID) {
				return []blog.Post{}, 0, nil
			}
			w.add("author_id = ?", filter.AuthorID)
		}
		if filter.PublishedOnly {
			w.add("published")
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT COUNT(*) FROM post`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting posts")
	}

	var rows []postRow
	q := repo.db.Rebind(`SELECT ` + postColumns + ` FROM post` + w.String() +
		` ORDER BY COALESCE(published_at, created_at) DESC, id ASC` + limitOffset)
	if err := repo.db.SelectContext(ctx, &rows, q, pageArgs(w.args, page)...); err != nil {
		return nil, 0, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toPost())
	}
	return posts, count, nil
}

func (repo *blogRepository) GetPostBySlug(ctx context.Context, slug string) (blog.Post, error) {
	var row postRow
	q := repo.db.Rebind(`SELECT ` + postColumns + ` FROM post WHERE slug = ?`)
	if err := repo.db.GetContext(ctx, &row, q, slug); err != nil {
		return blog.Post{}, trapNoRows(err, blog.ErrNotFound, "finding post")
	}
	return row.toPost(), nil
}

// UpdatePost never changes the slug.
func (repo *blogRepository) UpdatePost(ctx context.Context, p blog.Post) (blog.Post, error) {
	if !isUUID(p.ID) {
		return blog.Post{}, blog.ErrNotFound
	}
	q := `UPDATE post SET title = :title, summary = :summary, body = :body, tags = :tags, published = :published,
		published_at = :published_at, updated_at = :updated_at
		WHERE id = :id
		RETURNING ` + postColumns
	q, args, err := repo.db.BindNamed(q, toPostRow(p))
	if err != nil {
		return blog.Post{}, errors.Wrap(err, "binding post")
	}
	var row postRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return blog.Post{}, trapNoRows(err, blog.ErrNotFound, "updating post")
	}
	return row.toPost(), nil
}

func (repo *blogRepository) DeletePost(ctx context.Context, id string) error {
	if !isUUID(id) {
		return blog.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM post WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	_, err = checkAffected(res, blog.ErrNotFound)
	return err
}
