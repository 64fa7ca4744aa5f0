package blog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("post not found")
	ErrSlugExists = errors.New("a post with this slug already exists")

	maxSlugAttempts = 100
)

type (
	Repository interface {
		// CreatePost returns ErrSlugExists if the slug is taken.
		CreatePost(ctx context.Context, p Post) (Post, error)
		// QueryPosts returns a page of the matching posts, newest first, and their total count.
		QueryPosts(ctx context.Context, filter *QueryFilter, page core.Page) ([]Post, int, error)
		GetPostBySlug(ctx context.Context, slug string) (Post, error)
		UpdatePost(ctx context.Context, p Post) (Post, error)
		DeletePost(ctx context.Context, id string) error
	}

	// Service manages blog posts.
	Service interface {
		Create(ctx context.Context, author user.User, np NewPost) (Post, error)
		// Query lists the posts viewer is allowed to see. viewer is nil for anonymous users.
		Query(ctx context.Context, viewer *user.User, opts ListOptions, page core.Page) (core.PageResult, error)
		// GetBySlug returns the post if viewer may see it, ErrNotFound otherwise.
		GetBySlug(ctx context.Context, slug string, viewer *user.User) (Post, error)
		Update(ctx context.Context, actor user.User, p Post, up UpdatePost) (Post, error)
		Delete(ctx context.Context, actor user.User, p Post) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// CanEdit reports whether usr may edit or delete `p`.
func CanEdit(usr user.User, p Post) bool {
	return usr.ID == p.AuthorID || usr.IsAdmin()
}

// CanSee reports whether viewer may see `p`. Drafts are only visible to their author & admins.
func CanSee(viewer *user.User, p Post) bool {
	return p.Published || (viewer != nil && CanEdit(*viewer, p))
}

// Create saves a new post under the first free slug derived from its title.
func (svc *service) Create(ctx context.Context, author user.User, np NewPost) (Post, error) {
	if !author.IsActive {
		return Post{}, core.NewPermissionError()
	}
	now := time.Now().UTC()
	tags := np.Tags
	if tags == nil {
		tags = []string{}
	}
	p := Post{
		AuthorID:  author.ID,
		Title:     np.Title,
		Summary:   np.Summary,
		Body:      np.Body,
		Tags:      tags,
		Published: np.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Published {
		p.PublishedAt = null.TimeFrom(now)
	}

	base := Slugify(np.Title)
	for n := 1; n <= maxSlugAttempts; n++ {
		p.Slug = nthSlug(base, n)
		created, err := svc.repo.CreatePost(ctx, p)
		if err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrSlugExists {
			return Post{}, errors.Wrap(err, "creating post")
		}
	}
	return Post{}, core.NewFieldError("title", "too many posts share this title")
}

func (svc *service) Query(ctx context.Context, viewer *user.User, opts ListOptions, page core.Page) (core.PageResult, error) {
	filter := &QueryFilter{
		Search:   core.CleanString(opts.Search),
		Tag:      core.CleanString(opts.Tag, true /* lower */),
		AuthorID: core.CleanString(opts.AuthorID),
	}
	canSeeDrafts := viewer != nil && (viewer.IsAdmin() || (filter.AuthorID != "" && filter.AuthorID == viewer.ID))
	filter.PublishedOnly = !(opts.IncludeDrafts && canSeeDrafts)
	if filter.IsEmpty() {
		filter = nil
	}

	page = page.Clean()
	posts, count, err := svc.repo.QueryPosts(ctx, filter, page)
	if err != nil {
		return core.PageResult{}, errors.Wrap(err, "querying posts")
	}
	if posts == nil {
		posts = []Post{}
	}
	return core.NewPageResult(page, count, posts), nil
}

func (svc *service) GetBySlug(ctx context.Context, slug string, viewer *user.User) (Post, error) {
	slug = core.CleanString(slug, true /* lower */)
	if slug == "" {
		return Post{}, ErrNotFound
	}
	p, err := svc.repo.GetPostBySlug(ctx, slug)
	if err != nil {
		return Post{}, err
	}
	if !CanSee(viewer, p) {
		return Post{}, ErrNotFound
	}
	return p, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, p Post, up UpdatePost) (Post, error) {
	if !CanEdit(actor, p) {
		return Post{}, core.NewPermissionError()
	}
	now := time.Now().UTC()
	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.Summary != nil {
		p.Summary = *up.Summary
	}
	if up.Body != nil {
		p.Body = *up.Body
	}
	if up.Tags != nil {
		p.Tags = up.Tags
	}
	if up.Published != nil {
		p.Published = *up.Published
		if p.Published && !p.PublishedAt.Valid {
			p.PublishedAt = null.TimeFrom(now)
		}
	}
	p.UpdatedAt = now
	return svc.repo.UpdatePost(ctx, p)
}

func (svc *service) Delete(ctx context.Context, actor user.User, p Post) error {
	if !CanEdit(actor, p) {
		return core.NewPermissionError()
	}
	return svc.repo.DeletePost(ctx, p.ID)
}
