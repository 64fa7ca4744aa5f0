package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
)

type blogRepository struct {
	db *DB
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(db *DB) blog.Repository {
	return &blogRepository{db: db}
}

func copyPost(p blog.Post) blog.Post {
	p.Tags = cloneStrings(p.Tags)
	return p
}

func (repo *blogRepository) CreatePost(_ context.Context, p blog.Post) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.posts {
		if existing.Slug == p.Slug {
			return blog.Post{}, blog.ErrSlugExists
		}
	}
	p.ID = newID()
	repo.db.posts[p.ID] = copyPost(p)
	return copyPost(p), nil
}

func (repo *blogRepository) QueryPosts(_ context.Context, filter *blog.QueryFilter, page core.Page) ([]blog.Post, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	posts := make([]blog.Post, 0, len(repo.db.posts))
	for _, p := range repo.db.posts {
		if filter != nil {
			if filter.Search != "" && !containsFold(p.Title, filter.Search) &&
				!containsFold(p.Summary, filter.Search) && !containsFold(p.Body, filter.Search) {
				continue
			}
			if filter.Tag != "" && !core.ContainsString(p.Tags, filter.Tag) {
				continue
			}
			if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
				continue
			}
			if filter.PublishedOnly && !p.Published {
				continue
			}
		}
		posts = append(posts, copyPost(p))
	}
	// newest first: publication date, then creation date for drafts
	ordering := []core.DBOrdering{{Field: "date"}, {Field: "id", Ascending: true}}
	sortByOrderings(posts, ordering, func(field string, i, j int) int {
		if field == "date" {
			return compareTimes(postDate(posts[i]), postDate(posts[j]))
		}
		return strings.Compare(posts[i].ID, posts[j].ID)
	})

	start, end := page.Bounds(len(posts))
	return posts[start:end], len(posts), nil
}

func postDate(p blog.Post) time.Time {
	if p.PublishedAt.Valid {
		return p.PublishedAt.Time
	}
	return p.CreatedAt
}

func (repo *blogRepository) GetPostBySlug(_ context.Context, slug string) (blog.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.posts {
		if p.Slug == slug {
			return copyPost(p), nil
		}
	}
	return blog.Post{}, blog.ErrNotFound
}

func (repo *blogRepository) UpdatePost(_ context.Context, p blog.Post) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.posts[p.ID]
	if !ok {
		return blog.Post{}, blog.ErrNotFound
	}
	p.Slug = orig.Slug
	p.AuthorID = orig.AuthorID
	p.CreatedAt = orig.CreatedAt
	repo.db.posts[p.ID] = copyPost(p)
	return copyPost(p), nil
}

func (repo *blogRepository) DeletePost(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.posts[id]; !ok {
		return blog.ErrNotFound
	}
	delete(repo.db.posts, id)
	return nil
}
