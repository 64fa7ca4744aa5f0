package blog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
)

type Post struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Summary     string    `json:"summary"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags"`
	Published   bool      `json:"published"`
	PublishedAt null.Time `json:"published_at"` // UTC; set on first publication
	CreatedAt   time.Time `json:"created_at"`   // UTC
	UpdatedAt   time.Time `json:"updated_at"`   // UTC
}

// NewPost contains information needed to create a new Post.
type NewPost struct {
	Title     string   `json:"title" validate:"required,max=200"`
	Summary   string   `json:"summary" validate:"max=500"`
	Body      string   `json:"body" validate:"required"`
	Tags      []string `json:"tags" validate:"omitempty,max=10,dive,notblank"`
	Published bool     `json:"published"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Summary = core.CleanString(np.Summary)
	np.Body = core.CleanString(np.Body)
	np.Tags = core.CleanStrings(np.Tags, true /* lower */)
	return validate.Struct(np)
}

// UpdatePost defines what may be changed on a Post. Nil fields are left unchanged.
// The slug never changes so that links keep working.
type UpdatePost struct {
	Title     *string  `json:"title" validate:"omitempty,notblank,max=200"`
	Summary   *string  `json:"summary" validate:"omitempty,max=500"`
	Body      *string  `json:"body" validate:"omitempty,notblank"`
	Tags      []string `json:"tags" validate:"omitempty,max=10,dive,notblank"`
	Published *bool    `json:"published"`
}

func (up *UpdatePost) Validate(validate *validator.Validate) error {
	for _, s := range []*string{up.Title, up.Summary, up.Body} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	up.Tags = core.CleanStrings(up.Tags, true /* lower */)
	return validate.Struct(up)
}

type QueryFilter struct {
	Search        string
	Tag           string
	AuthorID      string
	PublishedOnly bool
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Tag == "" && qf.AuthorID == "" && !qf.PublishedOnly
}

// ListOptions are the query options a viewer may ask for.
type ListOptions struct {
	Search        string
	Tag           string
	AuthorID      string
	IncludeDrafts bool
}
