package discussion

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/probestem/probe/core"
)

// Vote targets
const (
	TargetDiscussion = "discussion"
	TargetAnswer     = "answer"
)

type Discussion struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Tags        []string  `json:"tags"`
	Upvotes     int       `json:"upvotes"`
	Downvotes   int       `json:"downvotes"`
	Score       int       `json:"score"`
	AnswerCount int       `json:"answer_count"`
	UserVote    int       `json:"user_vote"` // the viewer's vote
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type Answer struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussion_id"`
	AuthorID     string    `json:"author_id"`
	Body         string    `json:"body"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	Score        int       `json:"score"`
	UserVote     int       `json:"user_vote"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Thread is a discussion along with its answers, best answers first.
type Thread struct {
	Discussion
	Answers []Answer `json:"answers"`
}

// Vote is a user's +1 or -1 on a discussion or an answer. A zero Value removes the vote.
type Vote struct {
	UserID     string
	TargetType string
	TargetID   string
	Value      int
}

type Tally struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Score     int `json:"score"`
	UserVote  int `json:"user_vote"`
}

// NewTally computes the score of the counts.
func NewTally(up, down, userVote int) Tally {
	return Tally{Upvotes: up, Downvotes: down, Score: up - down, UserVote: userVote}
}

// ResolveVote returns the vote to keep when a user with vote `current` votes `requested`:
// voting the same value again removes the vote, the opposite value replaces it and 0 clears it.
func ResolveVote(current, requested int) int {
	if requested == 0 || requested == current {
		return 0
	}
	return requested
}

type NewDiscussion struct {
	Title string   `json:"title" validate:"required,max=200"`
	Body  string   `json:"body" validate:"required"`
	Tags  []string `json:"tags" validate:"omitempty,max=10,dive,notblank"`
}

func (nd *NewDiscussion) Validate(validate *validator.Validate) error {
	nd.Title = core.CleanString(nd.Title)
	nd.Body = core.CleanString(nd.Body)
	nd.Tags = core.CleanStrings(nd.Tags, true /* lower */)
	return validate.Struct(nd)
}

type NewAnswer struct {
	Body string `json:"body" validate:"required"`
}

func (na *NewAnswer) Validate(validate *validator.Validate) error {
	na.Body = core.CleanString(na.Body)
	return validate.Struct(na)
}

type NewVote struct {
	Value int `json:"value" validate:"oneof=-1 0 1"`
}

func (nv NewVote) Validate(validate *validator.Validate) error { return validate.Struct(nv) }

var OrderingFields = []string{"title", "score", "answer_count", "created_at", "updated_at"}

type QueryFilter struct {
	Search   string
	Tag      string
	AuthorID string
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Tag == "" && qf.AuthorID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.AuthorID = core.CleanString(qf.AuthorID)
}
