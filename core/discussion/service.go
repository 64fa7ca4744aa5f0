package discussion

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("discussion not found")
	ErrAnswerNotFound = errors.New("answer not found")
)

type (
	Repository interface {
		CreateDiscussion(ctx context.Context, d Discussion) (Discussion, error)
		QueryDiscussions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Discussion, int, error)
		GetDiscussion(ctx context.Context, id string) (Discussion, error)
		// DeleteDiscussion deletes the discussion, its answers and every related vote.
		DeleteDiscussion(ctx context.Context, id string) error

		// CreateAnswer saves the answer and increments the discussion's answer count.
		CreateAnswer(ctx context.Context, a Answer) (Answer, error)
		// ListAnswers returns the answers of a discussion by score (desc) then creation date (asc).
		ListAnswers(ctx context.Context, discussionID string) ([]Answer, error)
		GetAnswer(ctx context.Context, id string) (Answer, error)
		// DeleteAnswer deletes the answer and its votes, and decrements the discussion's answer count.
		DeleteAnswer(ctx context.Context, a Answer) error

		// GetVotes returns the user's votes on the targets, by target ID. Targets without a vote are omitted.
		GetVotes(ctx context.Context, userID, targetType string, targetIDs ...string) (map[string]int, error)
		// SetVote resolves the requested v.Value against the user's current vote (see ResolveVote)
		// within the same write, saves the result and recomputes the target's tally.
		SetVote(ctx context.Context, v Vote) (Tally, error)
	}

	// Service manages discussions, answers and votes.
	Service interface {
		Create(ctx context.Context, author user.User, nd NewDiscussion) (Discussion, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (core.PageResult, error)
		GetByID(ctx context.Context, id string) (Discussion, error)
		// GetThread returns the discussion with its answers. viewer is nil for anonymous users.
		GetThread(ctx context.Context, d Discussion, viewer *user.User) (Thread, error)
		Delete(ctx context.Context, actor user.User, d Discussion) error

		Answer(ctx context.Context, author user.User, d Discussion, na NewAnswer) (Answer, error)
		DeleteAnswer(ctx context.Context, actor user.User, d Discussion, answerID string) error

		VoteDiscussion(ctx context.Context, voter user.User, d Discussion, value int) (Tally, error)
		VoteAnswer(ctx context.Context, voter user.User, d Discussion, answerID string, value int) (Tally, error)
	}

	service struct {
		repo     Repository
		notifier notification.Notifier
		logger   core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, notifier notification.Notifier, logger core.Logger) Service {
	return &service{repo: repo, notifier: notifier, logger: logger}
}

// CanAnswer reports whether usr may answer discussions.
func CanAnswer(usr user.User) bool {
	return usr.IsProfessor() || usr.IsBusiness()
}

func (svc *service) Create(ctx context.Context, author user.User, nd NewDiscussion) (Discussion, error) {
	if !author.IsStudent() {
		return Discussion{}, core.NewPermissionError("only students can start discussions")
	}
	now := time.Now().UTC()
	tags := nd.Tags
	if tags == nil {
		tags = []string{}
	}
	return svc.repo.CreateDiscussion(ctx, Discussion{
		AuthorID:  author.ID,
		Title:     nd.Title,
		Body:      nd.Body,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (core.PageResult, error) {
	if filter != nil {
		filter.Clean()
		if filter.IsEmpty() {
			filter = nil
		}
	}
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	page = page.Clean()
	ds, count, err := svc.repo.QueryDiscussions(ctx, filter, ordering, page)
	if err != nil {
		return core.PageResult{}, errors.Wrap(err, "querying discussions")
	}
	if ds == nil {
		ds = []Discussion{}
	}
	return core.NewPageResult(page, count, ds), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Discussion, error) {
	if id == "" {
		return Discussion{}, ErrNotFound
	}
	return svc.repo.GetDiscussion(ctx, id)
}

func (svc *service) GetThread(ctx context.Context, d Discussion, viewer *user.User) (Thread, error) {
	answers, err := svc.repo.ListAnswers(ctx, d.ID)
	if err != nil {
		return Thread{}, errors.Wrap(err, "listing answers")
	}
	if answers == nil {
		answers = []Answer{}
	}

	if viewer != nil {
		votes, err := svc.repo.GetVotes(ctx, viewer.ID, TargetDiscussion, d.ID)
		if err != nil {
			return Thread{}, errors.Wrap(err, "getting discussion votes")
		}
		d.UserVote = votes[d.ID]

		if len(answers) > 0 {
			ids := make([]string, len(answers))
			for i, a := range answers {
				ids[i] = a.ID
			}
			if votes, err = svc.repo.GetVotes(ctx, viewer.ID, TargetAnswer, ids...); err != nil {
				return Thread{}, errors.Wrap(err, "getting answer votes")
			}
			for i := range answers {
				answers[i].UserVote = votes[answers[i].ID]
			}
		}
	}
	return Thread{Discussion: d, Answers: answers}, nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, d Discussion) error {
	if actor.ID != d.AuthorID && !actor.IsAdmin() {
		return core.NewPermissionError()
	}
	return svc.repo.DeleteDiscussion(ctx, d.ID)
}

func (svc *service) Answer(ctx context.Context, author user.User, d Discussion, na NewAnswer) (Answer, error) {
	if !CanAnswer(author) {
		return Answer{}, core.NewPermissionError("only professors and businesses can answer discussions")
	}
	now := time.Now().UTC()
	a, err := svc.repo.CreateAnswer(ctx, Answer{
		DiscussionID: d.ID,
		AuthorID:     author.ID,
		Body:         na.Body,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Answer{}, err
	}

	if err = svc.notifier.Notify(ctx, notification.NewNotification{
		RecipientID: d.AuthorID,
		Kind:        notification.KindDiscussionAnswered,
		Message:     fmt.Sprintf("%s answered %q.", author.Name, d.Title),
		Link:        "/discussions/" + d.ID,
	}); err != nil {
		svc.logger.Error(fmt.Sprintf("discussion.Answer: %v", err), err)
	}
	return a, nil
}

func (svc *service) getAnswer(ctx context.Context, d Discussion, answerID string) (Answer, error) {
	if answerID == "" {
		return Answer{}, ErrAnswerNotFound
	}
	a, err := svc.repo.GetAnswer(ctx, answerID)
	if err != nil {
		return Answer{}, err
	}
	if a.DiscussionID != d.ID {
		return Answer{}, ErrAnswerNotFound
	}
	return a, nil
}

func (svc *service) DeleteAnswer(ctx context.Context, actor user.User, d Discussion, answerID string) error {
	a, err := svc.getAnswer(ctx, d, answerID)
	if err != nil {
		return err
	}
	if actor.ID != a.AuthorID && !actor.IsAdmin() {
		return core.NewPermissionError()
	}
	return svc.repo.DeleteAnswer(ctx, a)
}

func (svc *service) VoteDiscussion(ctx context.Context, voter user.User, d Discussion, value int) (Tally, error) {
	return svc.vote(ctx, voter, d.AuthorID, TargetDiscussion, d.ID, value)
}

func (svc *service) VoteAnswer(ctx context.Context, voter user.User, d Discussion, answerID string, value int) (Tally, error) {
	a, err := svc.getAnswer(ctx, d, answerID)
	if err != nil {
		return Tally{}, err
	}
	return svc.vote(ctx, voter, a.AuthorID, TargetAnswer, a.ID, value)
}

func (svc *service) vote(ctx context.Context, voter user.User, authorID, targetType, targetID string, value int) (Tally, error) {
	if voter.ID == authorID {
		return Tally{}, core.NewPermissionError("you cannot vote on your own post")
	}
	if value < -1 || value > 1 {
		return Tally{}, core.NewFieldError("value", "value must be one of [-1 0 1]")
	}

	tally, err := svc.repo.SetVote(ctx, Vote{
		UserID:     voter.ID,
		TargetType: targetType,
		TargetID:   targetID,
		Value:      value,
	})
	if err != nil {
		return Tally{}, errors.Wrap(err, "saving vote")
	}
	return tally, nil
}
