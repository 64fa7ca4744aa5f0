package inmemdb

import (
	"context"
	"strings"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/discussion"
)

type discussionRepository struct {
	db *DB
}

var _ discussion.Repository = (*discussionRepository)(nil) // interface compliance check

func NewDiscussionRepository(db *DB) discussion.Repository {
	return &discussionRepository{db: db}
}

func copyDiscussion(d discussion.Discussion) discussion.Discussion {
	d.Tags = cloneStrings(d.Tags)
	d.Score = d.Upvotes - d.Downvotes
	return d
}

func (repo *discussionRepository) CreateDiscussion(_ context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d.ID = newID()
	d.Upvotes, d.Downvotes, d.AnswerCount = 0, 0, 0
	repo.db.discussions[d.ID] = copyDiscussion(d)
	return copyDiscussion(d), nil
}

func (repo *discussionRepository) QueryDiscussions(_ context.Context, filter *discussion.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]discussion.Discussion, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ds := make([]discussion.Discussion, 0, len(repo.db.discussions))
	for _, d := range repo.db.discussions {
		if filter != nil {
			if filter.Search != "" && !containsFold(d.Title, filter.Search) && !containsFold(d.Body, filter.Search) {
				continue
			}
			if filter.Tag != "" && !core.ContainsString(d.Tags, filter.Tag) {
				continue
			}
			if filter.AuthorID != "" && d.AuthorID != filter.AuthorID {
				continue
			}
		}
		ds = append(ds, copyDiscussion(d))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	ordering = append(ordering, core.DBOrdering{Field: "id", Ascending: true})
	sortByOrderings(ds, ordering, func(field string, i, j int) int {
		a, b := ds[i], ds[j]
		switch field {
		case "id":
			return strings.Compare(a.ID, b.ID)
		case "title":
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case "score":
			return compareInts(a.Score, b.Score)
		case "answer_count":
			return compareInts(a.AnswerCount, b.AnswerCount)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		}
		return 0
	})

	start, end := page.Bounds(len(ds))
	return ds[start:end], len(ds), nil
}

func (repo *discussionRepository) GetDiscussion(_ context.Context, id string) (discussion.Discussion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if d, ok := repo.db.discussions[id]; ok {
		return copyDiscussion(d), nil
	}
	return discussion.Discussion{}, discussion.ErrNotFound
}

func (repo *discussionRepository) DeleteDiscussion(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.discussions[id]; !ok {
		return discussion.ErrNotFound
	}
	repo.db.deleteDiscussion(id)
	return nil
}

// deleteDiscussion removes a discussion, its answers and their votes. The caller must hold the lock.
func (db *DB) deleteDiscussion(id string) {
	delete(db.discussions, id)
	db.deleteVotes(discussion.TargetDiscussion, id)
	for aid, a := range db.answers {
		if a.DiscussionID == id {
			delete(db.answers, aid)
			db.deleteVotes(discussion.TargetAnswer, aid)
		}
	}
}

func (db *DB) deleteVotes(targetType, targetID string) {
	for key := range db.votes {
		if key.targetType == targetType && key.targetID == targetID {
			delete(db.votes, key)
		}
	}
}

// deleteAnswer removes an answer and its votes, then updates the answer count. The caller must hold the lock.
func (db *DB) deleteAnswer(a discussion.Answer) {
	delete(db.answers, a.ID)
	db.deleteVotes(discussion.TargetAnswer, a.ID)
	if d, ok := db.discussions[a.DiscussionID]; ok && d.AnswerCount > 0 {
		d.AnswerCount--
		db.discussions[d.ID] = d
	}
}

func (repo *discussionRepository) CreateAnswer(_ context.Context, a discussion.Answer) (discussion.Answer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	d, ok := repo.db.discussions[a.DiscussionID]
	if !ok {
		return discussion.Answer{}, discussion.ErrNotFound
	}
	a.ID = newID()
	a.Upvotes, a.Downvotes, a.Score = 0, 0, 0
	repo.db.answers[a.ID] = a
	d.AnswerCount++
	repo.db.discussions[d.ID] = d
	return a, nil
}

func (repo *discussionRepository) ListAnswers(_ context.Context, discussionID string) ([]discussion.Answer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	answers := make([]discussion.Answer, 0)
	for _, a := range repo.db.answers {
		if a.DiscussionID == discussionID {
			a.Score = a.Upvotes - a.Downvotes
			answers = append(answers, a)
		}
	}
	ordering := []core.DBOrdering{{Field: "score"}, {Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}}
	sortByOrderings(answers, ordering, func(field string, i, j int) int {
		a, b := answers[i], answers[j]
		switch field {
		case "score":
			return compareInts(a.Score, b.Score)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return answers, nil
}

func (repo *discussionRepository) GetAnswer(_ context.Context, id string) (discussion.Answer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.answers[id]; ok {
		a.Score = a.Upvotes - a.Downvotes
		return a, nil
	}
	return discussion.Answer{}, discussion.ErrAnswerNotFound
}

func (repo *discussionRepository) DeleteAnswer(_ context.Context, a discussion.Answer) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.answers[a.ID]
	if !ok {
		return discussion.ErrAnswerNotFound
	}
	repo.db.deleteAnswer(orig)
	return nil
}

func (repo *discussionRepository) GetVotes(_ context.Context, userID, targetType string, targetIDs ...string) (map[string]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	votes := make(map[string]int, len(targetIDs))
	for _, id := range targetIDs {
		if v, ok := repo.db.votes[voteKey{userID, targetType, id}]; ok {
			votes[id] = v
		}
	}
	return votes, nil
}

// SetVote resolves the requested vote against the current one, saves it, then recounts the target's votes.
func (repo *discussionRepository) SetVote(_ context.Context, v discussion.Vote) (discussion.Tally, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	switch v.TargetType {
	case discussion.TargetDiscussion:
		if _, ok := repo.db.discussions[v.TargetID]; !ok {
			return discussion.Tally{}, discussion.ErrNotFound
		}
	case discussion.TargetAnswer:
		if _, ok := repo.db.answers[v.TargetID]; !ok {
			return discussion.Tally{}, discussion.ErrAnswerNotFound
		}
	}

	key := voteKey{v.UserID, v.TargetType, v.TargetID}
	value := discussion.ResolveVote(repo.db.votes[key], v.Value)
	if value == 0 {
		delete(repo.db.votes, key)
	} else {
		repo.db.votes[key] = value
	}
	up, down := repo.db.recountVotes(v.TargetType, v.TargetID)
	return discussion.NewTally(up, down, value), nil
}

// recountVotes stores the tally of a target computed from its votes. The caller must hold the lock.
func (db *DB) recountVotes(targetType, targetID string) (up, down int) {
	for k, val := range db.votes {
		if k.targetType != targetType || k.targetID != targetID {
			continue
		}
		if val > 0 {
			up++
		} else {
			down++
		}
	}

	switch targetType {
	case discussion.TargetDiscussion:
		if d, ok := db.discussions[targetID]; ok {
			d.Upvotes, d.Downvotes = up, down
			db.discussions[d.ID] = d
		}
	case discussion.TargetAnswer:
		if a, ok := db.answers[targetID]; ok {
			a.Upvotes, a.Downvotes = up, down
			db.answers[a.ID] = a
		}
	}
	return up, down
}
