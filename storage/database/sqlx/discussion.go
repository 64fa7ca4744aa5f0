package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/discussion"
)

const (
	discussionColumns = `id, author_id, title, body, tags, upvotes, downvotes, answer_count, created_at, updated_at`
	answerColumns     = `id, discussion_id, author_id, body, upvotes, downvotes, created_at, updated_at`
)

var discussionOrderColumns = map[string]string{
	"title":        "title",
	"score":        "(upvotes - downvotes)",
	"answer_count": "answer_count",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}

// voteTables maps a vote target type to the table holding its tally.
var voteTables = map[string]string{
	discussion.TargetDiscussion: "discussion",
	discussion.TargetAnswer:     "answer",
}

type discussionRow struct {
	ID          string         `db:"id"`
	AuthorID    string         `db:"author_id"`
	Title       string         `db:"title"`
	Body        string         `db:"body"`
	Tags        pq.StringArray `db:"tags"`
	Upvotes     int            `db:"upvotes"`
	Downvotes   int            `db:"downvotes"`
	AnswerCount int            `db:"answer_count"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r discussionRow) toDiscussion() discussion.Discussion {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return discussion.Discussion{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		Title:       r.Title,
		Body:        r.Body,
		Tags:        tags,
		Upvotes:     r.Upvotes,
		Downvotes:   r.Downvotes,
		Score:       r.Upvotes - r.Downvotes,
		AnswerCount: r.AnswerCount,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type answerRow struct {
	ID           string    `db:"id"`
	DiscussionID string    `db:"discussion_id"`
	AuthorID     string    `db:"author_id"`
	Body         string    `db:"body"`
	Upvotes      int       `db:"upvotes"`
	Downvotes    int       `db:"downvotes"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r answerRow) toAnswer() discussion.Answer {
	return discussion.Answer{
		ID:           r.ID,
		DiscussionID: r.DiscussionID,
		AuthorID:     r.AuthorID,
		Body:         r.Body,
		Upvotes:      r.Upvotes,
		Downvotes:    r.Downvotes,
		Score:        r.Upvotes - r.Downvotes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type discussionRepository struct {
	db *sqlx.DB
}

var _ discussion.Repository = (*discussionRepository)(nil) // interface compliance check

func NewDiscussionRepository(db *sqlx.DB) discussion.Repository {
	return &discussionRepository{db: db}
}

func (repo *discussionRepository) CreateDiscussion(ctx context.Context, d discussion.Discussion) (discussion.Discussion, error) {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	row := discussionRow{
		ID:        newID(),
		AuthorID:  d.AuthorID,
		Title:     d.Title,
		Body:      d.Body,
		Tags:      tags,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	q := `INSERT INTO discussion (` + discussionColumns + `)
		VALUES (:id, :author_id, :title, :body, :tags, :upvotes, :downvotes, :answer_count, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return discussion.Discussion{}, errors.Wrap(err, "inserting discussion")
	}
	return row.toDiscussion(), nil
}

func (repo *discussionRepository) QueryDiscussions(ctx context.Context, filter *discussion.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]discussion.Discussion, int, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.add("(title ILIKE ? OR body ILIKE ?)", val, val)
		}
		if filter.Tag != "" {
			w.add("? = ANY(tags)", filter.Tag)
		}
		if filter.AuthorID != "" {
			if !isUUID(filter.AuthorID) {
				return []discussion.Discussion{}, 0, nil
			}
			w.add("author_id = ?", filter.AuthorID)
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT COUNT(*) FROM discussion`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting discussions")
	}

	var rows []discussionRow
	q := repo.db.Rebind(`SELECT ` + discussionColumns + ` FROM discussion` + w.String() +
		orderBy(ordering, discussionOrderColumns, "created_at DESC") + limitOffset)
	if err := repo.db.SelectContext(ctx, &rows, q, pageArgs(w.args, page)...); err != nil {
		return nil, 0, errors.Wrap(err, "querying discussions")
	}
	ds := make([]discussion.Discussion, 0, len(rows))
	for _, r := range rows {
		ds = append(ds, r.toDiscussion())
	}
	return ds, count, nil
}

func (repo *discussionRepository) GetDiscussion(ctx context.Context, id string) (discussion.Discussion, error) {
	if !isUUID(id) {
		return discussion.Discussion{}, discussion.ErrNotFound
	}
	var row discussionRow
	q := repo.db.Rebind(`SELECT ` + discussionColumns + ` FROM discussion WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return discussion.Discussion{}, trapNoRows(err, discussion.ErrNotFound, "finding discussion")
	}
	return row.toDiscussion(), nil
}

// DeleteDiscussion relies on ON DELETE CASCADE for the answers. Votes have no foreign key on their target.
func (repo *discussionRepository) DeleteDiscussion(ctx context.Context, id string) error {
	if !isUUID(id) {
		return discussion.ErrNotFound
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`DELETE FROM vote WHERE (target_type = ? AND target_id = ?)
			OR (target_type = ? AND target_id IN (SELECT id FROM answer WHERE discussion_id = ?))`)
		if _, err := tx.ExecContext(ctx, q, discussion.TargetDiscussion, id, discussion.TargetAnswer, id); err != nil {
			return errors.Wrap(err, "deleting votes")
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM discussion WHERE id = ?`), id)
		if err != nil {
			return errors.Wrap(err, "deleting discussion")
		}
		_, err = checkAffected(res, discussion.ErrNotFound)
		return err
	})
}

func (repo *discussionRepository) CreateAnswer(ctx context.Context, a discussion.Answer) (discussion.Answer, error) {
	if !isUUID(a.DiscussionID) {
		return discussion.Answer{}, discussion.ErrNotFound
	}
	row := answerRow{
		ID:           newID(),
		DiscussionID: a.DiscussionID,
		AuthorID:     a.AuthorID,
		Body:         a.Body,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`UPDATE discussion SET answer_count = answer_count + 1 WHERE id = ?`)
		res, err := tx.ExecContext(ctx, q, a.DiscussionID)
		if err != nil {
			return errors.Wrap(err, "incrementing answer count")
		}
		if _, err = checkAffected(res, discussion.ErrNotFound); err != nil {
			return err
		}
		q = `INSERT INTO answer (` + answerColumns + `)
			VALUES (:id, :discussion_id, :author_id, :body, :upvotes, :downvotes, :created_at, :updated_at)`
		_, err = tx.NamedExecContext(ctx, q, row)
		return errors.Wrap(err, "inserting answer")
	})
	if err != nil {
		return discussion.Answer{}, err
	}
	return row.toAnswer(), nil
}

func (repo *discussionRepository) ListAnswers(ctx context.Context, discussionID string) ([]discussion.Answer, error) {
	if !isUUID(discussionID) {
		return []discussion.Answer{}, nil
	}
	var rows []answerRow
	q := repo.db.Rebind(`SELECT ` + answerColumns + ` FROM answer WHERE discussion_id = ?
		ORDER BY (upvotes - downvotes) DESC, created_at ASC, id ASC`)
	if err := repo.db.SelectContext(ctx, &rows, q, discussionID); err != nil {
		return nil, errors.Wrap(err, "listing answers")
	}
	answers := make([]discussion.Answer, 0, len(rows))
	for _, r := range rows {
		answers = append(answers, r.toAnswer())
	}
	return answers, nil
}

func (repo *discussionRepository) GetAnswer(ctx context.Context, id string) (discussion.Answer, error) {
	if !isUUID(id) {
		return discussion.Answer{}, discussion.ErrAnswerNotFound
	}
	var row answerRow
	q := repo.db.Rebind(`SELECT ` + answerColumns + ` FROM answer WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return discussion.Answer{}, trapNoRows(err, discussion.ErrAnswerNotFound, "finding answer")
	}
	return row.toAnswer(), nil
}

func (repo *discussionRepository) DeleteAnswer(ctx context.Context, a discussion.Answer) error {
	if !isUUID(a.ID) {
		return discussion.ErrAnswerNotFound
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var discussionID string
		q := tx.Rebind(`DELETE FROM answer WHERE id = ? RETURNING discussion_id`)
		if err := tx.GetContext(ctx, &discussionID, q, a.ID); err != nil {
			return trapNoRows(err, discussion.ErrAnswerNotFound, "deleting answer")
		}
		q = tx.Rebind(`DELETE FROM vote WHERE target_type = ? AND target_id = ?`)
		if _, err := tx.ExecContext(ctx, q, discussion.TargetAnswer, a.ID); err != nil {
			return errors.Wrap(err, "deleting votes")
		}
		q = tx.Rebind(`UPDATE discussion SET answer_count = GREATEST(answer_count - 1, 0) WHERE id = ?`)
		_, err := tx.ExecContext(ctx, q, discussionID)
		return errors.Wrap(err, "decrementing answer count")
	})
}

func (repo *discussionRepository) GetVotes(ctx context.Context, userID, targetType string, targetIDs ...string) (map[string]int, error) {
	votes := make(map[string]int, len(targetIDs))
	targetIDs = validIDs(targetIDs)
	if len(targetIDs) == 0 || !isUUID(userID) {
		return votes, nil
	}

	q, args, err := sqlx.In(`SELECT target_id, value FROM vote WHERE user_id = ? AND target_type = ? AND target_id IN (?)`,
		userID, targetType, targetIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building votes query")
	}
	var rows []struct {
		TargetID string `db:"target_id"`
		Value    int    `db:"value"`
	}
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying votes")
	}
	for _, r := range rows {
		votes[r.TargetID] = r.Value
	}
	return votes, nil
}

// SetVote locks the target row so that concurrent votes on it are resolved and recounted one at a time.
func (repo *discussionRepository) SetVote(ctx context.Context, v discussion.Vote) (discussion.Tally, error) {
	table, ok := voteTables[v.TargetType]
	if !ok {
		return discussion.Tally{}, errors.Errorf("unknown vote target %q", v.TargetType)
	}
	notFound := discussion.ErrNotFound
	if v.TargetType == discussion.TargetAnswer {
		notFound = discussion.ErrAnswerNotFound
	}
	if !isUUID(v.TargetID) {
		return discussion.Tally{}, notFound
	}

	var tally struct {
		Upvotes   int `db:"upvotes"`
		Downvotes int `db:"downvotes"`
	}
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var id string
		q := tx.Rebind(`SELECT id FROM ` + table + ` WHERE id = ? FOR UPDATE`)
		if err := tx.GetContext(ctx, &id, q, v.TargetID); err != nil {
			return trapNoRows(err, notFound, "locking vote target")
		}

		var current int
		q = tx.Rebind(`SELECT value FROM vote WHERE user_id = ? AND target_type = ? AND target_id = ?`)
		if err := tx.GetContext(ctx, &current, q, v.UserID, v.TargetType, v.TargetID); err != nil && errors.Cause(err) != sql.ErrNoRows {
			return errors.Wrap(err, "getting current vote")
		}
		v.Value = discussion.ResolveVote(current, v.Value)

		if v.Value == 0 {
			q = tx.Rebind(`DELETE FROM vote WHERE user_id = ? AND target_type = ? AND target_id = ?`)
			if _, err := tx.ExecContext(ctx, q, v.UserID, v.TargetType, v.TargetID); err != nil {
				return errors.Wrap(err, "deleting vote")
			}
		} else {
			q = tx.Rebind(`INSERT INTO vote (user_id, target_type, target_id, value) VALUES (?, ?, ?, ?)
				ON CONFLICT (user_id, target_type, target_id) DO UPDATE SET value = EXCLUDED.value`)
			if _, err := tx.ExecContext(ctx, q, v.UserID, v.TargetType, v.TargetID, v.Value); err != nil {
				return errors.Wrap(err, "saving vote")
			}
		}

		q = tx.Rebind(`SELECT COUNT(*) FILTER (WHERE value > 0) AS upvotes, COUNT(*) FILTER (WHERE value < 0) AS downvotes
			FROM vote WHERE target_type = ? AND target_id = ?`)
		if err := tx.GetContext(ctx, &tally, q, v.TargetType, v.TargetID); err != nil {
			return errors.Wrap(err, "counting votes")
		}
		q = tx.Rebind(`UPDATE ` + table + ` SET upvotes = ?, downvotes = ? WHERE id = ?`)
		_, err := tx.ExecContext(ctx, q, tally.Upvotes, tally.Downvotes, v.TargetID)
		return errors.Wrap(err, "updating tally")
	})
	if err != nil {
		return discussion.Tally{}, err
	}
	return discussion.NewTally(tally.Upvotes, tally.Downvotes, v.Value), nil
}
