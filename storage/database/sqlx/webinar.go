package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/webinar"
)

const webinarColumns = `id, host_id, title, description, mode, link, location, starts_at, duration, status,
	review_note, reviewed_by, created_at, updated_at`

type webinarRow struct {
	ID          string      `db:"id"`
	HostID      string      `db:"host_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Mode        string      `db:"mode"`
	Link        string      `db:"link"`
	Location    string      `db:"location"`
	StartsAt    time.Time   `db:"starts_at"`
	Duration    int         `db:"duration"`
	Status      string      `db:"status"`
	ReviewNote  null.String `db:"review_note"`
	ReviewedBy  null.String `db:"reviewed_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func toWebinarRow(w webinar.Webinar) webinarRow {
	return webinarRow{
		ID:          w.ID,
		HostID:      w.HostID,
		Title:       w.Title,
		Description: w.Description,
		Mode:        w.Mode,
		Link:        w.Link,
		Location:    w.Location,
		StartsAt:    w.StartsAt.UTC(),
		Duration:    w.Duration,
		Status:      w.Status,
		ReviewNote:  w.ReviewNote,
		ReviewedBy:  w.ReviewedBy,
		CreatedAt:   w.CreatedAt.UTC(),
		UpdatedAt:   w.UpdatedAt.UTC(),
	}
}

func (r webinarRow) toWebinar() webinar.Webinar {
	return webinar.Webinar{
		ID:          r.ID,
		HostID:      r.HostID,
		Title:       r.Title,
		Description: r.Description,
		Mode:        r.Mode,
		Link:        r.Link,
		Location:    r.Location,
		StartsAt:    r.StartsAt.UTC(),
		Duration:    r.Duration,
		Status:      r.Status,
		ReviewNote:  r.ReviewNote,
		ReviewedBy:  r.ReviewedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type webinarRepository struct {
	db *sqlx.DB
}

var _ webinar.Repository = (*webinarRepository)(nil) // interface compliance check

func NewWebinarRepository(db *sqlx.DB) webinar.Repository {
	return &webinarRepository{db: db}
}

func (repo *webinarRepository) CreateWebinar(ctx context.Context, w webinar.Webinar) (webinar.Webinar, error) {
	w.ID = newID()
	q := `INSERT INTO webinar (` + webinarColumns + `)
		VALUES (:id, :host_id, :title, :description, :mode, :link, :location, :starts_at, :duration, :status,
		:review_note, :reviewed_by, :created_at, :updated_at)`
	row := toWebinarRow(w)
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return webinar.Webinar{}, errors.Wrap(err, "inserting webinar")
	}
	return row.toWebinar(), nil
}

func (repo *webinarRepository) QueryWebinars(ctx context.Context, filter *webinar.QueryFilter, page core.Page) ([]webinar.Webinar, int, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.add("(title ILIKE ? OR description ILIKE ?)", val, val)
		}
		if len(filter.Status) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Status))
		}
		if filter.HostID != "" {
			if !isUUID(filter.HostID) {
				return []webinar.Webinar{}, 0, nil
			}
			w.add("host_id = ?", filter.HostID)
		}
		if !filter.StartsAfter.IsZero() {
			w.add("starts_at >= ?", filter.StartsAfter.UTC())
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT COUNT(*) FROM webinar`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting webinars")
	}

	var rows []webinarRow
	q := repo.db.Rebind(`SELECT ` + webinarColumns + ` FROM webinar` + w.String() + ` ORDER BY starts_at ASC, id ASC` + limitOffset)
	if err := repo.db.SelectContext(ctx, &rows, q, pageArgs(w.args, page)...); err != nil {
		return nil, 0, errors.Wrap(err, "querying webinars")
	}
	ws := make([]webinar.Webinar, 0, len(rows))
	for _, r := range rows {
		ws = append(ws, r.toWebinar())
	}
	return ws, count, nil
}

func (repo *webinarRepository) GetWebinar(ctx context.Context, id string) (webinar.Webinar, error) {
	if !isUUID(id) {
		return webinar.Webinar{}, webinar.ErrNotFound
	}
	var row webinarRow
	q := repo.db.Rebind(`SELECT ` + webinarColumns + ` FROM webinar WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return webinar.Webinar{}, trapNoRows(err, webinar.ErrNotFound, "finding webinar")
	}
	return row.toWebinar(), nil
}

// ReviewWebinar only updates a PENDING row, so that concurrent reviews cannot overwrite each other.
func (repo *webinarRepository) ReviewWebinar(ctx context.Context, w webinar.Webinar) (webinar.Webinar, error) {
	if !isUUID(w.ID) {
		return webinar.Webinar{}, webinar.ErrNotFound
	}
	var row webinarRow
	q := repo.db.Rebind(`UPDATE webinar SET status = ?, review_note = ?, reviewed_by = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING ` + webinarColumns)
	err := repo.db.GetContext(ctx, &row, q, w.Status, w.ReviewNote, w.ReviewedBy, w.UpdatedAt.UTC(), w.ID, webinar.StatusPending)
	if err == nil {
		return row.toWebinar(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return webinar.Webinar{}, errors.Wrap(err, "reviewing webinar")
	}

	var exists bool
	q = repo.db.Rebind(`SELECT EXISTS (SELECT 1 FROM webinar WHERE id = ?)`)
	if err = repo.db.GetContext(ctx, &exists, q, w.ID); err != nil {
		return webinar.Webinar{}, errors.Wrap(err, "checking webinar")
	}
	if !exists {
		return webinar.Webinar{}, webinar.ErrNotFound
	}
	return webinar.Webinar{}, webinar.ErrAlreadyReviewed
}

func (repo *webinarRepository) DeleteWebinar(ctx context.Context, id string) error {
	if !isUUID(id) {
		return webinar.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM webinar WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting webinar")
	}
	_, err = checkAffected(res, webinar.ErrNotFound)
	return err
}
