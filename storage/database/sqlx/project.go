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
	"github.com/probestem/probe/core/project"
)

const (
	projectColumns = `id, owner_id, title, description, kind, status, tags, location, is_remote, deadline,
		max_applicants, applicant_count, created_at, updated_at`
	applicationColumns = `id, project_id, applicant_id, message, resume_url, status, created_at, updated_at`
)

var projectOrderColumns = map[string]string{
	"title":           "title",
	"deadline":        "deadline",
	"applicant_count": "applicant_count",
	"created_at":      "created_at",
	"updated_at":      "updated_at",
}

type projectRow struct {
	ID             string         `db:"id"`
	OwnerID        string         `db:"owner_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Kind           string         `db:"kind"`
	Status         string         `db:"status"`
	Tags           pq.StringArray `db:"tags"`
	Location       string         `db:"location"`
	IsRemote       bool           `db:"is_remote"`
	Deadline       null.Time      `db:"deadline"`
	MaxApplicants  int            `db:"max_applicants"`
	ApplicantCount int            `db:"applicant_count"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func toProjectRow(p project.Project) projectRow {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return projectRow{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Title:          p.Title,
		Description:    p.Description,
		Kind:           p.Kind,
		Status:         p.Status,
		Tags:           tags,
		Location:       p.Location,
		IsRemote:       p.IsRemote,
		Deadline:       p.Deadline,
		MaxApplicants:  p.MaxApplicants,
		ApplicantCount: p.ApplicantCount,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func (r projectRow) toProject() project.Project {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	if r.Deadline.Valid {
		r.Deadline.Time = r.Deadline.Time.UTC()
	}
	return project.Project{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Description:    r.Description,
		Kind:           r.Kind,
		Status:         r.Status,
		Tags:           tags,
		Location:       r.Location,
		IsRemote:       r.IsRemote,
		Deadline:       r.Deadline,
		MaxApplicants:  r.MaxApplicants,
		ApplicantCount: r.ApplicantCount,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type applicationRow struct {
	ID          string    `db:"id"`
	ProjectID   string    `db:"project_id"`
	ApplicantID string    `db:"applicant_id"`
	Message     string    `db:"message"`
	ResumeURL   string    `db:"resume_url"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r applicationRow) toApplication() project.Application {
	return project.Application{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ApplicantID: r.ApplicantID,
		Message:     r.Message,
		ResumeURL:   r.ResumeURL,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type projectRepository struct {
	db *sqlx.DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *sqlx.DB) project.Repository {
	return &projectRepository{db: db}
}

func (repo *projectRepository) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.ID = newID()
	p.ApplicantCount = 0
	row := toProjectRow(p)
	q := `INSERT INTO project (` + projectColumns + `)
		VALUES (:id, :owner_id, :title, :description, :kind, :status, :tags, :location, :is_remote, :deadline,
		:max_applicants, :applicant_count, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return project.Project{}, errors.Wrap(err, "inserting project")
	}
	return row.toProject(), nil
}

func (repo *projectRepository) QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]project.Project, int, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.add("(title ILIKE ? OR description ILIKE ?)", val, val)
		}
		if len(filter.Status) > 0 {
			w.add("status = ANY(?)", pq.Array(filter.Status))
		}
		if len(filter.Kind) > 0 {
			w.add("kind = ANY(?)", pq.Array(filter.Kind))
		}
		if filter.OwnerID != "" {
			if !isUUID(filter.OwnerID) {
				return []project.Project{}, 0, nil
			}
			w.add("owner_id = ?", filter.OwnerID)
		}
		if filter.Tag != "" {
			w.add("? = ANY(tags)", filter.Tag)
		}
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT COUNT(*) FROM project`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting projects")
	}

	var rows []projectRow
	q := repo.db.Rebind(`SELECT ` + projectColumns + ` FROM project` + w.String() +
		orderBy(ordering, projectOrderColumns, "created_at DESC") + limitOffset)
	if err := repo.db.SelectContext(ctx, &rows, q, pageArgs(w.args, page)...); err != nil {
		return nil, 0, errors.Wrap(err, "querying projects")
	}
	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.toProject())
	}
	return projects, count, nil
}

func (repo *projectRepository) GetProject(ctx context.Context, id string) (project.Project, error) {
	if !isUUID(id) {
		return project.Project{}, project.ErrNotFound
	}
	var row projectRow
	q := repo.db.Rebind(`SELECT ` + projectColumns + ` FROM project WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return project.Project{}, trapNoRows(err, project.ErrNotFound, "finding project")
	}
	return row.toProject(), nil
}

// UpdateProject saves every field but applicant_count, which only application changes maintain.
func (repo *projectRepository) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	if !isUUID(p.ID) {
		return project.Project{}, project.ErrNotFound
	}
	row := toProjectRow(p)
	q := `UPDATE project SET title = :title, description = :description, kind = :kind, status = :status, tags = :tags,
		location = :location, is_remote = :is_remote, deadline = :deadline, max_applicants = :max_applicants,
		updated_at = :updated_at
		WHERE id = :id
		RETURNING ` + projectColumns
	q, args, err := repo.db.BindNamed(q, row)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "binding project")
	}
	var updated projectRow
	if err = repo.db.GetContext(ctx, &updated, q, args...); err != nil {
		return project.Project{}, trapNoRows(err, project.ErrNotFound, "updating project")
	}
	return updated.toProject(), nil
}

func (repo *projectRepository) DeleteProject(ctx context.Context, id string) error {
	if !isUUID(id) {
		return project.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM project WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting project")
	}
	_, err = checkAffected(res, project.ErrNotFound)
	return err
}

func (repo *projectRepository) ListExpiredProjects(ctx context.Context, now time.Time) ([]project.Project, error) {
	var rows []projectRow
	q := repo.db.Rebind(`SELECT ` + projectColumns + ` FROM project
		WHERE status = ? AND deadline IS NOT NULL AND deadline < ? ORDER BY deadline ASC, id ASC`)
	if err := repo.db.SelectContext(ctx, &rows, q, project.StatusOpen, now.UTC()); err != nil {
		return nil, errors.Wrap(err, "listing expired projects")
	}
	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.toProject())
	}
	return projects, nil
}

// CreateApplication re-checks the status, deadline, duplicate & capacity rules while holding the project's row lock.
func (repo *projectRepository) CreateApplication(ctx context.Context, app project.Application) (project.Application, error) {
	if !isUUID(app.ProjectID) {
		return project.Application{}, project.ErrNotFound
	}
	app.ID = newID()

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var locked struct {
			Status         string    `db:"status"`
			Deadline       null.Time `db:"deadline"`
			MaxApplicants  int       `db:"max_applicants"`
			ApplicantCount int       `db:"applicant_count"`
		}
		q := tx.Rebind(`SELECT status, deadline, max_applicants, applicant_count FROM project WHERE id = ? FOR UPDATE`)
		if err := tx.GetContext(ctx, &locked, q, app.ProjectID); err != nil {
			return trapNoRows(err, project.ErrNotFound, "locking project")
		}
		p := project.Project{
			Status:         locked.Status,
			Deadline:       locked.Deadline,
			MaxApplicants:  locked.MaxApplicants,
			ApplicantCount: locked.ApplicantCount,
		}
		if !p.IsOpen() {
			return project.ErrNotOpen
		}
		if p.DeadlinePassed(app.CreatedAt) {
			return project.ErrDeadlinePassed
		}

		var applied bool
		q = tx.Rebind(`SELECT EXISTS (SELECT 1 FROM application WHERE project_id = ? AND applicant_id = ?)`)
		if err := tx.GetContext(ctx, &applied, q, app.ProjectID, app.ApplicantID); err != nil {
			return errors.Wrap(err, "checking existing application")
		}
		if applied {
			return project.ErrAlreadyApplied
		}
		if p.IsFull() {
			return project.ErrProjectFull
		}

		q = `INSERT INTO application (` + applicationColumns + `)
			VALUES (:id, :project_id, :applicant_id, :message, :resume_url, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, toApplicationRow(app)); err != nil {
			if isUniqueViolation(err) {
				return project.ErrAlreadyApplied
			}
			return errors.Wrap(err, "inserting application")
		}
		q = tx.Rebind(`UPDATE project SET applicant_count = applicant_count + 1 WHERE id = ?`)
		_, err := tx.ExecContext(ctx, q, app.ProjectID)
		return errors.Wrap(err, "incrementing applicant count")
	})
	if err != nil {
		return project.Application{}, err
	}
	return app, nil
}

func toApplicationRow(app project.Application) applicationRow {
	return applicationRow{
		ID:          app.ID,
		ProjectID:   app.ProjectID,
		ApplicantID: app.ApplicantID,
		Message:     app.Message,
		ResumeURL:   app.ResumeURL,
		Status:      app.Status,
		CreatedAt:   app.CreatedAt.UTC(),
		UpdatedAt:   app.UpdatedAt.UTC(),
	}
}

func (repo *projectRepository) GetApplication(ctx context.Context, id string) (project.Application, error) {
	if !isUUID(id) {
		return project.Application{}, project.ErrApplicationNotFound
	}
	var row applicationRow
	q := repo.db.Rebind(`SELECT ` + applicationColumns + ` FROM application WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return project.Application{}, trapNoRows(err, project.ErrApplicationNotFound, "finding application")
	}
	return row.toApplication(), nil
}

func (repo *projectRepository) ListApplications(ctx context.Context, filter project.ApplicationFilter) ([]project.Application, error) {
	var w where
	for _, f := range []struct{ col, id string }{{"project_id", filter.ProjectID}, {"applicant_id", filter.ApplicantID}} {
		if f.id == "" {
			continue
		}
		if !isUUID(f.id) {
			return []project.Application{}, nil
		}
		w.add(f.col+" = ?", f.id)
	}

	var rows []applicationRow
	q := repo.db.Rebind(`SELECT ` + applicationColumns + ` FROM application` + w.String() + ` ORDER BY created_at ASC, id ASC`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "listing applications")
	}
	apps := make([]project.Application, 0, len(rows))
	for _, r := range rows {
		apps = append(apps, r.toApplication())
	}
	return apps, nil
}

// DecideApplication only updates a PENDING row, so that concurrent reviews cannot overwrite each other.
func (repo *projectRepository) DecideApplication(ctx context.Context, app project.Application) (project.Application, error) {
	if !isUUID(app.ID) {
		return project.Application{}, project.ErrApplicationNotFound
	}
	var row applicationRow
	q := repo.db.Rebind(`UPDATE application SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		RETURNING ` + applicationColumns)
	err := repo.db.GetContext(ctx, &row, q, app.Status, app.UpdatedAt.UTC(), app.ID, project.ApplicationPending)
	if err == nil {
		return row.toApplication(), nil
	}
	if errors.Cause(err) != sql.ErrNoRows {
		return project.Application{}, errors.Wrap(err, "deciding application")
	}

	var exists bool
	q = repo.db.Rebind(`SELECT EXISTS (SELECT 1 FROM application WHERE id = ?)`)
	if err = repo.db.GetContext(ctx, &exists, q, app.ID); err != nil {
		return project.Application{}, errors.Wrap(err, "checking application")
	}
	if !exists {
		return project.Application{}, project.ErrApplicationNotFound
	}
	return project.Application{}, project.ErrAlreadyReviewed
}

func (repo *projectRepository) DeleteApplication(ctx context.Context, app project.Application) error {
	if !isUUID(app.ID) {
		return project.ErrApplicationNotFound
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var projectID string
		q := tx.Rebind(`DELETE FROM application WHERE id = ? RETURNING project_id`)
		if err := tx.GetContext(ctx, &projectID, q, app.ID); err != nil {
			return trapNoRows(err, project.ErrApplicationNotFound, "deleting application")
		}
		q = tx.Rebind(`UPDATE project SET applicant_count = GREATEST(applicant_count - 1, 0) WHERE id = ?`)
		_, err := tx.ExecContext(ctx, q, projectID)
		return errors.Wrap(err, "decrementing applicant count")
	})
}
