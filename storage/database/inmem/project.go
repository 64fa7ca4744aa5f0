package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/project"
)

type projectRepository struct {
	db *DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *DB) project.Repository {
	return &projectRepository{db: db}
}

func copyProject(p project.Project) project.Project {
	p.Tags = cloneStrings(p.Tags)
	return p
}

func (repo *projectRepository) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[p.OwnerID]; !ok {
		return project.Project{}, core.NewFieldError("owner_id", "unknown owner")
	}
	p.ID = newID()
	p.ApplicantCount = 0
	repo.db.projects[p.ID] = copyProject(p)
	return copyProject(p), nil
}

func (repo *projectRepository) QueryProjects(_ context.Context, filter *project.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]project.Project, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	projects := make([]project.Project, 0, len(repo.db.projects))
	for _, p := range repo.db.projects {
		if filter == nil || matchProject(p, filter) {
			projects = append(projects, copyProject(p))
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	ordering = append(ordering, core.DBOrdering{Field: "id", Ascending: true})
	sortByOrderings(projects, ordering, func(field string, i, j int) int {
		a, b := projects[i], projects[j]
		switch field {
		case "id":
			return strings.Compare(a.ID, b.ID)
		case "title":
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case "deadline":
			return compareDeadlines(a, b)
		case "applicant_count":
			return compareInts(a.ApplicantCount, b.ApplicantCount)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		}
		return 0
	})

	start, end := page.Bounds(len(projects))
	return projects[start:end], len(projects), nil
}

// compareDeadlines sorts projects without deadline last, like NULLS LAST.
func compareDeadlines(a, b project.Project) int {
	switch {
	case !a.Deadline.Valid && !b.Deadline.Valid:
		return 0
	case !a.Deadline.Valid:
		return 1
	case !b.Deadline.Valid:
		return -1
	}
	return compareTimes(a.Deadline.Time, b.Deadline.Time)
}

func matchProject(p project.Project, filter *project.QueryFilter) bool {
	if filter.Search != "" && !containsFold(p.Title, filter.Search) && !containsFold(p.Description, filter.Search) {
		return false
	}
	if len(filter.Status) > 0 && !core.ContainsString(filter.Status, p.Status) {
		return false
	}
	if len(filter.Kind) > 0 && !core.ContainsString(filter.Kind, p.Kind) {
		return false
	}
	if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
		return false
	}
	if filter.Tag != "" && !core.ContainsString(p.Tags, filter.Tag) {
		return false
	}
	return true
}

func (repo *projectRepository) GetProject(_ context.Context, id string) (project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.projects[id]; ok {
		return copyProject(p), nil
	}
	return project.Project{}, project.ErrNotFound
}

func (repo *projectRepository) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.projects[p.ID]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	// managed by the applications
	p.ApplicantCount = orig.ApplicantCount
	p.OwnerID = orig.OwnerID
	p.CreatedAt = orig.CreatedAt
	repo.db.projects[p.ID] = copyProject(p)
	return copyProject(p), nil
}

func (repo *projectRepository) DeleteProject(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.projects[id]; !ok {
		return project.ErrNotFound
	}
	repo.db.deleteProject(id)
	return nil
}

// deleteProject removes a project and its applications. The caller must hold the lock.
func (db *DB) deleteProject(id string) {
	delete(db.projects, id)
	for aid, app := range db.applications {
		if app.ProjectID == id {
			delete(db.applications, aid)
		}
	}
}

func (repo *projectRepository) ListExpiredProjects(_ context.Context, now time.Time) ([]project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var expired []project.Project
	for _, p := range repo.db.projects {
		if p.IsOpen() && p.DeadlinePassed(now) {
			expired = append(expired, copyProject(p))
		}
	}
	return expired, nil
}

func (repo *projectRepository) CreateApplication(_ context.Context, app project.Application) (project.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.projects[app.ProjectID]
	if !ok {
		return project.Application{}, project.ErrNotFound
	}
	if !p.IsOpen() {
		return project.Application{}, project.ErrNotOpen
	}
	if p.DeadlinePassed(app.CreatedAt) {
		return project.Application{}, project.ErrDeadlinePassed
	}
	for _, a := range repo.db.applications {
		if a.ProjectID == app.ProjectID && a.ApplicantID == app.ApplicantID {
			return project.Application{}, project.ErrAlreadyApplied
		}
	}
	if p.IsFull() {
		return project.Application{}, project.ErrProjectFull
	}

	app.ID = newID()
	repo.db.applications[app.ID] = app
	p.ApplicantCount++
	repo.db.projects[p.ID] = p
	return app, nil
}

func (repo *projectRepository) GetApplication(_ context.Context, id string) (project.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if app, ok := repo.db.applications[id]; ok {
		return app, nil
	}
	return project.Application{}, project.ErrApplicationNotFound
}

// ListApplications returns the matching applications, oldest first.
func (repo *projectRepository) ListApplications(_ context.Context, filter project.ApplicationFilter) ([]project.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := make([]project.Application, 0)
	for _, app := range repo.db.applications {
		if filter.ProjectID != "" && app.ProjectID != filter.ProjectID {
			continue
		}
		if filter.ApplicantID != "" && app.ApplicantID != filter.ApplicantID {
			continue
		}
		apps = append(apps, app)
	}
	sortByOrderings(apps, []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}}, func(field string, i, j int) int {
		if field == "id" {
			return strings.Compare(apps[i].ID, apps[j].ID)
		}
		return compareTimes(apps[i].CreatedAt, apps[j].CreatedAt)
	})
	return apps, nil
}

func (repo *projectRepository) DecideApplication(_ context.Context, app project.Application) (project.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.applications[app.ID]
	if !ok {
		return project.Application{}, project.ErrApplicationNotFound
	}
	if orig.Status != project.ApplicationPending {
		return project.Application{}, project.ErrAlreadyReviewed
	}
	orig.Status = app.Status
	orig.UpdatedAt = app.UpdatedAt
	repo.db.applications[app.ID] = orig
	return orig, nil
}

func (repo *projectRepository) DeleteApplication(_ context.Context, app project.Application) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.applications[app.ID]
	if !ok {
		return project.ErrApplicationNotFound
	}
	delete(repo.db.applications, app.ID)
	if p, ok := repo.db.projects[orig.ProjectID]; ok && p.ApplicantCount > 0 {
		p.ApplicantCount--
		repo.db.projects[p.ID] = p
	}
	return nil
}
