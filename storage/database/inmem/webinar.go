package inmemdb

import (
	"context"
	"strings"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/webinar"
)

type webinarRepository struct {
	db *DB
}

var _ webinar.Repository = (*webinarRepository)(nil) // interface compliance check

func NewWebinarRepository(db *DB) webinar.Repository {
	return &webinarRepository{db: db}
}

func (repo *webinarRepository) CreateWebinar(_ context.Context, w webinar.Webinar) (webinar.Webinar, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	w.ID = newID()
	repo.db.webinars[w.ID] = w
	return w, nil
}

func (repo *webinarRepository) QueryWebinars(_ context.Context, filter *webinar.QueryFilter, page core.Page) ([]webinar.Webinar, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ws := make([]webinar.Webinar, 0, len(repo.db.webinars))
	for _, w := range repo.db.webinars {
		if filter != nil {
			if filter.Search != "" && !containsFold(w.Title, filter.Search) && !containsFold(w.Description, filter.Search) {
				continue
			}
			if len(filter.Status) > 0 && !core.ContainsString(filter.Status, w.Status) {
				continue
			}
			if filter.HostID != "" && w.HostID != filter.HostID {
				continue
			}
			if !filter.StartsAfter.IsZero() && w.StartsAt.Before(filter.StartsAfter) {
				continue
			}
		}
		ws = append(ws, w)
	}
	ordering := []core.DBOrdering{{Field: "starts_at", Ascending: true}, {Field: "id", Ascending: true}}
	sortByOrderings(ws, ordering, func(field string, i, j int) int {
		if field == "starts_at" {
			return compareTimes(ws[i].StartsAt, ws[j].StartsAt)
		}
		return strings.Compare(ws[i].ID, ws[j].ID)
	})

	start, end := page.Bounds(len(ws))
	return ws[start:end], len(ws), nil
}

func (repo *webinarRepository) GetWebinar(_ context.Context, id string) (webinar.Webinar, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if w, ok := repo.db.webinars[id]; ok {
		return w, nil
	}
	return webinar.Webinar{}, webinar.ErrNotFound
}

func (repo *webinarRepository) ReviewWebinar(_ context.Context, w webinar.Webinar) (webinar.Webinar, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.webinars[w.ID]
	if !ok {
		return webinar.Webinar{}, webinar.ErrNotFound
	}
	if orig.Status != webinar.StatusPending {
		return webinar.Webinar{}, webinar.ErrAlreadyReviewed
	}
	orig.Status = w.Status
	orig.ReviewNote = w.ReviewNote
	orig.ReviewedBy = w.ReviewedBy
	orig.UpdatedAt = w.UpdatedAt
	repo.db.webinars[w.ID] = orig
	return orig, nil
}

func (repo *webinarRepository) DeleteWebinar(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.webinars[id]; !ok {
		return webinar.ErrNotFound
	}
	delete(repo.db.webinars, id)
	return nil
}
