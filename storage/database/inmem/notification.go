package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	created := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		n.ID = newID()
		repo.db.notifications[n.ID] = n
		created = append(created, n)
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, recipientID string, unreadOnly bool, page core.Page) ([]notification.Notification, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ns := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		ns = append(ns, n)
	}
	ordering := []core.DBOrdering{{Field: "created_at"}, {Field: "id", Ascending: true}}
	sortByOrderings(ns, ordering, func(field string, i, j int) int {
		if field == "created_at" {
			return compareTimes(ns[i].CreatedAt, ns[j].CreatedAt)
		}
		return strings.Compare(ns[i].ID, ns[j].ID)
	})

	start, end := page.Bounds(len(ns))
	return ns[start:end], len(ns), nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) MarkRead(_ context.Context, recipientID string, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var marked int
	mark := func(n notification.Notification) {
		if n.RecipientID == recipientID && !n.Read {
			n.Read = true
			repo.db.notifications[n.ID] = n
			marked++
		}
	}
	if len(ids) == 0 {
		for _, n := range repo.db.notifications {
			mark(n)
		}
		return marked, nil
	}
	for _, id := range ids {
		if n, ok := repo.db.notifications[id]; ok {
			mark(n)
		}
	}
	return marked, nil
}

func (repo *notificationRepository) DeleteReadBefore(_ context.Context, before time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var deleted int
	for id, n := range repo.db.notifications {
		if n.Read && n.CreatedAt.Before(before) {
			delete(repo.db.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}
