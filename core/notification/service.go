package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, ns ...Notification) ([]Notification, error)
		// QueryNotifications returns a page of a user's notifications, newest first, and the total count.
		QueryNotifications(ctx context.Context, recipientID string, unreadOnly bool, page core.Page) ([]Notification, int, error)
		CountUnread(ctx context.Context, recipientID string) (int, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		// MarkRead marks the recipient's notifications as read; all of them if no ids are given.
		MarkRead(ctx context.Context, recipientID string, ids ...string) (int, error)
		DeleteReadBefore(ctx context.Context, before time.Time) (int, error)
	}

	// Broker pushes notifications to connected clients.
	Broker interface {
		Publish(recipientID string, n Notification)
	}

	// Notifier is what other services need to notify users.
	Notifier interface {
		Notify(ctx context.Context, ns ...NewNotification) error
	}

	Service interface {
		Notifier
		List(ctx context.Context, userID string, unreadOnly bool, page core.Page) (core.PageResult, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, id string) (Notification, error)
		MarkAllRead(ctx context.Context, userID string) (int, error)
		Prune(ctx context.Context, olderThan time.Duration) (int, error)
	}

	service struct {
		repo   Repository
		broker Broker
		logger core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

// NewService returns a notification Service. broker may be nil; notifications are only persisted then.
func NewService(repo Repository, broker Broker, logger core.Logger) Service {
	return &service{repo: repo, broker: broker, logger: logger}
}

// Notify persists the notifications then pushes them to their recipients.
func (svc *service) Notify(ctx context.Context, ns ...NewNotification) error {
	if len(ns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	toCreate := make([]Notification, 0, len(ns))
	for _, n := range ns {
		if n.RecipientID == "" {
			continue
		}
		toCreate = append(toCreate, Notification{
			RecipientID: n.RecipientID,
			Kind:        n.Kind,
			Message:     n.Message,
			Link:        n.Link,
			CreatedAt:   now,
		})
	}
	created, err := svc.repo.CreateNotifications(ctx, toCreate...)
	if err != nil {
		return errors.Wrap(err, "creating notifications")
	}
	if svc.broker != nil {
		for _, n := range created {
			svc.broker.Publish(n.RecipientID, n)
		}
	}
	return nil
}

func (svc *service) List(ctx context.Context, userID string, unreadOnly bool, page core.Page) (core.PageResult, error) {
	page = page.Clean()
	ns, count, err := svc.repo.QueryNotifications(ctx, userID, unreadOnly, page)
	if err != nil {
		return core.PageResult{}, errors.Wrap(err, "querying notifications")
	}
	if ns == nil {
		ns = []Notification{}
	}
	return core.NewPageResult(page, count, ns), nil
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

// MarkRead marks a single notification as read. Users can only read their own notifications.
func (svc *service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.RecipientID != userID {
		return Notification{}, ErrNotFound
	}
	if n.Read {
		return n, nil
	}
	if _, err = svc.repo.MarkRead(ctx, userID, id); err != nil {
		return Notification{}, errors.Wrap(err, "marking notification as read")
	}
	n.Read = true
	return n, nil
}

func (svc *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkRead(ctx, userID)
}

// Prune deletes read notifications older than `olderThan`.
func (svc *service) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cnt, err := svc.repo.DeleteReadBefore(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, errors.Wrap(err, "pruning notifications")
	}
	if cnt > 0 {
		svc.logger.Info(fmt.Sprintf("pruned %d read notifications", cnt))
	}
	return cnt, nil
}
