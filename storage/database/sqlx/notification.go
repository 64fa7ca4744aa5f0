package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
)

const notificationColumns = `id, recipient_id, kind, message, link, read, created_at`

type notificationRow struct {
	ID          string    `db:"id"`
	RecipientID string    `db:"recipient_id"`
	Kind        string    `db:"kind"`
	Message     string    `db:"message"`
	Link        string    `db:"link"`
	Read        bool      `db:"read"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Kind:        notification.Kind(r.Kind),
		Message:     r.Message,
		Link:        r.Link,
		Read:        r.Read,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

// CreateNotifications inserts every notification with a single statement.
func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	if len(ns) == 0 {
		return []notification.Notification{}, nil
	}
	rows := make([]notificationRow, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, notificationRow{
			ID:          newID(),
			RecipientID: n.RecipientID,
			Kind:        string(n.Kind),
			Message:     n.Message,
			Link:        n.Link,
			Read:        n.Read,
			CreatedAt:   n.CreatedAt.UTC(),
		})
	}
	q := `INSERT INTO notification (` + notificationColumns + `)
		VALUES (:id, :recipient_id, :kind, :message, :link, :read, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, rows); err != nil {
		return nil, errors.Wrap(err, "inserting notifications")
	}
	created := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.toNotification())
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientID string, unreadOnly bool, page core.Page) ([]notification.Notification, int, error) {
	if !isUUID(recipientID) {
		return []notification.Notification{}, 0, nil
	}
	var w where
	w.add("recipient_id = ?", recipientID)
	if unreadOnly {
		w.add("NOT read")
	}

	var count int
	if err := repo.db.GetContext(ctx, &count, repo.db.Rebind(`SELECT COUNT(*) FROM notification`+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}

	var rows []notificationRow
	q := repo.db.Rebind(`SELECT ` + notificationColumns + ` FROM notification` + w.String() +
		` ORDER BY created_at DESC, id ASC` + limitOffset)
	if err := repo.db.SelectContext(ctx, &rows, q, pageArgs(w.args, page)...); err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, count, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if !isUUID(recipientID) {
		return 0, nil
	}
	var count int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM notification WHERE recipient_id = ? AND NOT read`)
	if err := repo.db.GetContext(ctx, &count, q, recipientID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	q := repo.db.Rebind(`SELECT ` + notificationColumns + ` FROM notification WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return notification.Notification{}, trapNoRows(err, notification.ErrNotFound, "finding notification")
	}
	return row.toNotification(), nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID string, ids ...string) (int, error) {
	if !isUUID(recipientID) {
		return 0, nil
	}
	var w where
	w.add("recipient_id = ?", recipientID)
	w.add("NOT read")
	if len(ids) > 0 {
		ids = validIDs(ids)
		if len(ids) == 0 {
			return 0, nil
		}
		w.addIn("id", ids)
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE notification SET read = TRUE`+w.String()), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "getting affected rows")
}

func (repo *notificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int, error) {
	q := repo.db.Rebind(`DELETE FROM notification WHERE read AND created_at < ?`)
	res, err := repo.db.ExecContext(ctx, q, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting read notifications")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "getting affected rows")
}
