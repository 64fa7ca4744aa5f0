package notification

import "time"

// Kind tells what a notification is about.
type Kind string

const (
	KindWelcome             Kind = "welcome"
	KindApplicationReceived Kind = "application_received"
	KindApplicationReviewed Kind = "application_reviewed"
	KindProjectClosed       Kind = "project_closed"
	KindDiscussionAnswered  Kind = "discussion_answered"
	KindWebinarReviewed     Kind = "webinar_reviewed"
)

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	Link        string    `json:"link"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// NewNotification contains information needed to notify a user.
type NewNotification struct {
	RecipientID string
	Kind        Kind
	Message     string
	Link        string // frontend path, eg. "/projects/<id>"
}
