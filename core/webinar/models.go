package webinar

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
)

// Modes
const (
	ModeOnline  = "ONLINE"
	ModeOffline = "OFFLINE"
)

// Statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

type Webinar struct {
	ID          string      `json:"id"`
	HostID      string      `json:"host_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Mode        string      `json:"mode"`
	Link        string      `json:"link"`
	Location    string      `json:"location"`
	StartsAt    time.Time   `json:"starts_at"` // UTC
	Duration    int         `json:"duration"`  // minutes
	Status      string      `json:"status"`
	ReviewNote  null.String `json:"review_note"`
	ReviewedBy  null.String `json:"reviewed_by"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

func (w Webinar) IsApproved() bool { return w.Status == StatusApproved }

// NewWebinar contains information needed to submit a new Webinar.
type NewWebinar struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required"`
	Mode        string    `json:"mode" validate:"required,oneof=ONLINE OFFLINE"`
	Link        string    `json:"link" validate:"omitempty,url"`
	Location    string    `json:"location" validate:"max=200"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	Duration    int       `json:"duration" validate:"required,min=1,max=1440"`
}

func (nw *NewWebinar) Validate(validate *validator.Validate) error {
	nw.Title = core.CleanString(nw.Title)
	nw.Description = core.CleanString(nw.Description)
	nw.Mode = strings.ToUpper(core.CleanString(nw.Mode))
	nw.Link = core.CleanString(nw.Link)
	nw.Location = core.CleanString(nw.Location)
	nw.StartsAt = nw.StartsAt.UTC()
	return validate.Struct(nw)
}

// Review is an admin's decision on a pending Webinar.
type Review struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Note   string `json:"note" validate:"max=1000"`
}

func (rv *Review) Validate(validate *validator.Validate) error {
	rv.Status = strings.ToUpper(core.CleanString(rv.Status))
	rv.Note = core.CleanString(rv.Note)
	return validate.Struct(rv)
}

type QueryFilter struct {
	Search      string
	Status      []string
	HostID      string
	StartsAfter time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == nil && qf.HostID == "" && qf.StartsAfter.IsZero()
}

// ListOptions are the query options a viewer may ask for.
type ListOptions struct {
	Search   string
	Status   []string // admins only
	HostID   string
	Upcoming bool
	Mine     bool
}
