package project

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
)

// Kinds
const (
	KindResearch      = "RESEARCH"
	KindInternship    = "INTERNSHIP"
	KindCollaboration = "COLLABORATION"
)

// Project statuses
const (
	StatusOpen    = "OPEN"
	StatusOngoing = "ONGOING"
	StatusClosed  = "CLOSED"
)

// Application statuses
const (
	ApplicationPending  = "PENDING"
	ApplicationApproved = "APPROVED"
	ApplicationRejected = "REJECTED"
)

var (
	Kinds    = []string{KindResearch, KindInternship, KindCollaboration}
	Statuses = []string{StatusOpen, StatusOngoing, StatusClosed}

	// transitions lists the statuses a project may move to from a given status.
	transitions = map[string][]string{
		StatusOpen:    {StatusOngoing, StatusClosed},
		StatusOngoing: {StatusOpen, StatusClosed},
		StatusClosed:  {},
	}
)

// CanTransition reports whether a project may go from status `from` to status `to`.
func CanTransition(from, to string) bool {
	return core.ContainsString(transitions[from], to)
}

type Project struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Tags           []string  `json:"tags"`
	Location       string    `json:"location"`
	IsRemote       bool      `json:"is_remote"`
	Deadline       null.Time `json:"deadline"`
	MaxApplicants  int       `json:"max_applicants"` // 0: unlimited
	ApplicantCount int       `json:"applicant_count"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (p Project) IsOpen() bool { return p.Status == StatusOpen }

// DeadlinePassed reports whether the project has a deadline that is before `now`.
func (p Project) DeadlinePassed(now time.Time) bool {
	return p.Deadline.Valid && p.Deadline.Time.Before(now)
}

// IsFull reports whether the project reached its maximum number of applicants.
func (p Project) IsFull() bool {
	return p.MaxApplicants > 0 && p.ApplicantCount >= p.MaxApplicants
}

type Application struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	ApplicantID string    `json:"applicant_id"`
	Message     string    `json:"message"`
	ResumeURL   string    `json:"resume_url"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewProject contains information needed to create a new Project.
type NewProject struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Description   string    `json:"description" validate:"required"`
	Kind          string    `json:"kind" validate:"required,oneof=RESEARCH INTERNSHIP COLLABORATION"`
	Tags          []string  `json:"tags" validate:"omitempty,max=20,dive,notblank"`
	Location      string    `json:"location" validate:"max=200"`
	IsRemote      bool      `json:"is_remote"`
	Deadline      null.Time `json:"deadline"`
	MaxApplicants int       `json:"max_applicants" validate:"min=0"`
}

func (np *NewProject) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanString(np.Description)
	np.Kind = strings.ToUpper(core.CleanString(np.Kind))
	np.Tags = core.CleanStrings(np.Tags, true /* lower */)
	np.Location = core.CleanString(np.Location)
	if np.Deadline.Valid {
		np.Deadline.Time = np.Deadline.Time.UTC()
	}
	return validate.Struct(np)
}

// UpdateProject defines what information may be provided to modify an existing Project.
// Nil fields are left unchanged.
type UpdateProject struct {
	Title         *string   `json:"title" validate:"omitempty,notblank,max=200"`
	Description   *string   `json:"description" validate:"omitempty,notblank"`
	Kind          *string   `json:"kind" validate:"omitempty,oneof=RESEARCH INTERNSHIP COLLABORATION"`
	Tags          []string  `json:"tags" validate:"omitempty,max=20,dive,notblank"`
	Location      *string   `json:"location" validate:"omitempty,max=200"`
	IsRemote      *bool     `json:"is_remote"`
	Deadline      null.Time `json:"deadline"`
	ClearDeadline bool      `json:"clear_deadline"`
	MaxApplicants *int      `json:"max_applicants" validate:"omitempty,min=0"`
}

func (up *UpdateProject) Validate(validate *validator.Validate) error {
	cleanPtr := func(s *string) {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	cleanPtr(up.Title)
	cleanPtr(up.Description)
	cleanPtr(up.Location)
	if up.Kind != nil {
		kind := strings.ToUpper(core.CleanString(*up.Kind))
		up.Kind = &kind
	}
	up.Tags = core.CleanStrings(up.Tags, true /* lower */)
	if up.Deadline.Valid {
		up.Deadline.Time = up.Deadline.Time.UTC()
	}
	return validate.Struct(up)
}

type SetStatus struct {
	Status string `json:"status" validate:"required,oneof=OPEN ONGOING CLOSED"`
}

func (ss *SetStatus) Validate(validate *validator.Validate) error {
	ss.Status = strings.ToUpper(core.CleanString(ss.Status))
	return validate.Struct(ss)
}

// NewApplication contains what a student sends when applying to a Project.
type NewApplication struct {
	Message   string `json:"message" validate:"max=4000"`
	ResumeURL string `json:"resume_url" validate:"omitempty,url"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.Message = core.CleanString(na.Message)
	na.ResumeURL = core.CleanString(na.ResumeURL)
	return validate.Struct(na)
}

type ReviewApplication struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

func (ra *ReviewApplication) Validate(validate *validator.Validate) error {
	ra.Status = strings.ToUpper(core.CleanString(ra.Status))
	return validate.Struct(ra)
}

var OrderingFields = []string{"title", "deadline", "applicant_count", "created_at", "updated_at"}

type QueryFilter struct {
	Search  string
	Status  []string
	Kind    []string
	OwnerID string
	Tag     string
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Status == nil && qf.Kind == nil && qf.OwnerID == "" && qf.Tag == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = upperAll(core.CleanStrings(qf.Status))
	qf.Kind = upperAll(core.CleanStrings(qf.Kind))
	qf.OwnerID = core.CleanString(qf.OwnerID)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
}

// ApplicationFilter selects applications by project, applicant or both.
type ApplicationFilter struct {
	ProjectID   string
	ApplicantID string
}

func upperAll(ss []string) []string {
	for i := range ss {
		ss[i] = strings.ToUpper(ss[i])
	}
	return ss
}
