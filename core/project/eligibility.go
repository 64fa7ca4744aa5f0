package project

import (
	"time"

	"github.com/probestem/probe/core/user"
)

// Reasons a user cannot apply to a project.
const (
	ReasonUnauthenticated = "you must be logged in with an active account to apply"
	ReasonNotStudent      = "only students can apply to projects"
	ReasonOwnProject      = "you cannot apply to your own project"
	ReasonNotOpen         = "this project is not accepting applications"
	ReasonDeadlinePassed  = "the application deadline has passed"
	ReasonAlreadyApplied  = "you have already applied to this project"
	ReasonFull            = "this project has reached its maximum number of applicants"
)

type Eligibility struct {
	CanApply bool   `json:"can_apply"`
	Reason   string `json:"reason,omitempty"`
}

// CanApply tells whether `usr` may apply to `p` at `now`. usr is nil for anonymous users.
// The first failing rule gives the reason.
func CanApply(p Project, usr *user.User, now time.Time, alreadyApplied bool) Eligibility {
	var reason string
	switch {
	case usr == nil || !usr.IsActive:
		reason = ReasonUnauthenticated
	case !usr.IsStudent():
		reason = ReasonNotStudent
	case p.OwnerID == usr.ID:
		reason = ReasonOwnProject
	case !p.IsOpen():
		reason = ReasonNotOpen
	case p.DeadlinePassed(now):
		reason = ReasonDeadlinePassed
	case alreadyApplied:
		reason = ReasonAlreadyApplied
	case p.IsFull():
		reason = ReasonFull
	}
	return Eligibility{CanApply: reason == "", Reason: reason}
}
