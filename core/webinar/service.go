package webinar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("webinar not found")
	ErrAlreadyReviewed = errors.New("this webinar has already been reviewed")
)

type (
	Repository interface {
		CreateWebinar(ctx context.Context, w Webinar) (Webinar, error)
		// QueryWebinars returns a page of the webinars matching filter, soonest first, and their total count.
		QueryWebinars(ctx context.Context, filter *QueryFilter, page core.Page) ([]Webinar, int, error)
		GetWebinar(ctx context.Context, id string) (Webinar, error)
		// ReviewWebinar saves the review of a PENDING webinar.
		// It returns ErrAlreadyReviewed when the webinar is no longer pending.
		ReviewWebinar(ctx context.Context, w Webinar) (Webinar, error)
		DeleteWebinar(ctx context.Context, id string) error
	}

	// Service manages webinars and their approval.
	Service interface {
		Submit(ctx context.Context, host user.User, nw NewWebinar) (Webinar, error)
		// Query lists the webinars viewer is allowed to see. viewer is nil for anonymous users.
		Query(ctx context.Context, viewer *user.User, opts ListOptions, page core.Page) (core.PageResult, error)
		// Get returns the webinar if viewer may see it, ErrNotFound otherwise.
		Get(ctx context.Context, id string, viewer *user.User) (Webinar, error)
		Review(ctx context.Context, reviewer user.User, w Webinar, rv Review) (Webinar, error)
		Delete(ctx context.Context, actor user.User, w Webinar) error
	}

	service struct {
		repo     Repository
		notifier notification.Notifier
		logger   core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, notifier notification.Notifier, logger core.Logger) Service {
	return &service{repo: repo, notifier: notifier, logger: logger}
}

// CanHost reports whether usr may submit webinars.
func CanHost(usr user.User) bool {
	return usr.IsProfessor() || usr.IsBusiness() || usr.IsAdmin()
}

// CanSee reports whether viewer may see `w`. viewer is nil for anonymous users.
func CanSee(viewer *user.User, w Webinar) bool {
	if w.IsApproved() {
		return true
	}
	return viewer != nil && (viewer.ID == w.HostID || viewer.IsAdmin())
}

func (svc *service) Submit(ctx context.Context, host user.User, nw NewWebinar) (Webinar, error) {
	if !CanHost(host) {
		return Webinar{}, core.NewPermissionError("only professors and businesses can host webinars")
	}
	now := time.Now().UTC()
	w := Webinar{
		HostID:      host.ID,
		Title:       nw.Title,
		Description: nw.Description,
		Mode:        nw.Mode,
		StartsAt:    nw.StartsAt.UTC(),
		Duration:    nw.Duration,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// only keep the field that matches the mode
	if w.Mode == ModeOnline {
		w.Link = nw.Link
	} else {
		w.Location = nw.Location
	}
	return svc.repo.CreateWebinar(ctx, w)
}

func (svc *service) Query(ctx context.Context, viewer *user.User, opts ListOptions, page core.Page) (core.PageResult, error) {
	filter := &QueryFilter{
		Search: core.CleanString(opts.Search),
		HostID: core.CleanString(opts.HostID),
	}
	if opts.Upcoming {
		filter.StartsAfter = time.Now().UTC()
	}

	switch {
	case opts.Mine && viewer != nil:
		// own webinars, whatever their status
		filter.HostID = viewer.ID
		filter.Status = cleanStatuses(opts.Status)
	case viewer != nil && viewer.IsAdmin():
		filter.Status = cleanStatuses(opts.Status)
	default:
		filter.Status = []string{StatusApproved}
	}
	if filter.IsEmpty() {
		filter = nil
	}

	page = page.Clean()
	ws, count, err := svc.repo.QueryWebinars(ctx, filter, page)
	if err != nil {
		return core.PageResult{}, errors.Wrap(err, "querying webinars")
	}
	if ws == nil {
		ws = []Webinar{}
	}
	return core.NewPageResult(page, count, ws), nil
}

func (svc *service) Get(ctx context.Context, id string, viewer *user.User) (Webinar, error) {
	if id == "" {
		return Webinar{}, ErrNotFound
	}
	w, err := svc.repo.GetWebinar(ctx, id)
	if err != nil {
		return Webinar{}, err
	}
	if !CanSee(viewer, w) {
		return Webinar{}, ErrNotFound
	}
	return w, nil
}

// Review approves or rejects a pending webinar, then notifies its host.
func (svc *service) Review(ctx context.Context, reviewer user.User, w Webinar, rv Review) (Webinar, error) {
	if !reviewer.IsAdmin() {
		return Webinar{}, core.NewPermissionError()
	}
	if w.Status != StatusPending {
		return Webinar{}, core.NewFieldError("status", ErrAlreadyReviewed.Error())
	}

	w.Status = rv.Status
	w.ReviewNote = null.NewString(rv.Note, rv.Note != "")
	w.ReviewedBy = null.StringFrom(reviewer.ID)
	w.UpdatedAt = time.Now().UTC()
	w, err := svc.repo.ReviewWebinar(ctx, w)
	if err != nil {
		if errors.Cause(err) == ErrAlreadyReviewed {
			return Webinar{}, core.NewFieldError("status", ErrAlreadyReviewed.Error())
		}
		return Webinar{}, err
	}

	msg := fmt.Sprintf("Your webinar %q was %s.", w.Title, strings.ToLower(w.Status))
	if w.ReviewNote.Valid {
		msg += " Note: " + w.ReviewNote.String
	}
	if err = svc.notifier.Notify(ctx, notification.NewNotification{
		RecipientID: w.HostID,
		Kind:        notification.KindWebinarReviewed,
		Message:     msg,
		Link:        "/webinars/" + w.ID,
	}); err != nil {
		svc.logger.Error(fmt.Sprintf("webinar.Review: %v", err), err)
	}
	return w, nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, w Webinar) error {
	if actor.ID != w.HostID && !actor.IsAdmin() {
		return core.NewPermissionError()
	}
	return svc.repo.DeleteWebinar(ctx, w.ID)
}

func cleanStatuses(statuses []string) []string {
	statuses = core.CleanStrings(statuses)
	for i := range statuses {
		statuses[i] = strings.ToUpper(statuses[i])
	}
	return statuses
}
