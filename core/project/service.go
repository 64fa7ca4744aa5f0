package project

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
)

var (
	// errors
	ErrNotFound            = errors.New("project not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyApplied      = errors.New(ReasonAlreadyApplied)
	ErrProjectFull         = errors.New(ReasonFull)
	ErrNotOpen             = errors.New(ReasonNotOpen)
	ErrDeadlinePassed      = errors.New(ReasonDeadlinePassed)
	ErrAlreadyReviewed     = errors.New("this application has already been reviewed")
)

type (
	Repository interface {
		CreateProject(ctx context.Context, p Project) (Project, error)
		// QueryProjects returns a page of the projects matching filter and their total count.
		QueryProjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Project, int, error)
		GetProject(ctx context.Context, id string) (Project, error)
		UpdateProject(ctx context.Context, p Project) (Project, error)
		// DeleteProject deletes the project and its applications.
		DeleteProject(ctx context.Context, id string) error
		// ListExpiredProjects returns OPEN projects whose deadline is before `now`.
		ListExpiredProjects(ctx context.Context, now time.Time) ([]Project, error)

		// CreateApplication saves the application and increments the project's applicant count in one go.
		// It returns ErrNotOpen, ErrDeadlinePassed (deadline before app.CreatedAt), ErrAlreadyApplied
		// or ErrProjectFull when the project no longer accepts it.
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplication(ctx context.Context, id string) (Application, error)
		ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
		// DecideApplication saves the status of a PENDING application.
		// It returns ErrAlreadyReviewed when the application is no longer pending.
		DecideApplication(ctx context.Context, app Application) (Application, error)
		// DeleteApplication deletes the application and decrements the project's applicant count.
		DeleteApplication(ctx context.Context, app Application) error
	}

	// Service manages project listings and their applications.
	Service interface {
		Create(ctx context.Context, owner user.User, np NewProject) (Project, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (core.PageResult, error)
		GetByID(ctx context.Context, id string) (Project, error)
		Update(ctx context.Context, actor user.User, p Project, up UpdateProject) (Project, error)
		SetStatus(ctx context.Context, actor user.User, p Project, status string) (Project, error)
		Delete(ctx context.Context, actor user.User, p Project) error
		CloseExpired(ctx context.Context, now time.Time) (int, error)

		Eligibility(ctx context.Context, p Project, usr *user.User) (Eligibility, error)
		Apply(ctx context.Context, applicant user.User, p Project, na NewApplication) (Application, error)
		Withdraw(ctx context.Context, applicant user.User, p Project) error
		ListApplications(ctx context.Context, actor user.User, p Project) ([]Application, error)
		ListUserApplications(ctx context.Context, userID string) ([]Application, error)
		ReviewApplication(ctx context.Context, actor user.User, p Project, appID string, ra ReviewApplication) (Application, error)
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

// CanPost reports whether usr may publish projects.
func CanPost(usr user.User) bool {
	return usr.IsProfessor() || usr.IsBusiness() || usr.IsAdmin()
}

// CanManage reports whether usr may edit `p` and review its applications.
func CanManage(usr user.User, p Project) bool {
	return usr.ID == p.OwnerID || usr.IsAdmin()
}

func (svc *service) Create(ctx context.Context, owner user.User, np NewProject) (Project, error) {
	if !CanPost(owner) {
		return Project{}, core.NewPermissionError("only professors and businesses can post projects")
	}
	now := time.Now().UTC()
	tags := np.Tags
	if tags == nil {
		tags = []string{}
	}
	return svc.repo.CreateProject(ctx, Project{
		OwnerID:       owner.ID,
		Title:         np.Title,
		Description:   np.Description,
		Kind:          np.Kind,
		Status:        StatusOpen,
		Tags:          tags,
		Location:      np.Location,
		IsRemote:      np.IsRemote,
		Deadline:      np.Deadline,
		MaxApplicants: np.MaxApplicants,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (core.PageResult, error) {
	if filter != nil {
		filter.Clean()
		if filter.IsEmpty() {
			filter = nil
		}
	}
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	page = page.Clean()
	projects, count, err := svc.repo.QueryProjects(ctx, filter, ordering, page)
	if err != nil {
		return core.PageResult{}, errors.Wrap(err, "querying projects")
	}
	if projects == nil {
		projects = []Project{}
	}
	return core.NewPageResult(page, count, projects), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Project, error) {
	if id == "" {
		return Project{}, ErrNotFound
	}
	return svc.repo.GetProject(ctx, id)
}

func (svc *service) Update(ctx context.Context, actor user.User, p Project, up UpdateProject) (Project, error) {
	if !CanManage(actor, p) {
		return Project{}, core.NewPermissionError()
	}
	if up.Title != nil {
		p.Title = *up.Title
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.Kind != nil {
		p.Kind = *up.Kind
	}
	if up.Tags != nil {
		p.Tags = up.Tags
	}
	if up.Location != nil {
		p.Location = *up.Location
	}
	if up.IsRemote != nil {
		p.IsRemote = *up.IsRemote
	}
	if up.ClearDeadline {
		p.Deadline.Valid = false
		p.Deadline.Time = time.Time{}
	} else if up.Deadline.Valid {
		p.Deadline = up.Deadline
	}
	if up.MaxApplicants != nil {
		p.MaxApplicants = *up.MaxApplicants
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateProject(ctx, p)
}

// SetStatus moves the project to `status`. Pending applicants are notified when it gets closed.
func (svc *service) SetStatus(ctx context.Context, actor user.User, p Project, status string) (Project, error) {
	if !CanManage(actor, p) {
		return Project{}, core.NewPermissionError()
	}
	if p.Status == status {
		return p, nil
	}
	if !CanTransition(p.Status, status) {
		return Project{}, core.NewFieldError("status", fmt.Sprintf("cannot change status from %s to %s", p.Status, status))
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	p, err := svc.repo.UpdateProject(ctx, p)
	if err != nil {
		return Project{}, err
	}
	if status == StatusClosed {
		svc.notifyPendingApplicants(ctx, p)
	}
	return p, nil
}

func (svc *service) Delete(ctx context.Context, actor user.User, p Project) error {
	if !CanManage(actor, p) {
		return core.NewPermissionError()
	}
	return svc.repo.DeleteProject(ctx, p.ID)
}

// CloseExpired closes OPEN projects whose deadline passed and returns how many were closed.
func (svc *service) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	projects, err := svc.repo.ListExpiredProjects(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "listing expired projects")
	}
	var closed int
	for _, p := range projects {
		p.Status = StatusClosed
		p.UpdatedAt = now.UTC()
		if _, err = svc.repo.UpdateProject(ctx, p); err != nil {
			return closed, errors.Wrapf(err, "closing project %s", p.ID)
		}
		closed++
		svc.notify(ctx, notification.NewNotification{
			RecipientID: p.OwnerID,
			Kind:        notification.KindProjectClosed,
			Message:     fmt.Sprintf("The deadline of %q has passed; it is now closed.", p.Title),
			Link:        projectLink(p),
		})
		svc.notifyPendingApplicants(ctx, p)
	}
	return closed, nil
}

func (svc *service) findApplication(ctx context.Context, projectID, applicantID string) (Application, bool, error) {
	apps, err := svc.repo.ListApplications(ctx, ApplicationFilter{ProjectID: projectID, ApplicantID: applicantID})
	if err != nil {
		return Application{}, false, errors.Wrap(err, "listing applications")
	}
	if len(apps) == 0 {
		return Application{}, false, nil
	}
	return apps[0], true, nil
}

// Eligibility tells whether usr can apply to `p` right now. usr is nil for anonymous users.
func (svc *service) Eligibility(ctx context.Context, p Project, usr *user.User) (Eligibility, error) {
	var applied bool
	if usr != nil {
		var err error
		if _, applied, err = svc.findApplication(ctx, p.ID, usr.ID); err != nil {
			return Eligibility{}, err
		}
	}
	return CanApply(p, usr, time.Now().UTC(), applied), nil
}

func (svc *service) Apply(ctx context.Context, applicant user.User, p Project, na NewApplication) (Application, error) {
	elig, err := svc.Eligibility(ctx, p, &applicant)
	if err != nil {
		return Application{}, err
	}
	if !elig.CanApply {
		return Application{}, core.NewPermissionError(elig.Reason)
	}

	now := time.Now().UTC()
	app, err := svc.repo.CreateApplication(ctx, Application{
		ProjectID:   p.ID,
		ApplicantID: applicant.ID,
		Message:     na.Message,
		ResumeURL:   na.ResumeURL,
		Status:      ApplicationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		switch cause := errors.Cause(err); cause {
		case ErrNotOpen, ErrDeadlinePassed, ErrAlreadyApplied, ErrProjectFull:
			return Application{}, core.NewPermissionError(cause.Error())
		}
		return Application{}, errors.Wrap(err, "creating application")
	}

	svc.notify(ctx, notification.NewNotification{
		RecipientID: p.OwnerID,
		Kind:        notification.KindApplicationReceived,
		Message:     fmt.Sprintf("%s applied to %q.", applicant.Name, p.Title),
		Link:        projectLink(p) + "/applications",
	})
	return app, nil
}

// Withdraw deletes the applicant's pending application to `p`.
func (svc *service) Withdraw(ctx context.Context, applicant user.User, p Project) error {
	app, found, err := svc.findApplication(ctx, p.ID, applicant.ID)
	if err != nil {
		return err
	}
	if !found {
		return ErrApplicationNotFound
	}
	if app.Status != ApplicationPending {
		return core.NewPermissionError("only pending applications can be withdrawn")
	}
	return svc.repo.DeleteApplication(ctx, app)
}

func (svc *service) ListApplications(ctx context.Context, actor user.User, p Project) ([]Application, error) {
	if !CanManage(actor, p) {
		return nil, core.NewPermissionError()
	}
	return svc.listApplications(ctx, ApplicationFilter{ProjectID: p.ID})
}

func (svc *service) ListUserApplications(ctx context.Context, userID string) ([]Application, error) {
	return svc.listApplications(ctx, ApplicationFilter{ApplicantID: userID})
}

func (svc *service) listApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	apps, err := svc.repo.ListApplications(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing applications")
	}
	if apps == nil {
		apps = []Application{}
	}
	return apps, nil
}

// ReviewApplication approves or rejects a pending application to `p`, then notifies the applicant.
func (svc *service) ReviewApplication(ctx context.Context, actor user.User, p Project, appID string, ra ReviewApplication) (Application, error) {
	if !CanManage(actor, p) {
		return Application{}, core.NewPermissionError()
	}
	app, err := svc.repo.GetApplication(ctx, appID)
	if err != nil {
		return Application{}, err
	}
	if app.ProjectID != p.ID {
		return Application{}, ErrApplicationNotFound
	}
	if app.Status != ApplicationPending {
		return Application{}, core.NewFieldError("status", ErrAlreadyReviewed.Error())
	}

	app.Status = ra.Status
	app.UpdatedAt = time.Now().UTC()
	if app, err = svc.repo.DecideApplication(ctx, app); err != nil {
		if errors.Cause(err) == ErrAlreadyReviewed {
			// decided by a concurrent review
			return Application{}, core.NewFieldError("status", ErrAlreadyReviewed.Error())
		}
		return Application{}, err
	}

	verb := "approved"
	if app.Status == ApplicationRejected {
		verb = "rejected"
	}
	svc.notify(ctx, notification.NewNotification{
		RecipientID: app.ApplicantID,
		Kind:        notification.KindApplicationReviewed,
		Message:     fmt.Sprintf("Your application to %q was %s.", p.Title, verb),
		Link:        projectLink(p),
	})
	return app, nil
}

func (svc *service) notifyPendingApplicants(ctx context.Context, p Project) {
	apps, err := svc.repo.ListApplications(ctx, ApplicationFilter{ProjectID: p.ID})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("project.notifyPendingApplicants(%s): %v", p.ID, err), err)
		return
	}
	ns := make([]notification.NewNotification, 0, len(apps))
	for _, app := range apps {
		if app.Status != ApplicationPending {
			continue
		}
		ns = append(ns, notification.NewNotification{
			RecipientID: app.ApplicantID,
			Kind:        notification.KindProjectClosed,
			Message:     fmt.Sprintf("%q is now closed.", p.Title),
			Link:        projectLink(p),
		})
	}
	svc.notify(ctx, ns...)
}

// notify logs notification failures; they never fail the calling operation.
func (svc *service) notify(ctx context.Context, ns ...notification.NewNotification) {
	if err := svc.notifier.Notify(ctx, ns...); err != nil {
		svc.logger.Error(fmt.Sprintf("project.notify: %v", err), err)
	}
}

func projectLink(p Project) string {
	return "/projects/" + p.ID
}
