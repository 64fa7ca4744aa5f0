package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
)

type projectApi struct {
	svc      project.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerProjectAPI(g *echo.Group, jwt, maybeJWT echo.MiddlewareFunc, opts *Options) {
	api := projectApi{
		svc:      opts.ProjectSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}

	pg := g.Group("/projects")
	pg.GET("", api.query, maybeJWT)
	pg.POST("", api.create, jwt)
	pg.GET("/:id", api.retrieve, maybeJWT)
	pg.PUT("/:id", api.update, jwt)
	pg.DELETE("/:id", api.destroy, jwt)
	pg.PATCH("/:id/status", api.setStatus, jwt)
	pg.GET("/:id/eligibility", api.eligibility, maybeJWT)
	pg.POST("/:id/apply", api.apply, jwt)
	pg.DELETE("/:id/apply", api.withdraw, jwt)
	pg.GET("/:id/applications", api.applications, jwt)
	pg.PATCH("/:id/applications/:appID", api.review, jwt)

	g.GET("/applications/mine", api.myApplications, jwt)
}

func (api *projectApi) getProject(ctx echo.Context) (project.Project, error) {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return project.Project{}, errors.Wrap(err, "finding project by ID")
	}
	return p, nil
}

// query accepts `search`, `status`, `kind` (comma separated or repeated), `owner`, `tag`,
// `ordering` & the page params.
func (api *projectApi) query(ctx echo.Context) error {
	filter := &project.QueryFilter{
		Search:  ctx.QueryParam("search"),
		Status:  queryList(ctx, "status"),
		Kind:    queryList(ctx, "kind"),
		OwnerID: ctx.QueryParam("owner"),
		Tag:     ctx.QueryParam("tag"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *projectApi) create(ctx echo.Context) error {
	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating project")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *projectApi) update(ctx echo.Context) error {
	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	if p, err = api.svc.Update(ctx.Request().Context(), usr, p, data); err != nil {
		return errors.Wrap(err, "updating project")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *projectApi) setStatus(ctx echo.Context) error {
	var data project.SetStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	if p, err = api.svc.SetStatus(ctx.Request().Context(), usr, p, data.Status); err != nil {
		return errors.Wrap(err, "setting project status")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *projectApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, p); err != nil {
		return errors.Wrap(err, "deleting project")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// eligibility tells the viewer whether they can apply, and why not. Anonymous viewers are told to log in.
func (api *projectApi) eligibility(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	el, err := api.svc.Eligibility(ctx.Request().Context(), p, viewer)
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	return ctx.JSON(http.StatusOK, el)
}

func (api *projectApi) apply(ctx echo.Context) error {
	var data project.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.Apply(ctx.Request().Context(), usr, p, data)
	if err != nil {
		return errors.Wrap(err, "applying to project")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *projectApi) withdraw(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Withdraw(ctx.Request().Context(), usr, p); err != nil {
		return errors.Wrap(err, "withdrawing application")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) applications(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	apps, err := api.svc.ListApplications(ctx.Request().Context(), usr, p)
	if err != nil {
		return errors.Wrap(err, "listing applications")
	}
	if apps == nil {
		apps = []project.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *projectApi) review(ctx echo.Context) error {
	var data project.ReviewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.getProject(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.ReviewApplication(ctx.Request().Context(), usr, p, ctx.Param("appID"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *projectApi) myApplications(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	apps, err := api.svc.ListUserApplications(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing user applications")
	}
	if apps == nil {
		apps = []project.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}
