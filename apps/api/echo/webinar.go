package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
)

type webinarApi struct {
	svc      webinar.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerWebinarAPI(g *echo.Group, jwt, maybeJWT echo.MiddlewareFunc, opts *Options) {
	api := webinarApi{
		svc:      opts.WebinarSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}

	wg := g.Group("/webinars")
	wg.GET("", api.query, maybeJWT)
	wg.POST("", api.submit, jwt)
	wg.GET("/:id", api.retrieve, maybeJWT)
	wg.DELETE("/:id", api.destroy, jwt)
	wg.PATCH("/:id/review", api.review, jwt, adminMiddleware())
}

// query accepts `search`, `host`, `upcoming`, `mine`, `status` (admins & own webinars only)
// & the page params.
func (api *webinarApi) query(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	opts := webinar.ListOptions{
		Search:   ctx.QueryParam("search"),
		Status:   queryList(ctx, "status"),
		HostID:   ctx.QueryParam("host"),
		Upcoming: queryBool(ctx, "upcoming"),
		Mine:     queryBool(ctx, "mine"),
	}
	res, err := api.svc.Query(ctx.Request().Context(), viewer, opts, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying webinars")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *webinarApi) submit(ctx echo.Context) error {
	var data webinar.NewWebinar
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewWebinar")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	w, err := api.svc.Submit(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "submitting webinar")
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *webinarApi) retrieve(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	w, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), viewer)
	if err != nil {
		return errors.Wrap(err, "getting webinar")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *webinarApi) review(ctx echo.Context) error {
	var data webinar.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	w, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), &usr)
	if err != nil {
		return errors.Wrap(err, "getting webinar")
	}
	if w, err = api.svc.Review(ctx.Request().Context(), usr, w, data); err != nil {
		return errors.Wrap(err, "reviewing webinar")
	}
	return ctx.JSON(http.StatusOK, w)
}

func (api *webinarApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	w, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), &usr)
	if err != nil {
		return errors.Wrap(err, "getting webinar")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, w); err != nil {
		return errors.Wrap(err, "deleting webinar")
	}
	return ctx.NoContent(http.StatusNoContent)
}
