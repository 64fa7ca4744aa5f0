package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/user"
)

type blogApi struct {
	svc      blog.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerBlogAPI(g *echo.Group, jwt, maybeJWT echo.MiddlewareFunc, opts *Options) {
	api := blogApi{
		svc:      opts.BlogSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}

	bg := g.Group("/blogs")
	bg.GET("", api.query, maybeJWT)
	bg.POST("", api.create, jwt)
	bg.GET("/:slug", api.retrieve, maybeJWT)
	bg.PUT("/:slug", api.update, jwt)
	bg.DELETE("/:slug", api.destroy, jwt)
}

// query accepts `search`, `tag`, `author`, `drafts` & the page params.
func (api *blogApi) query(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	opts := blog.ListOptions{
		Search:        ctx.QueryParam("search"),
		Tag:           ctx.QueryParam("tag"),
		AuthorID:      ctx.QueryParam("author"),
		IncludeDrafts: queryBool(ctx, "drafts"),
	}
	res, err := api.svc.Query(ctx.Request().Context(), viewer, opts, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *blogApi) create(ctx echo.Context) error {
	var data blog.NewPost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPost")
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
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *blogApi) retrieve(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"), viewer)
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) update(ctx echo.Context) error {
	var data blog.UpdatePost
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePost")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"), &usr)
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	if p, err = api.svc.Update(ctx.Request().Context(), usr, p, data); err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *blogApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	p, err := api.svc.GetBySlug(ctx.Request().Context(), ctx.Param("slug"), &usr)
	if err != nil {
		return errors.Wrap(err, "getting post")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, p); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}
