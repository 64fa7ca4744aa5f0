package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/user"
)

type discussionApi struct {
	svc      discussion.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerDiscussionAPI(g *echo.Group, jwt, maybeJWT echo.MiddlewareFunc, opts *Options) {
	api := discussionApi{
		svc:      opts.DiscussionSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}

	dg := g.Group("/discussions")
	dg.GET("", api.query)
	dg.POST("", api.create, jwt)
	dg.GET("/:id", api.thread, maybeJWT)
	dg.DELETE("/:id", api.destroy, jwt)
	dg.POST("/:id/vote", api.vote, jwt)
	dg.POST("/:id/answers", api.answer, jwt)
	dg.DELETE("/:id/answers/:answerID", api.destroyAnswer, jwt)
	dg.POST("/:id/answers/:answerID/vote", api.voteAnswer, jwt)
}

func (api *discussionApi) getDiscussion(ctx echo.Context) (discussion.Discussion, error) {
	d, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return discussion.Discussion{}, errors.Wrap(err, "finding discussion by ID")
	}
	return d, nil
}

// query accepts `search`, `tag`, `author`, `ordering` & the page params.
func (api *discussionApi) query(ctx echo.Context) error {
	filter := &discussion.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Tag:      ctx.QueryParam("tag"),
		AuthorID: ctx.QueryParam("author"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	res, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying discussions")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *discussionApi) create(ctx echo.Context) error {
	var data discussion.NewDiscussion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDiscussion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating discussion")
	}
	return ctx.JSON(http.StatusCreated, d)
}

// thread returns the discussion & its answers, with the viewer's own votes when authenticated.
func (api *discussionApi) thread(ctx echo.Context) error {
	viewer, err := getOptionalUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	th, err := api.svc.GetThread(ctx.Request().Context(), d, viewer)
	if err != nil {
		return errors.Wrap(err, "getting thread")
	}
	return ctx.JSON(http.StatusOK, th)
}

func (api *discussionApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, d); err != nil {
		return errors.Wrap(err, "deleting discussion")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *discussionApi) answer(ctx echo.Context) error {
	var data discussion.NewAnswer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnswer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Answer(ctx.Request().Context(), usr, d, data)
	if err != nil {
		return errors.Wrap(err, "answering discussion")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *discussionApi) destroyAnswer(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAnswer(ctx.Request().Context(), usr, d, ctx.Param("answerID")); err != nil {
		return errors.Wrap(err, "deleting answer")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *discussionApi) bindVote(ctx echo.Context) (discussion.NewVote, error) {
	var data discussion.NewVote
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to NewVote")
	}
	return data, data.Validate(api.validate)
}

func (api *discussionApi) vote(ctx echo.Context) error {
	data, err := api.bindVote(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	tally, err := api.svc.VoteDiscussion(ctx.Request().Context(), usr, d, data.Value)
	if err != nil {
		return errors.Wrap(err, "voting on discussion")
	}
	return ctx.JSON(http.StatusOK, tally)
}

func (api *discussionApi) voteAnswer(ctx echo.Context) error {
	data, err := api.bindVote(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	d, err := api.getDiscussion(ctx)
	if err != nil {
		return err
	}
	tally, err := api.svc.VoteAnswer(ctx.Request().Context(), usr, d, ctx.Param("answerID"), data.Value)
	if err != nil {
		return errors.Wrap(err, "voting on answer")
	}
	return ctx.JSON(http.StatusOK, tally)
}
