package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/services/realtime"
)

type notificationApi struct {
	logger core.Logger
	svc    notification.Service
	usrSvc user.Service
	hub    *realtime.Hub
}

// registerNotificationAPI registers the notification routes. Browsers cannot set headers on websocket
// requests, so the websocket route reads its token from the `token` query param with wsJWT.
func registerNotificationAPI(g *echo.Group, jwt, wsJWT echo.MiddlewareFunc, opts *Options) {
	api := notificationApi{
		logger: opts.Logger,
		svc:    opts.NotifSvc,
		usrSvc: opts.UserSvc,
		hub:    opts.Hub,
	}

	ng := g.Group("/notifications")
	ng.GET("", api.list, jwt)
	ng.GET("/unread-count", api.unreadCount, jwt)
	ng.POST("/read-all", api.markAllRead, jwt)
	ng.POST("/:id/read", api.markRead, jwt)
	if api.hub != nil {
		ng.GET("/ws", api.subscribe, wsJWT)
	}
}

// list accepts `unread` & the page params.
func (api *notificationApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	res, err := api.svc.List(ctx.Request().Context(), usr.ID, queryBool(ctx, "unread"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	cnt, err := api.svc.UnreadCount(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: cnt})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkRead(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	cnt, err := api.svc.MarkAllRead(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking all notifications as read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: cnt})
}

// subscribe upgrades to a websocket pushing the user's new notifications as JSON text frames.
func (api *notificationApi) subscribe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err = api.hub.ServeWS(ctx.Response(), ctx.Request(), usr.ID); err != nil {
		// the upgrader has already answered the client
		api.logger.Info(fmt.Sprintf("notifications websocket for %s: %v", usr.Username, err))
	}
	return nil
}
