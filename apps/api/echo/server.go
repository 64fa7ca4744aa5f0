// Package echoapi serves the REST API & the notifications websocket with echo.
package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
	"github.com/probestem/probe/services/metrics"
	"github.com/probestem/probe/services/ratelimit"
	"github.com/probestem/probe/services/realtime"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc       user.Service
		ProjectSvc    project.Service
		DiscussionSvc discussion.Service
		WebinarSvc    webinar.Service
		BlogSvc       blog.Service
		NotifSvc      notification.Service

		Hub          *realtime.Hub      // optional: no websocket route without it
		Metrics      *metrics.Metrics   // optional: no /metrics without it
		ResetLimiter *ratelimit.Limiter // optional: built from the config
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options, signalShutdown func()) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.opts.Metrics != nil {
		s.app.Use(s.opts.Metrics.Middleware("/metrics"))
	}
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	if s.opts.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.opts.Metrics.Handler()))
	}

	limiter := s.opts.ResetLimiter
	if limiter == nil {
		limiter = ratelimit.PerMinute(conf.Server.PasswordResetRatePerMinute)
	}

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	maybeJWT := optionalJWT(jwt)

	registerUserAPI(g, jwt, limiter.Middleware(nil), s.opts)
	registerProjectAPI(g, jwt, maybeJWT, s.opts)
	registerDiscussionAPI(g, jwt, maybeJWT, s.opts)
	registerWebinarAPI(g, jwt, maybeJWT, s.opts)
	registerBlogAPI(g, jwt, maybeJWT, s.opts)
	registerNotificationAPI(g, jwt, middleware.JWTWithConfig(jwtConfig(conf, "query:token")), s.opts)
}

func (s *server) Start() error {
	if err := s.app.Start(s.opts.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Probe STEM API!")
}
