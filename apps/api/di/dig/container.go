// Package dig_container wires the API's dependencies with uber's dig.
package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/probestem/probe/apps/api/echo"
	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
	emailsvc "github.com/probestem/probe/services/email"
	logsvc "github.com/probestem/probe/services/logger"
	"github.com/probestem/probe/services/metrics"
	"github.com/probestem/probe/services/ratelimit"
	"github.com/probestem/probe/services/realtime"
	"github.com/probestem/probe/services/scheduler"
	"github.com/probestem/probe/storage/database"
)

// JobSweepRateLimits forgets idle password reset clients.
const JobSweepRateLimits = "sweep_rate_limits"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Shutdown receives OS signals & internal shutdown requests.
	Shutdown chan os.Signal

	serverParams struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Shutdown   Shutdown

		UserSvc       user.Service
		ProjectSvc    project.Service
		DiscussionSvc discussion.Service
		WebinarSvc    webinar.Service
		BlogSvc       blog.Service
		NotifSvc      notification.Service

		Hub          *realtime.Hub
		Metrics      *metrics.Metrics
		ResetLimiter *ratelimit.Limiter
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) *database.Repositories {
	setUp := func() (*database.Repositories, error) {
		if !conf.Database.InMemory {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
		}
		return database.NewRepositories(conf)
	}

	repos, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return repos
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	project.InitValidators(validate, translator)
	webinar.InitValidators(validate, translator)
	return validate, translator
}

func newHub(logger core.Logger, m *metrics.Metrics) *realtime.Hub {
	return realtime.NewHub(logger, m)
}

func newResetLimiter(conf *core.Config) *ratelimit.Limiter {
	return ratelimit.PerMinute(conf.Server.PasswordResetRatePerMinute)
}

func newShutdown() Shutdown {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

func newUserService(repos *database.Repositories, mailSvc core.EmailService, conf *core.Config) user.Service {
	return user.NewService(repos.Users, mailSvc, conf)
}

func newNotificationService(repos *database.Repositories, hub *realtime.Hub, logger core.Logger) notification.Service {
	return notification.NewService(repos.Notifications, hub, logger)
}

func newProjectService(repos *database.Repositories, notifSvc notification.Service, logger core.Logger) project.Service {
	return project.NewService(repos.Projects, notifSvc, logger)
}

func newDiscussionService(repos *database.Repositories, notifSvc notification.Service, logger core.Logger) discussion.Service {
	return discussion.NewService(repos.Discussions, notifSvc, logger)
}

func newWebinarService(repos *database.Repositories, notifSvc notification.Service, logger core.Logger) webinar.Service {
	return webinar.NewService(repos.Webinars, notifSvc, logger)
}

func newBlogService(repos *database.Repositories) blog.Service {
	return blog.NewService(repos.Blog)
}

func newScheduler(
	conf *core.Config,
	logger core.Logger,
	m *metrics.Metrics,
	projectSvc project.Service,
	notifSvc notification.Service,
	limiter *ratelimit.Limiter,
) (*scheduler.Scheduler, error) {
	s := scheduler.New(logger, m)
	jobs := append(scheduler.Jobs(conf, logger, projectSvc, notifSvc), scheduler.Job{
		Name: JobSweepRateLimits,
		Spec: "@every 10m",
		Run: func(context.Context) error {
			limiter.Sweep()
			return nil
		},
	})
	if err := s.Add(jobs...); err != nil {
		return nil, errors.Wrap(err, "adding scheduled jobs")
	}
	return s, nil
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(
		&echoapi.Options{
			Conf:          p.Conf,
			Logger:        p.Logger,
			Validate:      p.Validate,
			Translator:    p.Translator,
			UserSvc:       p.UserSvc,
			ProjectSvc:    p.ProjectSvc,
			DiscussionSvc: p.DiscussionSvc,
			WebinarSvc:    p.WebinarSvc,
			BlogSvc:       p.BlogSvc,
			NotifSvc:      p.NotifSvc,
			Hub:           p.Hub,
			Metrics:       p.Metrics,
			ResetLimiter:  p.ResetLimiter,
		},
		func() {
			select {
			case p.Shutdown <- syscall.SIGTERM:
			case <-time.After(time.Second):
			}
		},
	)
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(metrics.New))
	must(c.Provide(newHub))
	must(c.Provide(newResetLimiter))
	must(c.Provide(newShutdown))
	must(c.Provide(newUserService))
	must(c.Provide(newNotificationService))
	must(c.Provide(newProjectService))
	must(c.Provide(newDiscussionService))
	must(c.Provide(newWebinarService))
	must(c.Provide(newBlogService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
