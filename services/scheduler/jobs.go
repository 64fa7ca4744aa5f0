package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
)

const (
	JobCloseExpiredProjects = "close_expired_projects"
	JobPruneNotifications   = "prune_notifications"
)

// Jobs returns the app's periodic jobs.
func Jobs(conf *core.Config, logger core.Logger, projectSvc project.Service, notifSvc notification.Service) []Job {
	return []Job{
		{
			Name: JobCloseExpiredProjects,
			Spec: conf.Scheduler.ProjectSweepSpec,
			Run: func(ctx context.Context) error {
				closed, err := projectSvc.CloseExpired(ctx, time.Now().UTC())
				if closed > 0 {
					logger.Info(fmt.Sprintf("scheduler: closed %d expired projects", closed))
				}
				return err
			},
		},
		{
			Name: JobPruneNotifications,
			Spec: conf.Scheduler.NotificationPruneSpec,
			Run: func(ctx context.Context) error {
				_, err := notifSvc.Prune(ctx, conf.Scheduler.NotificationRetention)
				return err
			},
		},
	}
}
