package database

import (
	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
	inmemdb "github.com/probestem/probe/storage/database/inmem"
	sqlxrepos "github.com/probestem/probe/storage/database/sqlx"
)

// Repositories groups the storage of every domain.
type Repositories struct {
	Users         user.Repository
	Projects      project.Repository
	Discussions   discussion.Repository
	Webinars      webinar.Repository
	Blog          blog.Repository
	Notifications notification.Repository

	close func() error
}

func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewRepositories returns the in-memory repositories when conf.Database.InMemory is set,
// the postgres ones otherwise. Postgres is migrated up before use.
func NewRepositories(conf *core.Config) (*Repositories, error) {
	if conf.Database.InMemory {
		db, err := inmemdb.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening in-memory database")
		}
		return &Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Projects:      inmemdb.NewProjectRepository(db),
			Discussions:   inmemdb.NewDiscussionRepository(db),
			Webinars:      inmemdb.NewWebinarRepository(db),
			Blog:          inmemdb.NewBlogRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
		}, nil
	}

	sqlDB, err := Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(sqlDB, 10); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err = Migrate(sqlDB, "up"); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	db := sqlxrepos.NewDB(sqlDB)
	return &Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Projects:      sqlxrepos.NewProjectRepository(db),
		Discussions:   sqlxrepos.NewDiscussionRepository(db),
		Webinars:      sqlxrepos.NewWebinarRepository(db),
		Blog:          sqlxrepos.NewBlogRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		close:         db.Close,
	}, nil
}
