// Package testutil wires the services on top of the in-memory database for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/blog"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/notification"
	"github.com/probestem/probe/core/project"
	"github.com/probestem/probe/core/user"
	"github.com/probestem/probe/core/webinar"
	appfs "github.com/probestem/probe/fs"
	emailsvc "github.com/probestem/probe/services/email"
	logsvc "github.com/probestem/probe/services/logger"
	inmemdb "github.com/probestem/probe/storage/database/inmem"
)

// Password satisfies the password policy.
const Password = "Str0ng#Passw0rd!"

// Env holds an isolated set of repositories & services.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *inmemdb.DB
	Mail       *emailsvc.ConsoleServiceMock
	UserRepo   user.Repository
	NotifRepo  notification.Repository

	UserSvc       user.Service
	ProjectSvc    project.Service
	DiscussionSvc discussion.Service
	WebinarSvc    webinar.Service
	BlogSvc       blog.Service
	NotifSvc      notification.Service
}

// Logger returns a logger that discards everything.
func Logger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

// Validator returns a validator with every custom validation registered.
func Validator() *validator.Validate {
	validate, _ := NewValidator()
	return validate
}

// NewValidator returns a validator & the translator of its messages.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	project.InitValidators(validate, translator)
	webinar.InitValidators(validate, translator)
	return validate, translator
}

// NewEnv returns a fresh Env. broker may be nil.
func NewEnv(t *testing.T, broker notification.Broker) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	logger := Logger()
	core.ParseEmailTemplates(appfs.FS, logger, true)
	user.LoadCommonPasswords(appfs.FS, logger)

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	validate, translator := NewValidator()
	env := &Env{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		DB:         db,
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
		UserRepo:   inmemdb.NewUserRepository(db),
		NotifRepo:  inmemdb.NewNotificationRepository(db),
	}
	env.NotifSvc = notification.NewService(env.NotifRepo, broker, logger)
	env.UserSvc = user.NewService(env.UserRepo, env.Mail, conf)
	env.ProjectSvc = project.NewService(inmemdb.NewProjectRepository(db), env.NotifSvc, logger)
	env.DiscussionSvc = discussion.NewService(inmemdb.NewDiscussionRepository(db), env.NotifSvc, logger)
	env.WebinarSvc = webinar.NewService(inmemdb.NewWebinarRepository(db), env.NotifSvc, logger)
	env.BlogSvc = blog.NewService(inmemdb.NewBlogRepository(db))
	return env
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Users is a set of active users, one per role.
type Users struct {
	Student, Student2, Professor, Business, Admin user.User
}

func CreateUsers(t *testing.T, repo user.Repository) Users {
	t.Helper()
	return Users{
		Student:   CreateUser(t, repo, "Stu Dent", "student", "student@test.io", Password, []string{user.RoleStudent}, true),
		Student2:  CreateUser(t, repo, "Ada Lovelace", "ada", "ada@test.io", Password, []string{user.RoleStudent}, true),
		Professor: CreateUser(t, repo, "Prof Essor", "prof", "prof@test.io", Password, []string{user.RoleProfessor}, true),
		Business:  CreateUser(t, repo, "Acme Corp", "acme", "acme@test.io", Password, []string{user.RoleBusiness}, true),
		Admin:     CreateUser(t, repo, "Admin", "admin", "admin@test.io", Password, []string{user.RoleAdmin}, true),
	}
}

// Notifications returns every notification of the user, newest first.
func Notifications(t *testing.T, svc notification.Service, userID string) []notification.Notification {
	t.Helper()
	res, err := svc.List(context.Background(), userID, false, core.Page{Size: core.MaxPageSize})
	if err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}
	return res.Results.([]notification.Notification)
}
