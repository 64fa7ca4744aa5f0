package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                       string
		Port                       int
		DebugHost                  string
		ShutdownTimeout            time.Duration
		JWTExpirationDelta         time.Duration
		JWTRefreshExpirationDelta  time.Duration
		PasswordResetRatePerMinute int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	SchedulerConfig struct {
		Enabled               bool
		ProjectSweepSpec      string
		NotificationPruneSpec string
		NotificationRetention time.Duration
	}

	Config struct {
		AppName                   string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		WorkDir                   string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridApiKey            string
		Server                    ServerConfig
		Database                  DatabaseConfig
		Scheduler                 SchedulerConfig

		defaultFromEmail string
	}
)

func (conf *Config) DefaultFromEmail() mail.Address {
	var addr mail.Address
	if a, err := mail.ParseAddress(conf.defaultFromEmail); err == nil {
		addr = *a
	} else {
		addr.Address = conf.defaultFromEmail
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return addr
}

func (conf *Config) IsProd() bool { return conf.Env == "PROD" }

func (sc ServerConfig) Address() string {
	return net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port))
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig loads the app config from the environment.
// Variables are prefixed with the ENV name, eg. DEV_SECRETKEY or PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		AppName:                   v.GetString("appName"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		WorkDir:                   wd,
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                       v.GetString("server.host"),
			Port:                       v.GetInt("server.port"),
			DebugHost:                  v.GetString("server.debugHost"),
			ShutdownTimeout:            v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:         v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta:  v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetRatePerMinute: v.GetInt("server.passwordResetRatePerMinute"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			InMemory:      v.GetBool("database.inMemory"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               v.GetBool("scheduler.enabled"),
			ProjectSweepSpec:      v.GetString("scheduler.projectSweepSpec"),
			NotificationPruneSpec: v.GetString("scheduler.notificationPruneSpec"),
			NotificationRetention: v.GetDuration("scheduler.notificationRetention"),
		},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
}

// NewTestConfig returns a config suitable for tests. It never reads the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v, "TEST")
	return &Config{
		AppName:                   v.GetString("appName"),
		Env:                       "TEST",
		Debug:                     false,
		TestMode:                  true,
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			JWTExpirationDelta:         v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta:  v.GetDuration("server.jwtRefreshExpirationDelta"),
			ShutdownTimeout:            v.GetDuration("server.shutdownTimeout"),
			PasswordResetRatePerMinute: 1000,
		},
		Database:         DatabaseConfig{InMemory: true},
		Scheduler:        SchedulerConfig{NotificationRetention: v.GetDuration("scheduler.notificationRetention")},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Probe STEM")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "t0p-s3cr3t(probe)+stem=k3y#change-me-in-prod")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetRatePerMinute", 5)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "probe")
	v.SetDefault("database.user", "probe")
	v.SetDefault("database.password", "probe")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.inMemory", false)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.projectSweepSpec", "@every 15m")
	v.SetDefault("scheduler.notificationPruneSpec", "@daily")
	v.SetDefault("scheduler.notificationRetention", 30*24*time.Hour)
}
