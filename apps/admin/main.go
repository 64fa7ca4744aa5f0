package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/user"
	appfs "github.com/probestem/probe/fs"
	logsvc "github.com/probestem/probe/services/logger"
	"github.com/probestem/probe/storage/database"
	sqlxrepos "github.com/probestem/probe/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	user.LoadCommonPasswords(appfs.FS, logger)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	if err = db.Ping(); err != nil {
		logger.Fatal("connecting to database", err)
	}

	// start CLI
	cli := commandLine{
		usrRepo: sqlxrepos.NewUserRepository(sqlxrepos.NewDB(db)),
		migrate: func(command string, args ...string) error { return database.Migrate(db, command, args...) },
	}
	code := 0
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		code = 1
	}
	closeDB(db, logger)
	os.Exit(code)
}

func closeDB(db *sql.DB, logger core.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("closing database", err)
	}
}
