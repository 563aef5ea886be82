package main

import (
	"log"
	"os"

	"github.com/trezcool/ufaulu/core"
	"github.com/trezcool/ufaulu/core/attainment"
	"github.com/trezcool/ufaulu/storage/database"
	sqlxrepos "github.com/trezcool/ufaulu/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	attRepo := sqlxrepos.NewAttainmentRepository(db)

	// start CLI
	cli := commandLine{
		db:      db,
		conf:    conf,
		usrRepo: sqlxrepos.NewUserRepository(db),
		attSvc:  attainment.NewService(attRepo, stdLogger{logger}, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

// stdLogger adapts the standard logger to core.Logger for CLI use.
type stdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*stdLogger)(nil)

func (l stdLogger) Enable(bool) {}

func (l stdLogger) log(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l stdLogger) Debug(msg string, args ...interface{}) { l.log(msg, args) }
func (l stdLogger) Info(msg string, args ...interface{})  { l.log(msg, args) }
func (l stdLogger) Warn(msg string, args ...interface{})  { l.log(msg, args) }
func (l stdLogger) Error(msg string, args ...interface{}) { l.log(msg, args) }
func (l stdLogger) Fatal(msg string, args ...interface{}) { l.log(msg, args); l.std.Fatal(msg) }
