package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
	logsvc "github.com/halldesk/halldesk/services/logger"
	"github.com/halldesk/halldesk/storage/database"
	inmemdb "github.com/halldesk/halldesk/storage/database/inmem"
	sqlxrepos "github.com/halldesk/halldesk/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	defer appLogger.Close()

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	cli := commandLine{out: os.Stdout}

	if conf.Database.Engine == "inmem" {
		logger.Println("warning: using the in-memory store, changes are lost on exit")
		db := inmemdb.Open()
		cli.usrSvc = user.NewService(inmemdb.NewUserRepository(db), inmemdb.NewAccountStore(db), validate, appLogger)
		cli.roller = rollover.NewService(inmemdb.NewBookingRepository(db), inmemdb.NewEnrollmentRepository(db), appLogger)
	} else {
		db, err := database.Open(conf)
		errAndDie(err)
		defer db.Close()

		cli.db = db.DB
		cli.usrSvc = user.NewService(sqlxrepos.NewUserRepository(db), sqlxrepos.NewAccountStore(db), validate, appLogger)
		cli.roller = rollover.NewService(sqlxrepos.NewBookingRepository(db), sqlxrepos.NewEnrollmentRepository(db), appLogger)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", describe(err, translator))
		}
		appLogger.Close()
		os.Exit(1)
	}
}

// describe renders validation errors field by field.
func describe(err error, translator ut.Translator) string {
	msg := err.Error()
	switch cause := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msg = "invalid input"
		for _, fe := range cause {
			msg += fmt.Sprintf("\n  %s: %s", fe.Field(), fe.Translate(translator))
		}
	case *core.ValidationError:
		for _, f := range cause.Fields {
			msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Error)
		}
	}
	return msg
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
