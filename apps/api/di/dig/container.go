package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/halldesk/halldesk/apps/api/echo"
	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/billing"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
	emailsvc "github.com/halldesk/halldesk/services/email"
	logsvc "github.com/halldesk/halldesk/services/logger"
	schedsvc "github.com/halldesk/halldesk/services/scheduler"
	"github.com/halldesk/halldesk/storage/database"
	inmemdb "github.com/halldesk/halldesk/storage/database/inmem"
	sqlxrepos "github.com/halldesk/halldesk/storage/database/sqlx"
)

// EngineInMemory selects the in-memory store instead of Postgres.
const EngineInMemory = "inmem"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the set of repositories of the configured engine.
	Storage struct {
		dig.Out
		Users       user.Repository
		Accounts    user.AccountStore
		Bookings    booking.Repository
		Regs        enrollment.Repository
		Settlements settlement.Repository
		Closer      io.Closer `name:"dbCloser"`
	}

	// Shutdown receives the signals that stop the application.
	Shutdown chan os.Signal

	// App is what main needs to run the application.
	App struct {
		dig.In
		Conf      *core.Config
		Logger    core.Logger
		DBLogger  core.Logger `name:"dbLogger"`
		DBCloser  io.Closer   `name:"dbCloser"`
		Server    echoapi.Server
		Scheduler *schedsvc.Scheduler
		Shutdown  Shutdown
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Translator    ut.Translator
		Shutdown      Shutdown
		UserSvc       *user.Service
		BookingSvc    *booking.Service
		BillingSvc    *billing.Service
		EnrollmentSvc *enrollment.Service
		RolloverSvc   *rollover.Service
		SettlementSvc *settlement.Service
		ReportSvc     *report.Service
	}

	closerFunc func() error
)

func (f closerFunc) Close() error { return f() }

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Database.Engine == EngineInMemory {
		loggerParam.Logger.Warn("using the in-memory store: data is lost on exit")
		db := inmemdb.Open()
		return Storage{
			Users:       inmemdb.NewUserRepository(db),
			Accounts:    inmemdb.NewAccountStore(db),
			Bookings:    inmemdb.NewBookingRepository(db),
			Regs:        inmemdb.NewEnrollmentRepository(db),
			Settlements: inmemdb.NewSettlementRepository(db),
			Closer:      closerFunc(func() error { return nil }),
		}, nil
	}

	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return Storage{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to %s (%s)", conf.Database.Name, conf.Database.Engine))

	return Storage{
		Users:       sqlxrepos.NewUserRepository(db),
		Accounts:    sqlxrepos.NewAccountStore(db),
		Bookings:    sqlxrepos.NewBookingRepository(db),
		Regs:        sqlxrepos.NewEnrollmentRepository(db),
		Settlements: sqlxrepos.NewSettlementRepository(db),
		Closer:      db,
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newBookingService(repo booking.Repository, regs enrollment.Repository, validate *validator.Validate, logger core.Logger) *booking.Service {
	return booking.NewService(repo, regs, validate, logger)
}

func newEnrollmentService(repo enrollment.Repository, bookings booking.Repository, validate *validator.Validate, logger core.Logger) *enrollment.Service {
	return enrollment.NewService(repo, bookings, validate, logger)
}

func newSettlementService(
	repo settlement.Repository,
	users *user.Service,
	mailer core.EmailService,
	conf *core.Config,
	validate *validator.Validate,
	logger core.Logger,
) *settlement.Service {
	return settlement.NewService(repo, users, mailer, conf, validate, logger)
}

func newReportService(bookings booking.Repository, regs enrollment.Repository, settlements *settlement.Service) *report.Service {
	return report.NewService(bookings, regs, settlements)
}

func newScheduler(roller *rollover.Service, conf *core.Config, logger core.Logger) *schedsvc.Scheduler {
	return schedsvc.New(roller, conf, logger)
}

func newShutdown() Shutdown {
	shutdown := make(Shutdown, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:    p.Conf.Server.Address(),
		Conf:       p.Conf,
		Logger:     p.Logger,
		Translator: p.Translator,
		SignalShutdown: func() {
			p.Shutdown <- syscall.SIGTERM
		},
		UserSvc:       p.UserSvc,
		BookingSvc:    p.BookingSvc,
		BillingSvc:    p.BillingSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		RolloverSvc:   p.RolloverSvc,
		SettlementSvc: p.SettlementSvc,
		ReportSvc:     p.ReportSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidate))

	must(c.Provide(user.NewService))
	must(c.Provide(newBookingService))
	must(c.Provide(billing.NewService))
	must(c.Provide(newEnrollmentService))
	must(c.Provide(rollover.NewService))
	must(c.Provide(newSettlementService))
	must(c.Provide(newReportService))

	must(c.Provide(newScheduler))
	must(c.Provide(newShutdown))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
