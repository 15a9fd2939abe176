package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/billing"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Conf           *core.Config
		Logger         core.Logger
		Translator     ut.Translator
		SignalShutdown func()

		UserSvc       *user.Service
		BookingSvc    *booking.Service
		BillingSvc    *billing.Service
		EnrollmentSvc *enrollment.Service
		RolloverSvc   *rollover.Service
		SettlementSvc *settlement.Service
		ReportSvc     *report.Service
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

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf))
	authed := v1.Group("", jwt, sessionMiddleware(s.opts.UserSvc))

	registerAuthAPI(v1, authed, s.opts.UserSvc, conf)
	registerUserAPI(authed, s.opts.UserSvc)
	registerBookingAPI(authed, s.opts.BookingSvc, s.opts.BillingSvc)
	registerEnrollmentAPI(authed, s.opts.EnrollmentSvc)
	registerRolloverAPI(authed, s.opts.RolloverSvc)
	registerSettlementAPI(authed, s.opts.SettlementSvc)
	registerReportAPI(authed, s.opts.ReportSvc)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Halldesk API!")
}
