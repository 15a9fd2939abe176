// Package testutil wires the services over the in-memory store and provides fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/billing"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/report"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
	appfs "github.com/halldesk/halldesk/fs"
	"github.com/halldesk/halldesk/services/email"
	"github.com/halldesk/halldesk/services/logger"
	"github.com/halldesk/halldesk/storage/database/inmem"
)

const DefaultPassword = "L3tM3!nPl3as3"

// Env holds the repositories and services of a test.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Mailer     *emailsvc.ConsoleServiceMock

	DB          *inmemdb.DB
	Users       user.Repository
	Accounts    user.AccountStore
	Bookings    booking.Repository
	Regs        enrollment.Repository
	Settlements settlement.Repository

	UserSvc       *user.Service
	BookingSvc    *booking.Service
	BillingSvc    *billing.Service
	EnrollmentSvc *enrollment.Service
	RolloverSvc   *rollover.Service
	SettlementSvc *settlement.Service
	ReportSvc     *report.Service
}

func Config() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Halldesk",
		SecretKey: "test-secret-key",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 2 * time.Hour,
		},
		Database:    core.DatabaseConfig{Engine: "inmem"},
		Settlements: core.SettlementsConfig{ApplyOnApprove: true},
	}
}

// NewValidator returns a validator registered with the app's validations and English texts.
func NewValidator() (*validator.Validate, ut.Translator) {
	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewEnv returns a fresh in-memory environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	e := &Env{Conf: Config(), Logger: logsvc.NewDiscardLogger()}
	e.Validate, e.Translator = NewValidator()
	core.ParseEmailTemplates(appfs.FS, true /* strict */, e.Logger)
	e.Mailer = emailsvc.NewConsoleServiceMock(e.Conf, e.Logger)

	e.DB = inmemdb.Open()
	e.Users = inmemdb.NewUserRepository(e.DB)
	e.Accounts = inmemdb.NewAccountStore(e.DB)
	e.Bookings = inmemdb.NewBookingRepository(e.DB)
	e.Regs = inmemdb.NewEnrollmentRepository(e.DB)
	e.Settlements = inmemdb.NewSettlementRepository(e.DB)

	e.UserSvc = user.NewService(e.Users, e.Accounts, e.Validate, e.Logger)
	e.BookingSvc = booking.NewService(e.Bookings, e.Regs, e.Validate, e.Logger)
	e.BillingSvc = billing.NewService(e.Bookings, e.Regs, e.Logger)
	e.EnrollmentSvc = enrollment.NewService(e.Regs, e.Bookings, e.Validate, e.Logger)
	e.RolloverSvc = rollover.NewService(e.Bookings, e.Regs, e.Logger)
	e.SettlementSvc = settlement.NewService(e.Settlements, e.UserSvc, e.Mailer, e.Conf, e.Validate, e.Logger)
	e.ReportSvc = report.NewService(e.Bookings, e.Regs, e.SettlementSvc)
	return e
}

// Session returns the session of usr, acting at now when given.
func Session(usr user.User, now ...time.Time) user.Session {
	sess := user.NewSession(usr)
	if len(now) > 0 {
		sess.Now = now[0]
	}
	return sess
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateUser stores a user with an account whose password is pwd, or DefaultPassword when empty.
func (e *Env) CreateUser(t *testing.T, fullName, uname, role string, isActive bool, pwd ...string) user.User {
	t.Helper()

	password := DefaultPassword
	if len(pwd) > 0 && pwd[0] != "" {
		password = pwd[0]
	}
	now := time.Now().UTC()
	acc := user.Account{ID: uuid.New().String(), Email: user.DefaultEmail(uname), CreatedAt: now}
	if err := acc.SetPassword(password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	ctx := context.Background()
	if _, err := e.Accounts.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := e.Users.CreateUser(ctx, user.User{
		ID:        acc.ID,
		Username:  uname,
		Email:     acc.Email,
		FullName:  fullName,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (e *Env) CreateHall(t *testing.T, name string) booking.Hall {
	t.Helper()
	now := time.Now().UTC()
	h, err := e.Bookings.CreateHall(context.Background(), booking.Hall{
		ID: uuid.New().String(), Name: name, Capacity: 30, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateHall() failed: %v", err)
	}
	return h
}

func (e *Env) CreateStage(t *testing.T, name string) booking.AcademicStage {
	t.Helper()
	st, err := e.Bookings.CreateStage(context.Background(), booking.AcademicStage{ID: uuid.New().String(), Name: name})
	if err != nil {
		t.Fatalf("CreateStage() failed: %v", err)
	}
	return st
}

func (e *Env) CreateTeacher(t *testing.T, name, code string, defaultFee decimal.Decimal) booking.Teacher {
	t.Helper()
	now := time.Now().UTC()
	tchr, err := e.Bookings.CreateTeacher(context.Background(), booking.Teacher{
		ID: uuid.New().String(), Name: name, Code: code, DefaultClassFee: defaultFee, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return tchr
}

// BookingFixture describes a booking to store; the zero EndDate means open-ended.
type BookingFixture struct {
	HallID      string
	TeacherID   string
	StageID     string
	StartTime   string
	Days        []int
	StartDate   time.Time
	EndDate     time.Time
	Status      string
	Fee         decimal.Decimal
	IsCustomFee bool
}

func (e *Env) CreateBooking(t *testing.T, bf BookingFixture) booking.Booking {
	t.Helper()
	if bf.StartTime == "" {
		bf.StartTime = "16:00"
	}
	if len(bf.Days) == 0 {
		bf.Days = []int{1, 3}
	}
	if bf.Status == "" {
		bf.Status = booking.StatusActive
	}
	end := null.Time{}
	if !bf.EndDate.IsZero() {
		end = null.TimeFrom(core.TruncateDate(bf.EndDate))
	}
	now := time.Now().UTC()
	b, err := e.Bookings.CreateBooking(context.Background(), booking.Booking{
		ID:              uuid.New().String(),
		HallID:          bf.HallID,
		TeacherID:       bf.TeacherID,
		AcademicStageID: bf.StageID,
		Schedule: booking.Schedule{
			StartTime:  bf.StartTime,
			DaysOfWeek: bf.Days,
			StartDate:  core.TruncateDate(bf.StartDate),
			EndDate:    end,
		},
		Status:      bf.Status,
		ClassFees:   bf.Fee,
		IsCustomFee: bf.IsCustomFee,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateBooking() failed: %v", err)
	}
	return b
}

func (e *Env) CreateStudent(t *testing.T, name string) enrollment.Student {
	t.Helper()
	now := time.Now().UTC()
	st, err := e.Regs.CreateStudent(context.Background(), enrollment.Student{
		ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

// CreateRegistration stores a registration with a payment status consistent with its amounts.
func (e *Env) CreateRegistration(t *testing.T, studentID, bookingID string, date time.Time, fee, paid decimal.Decimal) enrollment.Registration {
	t.Helper()
	now := time.Now().UTC()
	reg := enrollment.Registration{
		ID:               uuid.New().String(),
		StudentID:        studentID,
		BookingID:        bookingID,
		RegistrationDate: core.TruncateDate(date),
		PaidAmount:       paid,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	reg.SetTotalFees(fee)
	reg, err := e.Regs.CreateRegistration(context.Background(), reg)
	if err != nil {
		t.Fatalf("CreateRegistration() failed: %v", err)
	}
	return reg
}

// GetRegistration reloads a registration from the store.
func (e *Env) GetRegistration(t *testing.T, id string) enrollment.Registration {
	t.Helper()
	reg, err := e.Regs.GetRegistration(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRegistration() failed: %v", err)
	}
	return reg
}

// GetBooking reloads a booking from the store.
func (e *Env) GetBooking(t *testing.T, id string) booking.Booking {
	t.Helper()
	b, err := e.Bookings.GetBooking(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBooking() failed: %v", err)
	}
	return b
}

func (e *Env) CreateSettlement(t *testing.T, createdBy string, date time.Time, typ string, amount decimal.Decimal, category string) settlement.Settlement {
	t.Helper()
	now := time.Now().UTC()
	s, err := e.Settlements.CreateSettlement(context.Background(), settlement.Settlement{
		ID:        uuid.New().String(),
		Date:      core.TruncateDate(date),
		Type:      typ,
		Amount:    amount,
		Category:  category,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateSettlement() failed: %v", err)
	}
	return s
}

// GetSettlement reloads a settlement from the store.
func (e *Env) GetSettlement(t *testing.T, id string) settlement.Settlement {
	t.Helper()
	s, err := e.Settlements.GetSettlement(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSettlement() failed: %v", err)
	}
	return s
}
