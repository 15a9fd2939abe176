package enrollment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/user"
)

var (
	// errors
	ErrStudentNotFound      = errors.New("student not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrAlreadyRegistered    = errors.New("student is already registered in this booking for this month")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)

		CreateRegistration(ctx context.Context, r Registration) (Registration, error)
		GetRegistration(ctx context.Context, id string) (Registration, error)
		// QueryRegistrations returns registrations newest first (registration_date DESC, created_at DESC).
		QueryRegistrations(ctx context.Context, filter RegistrationFilter) ([]Registration, error)
		// UpdateRegistrationFees sets total_fees and recomputes payment_status against the
		// stored paid_amount, returning the updated row.
		UpdateRegistrationFees(ctx context.Context, id string, fee decimal.Decimal, at time.Time) (Registration, error)
		// AddRegistrationPayment increments the stored paid_amount and recomputes payment_status.
		AddRegistrationPayment(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (Registration, error)
		// DeleteRegistration removes a registration with its payments and attendance.
		DeleteRegistration(ctx context.Context, id string) error
		CountRegistrations(ctx context.Context, bookingID string) (int, error)

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		QueryPayments(ctx context.Context, registrationID string) ([]Payment, error)

		// UpsertAttendance creates or replaces the record of a registration for a date.
		UpsertAttendance(ctx context.Context, a AttendanceRecord) (AttendanceRecord, error)
		QueryAttendance(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, error)
		DeleteAttendance(ctx context.Context, filter AttendanceFilter) (int, error)
	}

	BookingGetter interface {
		GetBooking(ctx context.Context, id string) (booking.Booking, error)
	}

	Service struct {
		repo     Repository
		bookings BookingGetter
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, bookings BookingGetter, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		bookings: bookings,
		validate: validate,
		logger:   logger,
	}
}

// Students

func (svc *Service) CreateStudent(ctx context.Context, sess user.Session, ns NewStudent) (Student, error) {
	if err := sess.Require(user.ActionManageEnrollment); err != nil {
		return Student{}, err
	}
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}

	now := time.Now().UTC()
	s, err := svc.repo.CreateStudent(ctx, Student{
		ID:              uuid.New().String(),
		Name:            ns.Name,
		Phone:           ns.Phone,
		ParentPhone:     ns.ParentPhone,
		AcademicStageID: ns.AcademicStageID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return s, errors.Wrap(err, "creating student")
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search, true /* lower */)
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) UpdateStudent(ctx context.Context, sess user.Session, id string, us UpdateStudent) (Student, error) {
	if err := sess.Require(user.ActionManageEnrollment); err != nil {
		return Student{}, err
	}
	us.Clean()
	if err := svc.validate.Struct(us); err != nil {
		return Student{}, err
	}
	s, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.Name != "" {
		s.Name = us.Name
	}
	if us.Phone != "" {
		s.Phone = us.Phone
	}
	if us.ParentPhone != "" {
		s.ParentPhone = us.ParentPhone
	}
	if us.AcademicStageID != "" {
		s.AcademicStageID = us.AcademicStageID
	}
	s.UpdatedAt = time.Now().UTC()

	s, err = svc.repo.UpdateStudent(ctx, s)
	return s, errors.Wrap(err, "updating student")
}

// Registrations

// Register enrolls a student in a booking for the month of the registration date.
func (svc *Service) Register(ctx context.Context, sess user.Session, nr NewRegistration) (Registration, error) {
	if err := sess.Require(user.ActionManageEnrollment); err != nil {
		return Registration{}, err
	}
	if err := svc.validate.Struct(nr); err != nil {
		return Registration{}, err
	}
	if nr.TotalFees != nil && nr.TotalFees.IsNegative() {
		return Registration{}, core.NewFieldValidationError("total_fees", "fee cannot be negative")
	}

	if _, err := svc.repo.GetStudent(ctx, nr.StudentID); err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Registration{}, core.NewFieldValidationError("student_id", err.Error())
		}
		return Registration{}, errors.Wrap(err, "loading student")
	}
	b, err := svc.bookings.GetBooking(ctx, nr.BookingID)
	if err != nil {
		if errors.Cause(err) == booking.ErrNotFound {
			return Registration{}, core.NewFieldValidationError("booking_id", err.Error())
		}
		return Registration{}, errors.Wrap(err, "loading booking")
	}

	regDate := sess.Today()
	if !nr.RegistrationDate.IsZero() {
		regDate = core.TruncateDate(nr.RegistrationDate.Time)
	}
	first, last := core.MonthOf(regDate)
	existing, err := svc.repo.QueryRegistrations(ctx, RegistrationFilter{
		BookingIDs: []string{b.ID},
		StudentID:  nr.StudentID,
		From:       core.DateOf(first),
		To:         core.DateOf(last),
	})
	if err != nil {
		return Registration{}, errors.Wrap(err, "checking existing registrations")
	}
	if len(existing) > 0 {
		return Registration{}, core.NewValidationError(ErrAlreadyRegistered, core.FieldError{Field: "student_id", Error: ErrAlreadyRegistered.Error()})
	}

	fee := b.ClassFees
	if nr.TotalFees != nil {
		fee = *nr.TotalFees
	}
	now := time.Now().UTC()
	r := Registration{
		ID:               uuid.New().String(),
		StudentID:        nr.StudentID,
		BookingID:        b.ID,
		RegistrationDate: regDate,
		PaidAmount:       decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.SetTotalFees(fee)

	r, err = svc.repo.CreateRegistration(ctx, r)
	return r, errors.Wrap(err, "creating registration")
}

func (svc *Service) GetRegistration(ctx context.Context, id string) (Registration, error) {
	return svc.repo.GetRegistration(ctx, id)
}

func (svc *Service) QueryRegistrations(ctx context.Context, filter RegistrationFilter) ([]Registration, error) {
	return svc.repo.QueryRegistrations(ctx, filter)
}

// RecordPayment adds a payment to a registration and recomputes its payment status.
func (svc *Service) RecordPayment(ctx context.Context, sess user.Session, regID string, np NewPayment) (Registration, Payment, error) {
	if err := sess.Require(user.ActionRecordPayments); err != nil {
		return Registration{}, Payment{}, err
	}
	if err := svc.validate.Struct(np); err != nil {
		return Registration{}, Payment{}, err
	}
	if !np.Amount.IsPositive() {
		return Registration{}, Payment{}, core.NewFieldValidationError("amount", "amount must be greater than 0")
	}
	r, err := svc.repo.GetRegistration(ctx, regID)
	if err != nil {
		return Registration{}, Payment{}, err
	}

	paidAt := sess.Today()
	if !np.PaidAt.IsZero() {
		paidAt = core.TruncateDate(np.PaidAt.Time)
	}
	p, err := svc.repo.CreatePayment(ctx, Payment{
		ID:             uuid.New().String(),
		RegistrationID: r.ID,
		Amount:         np.Amount,
		PaidAt:         paidAt,
		RecordedBy:     sess.User.ID,
		Note:           core.CleanString(np.Note),
	})
	if err != nil {
		return Registration{}, Payment{}, errors.Wrap(err, "creating payment")
	}

	r, err = svc.repo.AddRegistrationPayment(ctx, r.ID, np.Amount, time.Now().UTC())
	if err != nil {
		return Registration{}, p, errors.Wrap(err, "updating registration")
	}
	return r, p, nil
}

func (svc *Service) QueryPayments(ctx context.Context, regID string) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, regID)
}

// UpdateFees changes the fees of a single registration and recomputes its payment status.
func (svc *Service) UpdateFees(ctx context.Context, sess user.Session, regID string, fee decimal.Decimal) (Registration, error) {
	if err := sess.Require(user.ActionManageFees); err != nil {
		return Registration{}, err
	}
	if fee.IsNegative() {
		return Registration{}, core.NewFieldValidationError("total_fees", "fee cannot be negative")
	}
	r, err := svc.repo.UpdateRegistrationFees(ctx, regID, fee, time.Now().UTC())
	if err == ErrRegistrationNotFound {
		return Registration{}, err
	}
	return r, errors.Wrap(err, "updating registration")
}

func (svc *Service) DeleteRegistration(ctx context.Context, sess user.Session, id string) error {
	if err := sess.Require(user.ActionManageEnrollment); err != nil {
		return err
	}
	if _, err := svc.repo.GetRegistration(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteRegistration(ctx, id), "deleting registration")
}

// Attendance

// MarkAttendance records the attendance of a registration for a date, replacing any previous mark.
func (svc *Service) MarkAttendance(ctx context.Context, sess user.Session, ma MarkAttendance) (AttendanceRecord, error) {
	if err := sess.Require(user.ActionMarkAttendance); err != nil {
		return AttendanceRecord{}, err
	}
	if err := svc.validate.Struct(ma); err != nil {
		return AttendanceRecord{}, err
	}
	if _, err := svc.repo.GetRegistration(ctx, ma.RegistrationID); err != nil {
		if errors.Cause(err) == ErrRegistrationNotFound {
			return AttendanceRecord{}, core.NewFieldValidationError("registration_id", err.Error())
		}
		return AttendanceRecord{}, errors.Wrap(err, "loading registration")
	}

	date := sess.Today()
	if !ma.Date.IsZero() {
		date = core.TruncateDate(ma.Date.Time)
	}
	a, err := svc.repo.UpsertAttendance(ctx, AttendanceRecord{
		ID:             uuid.New().String(),
		RegistrationID: ma.RegistrationID,
		Date:           date,
		Status:         ma.Status,
		CreatedAt:      time.Now().UTC(),
	})
	return a, errors.Wrap(err, "marking attendance")
}

// QueryAttendance returns the attendance of a booking's registrations between from and to.
func (svc *Service) QueryAttendance(ctx context.Context, bookingID string, from, to time.Time) ([]AttendanceRecord, error) {
	regs, err := svc.repo.QueryRegistrations(ctx, RegistrationFilter{BookingIDs: []string{bookingID}})
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	if len(regs) == 0 {
		return []AttendanceRecord{}, nil
	}
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.ID)
	}
	return svc.repo.QueryAttendance(ctx, AttendanceFilter{RegistrationIDs: ids, From: from, To: to})
}
