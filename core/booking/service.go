package booking

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("booking not found")
	ErrHallNotFound    = errors.New("hall not found")
	ErrStageNotFound   = errors.New("academic stage not found")
	ErrTeacherNotFound = errors.New("teacher not found")
	ErrTeacherExists   = errors.New("a teacher with this code already exists")
	ErrHasRegistration = errors.New("booking has registrations, cancel or complete it instead")

	errScheduleClash = "the hall is already booked at this time"
)

type (
	Repository interface {
		CreateHall(ctx context.Context, h Hall) (Hall, error)
		GetHall(ctx context.Context, id string) (Hall, error)
		QueryHalls(ctx context.Context) ([]Hall, error)
		UpdateHall(ctx context.Context, h Hall) (Hall, error)

		CreateStage(ctx context.Context, st AcademicStage) (AcademicStage, error)
		GetStage(ctx context.Context, id string) (AcademicStage, error)
		QueryStages(ctx context.Context) ([]AcademicStage, error)

		CheckTeacherCode(ctx context.Context, code string, excludedIDs ...string) error
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		QueryTeachers(ctx context.Context, search string) ([]Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)

		CreateBooking(ctx context.Context, b Booking) (Booking, error)
		GetBooking(ctx context.Context, id string) (Booking, error)
		QueryBookings(ctx context.Context, filter QueryFilter) ([]Booking, error)
		UpdateBooking(ctx context.Context, b Booking) (Booking, error)
		// SetClassFees sets class_fees on all given bookings, returning the number of rows updated.
		SetClassFees(ctx context.Context, fee decimal.Decimal, ids ...string) (int, error)
		DeleteBooking(ctx context.Context, id string) error
	}

	// RegistrationCounter tells whether students are registered in a booking.
	RegistrationCounter interface {
		CountRegistrations(ctx context.Context, bookingID string) (int, error)
	}

	Service struct {
		repo     Repository
		regs     RegistrationCounter
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, regs RegistrationCounter, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		regs:     regs,
		validate: validate,
		logger:   logger,
	}
}

// Halls

func (svc *Service) CreateHall(ctx context.Context, sess user.Session, nh NewHall) (Hall, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Hall{}, err
	}
	nh.Name = core.CleanString(nh.Name)
	if err := svc.validate.Struct(nh); err != nil {
		return Hall{}, err
	}

	now := time.Now().UTC()
	h, err := svc.repo.CreateHall(ctx, Hall{
		ID:        uuid.New().String(),
		Name:      nh.Name,
		Capacity:  nh.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return h, errors.Wrap(err, "creating hall")
}

func (svc *Service) GetHall(ctx context.Context, id string) (Hall, error) {
	return svc.repo.GetHall(ctx, id)
}

func (svc *Service) QueryHalls(ctx context.Context) ([]Hall, error) {
	return svc.repo.QueryHalls(ctx)
}

func (svc *Service) UpdateHall(ctx context.Context, sess user.Session, id string, uh UpdateHall) (Hall, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Hall{}, err
	}
	uh.Name = core.CleanString(uh.Name)
	if err := svc.validate.Struct(uh); err != nil {
		return Hall{}, err
	}
	h, err := svc.repo.GetHall(ctx, id)
	if err != nil {
		return Hall{}, err
	}
	if uh.Name != "" {
		h.Name = uh.Name
	}
	if uh.Capacity != nil {
		h.Capacity = *uh.Capacity
	}
	h.UpdatedAt = time.Now().UTC()

	h, err = svc.repo.UpdateHall(ctx, h)
	return h, errors.Wrap(err, "updating hall")
}

// Academic stages

func (svc *Service) CreateStage(ctx context.Context, sess user.Session, ns NewStage) (AcademicStage, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return AcademicStage{}, err
	}
	ns.Name = core.CleanString(ns.Name)
	if err := svc.validate.Struct(ns); err != nil {
		return AcademicStage{}, err
	}
	st, err := svc.repo.CreateStage(ctx, AcademicStage{ID: uuid.New().String(), Name: ns.Name})
	return st, errors.Wrap(err, "creating academic stage")
}

func (svc *Service) QueryStages(ctx context.Context) ([]AcademicStage, error) {
	return svc.repo.QueryStages(ctx)
}

// Teachers

func (svc *Service) checkTeacherCode(ctx context.Context, code string, exclIDs ...string) error {
	if err := svc.repo.CheckTeacherCode(ctx, code, exclIDs...); err != nil {
		if err == ErrTeacherExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return errors.Wrap(err, "checking teacher code")
	}
	return nil
}

func (svc *Service) CreateTeacher(ctx context.Context, sess user.Session, nt NewTeacher) (Teacher, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Teacher{}, err
	}
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Teacher{}, err
	}
	if nt.DefaultClassFee.IsNegative() {
		return Teacher{}, core.NewFieldValidationError("default_class_fee", "fee cannot be negative")
	}
	if err := svc.checkTeacherCode(ctx, nt.Code); err != nil {
		return Teacher{}, err
	}

	now := time.Now().UTC()
	t, err := svc.repo.CreateTeacher(ctx, Teacher{
		ID:              uuid.New().String(),
		Name:            nt.Name,
		Code:            nt.Code,
		DefaultClassFee: nt.DefaultClassFee,
		Phone:           nt.Phone,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	return t, errors.Wrap(err, "creating teacher")
}

func (svc *Service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *Service) QueryTeachers(ctx context.Context, search string) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx, core.CleanString(search, true /* lower */))
}

// UpdateTeacher modifies a teacher's details. The default fee is changed through fee propagation.
func (svc *Service) UpdateTeacher(ctx context.Context, sess user.Session, id string, ut UpdateTeacher) (Teacher, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Teacher{}, err
	}
	ut.Clean()
	if err := svc.validate.Struct(ut); err != nil {
		return Teacher{}, err
	}
	t, err := svc.repo.GetTeacher(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	if ut.Code != "" && ut.Code != t.Code {
		if err = svc.checkTeacherCode(ctx, ut.Code, t.ID); err != nil {
			return Teacher{}, err
		}
		t.Code = ut.Code
	}
	if ut.Name != "" {
		t.Name = ut.Name
	}
	if ut.Phone != "" {
		t.Phone = ut.Phone
	}
	t.UpdatedAt = time.Now().UTC()

	t, err = svc.repo.UpdateTeacher(ctx, t)
	return t, errors.Wrap(err, "updating teacher")
}

// Bookings

// checkSchedule rejects an active booking clashing with another active booking of the same hall.
func (svc *Service) checkSchedule(ctx context.Context, b Booking) error {
	if b.Status != StatusActive {
		return nil
	}
	others, err := svc.repo.QueryBookings(ctx, QueryFilter{HallID: b.HallID, Status: StatusActive})
	if err != nil {
		return errors.Wrap(err, "querying hall bookings")
	}
	for _, o := range others {
		if o.ID != b.ID && b.Schedule.Clashes(o.Schedule) {
			return core.NewFieldValidationError("schedule", errScheduleClash)
		}
	}
	return nil
}

func validateDates(start, end time.Time, endValid bool) error {
	if start.IsZero() {
		return core.NewFieldValidationError("start_date", "this field is required")
	}
	if endValid && end.Before(start) {
		return core.NewFieldValidationError("end_date", "end date cannot be before start date")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, sess user.Session, nb NewBooking) (Booking, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Booking{}, err
	}
	if err := svc.validate.Struct(nb); err != nil {
		return Booking{}, err
	}
	if err := validateDates(nb.StartDate.Time, nb.EndDate.Time, !nb.EndDate.IsZero()); err != nil {
		return Booking{}, err
	}
	if nb.ClassFees != nil && nb.ClassFees.IsNegative() {
		return Booking{}, core.NewFieldValidationError("class_fees", "fee cannot be negative")
	}

	if _, err := svc.repo.GetHall(ctx, nb.HallID); err != nil {
		return Booking{}, fkError(err, ErrHallNotFound, "hall_id")
	}
	if _, err := svc.repo.GetStage(ctx, nb.AcademicStageID); err != nil {
		return Booking{}, fkError(err, ErrStageNotFound, "academic_stage_id")
	}
	teacher, err := svc.repo.GetTeacher(ctx, nb.TeacherID)
	if err != nil {
		return Booking{}, fkError(err, ErrTeacherNotFound, "teacher_id")
	}

	now := time.Now().UTC()
	b := Booking{
		ID:              uuid.New().String(),
		HallID:          nb.HallID,
		TeacherID:       nb.TeacherID,
		AcademicStageID: nb.AcademicStageID,
		Schedule: Schedule{
			StartTime:  nb.StartTime,
			DaysOfWeek: nb.DaysOfWeek,
			StartDate:  core.TruncateDate(nb.StartDate.Time),
		},
		Status:      StatusActive,
		ClassFees:   teacher.DefaultClassFee,
		IsCustomFee: nb.IsCustomFee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !nb.EndDate.IsZero() {
		b.EndDate = null.TimeFrom(core.TruncateDate(nb.EndDate.Time))
	}
	if nb.ClassFees != nil {
		b.ClassFees = *nb.ClassFees
	}
	if err = svc.checkSchedule(ctx, b); err != nil {
		return Booking{}, err
	}

	b, err = svc.repo.CreateBooking(ctx, b)
	return b, errors.Wrap(err, "creating booking")
}

func (svc *Service) Get(ctx context.Context, id string) (Booking, error) {
	return svc.repo.GetBooking(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Booking, error) {
	return svc.repo.QueryBookings(ctx, filter)
}

// Update modifies a booking. Changing class_fees here does not touch registrations.
func (svc *Service) Update(ctx context.Context, sess user.Session, id string, ub UpdateBooking) (Booking, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Booking{}, err
	}
	if err := svc.validate.Struct(ub); err != nil {
		return Booking{}, err
	}
	b, err := svc.repo.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}

	if ub.HallID != "" && ub.HallID != b.HallID {
		if _, err = svc.repo.GetHall(ctx, ub.HallID); err != nil {
			return Booking{}, fkError(err, ErrHallNotFound, "hall_id")
		}
		b.HallID = ub.HallID
	}
	if ub.AcademicStageID != "" && ub.AcademicStageID != b.AcademicStageID {
		if _, err = svc.repo.GetStage(ctx, ub.AcademicStageID); err != nil {
			return Booking{}, fkError(err, ErrStageNotFound, "academic_stage_id")
		}
		b.AcademicStageID = ub.AcademicStageID
	}
	if ub.StartTime != "" {
		b.StartTime = ub.StartTime
	}
	if len(ub.DaysOfWeek) > 0 {
		b.DaysOfWeek = ub.DaysOfWeek
	}
	if !ub.StartDate.IsZero() {
		b.StartDate = core.TruncateDate(ub.StartDate.Time)
	}
	if ub.ClearEndDate {
		b.EndDate = null.Time{}
	} else if !ub.EndDate.IsZero() {
		b.EndDate = null.TimeFrom(core.TruncateDate(ub.EndDate.Time))
	}
	if err = validateDates(b.StartDate, b.EndDate.Time, b.EndDate.Valid); err != nil {
		return Booking{}, err
	}
	if ub.ClassFees != nil {
		if ub.ClassFees.IsNegative() {
			return Booking{}, core.NewFieldValidationError("class_fees", "fee cannot be negative")
		}
		b.ClassFees = *ub.ClassFees
	}
	if ub.IsCustomFee != nil {
		b.IsCustomFee = *ub.IsCustomFee
	}
	if err = svc.checkSchedule(ctx, b); err != nil {
		return Booking{}, err
	}
	b.UpdatedAt = time.Now().UTC()

	b, err = svc.repo.UpdateBooking(ctx, b)
	return b, errors.Wrap(err, "updating booking")
}

// SetStatus moves a booking to another status. Re-activating checks the schedule again.
func (svc *Service) SetStatus(ctx context.Context, sess user.Session, id, status string) (Booking, error) {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return Booking{}, err
	}
	if !isValidStatus(status) {
		return Booking{}, core.NewFieldValidationError("status", "invalid status")
	}
	b, err := svc.repo.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if b.Status == status {
		return b, nil
	}
	b.Status = status
	if err = svc.checkSchedule(ctx, b); err != nil {
		return Booking{}, err
	}
	b.UpdatedAt = time.Now().UTC()

	b, err = svc.repo.UpdateBooking(ctx, b)
	return b, errors.Wrap(err, "updating booking status")
}

// Delete removes a booking without registrations.
func (svc *Service) Delete(ctx context.Context, sess user.Session, id string) error {
	if err := sess.Require(user.ActionManageBookings); err != nil {
		return err
	}
	if _, err := svc.repo.GetBooking(ctx, id); err != nil {
		return err
	}
	cnt, err := svc.regs.CountRegistrations(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting registrations")
	}
	if cnt > 0 {
		return ErrHasRegistration
	}
	return errors.Wrap(svc.repo.DeleteBooking(ctx, id), "deleting booking")
}

func isValidStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// fkError turns the not-found error of a referenced row into a field validation error.
func fkError(err, notFound error, field string) error {
	if errors.Cause(err) == notFound {
		return core.NewFieldValidationError(field, notFound.Error())
	}
	return errors.Wrap(err, "loading "+field)
}
