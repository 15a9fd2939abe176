package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/enrollment"
)

const (
	studentsTable      = "students"
	registrationsTable = "student_registrations"
	paymentsTable      = "payments"
	attendanceTable    = "attendance_records"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

// Students

type studentRow struct {
	ID              string      `db:"id"`
	Name            string      `db:"name"`
	Phone           string      `db:"phone"`
	ParentPhone     string      `db:"parent_phone"`
	AcademicStageID null.String `db:"academic_stage_id"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

var studentColumns = []string{"id", "name", "phone", "parent_phone", "academic_stage_id", "created_at", "updated_at"}

func unboilStudent(r studentRow) enrollment.Student {
	return enrollment.Student{
		ID:              r.ID,
		Name:            r.Name,
		Phone:           r.Phone,
		ParentPhone:     r.ParentPhone,
		AcademicStageID: r.AcademicStageID.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (repo *enrollmentRepository) CreateStudent(ctx context.Context, s enrollment.Student) (enrollment.Student, error) {
	b := psql.Insert(studentsTable).Columns(studentColumns...).Values(
		s.ID, s.Name, s.Phone, s.ParentPhone, nullID(s.AcademicStageID), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return enrollment.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *enrollmentRepository) GetStudent(ctx context.Context, id string) (enrollment.Student, error) {
	if !isUUID(id) {
		return enrollment.Student{}, enrollment.ErrStudentNotFound
	}
	var row studentRow
	if err := getRow(ctx, repo.db, &row, psql.Select(studentColumns...).From(studentsTable).Where(sq.Eq{"id": id})); err != nil {
		return enrollment.Student{}, trapNoRowsErr(err, enrollment.ErrStudentNotFound, "finding student")
	}
	return unboilStudent(row), nil
}

func studentsQuery(filter enrollment.StudentFilter) sq.SelectBuilder {
	b := psql.Select(studentColumns...).From(studentsTable)
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"name": val},
			sq.Like{"phone": val},
			sq.Like{"parent_phone": val},
		})
	}
	if filter.AcademicStageID != "" {
		b = b.Where(sq.Eq{"academic_stage_id": filter.AcademicStageID})
	}
	return b.OrderBy("name")
}

func (repo *enrollmentRepository) QueryStudents(ctx context.Context, filter enrollment.StudentFilter) ([]enrollment.Student, error) {
	var rows []studentRow
	if err := selectRows(ctx, repo.db, &rows, studentsQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]enrollment.Student, len(rows))
	for i, r := range rows {
		students[i] = unboilStudent(r)
	}
	return students, nil
}

func (repo *enrollmentRepository) UpdateStudent(ctx context.Context, s enrollment.Student) (enrollment.Student, error) {
	b := psql.Update(studentsTable).SetMap(map[string]interface{}{
		"name":              s.Name,
		"phone":             s.Phone,
		"parent_phone":      s.ParentPhone,
		"academic_stage_id": nullID(s.AcademicStageID),
		"updated_at":        s.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": s.ID})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return enrollment.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return enrollment.Student{}, enrollment.ErrStudentNotFound
	}
	return s, nil
}

// Registrations

type registrationRow struct {
	ID               string          `db:"id"`
	StudentID        string          `db:"student_id"`
	BookingID        string          `db:"booking_id"`
	RegistrationDate time.Time       `db:"registration_date"`
	TotalFees        decimal.Decimal `db:"total_fees"`
	PaidAmount       decimal.Decimal `db:"paid_amount"`
	PaymentStatus    string          `db:"payment_status"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

var registrationColumns = []string{
	"id", "student_id", "booking_id", "registration_date", "total_fees", "paid_amount", "payment_status",
	"created_at", "updated_at",
}

func unboilRegistration(r registrationRow) enrollment.Registration {
	return enrollment.Registration{
		ID:               r.ID,
		StudentID:        r.StudentID,
		BookingID:        r.BookingID,
		RegistrationDate: core.TruncateDate(r.RegistrationDate),
		TotalFees:        r.TotalFees,
		PaidAmount:       r.PaidAmount,
		PaymentStatus:    r.PaymentStatus,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (repo *enrollmentRepository) CreateRegistration(ctx context.Context, r enrollment.Registration) (enrollment.Registration, error) {
	b := psql.Insert(registrationsTable).Columns(registrationColumns...).Values(
		r.ID, r.StudentID, r.BookingID, r.RegistrationDate, r.TotalFees, r.PaidAmount, r.PaymentStatus,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return enrollment.Registration{}, errors.Wrap(err, "inserting registration")
	}
	return r, nil
}

func (repo *enrollmentRepository) GetRegistration(ctx context.Context, id string) (enrollment.Registration, error) {
	if !isUUID(id) {
		return enrollment.Registration{}, enrollment.ErrRegistrationNotFound
	}
	var row registrationRow
	q := psql.Select(registrationColumns...).From(registrationsTable).Where(sq.Eq{"id": id})
	if err := getRow(ctx, repo.db, &row, q); err != nil {
		return enrollment.Registration{}, trapNoRowsErr(err, enrollment.ErrRegistrationNotFound, "finding registration")
	}
	return unboilRegistration(row), nil
}

func registrationsQuery(filter enrollment.RegistrationFilter) sq.SelectBuilder {
	b := psql.Select(registrationColumns...).From(registrationsTable)
	if len(filter.BookingIDs) > 0 {
		b = b.Where(sq.Eq{"booking_id": filter.BookingIDs})
	}
	if filter.StudentID != "" {
		b = b.Where(sq.Eq{"student_id": filter.StudentID})
	}
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"registration_date": core.TruncateDate(filter.From.Time)})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"registration_date": core.TruncateDate(filter.To.Time)})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"payment_status": filter.Status})
	}
	return b.OrderBy("registration_date DESC", "created_at DESC")
}

func (repo *enrollmentRepository) QueryRegistrations(ctx context.Context, filter enrollment.RegistrationFilter) ([]enrollment.Registration, error) {
	var rows []registrationRow
	if err := selectRows(ctx, repo.db, &rows, registrationsQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	regs := make([]enrollment.Registration, len(rows))
	for i, r := range rows {
		regs[i] = unboilRegistration(r)
	}
	return regs, nil
}

// paymentStatusSQL derives payment_status in SQL the way enrollment.PaymentStatusFor does.
func paymentStatusSQL(paid, total string) string {
	return fmt.Sprintf("CASE WHEN %s <= 0 THEN '%s' WHEN %s >= %s THEN '%s' ELSE '%s' END",
		paid, enrollment.PaymentPending, paid, total, enrollment.PaymentPaid, enrollment.PaymentPartial)
}

func registrationFeesUpdate(id string, fee decimal.Decimal, at time.Time) sq.UpdateBuilder {
	return psql.Update(registrationsTable).
		Set("total_fees", fee).
		Set("payment_status", sq.Expr(paymentStatusSQL("paid_amount", "?"), fee)).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(registrationColumns, ", "))
}

func registrationPaymentUpdate(id string, amount decimal.Decimal, at time.Time) sq.UpdateBuilder {
	return psql.Update(registrationsTable).
		Set("paid_amount", sq.Expr("paid_amount + ?", amount)).
		Set("payment_status", sq.Expr(paymentStatusSQL("paid_amount + ?", "total_fees"), amount, amount)).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(registrationColumns, ", "))
}

func (repo *enrollmentRepository) updateRegistration(ctx context.Context, b sq.UpdateBuilder, msg string) (enrollment.Registration, error) {
	var row registrationRow
	if err := getRow(ctx, repo.db, &row, b); err != nil {
		return enrollment.Registration{}, trapNoRowsErr(err, enrollment.ErrRegistrationNotFound, msg)
	}
	return unboilRegistration(row), nil
}

func (repo *enrollmentRepository) UpdateRegistrationFees(ctx context.Context, id string, fee decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	if !isUUID(id) {
		return enrollment.Registration{}, enrollment.ErrRegistrationNotFound
	}
	return repo.updateRegistration(ctx, registrationFeesUpdate(id, fee, at), "updating registration fees")
}

func (repo *enrollmentRepository) AddRegistrationPayment(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	if !isUUID(id) {
		return enrollment.Registration{}, enrollment.ErrRegistrationNotFound
	}
	return repo.updateRegistration(ctx, registrationPaymentUpdate(id, amount, at), "adding registration payment")
}

// DeleteRegistration relies on the ON DELETE CASCADE of payments and attendance_records.
func (repo *enrollmentRepository) DeleteRegistration(ctx context.Context, id string) error {
	if !isUUID(id) {
		return enrollment.ErrRegistrationNotFound
	}
	n, err := execQuery(ctx, repo.db, psql.Delete(registrationsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting registration")
	}
	if n == 0 {
		return enrollment.ErrRegistrationNotFound
	}
	return nil
}

func (repo *enrollmentRepository) CountRegistrations(ctx context.Context, bookingID string) (int, error) {
	if !isUUID(bookingID) {
		return 0, nil
	}
	var cnt int
	q := psql.Select("COUNT(*)").From(registrationsTable).Where(sq.Eq{"booking_id": bookingID})
	if err := getRow(ctx, repo.db, &cnt, q); err != nil {
		return 0, errors.Wrap(err, "counting registrations")
	}
	return cnt, nil
}

// Payments

type paymentRow struct {
	ID             string          `db:"id"`
	RegistrationID string          `db:"registration_id"`
	Amount         decimal.Decimal `db:"amount"`
	PaidAt         time.Time       `db:"paid_at"`
	RecordedBy     null.String     `db:"recorded_by"`
	Note           string          `db:"note"`
}

func (repo *enrollmentRepository) CreatePayment(ctx context.Context, p enrollment.Payment) (enrollment.Payment, error) {
	b := psql.Insert(paymentsTable).
		Columns("id", "registration_id", "amount", "paid_at", "recorded_by", "note").
		Values(p.ID, p.RegistrationID, p.Amount, p.PaidAt, nullID(p.RecordedBy), p.Note)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return enrollment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *enrollmentRepository) QueryPayments(ctx context.Context, registrationID string) ([]enrollment.Payment, error) {
	payments := make([]enrollment.Payment, 0)
	if !isUUID(registrationID) {
		return payments, nil
	}
	var rows []paymentRow
	q := psql.Select("id", "registration_id", "amount", "paid_at", "recorded_by", "note").
		From(paymentsTable).
		Where(sq.Eq{"registration_id": registrationID}).
		OrderBy("paid_at")
	if err := selectRows(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	for _, r := range rows {
		payments = append(payments, enrollment.Payment{
			ID:             r.ID,
			RegistrationID: r.RegistrationID,
			Amount:         r.Amount,
			PaidAt:         core.TruncateDate(r.PaidAt),
			RecordedBy:     r.RecordedBy.String,
			Note:           r.Note,
		})
	}
	return payments, nil
}

// Attendance

type attendanceRow struct {
	ID             string    `db:"id"`
	RegistrationID string    `db:"registration_id"`
	Date           time.Time `db:"date"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

var attendanceColumns = []string{"id", "registration_id", "date", "status", "created_at"}

func unboilAttendance(r attendanceRow) enrollment.AttendanceRecord {
	return enrollment.AttendanceRecord{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		Date:           core.TruncateDate(r.Date),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
}

func (repo *enrollmentRepository) UpsertAttendance(ctx context.Context, a enrollment.AttendanceRecord) (enrollment.AttendanceRecord, error) {
	b := psql.Insert(attendanceTable).Columns(attendanceColumns...).
		Values(a.ID, a.RegistrationID, a.Date, a.Status, a.CreatedAt.UTC()).
		Suffix("ON CONFLICT (registration_id, date) DO UPDATE SET status = EXCLUDED.status").
		Suffix("RETURNING " + "id, registration_id, date, status, created_at")

	var row attendanceRow
	if err := getRow(ctx, repo.db, &row, b); err != nil {
		return enrollment.AttendanceRecord{}, errors.Wrap(err, "upserting attendance")
	}
	return unboilAttendance(row), nil
}

func attendanceWhere(filter enrollment.AttendanceFilter) sq.And {
	where := sq.And{}
	if len(filter.RegistrationIDs) > 0 {
		where = append(where, sq.Eq{"registration_id": filter.RegistrationIDs})
	}
	if !filter.From.IsZero() {
		where = append(where, sq.GtOrEq{"date": core.TruncateDate(filter.From)})
	}
	if !filter.To.IsZero() {
		where = append(where, sq.LtOrEq{"date": core.TruncateDate(filter.To)})
	}
	return where
}

func (repo *enrollmentRepository) QueryAttendance(ctx context.Context, filter enrollment.AttendanceFilter) ([]enrollment.AttendanceRecord, error) {
	var rows []attendanceRow
	q := psql.Select(attendanceColumns...).From(attendanceTable).Where(attendanceWhere(filter)).OrderBy("date")
	if err := selectRows(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]enrollment.AttendanceRecord, len(rows))
	for i, r := range rows {
		records[i] = unboilAttendance(r)
	}
	return records, nil
}

func (repo *enrollmentRepository) DeleteAttendance(ctx context.Context, filter enrollment.AttendanceFilter) (int, error) {
	n, err := execQuery(ctx, repo.db, psql.Delete(attendanceTable).Where(attendanceWhere(filter)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting attendance")
	}
	return n, nil
}
