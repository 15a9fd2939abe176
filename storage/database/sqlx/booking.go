package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
)

const (
	hallsTable    = "halls"
	stagesTable   = "academic_stages"
	teachersTable = "teachers"
	bookingsTable = "bookings"
)

type bookingRepository struct {
	db *sqlx.DB
}

var _ booking.Repository = (*bookingRepository)(nil)

func NewBookingRepository(db *sqlx.DB) booking.Repository {
	return &bookingRepository{db: db}
}

// Halls

type hallRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Capacity  int       `db:"capacity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func unboilHall(r hallRow) booking.Hall {
	return booking.Hall{ID: r.ID, Name: r.Name, Capacity: r.Capacity, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

var hallColumns = []string{"id", "name", "capacity", "created_at", "updated_at"}

func (repo *bookingRepository) CreateHall(ctx context.Context, h booking.Hall) (booking.Hall, error) {
	b := psql.Insert(hallsTable).Columns(hallColumns...).
		Values(h.ID, h.Name, h.Capacity, h.CreatedAt.UTC(), h.UpdatedAt.UTC())
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return booking.Hall{}, errors.Wrap(err, "inserting hall")
	}
	return h, nil
}

func (repo *bookingRepository) GetHall(ctx context.Context, id string) (booking.Hall, error) {
	if !isUUID(id) {
		return booking.Hall{}, booking.ErrHallNotFound
	}
	var row hallRow
	if err := getRow(ctx, repo.db, &row, psql.Select(hallColumns...).From(hallsTable).Where(sq.Eq{"id": id})); err != nil {
		return booking.Hall{}, trapNoRowsErr(err, booking.ErrHallNotFound, "finding hall")
	}
	return unboilHall(row), nil
}

func (repo *bookingRepository) QueryHalls(ctx context.Context) ([]booking.Hall, error) {
	var rows []hallRow
	if err := selectRows(ctx, repo.db, &rows, psql.Select(hallColumns...).From(hallsTable).OrderBy("name")); err != nil {
		return nil, errors.Wrap(err, "querying halls")
	}
	halls := make([]booking.Hall, len(rows))
	for i, r := range rows {
		halls[i] = unboilHall(r)
	}
	return halls, nil
}

func (repo *bookingRepository) UpdateHall(ctx context.Context, h booking.Hall) (booking.Hall, error) {
	b := psql.Update(hallsTable).
		Set("name", h.Name).
		Set("capacity", h.Capacity).
		Set("updated_at", h.UpdatedAt.UTC()).
		Where(sq.Eq{"id": h.ID})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return booking.Hall{}, errors.Wrap(err, "updating hall")
	}
	if n == 0 {
		return booking.Hall{}, booking.ErrHallNotFound
	}
	return h, nil
}

// Academic stages

type stageRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func (repo *bookingRepository) CreateStage(ctx context.Context, st booking.AcademicStage) (booking.AcademicStage, error) {
	b := psql.Insert(stagesTable).Columns("id", "name").Values(st.ID, st.Name)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return booking.AcademicStage{}, errors.Wrap(err, "inserting academic stage")
	}
	return st, nil
}

func (repo *bookingRepository) GetStage(ctx context.Context, id string) (booking.AcademicStage, error) {
	if !isUUID(id) {
		return booking.AcademicStage{}, booking.ErrStageNotFound
	}
	var row stageRow
	if err := getRow(ctx, repo.db, &row, psql.Select("id", "name").From(stagesTable).Where(sq.Eq{"id": id})); err != nil {
		return booking.AcademicStage{}, trapNoRowsErr(err, booking.ErrStageNotFound, "finding academic stage")
	}
	return booking.AcademicStage{ID: row.ID, Name: row.Name}, nil
}

func (repo *bookingRepository) QueryStages(ctx context.Context) ([]booking.AcademicStage, error) {
	var rows []stageRow
	if err := selectRows(ctx, repo.db, &rows, psql.Select("id", "name").From(stagesTable).OrderBy("name")); err != nil {
		return nil, errors.Wrap(err, "querying academic stages")
	}
	stages := make([]booking.AcademicStage, len(rows))
	for i, r := range rows {
		stages[i] = booking.AcademicStage{ID: r.ID, Name: r.Name}
	}
	return stages, nil
}

// Teachers

type teacherRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Code            string          `db:"code"`
	DefaultClassFee decimal.Decimal `db:"default_class_fee"`
	Phone           string          `db:"phone"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func unboilTeacher(r teacherRow) booking.Teacher {
	return booking.Teacher{
		ID:              r.ID,
		Name:            r.Name,
		Code:            r.Code,
		DefaultClassFee: r.DefaultClassFee,
		Phone:           r.Phone,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

var teacherColumns = []string{"id", "name", "code", "default_class_fee", "phone", "created_at", "updated_at"}

func (repo *bookingRepository) CheckTeacherCode(ctx context.Context, code string, excludedIDs ...string) error {
	b := psql.Select("COUNT(*)").From(teachersTable).Where("LOWER(code) = LOWER(?)", code)
	if len(excludedIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludedIDs})
	}
	var cnt int
	if err := getRow(ctx, repo.db, &cnt, b); err != nil {
		return errors.Wrap(err, "checking teacher code")
	}
	if cnt > 0 {
		return booking.ErrTeacherExists
	}
	return nil
}

func (repo *bookingRepository) CreateTeacher(ctx context.Context, t booking.Teacher) (booking.Teacher, error) {
	b := psql.Insert(teachersTable).Columns(teacherColumns...).
		Values(t.ID, t.Name, t.Code, t.DefaultClassFee, t.Phone, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		if isUniqueViolation(err) {
			return booking.Teacher{}, booking.ErrTeacherExists
		}
		return booking.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *bookingRepository) GetTeacher(ctx context.Context, id string) (booking.Teacher, error) {
	if !isUUID(id) {
		return booking.Teacher{}, booking.ErrTeacherNotFound
	}
	var row teacherRow
	if err := getRow(ctx, repo.db, &row, psql.Select(teacherColumns...).From(teachersTable).Where(sq.Eq{"id": id})); err != nil {
		return booking.Teacher{}, trapNoRowsErr(err, booking.ErrTeacherNotFound, "finding teacher")
	}
	return unboilTeacher(row), nil
}

func teachersQuery(search string) sq.SelectBuilder {
	b := psql.Select(teacherColumns...).From(teachersTable)
	if search != "" {
		val := "%" + search + "%"
		b = b.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"code": val}})
	}
	return b.OrderBy("name")
}

func (repo *bookingRepository) QueryTeachers(ctx context.Context, search string) ([]booking.Teacher, error) {
	var rows []teacherRow
	if err := selectRows(ctx, repo.db, &rows, teachersQuery(search)); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]booking.Teacher, len(rows))
	for i, r := range rows {
		teachers[i] = unboilTeacher(r)
	}
	return teachers, nil
}

func (repo *bookingRepository) UpdateTeacher(ctx context.Context, t booking.Teacher) (booking.Teacher, error) {
	b := psql.Update(teachersTable).SetMap(map[string]interface{}{
		"name":              t.Name,
		"code":              t.Code,
		"default_class_fee": t.DefaultClassFee,
		"phone":             t.Phone,
		"updated_at":        t.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": t.ID})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return booking.Teacher{}, booking.ErrTeacherExists
		}
		return booking.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if n == 0 {
		return booking.Teacher{}, booking.ErrTeacherNotFound
	}
	return t, nil
}

// Bookings

type bookingRow struct {
	ID              string          `db:"id"`
	HallID          string          `db:"hall_id"`
	TeacherID       string          `db:"teacher_id"`
	AcademicStageID string          `db:"academic_stage_id"`
	StartTime       string          `db:"start_time"`
	DaysOfWeek      pq.Int64Array   `db:"days_of_week"`
	StartDate       time.Time       `db:"start_date"`
	EndDate         null.Time       `db:"end_date"`
	Status          string          `db:"status"`
	ClassFees       decimal.Decimal `db:"class_fees"`
	IsCustomFee     bool            `db:"is_custom_fee"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

var bookingColumns = []string{
	"id", "hall_id", "teacher_id", "academic_stage_id", "start_time", "days_of_week", "start_date", "end_date",
	"status", "class_fees", "is_custom_fee", "created_at", "updated_at",
}

func boilDays(days []int) pq.Int64Array {
	arr := make(pq.Int64Array, len(days))
	for i, d := range days {
		arr[i] = int64(d)
	}
	return arr
}

func boilEndDate(d null.Time) null.Time {
	if !d.Valid {
		return d
	}
	return null.TimeFrom(core.TruncateDate(d.Time))
}

func unboilBooking(r bookingRow) booking.Booking {
	days := make([]int, len(r.DaysOfWeek))
	for i, d := range r.DaysOfWeek {
		days[i] = int(d)
	}
	end := r.EndDate
	if end.Valid {
		end = null.TimeFrom(core.TruncateDate(end.Time))
	}
	return booking.Booking{
		ID:              r.ID,
		HallID:          r.HallID,
		TeacherID:       r.TeacherID,
		AcademicStageID: r.AcademicStageID,
		Schedule: booking.Schedule{
			StartTime:  r.StartTime,
			DaysOfWeek: days,
			StartDate:  core.TruncateDate(r.StartDate),
			EndDate:    end,
		},
		Status:      r.Status,
		ClassFees:   r.ClassFees,
		IsCustomFee: r.IsCustomFee,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (repo *bookingRepository) CreateBooking(ctx context.Context, bk booking.Booking) (booking.Booking, error) {
	b := psql.Insert(bookingsTable).Columns(bookingColumns...).Values(
		bk.ID, bk.HallID, bk.TeacherID, bk.AcademicStageID, bk.StartTime, boilDays(bk.DaysOfWeek),
		bk.StartDate, boilEndDate(bk.EndDate), bk.Status, bk.ClassFees, bk.IsCustomFee,
		bk.CreatedAt.UTC(), bk.UpdatedAt.UTC(),
	)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return booking.Booking{}, errors.Wrap(err, "inserting booking")
	}
	return bk, nil
}

func (repo *bookingRepository) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	if !isUUID(id) {
		return booking.Booking{}, booking.ErrNotFound
	}
	var row bookingRow
	if err := getRow(ctx, repo.db, &row, psql.Select(bookingColumns...).From(bookingsTable).Where(sq.Eq{"id": id})); err != nil {
		return booking.Booking{}, trapNoRowsErr(err, booking.ErrNotFound, "finding booking")
	}
	return unboilBooking(row), nil
}

func bookingsQuery(filter booking.QueryFilter) sq.SelectBuilder {
	b := psql.Select(bookingColumns...).From(bookingsTable)
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			if isUUID(id) {
				ids = append(ids, id)
			}
		}
		b = b.Where(sq.Eq{"id": ids})
	}
	if filter.TeacherID != "" {
		b = b.Where(sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.HallID != "" {
		b = b.Where(sq.Eq{"hall_id": filter.HallID})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.ActiveOn.IsZero() {
		day := core.TruncateDate(filter.ActiveOn.Time)
		b = b.Where(sq.LtOrEq{"start_date": day}).
			Where(sq.Or{sq.Eq{"end_date": nil}, sq.GtOrEq{"end_date": day}})
	}
	return b.OrderBy("start_date", "start_time")
}

func (repo *bookingRepository) QueryBookings(ctx context.Context, filter booking.QueryFilter) ([]booking.Booking, error) {
	var rows []bookingRow
	if err := selectRows(ctx, repo.db, &rows, bookingsQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "querying bookings")
	}
	bookings := make([]booking.Booking, len(rows))
	for i, r := range rows {
		bookings[i] = unboilBooking(r)
	}
	return bookings, nil
}

func (repo *bookingRepository) UpdateBooking(ctx context.Context, bk booking.Booking) (booking.Booking, error) {
	b := psql.Update(bookingsTable).SetMap(map[string]interface{}{
		"hall_id":           bk.HallID,
		"academic_stage_id": bk.AcademicStageID,
		"start_time":        bk.StartTime,
		"days_of_week":      boilDays(bk.DaysOfWeek),
		"start_date":        bk.StartDate,
		"end_date":          boilEndDate(bk.EndDate),
		"status":            bk.Status,
		"class_fees":        bk.ClassFees,
		"is_custom_fee":     bk.IsCustomFee,
		"updated_at":        bk.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": bk.ID})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return booking.Booking{}, errors.Wrap(err, "updating booking")
	}
	if n == 0 {
		return booking.Booking{}, booking.ErrNotFound
	}
	return bk, nil
}

func (repo *bookingRepository) SetClassFees(ctx context.Context, fee decimal.Decimal, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	b := psql.Update(bookingsTable).
		Set("class_fees", fee).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": ids})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return 0, errors.Wrap(err, "updating class fees")
	}
	return n, nil
}

func (repo *bookingRepository) DeleteBooking(ctx context.Context, id string) error {
	if !isUUID(id) {
		return booking.ErrNotFound
	}
	n, err := execQuery(ctx, repo.db, psql.Delete(bookingsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting booking")
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}
