package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core/booking"
)

type bookingRepository struct {
	halls    *table[booking.Hall]
	stages   *table[booking.AcademicStage]
	teachers *table[booking.Teacher]
	bookings *table[booking.Booking]
}

var _ booking.Repository = (*bookingRepository)(nil)

func NewBookingRepository(db *DB) booking.Repository {
	return &bookingRepository{
		halls:    db.halls,
		stages:   db.stages,
		teachers: db.teachers,
		bookings: db.bookings,
	}
}

// copyBooking detaches the days of week from the stored row.
func copyBooking(b booking.Booking) booking.Booking {
	b.DaysOfWeek = append([]int(nil), b.DaysOfWeek...)
	return b
}

// Halls

func (repo *bookingRepository) CreateHall(_ context.Context, h booking.Hall) (booking.Hall, error) {
	repo.halls.mutex.Lock()
	defer repo.halls.mutex.Unlock()
	repo.halls.rows[h.ID] = h
	return h, nil
}

func (repo *bookingRepository) GetHall(_ context.Context, id string) (booking.Hall, error) {
	repo.halls.mutex.RLock()
	defer repo.halls.mutex.RUnlock()
	if h, ok := repo.halls.rows[id]; ok {
		return h, nil
	}
	return booking.Hall{}, booking.ErrHallNotFound
}

func (repo *bookingRepository) QueryHalls(_ context.Context) ([]booking.Hall, error) {
	repo.halls.mutex.RLock()
	defer repo.halls.mutex.RUnlock()
	halls := repo.halls.all()
	sort.SliceStable(halls, func(i, j int) bool { return halls[i].Name < halls[j].Name })
	return halls, nil
}

func (repo *bookingRepository) UpdateHall(_ context.Context, h booking.Hall) (booking.Hall, error) {
	repo.halls.mutex.Lock()
	defer repo.halls.mutex.Unlock()
	if _, ok := repo.halls.rows[h.ID]; !ok {
		return booking.Hall{}, booking.ErrHallNotFound
	}
	repo.halls.rows[h.ID] = h
	return h, nil
}

// Academic stages

func (repo *bookingRepository) CreateStage(_ context.Context, st booking.AcademicStage) (booking.AcademicStage, error) {
	repo.stages.mutex.Lock()
	defer repo.stages.mutex.Unlock()
	repo.stages.rows[st.ID] = st
	return st, nil
}

func (repo *bookingRepository) GetStage(_ context.Context, id string) (booking.AcademicStage, error) {
	repo.stages.mutex.RLock()
	defer repo.stages.mutex.RUnlock()
	if st, ok := repo.stages.rows[id]; ok {
		return st, nil
	}
	return booking.AcademicStage{}, booking.ErrStageNotFound
}

func (repo *bookingRepository) QueryStages(_ context.Context) ([]booking.AcademicStage, error) {
	repo.stages.mutex.RLock()
	defer repo.stages.mutex.RUnlock()
	stages := repo.stages.all()
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Name < stages[j].Name })
	return stages, nil
}

// Teachers

func (repo *bookingRepository) CheckTeacherCode(_ context.Context, code string, excludedIDs ...string) error {
	repo.teachers.mutex.RLock()
	defer repo.teachers.mutex.RUnlock()
	for _, t := range repo.teachers.rows {
		if strings.EqualFold(t.Code, code) && !containsStr(excludedIDs, t.ID) {
			return booking.ErrTeacherExists
		}
	}
	return nil
}

func (repo *bookingRepository) CreateTeacher(_ context.Context, t booking.Teacher) (booking.Teacher, error) {
	repo.teachers.mutex.Lock()
	defer repo.teachers.mutex.Unlock()
	for _, o := range repo.teachers.rows {
		if strings.EqualFold(o.Code, t.Code) {
			return booking.Teacher{}, booking.ErrTeacherExists
		}
	}
	repo.teachers.rows[t.ID] = t
	return t, nil
}

func (repo *bookingRepository) GetTeacher(_ context.Context, id string) (booking.Teacher, error) {
	repo.teachers.mutex.RLock()
	defer repo.teachers.mutex.RUnlock()
	if t, ok := repo.teachers.rows[id]; ok {
		return t, nil
	}
	return booking.Teacher{}, booking.ErrTeacherNotFound
}

func (repo *bookingRepository) QueryTeachers(_ context.Context, search string) ([]booking.Teacher, error) {
	repo.teachers.mutex.RLock()
	defer repo.teachers.mutex.RUnlock()

	teachers := make([]booking.Teacher, 0, len(repo.teachers.rows))
	for _, t := range repo.teachers.all() {
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) && !strings.Contains(strings.ToLower(t.Code), search) {
			continue
		}
		teachers = append(teachers, t)
	}
	sort.SliceStable(teachers, func(i, j int) bool { return teachers[i].Name < teachers[j].Name })
	return teachers, nil
}

func (repo *bookingRepository) UpdateTeacher(_ context.Context, t booking.Teacher) (booking.Teacher, error) {
	repo.teachers.mutex.Lock()
	defer repo.teachers.mutex.Unlock()
	if _, ok := repo.teachers.rows[t.ID]; !ok {
		return booking.Teacher{}, booking.ErrTeacherNotFound
	}
	repo.teachers.rows[t.ID] = t
	return t, nil
}

// Bookings

func (repo *bookingRepository) CreateBooking(_ context.Context, b booking.Booking) (booking.Booking, error) {
	repo.bookings.mutex.Lock()
	defer repo.bookings.mutex.Unlock()
	repo.bookings.rows[b.ID] = copyBooking(b)
	return b, nil
}

func (repo *bookingRepository) GetBooking(_ context.Context, id string) (booking.Booking, error) {
	repo.bookings.mutex.RLock()
	defer repo.bookings.mutex.RUnlock()
	if b, ok := repo.bookings.rows[id]; ok {
		return copyBooking(b), nil
	}
	return booking.Booking{}, booking.ErrNotFound
}

func (repo *bookingRepository) QueryBookings(_ context.Context, filter booking.QueryFilter) ([]booking.Booking, error) {
	repo.bookings.mutex.RLock()
	defer repo.bookings.mutex.RUnlock()

	bookings := make([]booking.Booking, 0)
	for _, b := range repo.bookings.all() {
		if len(filter.IDs) > 0 && !containsStr(filter.IDs, b.ID) {
			continue
		}
		if filter.TeacherID != "" && b.TeacherID != filter.TeacherID {
			continue
		}
		if filter.HallID != "" && b.HallID != filter.HallID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if !filter.ActiveOn.IsZero() && !b.Overlaps(filter.ActiveOn.Time, filter.ActiveOn.Time) {
			continue
		}
		bookings = append(bookings, copyBooking(b))
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].StartDate.Equal(bookings[j].StartDate) {
			return bookings[i].StartDate.Before(bookings[j].StartDate)
		}
		return bookings[i].StartTime < bookings[j].StartTime
	})
	return bookings, nil
}

func (repo *bookingRepository) UpdateBooking(_ context.Context, b booking.Booking) (booking.Booking, error) {
	repo.bookings.mutex.Lock()
	defer repo.bookings.mutex.Unlock()
	if _, ok := repo.bookings.rows[b.ID]; !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	repo.bookings.rows[b.ID] = copyBooking(b)
	return b, nil
}

func (repo *bookingRepository) SetClassFees(_ context.Context, fee decimal.Decimal, ids ...string) (int, error) {
	repo.bookings.mutex.Lock()
	defer repo.bookings.mutex.Unlock()

	var cnt int
	now := time.Now().UTC()
	for _, id := range ids {
		b, ok := repo.bookings.rows[id]
		if !ok {
			continue
		}
		b.ClassFees = fee
		b.UpdatedAt = now
		repo.bookings.rows[id] = b
		cnt++
	}
	return cnt, nil
}

func (repo *bookingRepository) DeleteBooking(_ context.Context, id string) error {
	repo.bookings.mutex.Lock()
	defer repo.bookings.mutex.Unlock()
	if _, ok := repo.bookings.rows[id]; !ok {
		return booking.ErrNotFound
	}
	delete(repo.bookings.rows, id)
	return nil
}
