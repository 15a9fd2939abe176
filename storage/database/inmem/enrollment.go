package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/enrollment"
)

type enrollmentRepository struct {
	students      *table[enrollment.Student]
	registrations *table[enrollment.Registration]
	payments      *table[enrollment.Payment]
	attendance    *table[enrollment.AttendanceRecord]
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{
		students:      db.students,
		registrations: db.registrations,
		payments:      db.payments,
		attendance:    db.attendance,
	}
}

// Students

func (repo *enrollmentRepository) CreateStudent(_ context.Context, s enrollment.Student) (enrollment.Student, error) {
	repo.students.mutex.Lock()
	defer repo.students.mutex.Unlock()
	repo.students.rows[s.ID] = s
	return s, nil
}

func (repo *enrollmentRepository) GetStudent(_ context.Context, id string) (enrollment.Student, error) {
	repo.students.mutex.RLock()
	defer repo.students.mutex.RUnlock()
	if s, ok := repo.students.rows[id]; ok {
		return s, nil
	}
	return enrollment.Student{}, enrollment.ErrStudentNotFound
}

func (repo *enrollmentRepository) QueryStudents(_ context.Context, filter enrollment.StudentFilter) ([]enrollment.Student, error) {
	repo.students.mutex.RLock()
	defer repo.students.mutex.RUnlock()

	students := make([]enrollment.Student, 0)
	for _, s := range repo.students.all() {
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.Name), filter.Search) &&
			!strings.Contains(s.Phone, filter.Search) && !strings.Contains(s.ParentPhone, filter.Search) {
			continue
		}
		if filter.AcademicStageID != "" && s.AcademicStageID != filter.AcademicStageID {
			continue
		}
		students = append(students, s)
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *enrollmentRepository) UpdateStudent(_ context.Context, s enrollment.Student) (enrollment.Student, error) {
	repo.students.mutex.Lock()
	defer repo.students.mutex.Unlock()
	if _, ok := repo.students.rows[s.ID]; !ok {
		return enrollment.Student{}, enrollment.ErrStudentNotFound
	}
	repo.students.rows[s.ID] = s
	return s, nil
}

// Registrations

func (repo *enrollmentRepository) CreateRegistration(_ context.Context, r enrollment.Registration) (enrollment.Registration, error) {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()
	repo.registrations.rows[r.ID] = r
	return r, nil
}

func (repo *enrollmentRepository) GetRegistration(_ context.Context, id string) (enrollment.Registration, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()
	if r, ok := repo.registrations.rows[id]; ok {
		return r, nil
	}
	return enrollment.Registration{}, enrollment.ErrRegistrationNotFound
}

func (repo *enrollmentRepository) QueryRegistrations(_ context.Context, filter enrollment.RegistrationFilter) ([]enrollment.Registration, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	regs := make([]enrollment.Registration, 0)
	for _, r := range repo.registrations.all() {
		if len(filter.BookingIDs) > 0 && !containsStr(filter.BookingIDs, r.BookingID) {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if !filter.From.IsZero() && r.RegistrationDate.Before(core.TruncateDate(filter.From.Time)) {
			continue
		}
		if !filter.To.IsZero() && r.RegistrationDate.After(core.TruncateDate(filter.To.Time)) {
			continue
		}
		if filter.Status != "" && r.PaymentStatus != filter.Status {
			continue
		}
		regs = append(regs, r)
	}
	sort.SliceStable(regs, func(i, j int) bool {
		if !regs[i].RegistrationDate.Equal(regs[j].RegistrationDate) {
			return regs[i].RegistrationDate.After(regs[j].RegistrationDate)
		}
		return regs[i].CreatedAt.After(regs[j].CreatedAt)
	})
	return regs, nil
}

func (repo *enrollmentRepository) updateRegistration(id string, at time.Time, update func(*enrollment.Registration)) (enrollment.Registration, error) {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()

	r, ok := repo.registrations.rows[id]
	if !ok {
		return enrollment.Registration{}, enrollment.ErrRegistrationNotFound
	}
	update(&r)
	r.UpdatedAt = at
	repo.registrations.rows[id] = r
	return r, nil
}

func (repo *enrollmentRepository) UpdateRegistrationFees(_ context.Context, id string, fee decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	return repo.updateRegistration(id, at, func(r *enrollment.Registration) { r.SetTotalFees(fee) })
}

func (repo *enrollmentRepository) AddRegistrationPayment(_ context.Context, id string, amount decimal.Decimal, at time.Time) (enrollment.Registration, error) {
	return repo.updateRegistration(id, at, func(r *enrollment.Registration) { r.AddPayment(amount) })
}

func (repo *enrollmentRepository) DeleteRegistration(_ context.Context, id string) error {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()
	if _, ok := repo.registrations.rows[id]; !ok {
		return enrollment.ErrRegistrationNotFound
	}
	delete(repo.registrations.rows, id)

	repo.payments.mutex.Lock()
	for pid, p := range repo.payments.rows {
		if p.RegistrationID == id {
			delete(repo.payments.rows, pid)
		}
	}
	repo.payments.mutex.Unlock()

	repo.attendance.mutex.Lock()
	for aid, a := range repo.attendance.rows {
		if a.RegistrationID == id {
			delete(repo.attendance.rows, aid)
		}
	}
	repo.attendance.mutex.Unlock()
	return nil
}

func (repo *enrollmentRepository) CountRegistrations(_ context.Context, bookingID string) (int, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	var cnt int
	for _, r := range repo.registrations.rows {
		if r.BookingID == bookingID {
			cnt++
		}
	}
	return cnt, nil
}

// Payments

func (repo *enrollmentRepository) CreatePayment(_ context.Context, p enrollment.Payment) (enrollment.Payment, error) {
	repo.payments.mutex.Lock()
	defer repo.payments.mutex.Unlock()
	repo.payments.rows[p.ID] = p
	return p, nil
}

func (repo *enrollmentRepository) QueryPayments(_ context.Context, registrationID string) ([]enrollment.Payment, error) {
	repo.payments.mutex.RLock()
	defer repo.payments.mutex.RUnlock()

	payments := make([]enrollment.Payment, 0)
	for _, p := range repo.payments.all() {
		if p.RegistrationID == registrationID {
			payments = append(payments, p)
		}
	}
	sort.SliceStable(payments, func(i, j int) bool { return payments[i].PaidAt.Before(payments[j].PaidAt) })
	return payments, nil
}

// Attendance

func (repo *enrollmentRepository) UpsertAttendance(_ context.Context, a enrollment.AttendanceRecord) (enrollment.AttendanceRecord, error) {
	repo.attendance.mutex.Lock()
	defer repo.attendance.mutex.Unlock()

	for id, o := range repo.attendance.rows {
		if o.RegistrationID == a.RegistrationID && o.Date.Equal(a.Date) {
			o.Status = a.Status
			repo.attendance.rows[id] = o
			return o, nil
		}
	}
	repo.attendance.rows[a.ID] = a
	return a, nil
}

func matchAttendance(a enrollment.AttendanceRecord, filter enrollment.AttendanceFilter) bool {
	if len(filter.RegistrationIDs) > 0 && !containsStr(filter.RegistrationIDs, a.RegistrationID) {
		return false
	}
	if !filter.From.IsZero() && a.Date.Before(core.TruncateDate(filter.From)) {
		return false
	}
	if !filter.To.IsZero() && a.Date.After(core.TruncateDate(filter.To)) {
		return false
	}
	return true
}

func (repo *enrollmentRepository) QueryAttendance(_ context.Context, filter enrollment.AttendanceFilter) ([]enrollment.AttendanceRecord, error) {
	repo.attendance.mutex.RLock()
	defer repo.attendance.mutex.RUnlock()

	records := make([]enrollment.AttendanceRecord, 0)
	for _, a := range repo.attendance.all() {
		if matchAttendance(a, filter) {
			records = append(records, a)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func (repo *enrollmentRepository) DeleteAttendance(_ context.Context, filter enrollment.AttendanceFilter) (int, error) {
	repo.attendance.mutex.Lock()
	defer repo.attendance.mutex.Unlock()

	var cnt int
	for id, a := range repo.attendance.rows {
		if matchAttendance(a, filter) {
			delete(repo.attendance.rows, id)
			cnt++
		}
	}
	return cnt, nil
}
