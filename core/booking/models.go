package booking

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
)

// Booking statuses
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

var AllStatuses = []string{StatusActive, StatusCancelled, StatusCompleted}

type Hall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AcademicStage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Teacher struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Code            string          `json:"code"`
	DefaultClassFee decimal.Decimal `json:"default_class_fee"`
	Phone           string          `json:"phone"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Schedule is the recurring slot of a booking. A null EndDate means open-ended.
type Schedule struct {
	StartTime  string    `json:"start_time"`   // HH:MM
	DaysOfWeek []int     `json:"days_of_week"` // 0=Sunday .. 6=Saturday
	StartDate  time.Time `json:"start_date"`
	EndDate    null.Time `json:"end_date"`
}

// Overlaps reports whether the schedule's date window intersects [from, to].
func (s Schedule) Overlaps(from, to time.Time) bool {
	if s.StartDate.After(core.TruncateDate(to)) {
		return false
	}
	return !s.EndDate.Valid || !core.TruncateDate(s.EndDate.Time).Before(core.TruncateDate(from))
}

// StartsAfter reports whether the schedule starts strictly after date d.
func (s Schedule) StartsAfter(d time.Time) bool {
	return s.StartDate.After(core.TruncateDate(d))
}

// Clashes reports whether both schedules occupy the same slot on at least one common day.
func (s Schedule) Clashes(o Schedule) bool {
	if s.StartTime != o.StartTime {
		return false
	}
	shared := false
	for _, d := range s.DaysOfWeek {
		for _, od := range o.DaysOfWeek {
			if d == od {
				shared = true
			}
		}
	}
	if !shared {
		return false
	}

	end := core.NewDate(9999, time.December, 31)
	if o.EndDate.Valid {
		end = o.EndDate.Time
	}
	return s.Overlaps(o.StartDate, end)
}

type Booking struct {
	ID              string `json:"id"`
	HallID          string `json:"hall_id"`
	TeacherID       string `json:"teacher_id"`
	AcademicStageID string `json:"academic_stage_id"`
	Schedule
	Status      string          `json:"status"`
	ClassFees   decimal.Decimal `json:"class_fees"`
	IsCustomFee bool            `json:"is_custom_fee"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ActiveIn reports whether the booking is active and its window intersects [from, to].
func (b Booking) ActiveIn(from, to time.Time) bool {
	return b.Status == StatusActive && b.Overlaps(from, to)
}

type NewHall struct {
	Name     string `json:"name" validate:"required,max=100"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

type UpdateHall struct {
	Name     string `json:"name" validate:"omitempty,max=100"`
	Capacity *int   `json:"capacity" validate:"omitempty,gte=0"`
}

type NewStage struct {
	Name string `json:"name" validate:"required,max=100"`
}

type NewTeacher struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Code            string          `json:"code" validate:"required,max=20,alphanum_"`
	DefaultClassFee decimal.Decimal `json:"default_class_fee"`
	Phone           string          `json:"phone" validate:"omitempty,max=30"`
}

func (nt *NewTeacher) Clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.Code = core.CleanString(nt.Code)
	nt.Phone = core.CleanString(nt.Phone)
}

type UpdateTeacher struct {
	Name  string `json:"name" validate:"omitempty,max=120"`
	Code  string `json:"code" validate:"omitempty,max=20,alphanum_"`
	Phone string `json:"phone" validate:"omitempty,max=30"`
}

func (ut *UpdateTeacher) Clean() {
	ut.Name = core.CleanString(ut.Name)
	ut.Code = core.CleanString(ut.Code)
	ut.Phone = core.CleanString(ut.Phone)
}

// NewBooking contains information needed to create a new Booking.
// A nil ClassFees defaults to the teacher's default fee.
type NewBooking struct {
	HallID          string           `json:"hall_id" validate:"required"`
	TeacherID       string           `json:"teacher_id" validate:"required"`
	AcademicStageID string           `json:"academic_stage_id" validate:"required"`
	StartTime       string           `json:"start_time" validate:"required,hhmm"`
	DaysOfWeek      []int            `json:"days_of_week" validate:"required,min=1,max=7,dive,min=0,max=6"`
	StartDate       core.Date        `json:"start_date"`
	EndDate         core.Date        `json:"end_date"`
	ClassFees       *decimal.Decimal `json:"class_fees"`
	IsCustomFee     bool             `json:"is_custom_fee"`
}

// UpdateBooking defines what information may be provided to modify an existing Booking.
// The status is changed through Service.SetStatus.
type UpdateBooking struct {
	HallID          string           `json:"hall_id"`
	AcademicStageID string           `json:"academic_stage_id"`
	StartTime       string           `json:"start_time" validate:"omitempty,hhmm"`
	DaysOfWeek      []int            `json:"days_of_week" validate:"omitempty,min=1,max=7,dive,min=0,max=6"`
	StartDate       core.Date        `json:"start_date"`
	EndDate         core.Date        `json:"end_date"`
	ClearEndDate    bool             `json:"clear_end_date"`
	ClassFees       *decimal.Decimal `json:"class_fees"`
	IsCustomFee     *bool            `json:"is_custom_fee"`
}

type QueryFilter struct {
	IDs       []string  `query:"id"`
	TeacherID string    `query:"teacher_id"`
	HallID    string    `query:"hall_id"`
	Status    string    `query:"status"`
	ActiveOn  core.Date `query:"active_on"`
}
