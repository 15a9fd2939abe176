package enrollment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
)

// Payment statuses
const (
	PaymentPending = "pending"
	PaymentPartial = "partial"
	PaymentPaid    = "paid"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
)

// PaymentStatusFor derives the payment status of a registration from its amounts:
// pending when nothing is paid, paid once the fees are covered, partial otherwise.
func PaymentStatusFor(paid, total decimal.Decimal) string {
	switch {
	case !paid.IsPositive():
		return PaymentPending
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	ParentPhone     string    `json:"parent_phone"`
	AcademicStageID string    `json:"academic_stage_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Registration is the enrollment of a student in a booking for the month of RegistrationDate.
type Registration struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"student_id"`
	BookingID        string          `json:"booking_id"`
	RegistrationDate time.Time       `json:"registration_date"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	PaymentStatus    string          `json:"payment_status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SetTotalFees changes the fees, keeping the payment status in sync.
func (r *Registration) SetTotalFees(fee decimal.Decimal) {
	r.TotalFees = fee
	r.PaymentStatus = PaymentStatusFor(r.PaidAmount, r.TotalFees)
}

// AddPayment adds amount to the paid amount, keeping the payment status in sync.
func (r *Registration) AddPayment(amount decimal.Decimal) {
	r.PaidAmount = r.PaidAmount.Add(amount)
	r.PaymentStatus = PaymentStatusFor(r.PaidAmount, r.TotalFees)
}

// Outstanding is what remains to be paid, never negative.
func (r Registration) Outstanding() decimal.Decimal {
	if r.PaidAmount.GreaterThanOrEqual(r.TotalFees) {
		return decimal.Zero
	}
	return r.TotalFees.Sub(r.PaidAmount)
}

type Payment struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAt         time.Time       `json:"paid_at"`
	RecordedBy     string          `json:"recorded_by"`
	Note           string          `json:"note"`
}

type AttendanceRecord struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	Date           time.Time `json:"date"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewStudent struct {
	Name            string `json:"name" validate:"required,max=120"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	ParentPhone     string `json:"parent_phone" validate:"omitempty,max=30"`
	AcademicStageID string `json:"academic_stage_id"`
}

func (ns *NewStudent) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Phone = core.CleanString(ns.Phone)
	ns.ParentPhone = core.CleanString(ns.ParentPhone)
}

type UpdateStudent struct {
	Name            string `json:"name" validate:"omitempty,max=120"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	ParentPhone     string `json:"parent_phone" validate:"omitempty,max=30"`
	AcademicStageID string `json:"academic_stage_id"`
}

func (us *UpdateStudent) Clean() {
	us.Name = core.CleanString(us.Name)
	us.Phone = core.CleanString(us.Phone)
	us.ParentPhone = core.CleanString(us.ParentPhone)
}

type StudentFilter struct {
	Search          string `query:"search"`
	AcademicStageID string `query:"academic_stage_id"`
}

// NewRegistration registers a student in a booking. A zero RegistrationDate means today,
// a nil TotalFees means the booking's class fees.
type NewRegistration struct {
	StudentID        string           `json:"student_id" validate:"required"`
	BookingID        string           `json:"booking_id" validate:"required"`
	RegistrationDate core.Date        `json:"registration_date"`
	TotalFees        *decimal.Decimal `json:"total_fees"`
}

// RegistrationFilter selects registrations; From/To bound registration_date (inclusive).
type RegistrationFilter struct {
	BookingIDs []string  `query:"booking_id"`
	StudentID  string    `query:"student_id"`
	From       core.Date `query:"from"`
	To         core.Date `query:"to"`
	Status     string    `query:"payment_status"`
}

type NewPayment struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt core.Date       `json:"paid_at"`
	Note   string          `json:"note" validate:"omitempty,max=255"`
}

type MarkAttendance struct {
	RegistrationID string    `json:"registration_id" validate:"required"`
	Date           core.Date `json:"date"`
	Status         string    `json:"status" validate:"required,oneof=present absent excused"`
}

// AttendanceFilter selects attendance records; From/To bound the date (inclusive).
type AttendanceFilter struct {
	RegistrationIDs []string
	From            time.Time
	To              time.Time
}
