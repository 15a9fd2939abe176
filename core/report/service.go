// Package report aggregates bookings and settlements for reporting and XLSX export.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/settlement"
)

type (
	BookingLine struct {
		BookingID     string          `json:"booking_id"`
		TeacherName   string          `json:"teacher_name"`
		HallName      string          `json:"hall_name"`
		StartTime     string          `json:"start_time"`
		Registrations int             `json:"registrations"`
		TotalFees     decimal.Decimal `json:"total_fees"`
		Paid          decimal.Decimal `json:"paid"`
		Outstanding   decimal.Decimal `json:"outstanding"`
		PendingCount  int             `json:"pending_count"`
		PartialCount  int             `json:"partial_count"`
		PaidCount     int             `json:"paid_count"`
	}

	MonthlyBookings struct {
		Year   int           `json:"year"`
		Month  time.Month    `json:"month"`
		Lines  []BookingLine `json:"lines"`
		Totals BookingLine   `json:"totals"`
	}

	SettlementSummarizer interface {
		Summary(ctx context.Context, from, to time.Time) (settlement.Summary, error)
	}

	Service struct {
		bookings    booking.Repository
		regs        enrollment.Repository
		settlements SettlementSummarizer
	}
)

func NewService(bookings booking.Repository, regs enrollment.Repository, settlements SettlementSummarizer) *Service {
	return &Service{
		bookings:    bookings,
		regs:        regs,
		settlements: settlements,
	}
}

func (l *BookingLine) add(r enrollment.Registration) {
	l.Registrations++
	l.TotalFees = l.TotalFees.Add(r.TotalFees)
	l.Paid = l.Paid.Add(r.PaidAmount)
	l.Outstanding = l.Outstanding.Add(r.Outstanding())
	switch r.PaymentStatus {
	case enrollment.PaymentPaid:
		l.PaidCount++
	case enrollment.PaymentPartial:
		l.PartialCount++
	default:
		l.PendingCount++
	}
}

// MonthlyBookings sums, per booking, the registrations dated in the given month.
// Bookings active in the month without registrations are listed with zero totals.
func (svc *Service) MonthlyBookings(ctx context.Context, year int, month time.Month) (MonthlyBookings, error) {
	first, last := core.MonthRange(year, month)
	rep := MonthlyBookings{Year: year, Month: month, Lines: []BookingLine{}}

	regs, err := svc.regs.QueryRegistrations(ctx, enrollment.RegistrationFilter{From: core.DateOf(first), To: core.DateOf(last)})
	if err != nil {
		return rep, errors.Wrap(err, "querying registrations")
	}
	byBooking := make(map[string][]enrollment.Registration)
	for _, r := range regs {
		byBooking[r.BookingID] = append(byBooking[r.BookingID], r)
	}

	bookings, err := svc.bookings.QueryBookings(ctx, booking.QueryFilter{})
	if err != nil {
		return rep, errors.Wrap(err, "querying bookings")
	}
	teachers, err := svc.teacherNames(ctx)
	if err != nil {
		return rep, err
	}
	halls, err := svc.hallNames(ctx)
	if err != nil {
		return rep, err
	}

	for _, b := range bookings {
		bRegs, ok := byBooking[b.ID]
		if !ok && !b.ActiveIn(first, last) {
			continue
		}
		line := BookingLine{
			BookingID:   b.ID,
			TeacherName: teachers[b.TeacherID],
			HallName:    halls[b.HallID],
			StartTime:   b.StartTime,
		}
		for _, r := range bRegs {
			line.add(r)
			rep.Totals.add(r)
		}
		rep.Lines = append(rep.Lines, line)
	}
	sort.SliceStable(rep.Lines, func(i, j int) bool {
		if rep.Lines[i].TeacherName != rep.Lines[j].TeacherName {
			return rep.Lines[i].TeacherName < rep.Lines[j].TeacherName
		}
		return rep.Lines[i].StartTime < rep.Lines[j].StartTime
	})
	return rep, nil
}

func (svc *Service) teacherNames(ctx context.Context) (map[string]string, error) {
	teachers, err := svc.bookings.QueryTeachers(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	names := make(map[string]string, len(teachers))
	for _, t := range teachers {
		names[t.ID] = t.Name
	}
	return names, nil
}

func (svc *Service) hallNames(ctx context.Context) (map[string]string, error) {
	halls, err := svc.bookings.QueryHalls(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying halls")
	}
	names := make(map[string]string, len(halls))
	for _, h := range halls {
		names[h.ID] = h.Name
	}
	return names, nil
}

// Settlements totals the settlements between from and to.
func (svc *Service) Settlements(ctx context.Context, from, to time.Time) (settlement.Summary, error) {
	if to.Before(from) {
		return settlement.Summary{}, core.NewFieldValidationError("to", "end date cannot be before start date")
	}
	return svc.settlements.Summary(ctx, from, to)
}
