package report

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/settlement"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	bold  int
}

func newSheetWriter(sheet string) (*sheetWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	return &sheetWriter{f: f, sheet: sheet, bold: bold}, nil
}

func (sw *sheetWriter) addSheet(sheet string) error {
	if _, err := sw.f.NewSheet(sheet); err != nil {
		return err
	}
	sw.sheet = sheet
	sw.row = 0
	return nil
}

func (sw *sheetWriter) writeRow(bold bool, values ...interface{}) error {
	sw.row++
	cell, err := excelize.CoordinatesToCellName(1, sw.row)
	if err != nil {
		return err
	}
	if err = sw.f.SetSheetRow(sw.sheet, cell, &values); err != nil {
		return err
	}
	if bold {
		last, err := excelize.CoordinatesToCellName(len(values), sw.row)
		if err != nil {
			return err
		}
		return sw.f.SetCellStyle(sw.sheet, cell, last, sw.bold)
	}
	return nil
}

// WriteMonthlyBookingsXLSX writes rep as a single sheet workbook.
func WriteMonthlyBookingsXLSX(w io.Writer, rep MonthlyBookings) error {
	sw, err := newSheetWriter(fmt.Sprintf("%d-%02d", rep.Year, rep.Month))
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	defer func() { _ = sw.f.Close() }()

	if err = sw.writeRow(true, "Booking", "Teacher", "Hall", "Start time", "Registrations",
		"Total fees", "Paid", "Outstanding", "Pending", "Partial", "Paid (count)"); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, l := range rep.Lines {
		if err = sw.writeRow(false, l.BookingID, l.TeacherName, l.HallName, l.StartTime, l.Registrations,
			l.TotalFees.InexactFloat64(), l.Paid.InexactFloat64(), l.Outstanding.InexactFloat64(),
			l.PendingCount, l.PartialCount, l.PaidCount); err != nil {
			return errors.Wrap(err, "writing booking line")
		}
	}
	t := rep.Totals
	if err = sw.writeRow(true, "Total", "", "", "", t.Registrations,
		t.TotalFees.InexactFloat64(), t.Paid.InexactFloat64(), t.Outstanding.InexactFloat64(),
		t.PendingCount, t.PartialCount, t.PaidCount); err != nil {
		return errors.Wrap(err, "writing totals")
	}
	_ = sw.f.SetColWidth(sw.sheet, "A", "C", 24)

	return errors.Wrap(sw.f.Write(w), "writing workbook")
}

// WriteSettlementsXLSX writes sum as a workbook with a daily and a per-category sheet.
func WriteSettlementsXLSX(w io.Writer, sum settlement.Summary) error {
	sw, err := newSheetWriter("Daily")
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	defer func() { _ = sw.f.Close() }()

	if err = sw.writeRow(true, "Date", "Income", "Expense", "Net"); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, d := range sum.ByDay {
		if err = sw.writeRow(false, d.Date.Format(core.DateLayout),
			d.Income.InexactFloat64(), d.Expense.InexactFloat64(), d.Net.InexactFloat64()); err != nil {
			return errors.Wrap(err, "writing day")
		}
	}
	if err = sw.writeRow(true, "Total",
		sum.Income.InexactFloat64(), sum.Expense.InexactFloat64(), sum.Net.InexactFloat64()); err != nil {
		return errors.Wrap(err, "writing totals")
	}

	if err = sw.addSheet("Categories"); err != nil {
		return errors.Wrap(err, "adding sheet")
	}
	if err = sw.writeRow(true, "Type", "Category", "Total"); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, c := range sum.ByCategory {
		if err = sw.writeRow(false, c.Type, c.Category, c.Total.InexactFloat64()); err != nil {
			return errors.Wrap(err, "writing category")
		}
	}

	return errors.Wrap(sw.f.Write(w), "writing workbook")
}
