package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"courtadmin/internal/domain/booking"
)

// Format constants for export output.
const (
	FormatCSV   = "csv"
	FormatXLSX  = "xlsx"
	FormatPrint = "print"
)

// SheetName is the worksheet that holds bookings in XLSX exports.
const SheetName = "Bookings"

// ErrInvalidFormat is returned for unknown export formats.
var ErrInvalidFormat = errors.New("invalid format: must be 'csv', 'xlsx' or 'print'")

// Header is the column row shared by CSV and XLSX exports.
var Header = []string{
	"ID", "Customer", "Phone", "Email", "Court", "Date", "Time",
	"Duration (min)", "Price", "Revenue", "Status", "Payment", "Notes",
}

// Report is a one-way rendering of the currently filtered booking list.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Currency    string
	Location    *time.Location
	Filters     string // human summary of the active filters
	Bookings    []booking.Booking
}

// ValidateFormat checks that format is a supported export format.
func ValidateFormat(format string) error {
	switch format {
	case FormatCSV, FormatXLSX, FormatPrint:
		return nil
	}
	return ErrInvalidFormat
}

// TotalRevenue sums revenue over the report's bookings.
func (r Report) TotalRevenue() float64 {
	return booking.TotalRevenue(r.Bookings)
}

// Filename returns a download name such as "bookings-2026-10-19.csv".
// PRE: format is valid
// POST: Returns a filesystem-safe name stamped with GeneratedAt
func (r Report) Filename(format string) string {
	return fmt.Sprintf("bookings-%s.%s", r.GeneratedAt.In(r.loc()).Format(booking.DayLayout), format)
}

// Rows renders every booking as string cells in Header order.
func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Bookings))
	for _, b := range r.Bookings {
		rows = append(rows, []string{
			b.ID,
			b.CustomerName,
			b.PhoneNumber,
			b.Email,
			b.CourtLabel(),
			r.day(b),
			r.clock(b),
			strconv.Itoa(b.DurationMin),
			formatAmount(b.Price),
			formatAmount(b.Revenue()),
			b.DisplayStatus(),
			b.PaymentMethod,
			b.Notes,
		})
	}
	return rows
}

// WriteCSV writes the header and one row per booking.
// PRE: w is writable
// POST: Well-formed RFC 4180 output is written, or an error returned
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(r.Rows()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a bold header and a revenue total row.
// PRE: w is writable
// POST: A valid XLSX document is written, or an error returned
func (r Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, b := range r.Bookings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			b.ID, b.CustomerName, b.PhoneNumber, b.Email, b.CourtLabel(),
			r.day(b), r.clock(b), b.DurationMin, b.Price, b.Revenue(),
			b.DisplayStatus(), b.PaymentMethod, b.Notes,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	totalRow := len(r.Bookings) + 2
	labelCell, _ := excelize.CoordinatesToCellName(9, totalRow)
	valueCell, _ := excelize.CoordinatesToCellName(10, totalRow)
	if err := f.SetCellValue(SheetName, labelCell, "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, valueCell, r.TotalRevenue()); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, totalRow, totalRow, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (r Report) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r Report) day(b booking.Booking) string {
	return b.Day(r.loc())
}

func (r Report) clock(b booking.Booking) string {
	if b.Start.IsZero() {
		return ""
	}
	return b.Start.In(r.loc()).Format("15:04")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatMoney renders an amount with thousands separators and the currency code,
// e.g. "1,250.00 EGP".
func FormatMoney(amount float64, currency string) string {
	neg := amount < 0
	amount = math.Abs(amount)
	whole := int64(amount)
	cents := int64(math.Round((amount - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	fmt.Fprintf(&b, ".%02d", cents)
	if currency != "" {
		b.WriteString(" " + currency)
	}
	return b.String()
}
