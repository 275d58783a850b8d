package booking

import (
	"strings"
	"time"
)

// Status constants for the canonical booking lifecycle.
const (
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// Court type constants.
const (
	CourtPadel  = "padel"
	CourtTennis = "tennis"
)

// ValidStatuses contains all canonical status values.
var ValidStatuses = []string{StatusConfirmed, StatusPaid, StatusPending, StatusCancelled}

// DefaultPrices is the court-type price table applied when the API omits a price.
var DefaultPrices = map[string]float64{
	CourtPadel:  400,
	CourtTennis: 150,
}

// DefaultDuration applies when the API does not report a duration.
const DefaultDuration = 60 * time.Minute

// DayLayout is the date format used for category and range comparisons.
const DayLayout = "2006-01-02"

// Booking is the canonical court reservation record produced at the API boundary.
type Booking struct {
	ID             string    `json:"id"`
	CustomerName   string    `json:"customer_name"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	Email          string    `json:"email,omitempty"`
	CourtType      string    `json:"court_type"`
	CourtNumber    string    `json:"court_number,omitempty"`
	Start          time.Time `json:"start"`
	DurationMin    int       `json:"duration_min"`
	Price          float64   `json:"price"`
	PriceDefaulted bool      `json:"price_defaulted,omitempty"`
	Status         string    `json:"status"`
	PaymentMethod  string    `json:"payment_method,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// IsCancelled returns true if the booking was cancelled.
// INVARIANT: Booking fields are not mutated
func (b Booking) IsCancelled() bool {
	return b.Status == StatusCancelled
}

// Revenue returns the amount this booking contributes to revenue.
// PRE: Status is canonical
// POST: Returns 0 for cancelled bookings regardless of Price, Price otherwise
func (b Booking) Revenue() float64 {
	if b.IsCancelled() {
		return 0
	}
	return b.Price
}

// DisplayStatus returns the human-readable status label.
func (b Booking) DisplayStatus() string {
	return DisplayStatus(b.Status)
}

// DisplayStatus maps a canonical status to its label ("cancelled" -> "Cancelled").
func DisplayStatus(status string) string {
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

// End returns the end of the reservation.
func (b Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMin) * time.Minute)
}

// Day returns the booking date in loc formatted as YYYY-MM-DD.
// Bookings without a start time return "".
func (b Booking) Day(loc *time.Location) string {
	if b.Start.IsZero() {
		return ""
	}
	return b.Start.In(loc).Format(DayLayout)
}

// CourtLabel returns "Padel 2" style labels for display.
func (b Booking) CourtLabel() string {
	label := DisplayStatus(b.CourtType)
	if b.CourtNumber != "" {
		label += " " + b.CourtNumber
	}
	return strings.TrimSpace(label)
}

// TotalRevenue sums revenue over bookings; cancelled bookings contribute 0.
func TotalRevenue(bookings []Booking) float64 {
	var total float64
	for _, b := range bookings {
		total += b.Revenue()
	}
	return total
}

// IsValidStatus reports whether s is a canonical status.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}
