package booking

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw is a booking object as returned by the remote API before normalization.
// Field names vary between endpoints, so lookups go through alias lists.
type Raw map[string]any

var (
	idKeys       = []string{"id", "_id", "bookingId", "booking_id"}
	customerKeys = []string{"customerName", "playerName", "customer_name", "name", "customer"}
	phoneKeys    = []string{"phoneNumber", "phone", "phone_number", "mobile"}
	emailKeys    = []string{"email", "customerEmail"}
	courtKeys    = []string{"courtType", "court_type", "sport", "type"}
	courtNoKeys  = []string{"courtNumber", "court_number", "court"}
	dateKeys     = []string{"date", "bookingDate", "booking_date", "day"}
	timeKeys     = []string{"time", "startTime", "start_time", "timeSlot", "slot"}
	instantKeys  = []string{"dateTime", "startsAt", "start", "startAt"}
	durationKeys = []string{"duration", "durationMinutes", "duration_minutes"}
	priceKeys    = []string{"price", "revenue", "amount", "totalPrice", "total_price"}
	statusKeys   = []string{"status", "bookingStatus"}
	paymentKeys  = []string{"paymentMethod", "payment_method", "payment"}
	notesKeys    = []string{"notes", "note", "comments"}
)

var statusAliases = map[string]string{
	"canceled":  StatusCancelled,
	"cancelled": StatusCancelled,
	"confirmed": StatusConfirmed,
	"paid":      StatusPaid,
	"pending":   StatusPending,
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3PM", "3 PM"}

// Normalizer converts raw API bookings into canonical records.
type Normalizer struct {
	Prices   map[string]float64
	Location *time.Location
}

// NewNormalizer creates a Normalizer with the given price table and time zone.
// A nil price table falls back to DefaultPrices; a nil location to UTC.
func NewNormalizer(prices map[string]float64, loc *time.Location) Normalizer {
	if prices == nil {
		prices = DefaultPrices
	}
	if loc == nil {
		loc = time.UTC
	}
	return Normalizer{Prices: prices, Location: loc}
}

// Normalize produces a canonical Booking from a raw API object.
// PRE: raw is a decoded JSON object
// POST: Status is canonical; Price is defaulted from the court-type table when missing
// INVARIANT: raw is not mutated
func (n Normalizer) Normalize(raw Raw) Booking {
	b := Booking{
		ID:            raw.str(idKeys...),
		CustomerName:  raw.str(customerKeys...),
		PhoneNumber:   raw.str(phoneKeys...),
		Email:         raw.str(emailKeys...),
		CourtType:     strings.ToLower(raw.str(courtKeys...)),
		CourtNumber:   raw.str(courtNoKeys...),
		PaymentMethod: raw.str(paymentKeys...),
		Notes:         raw.str(notesKeys...),
		Status:        canonicalStatus(raw.str(statusKeys...)),
		Start:         n.start(raw),
		DurationMin:   int(DefaultDuration / time.Minute),
	}
	if d, ok := raw.num(durationKeys...); ok && d > 0 {
		b.DurationMin = int(math.Round(d))
	}
	if p, ok := raw.num(priceKeys...); ok && p > 0 {
		b.Price = p
	} else {
		b.Price = n.Prices[b.CourtType]
		b.PriceDefaulted = true
	}
	return b
}

// NormalizeAll normalizes every raw booking, preserving order.
func (n Normalizer) NormalizeAll(raws []Raw) []Booking {
	out := make([]Booking, 0, len(raws))
	for _, r := range raws {
		out = append(out, n.Normalize(r))
	}
	return out
}

func (n Normalizer) start(raw Raw) time.Time {
	if s := raw.str(instantKeys...); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.In(n.Location)
		}
	}
	date := raw.str(dateKeys...)
	if date == "" {
		return time.Time{}
	}
	// Dates sometimes arrive as full timestamps.
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.In(n.Location)
	}
	if len(date) > len(DayLayout) {
		date = date[:len(DayLayout)]
	}
	day, err := time.ParseInLocation(DayLayout, date, n.Location)
	if err != nil {
		return time.Time{}
	}
	clock := raw.str(timeKeys...)
	// "18:00 - 19:30" ranges carry the start first.
	if i := strings.Index(clock, "-"); i > 0 {
		clock = clock[:i]
	}
	clock = strings.TrimSpace(clock)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, n.Location)
		}
	}
	return day
}

func canonicalStatus(s string) string {
	if c, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return StatusPending
}

// str returns the first non-empty value among keys, formatted as a string.
func (r Raw) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case json.Number:
			s = x.String()
		case bool:
			continue
		default:
			s = fmt.Sprint(x)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// num returns the first numeric value among keys. Numeric strings such as
// "400", "400.50 EGP" or "1,200" are accepted.
func (r Raw) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case float64:
			return x, true
		case int:
			return float64(x), true
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, ok := parseAmount(x); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func parseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
