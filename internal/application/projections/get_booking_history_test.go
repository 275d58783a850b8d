package projections

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtadmin/internal/application/listutil"
	"courtadmin/internal/domain/booking"
)

var cairo = mustLoad("Africa/Cairo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// fixedNow is 2026-10-19 12:00 Cairo time.
var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, cairo)

func at(day, clock string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+clock, cairo)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleBookings() []booking.Booking {
	return []booking.Booking{
		{ID: "b1", CustomerName: "Omar Hassan", PhoneNumber: "01001234567", CourtType: booking.CourtPadel, CourtNumber: "1", Start: at("2026-10-19", "18:00"), DurationMin: 60, Price: 400, Status: booking.StatusConfirmed, PaymentMethod: "cash"},
		{ID: "b2", CustomerName: "Laila Said", Email: "laila@example.com", CourtType: booking.CourtTennis, CourtNumber: "2", Start: at("2026-10-21", "09:00"), DurationMin: 90, Price: 150, Status: booking.StatusPaid, PaymentMethod: "card"},
		{ID: "b3", CustomerName: "Karim Adel", CourtType: booking.CourtPadel, CourtNumber: "2", Start: at("2026-10-12", "20:00"), DurationMin: 60, Price: 400, Status: booking.StatusCancelled, Notes: "rain"},
		{ID: "b4", CustomerName: "nour fathy", CourtType: booking.CourtTennis, CourtNumber: "1", Start: at("2026-10-01", "07:30"), DurationMin: 120, Price: 150, Status: booking.StatusPending},
		{ID: "b5", CustomerName: "Undated", CourtType: booking.CourtPadel, Price: 400, Status: booking.StatusPending},
	}
}

func historyDeps() GetBookingHistoryDeps {
	return GetBookingHistoryDeps{Bookings: sampleBookings(), Now: fixedNow, Location: cairo}
}

func ids(bs []booking.Booking) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

// TestQueryBookingHistory_Categories verifies today/upcoming/past placement relative to the local day.
func TestQueryBookingHistory_Categories(t *testing.T) {
	cases := map[string][]string{
		CategoryToday:    {"b1"},
		CategoryUpcoming: {"b2"},
		CategoryPast:     {"b3", "b4"},
		CategoryAll:      {"b2", "b1", "b3", "b4", "b5"},
	}
	for cat, want := range cases {
		t.Run(cat, func(t *testing.T) {
			q := ParseBookingHistoryQuery(url.Values{"category": {cat}})
			res := QueryBookingHistory(q, historyDeps())
			assert.Equal(t, want, ids(res.Filtered))
		})
	}
}

// TestQueryBookingHistory_CategoryCounts verifies tab counts ignore the selected category.
func TestQueryBookingHistory_CategoryCounts(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"category": {CategoryToday}})
	res := QueryBookingHistory(q, historyDeps())

	assert.Equal(t, 5, res.CategoryCounts[CategoryAll])
	assert.Equal(t, 1, res.CategoryCounts[CategoryToday])
	assert.Equal(t, 1, res.CategoryCounts[CategoryUpcoming])
	assert.Equal(t, 2, res.CategoryCounts[CategoryPast])
}

// TestQueryBookingHistory_Search verifies case-insensitive matching across text fields.
func TestQueryBookingHistory_Search(t *testing.T) {
	cases := []struct {
		search string
		want   []string
	}{
		{"OMAR", []string{"b1"}},
		{"laila@example", []string{"b2"}},
		{"0100123", []string{"b1"}},
		{"rain", []string{"b3"}},
		{"tennis 1", []string{"b4"}},
		{"card", []string{"b2"}},
		{"b5", []string{"b5"}},
		{"nobody", nil},
	}
	for _, tc := range cases {
		t.Run(tc.search, func(t *testing.T) {
			q := ParseBookingHistoryQuery(url.Values{"q": {"  " + tc.search + " "}})
			res := QueryBookingHistory(q, historyDeps())
			if tc.want == nil {
				assert.Empty(t, res.Filtered)
				return
			}
			assert.Equal(t, tc.want, ids(res.Filtered))
		})
	}
}

// TestQueryBookingHistory_DateRangeInclusive verifies both range ends are included and undated rows excluded.
func TestQueryBookingHistory_DateRangeInclusive(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"from": {"2026-10-12"}, "to": {"2026-10-19"}, "sort": {"date"}, "dir": {"asc"}})
	res := QueryBookingHistory(q, historyDeps())
	assert.Equal(t, []string{"b3", "b1"}, ids(res.Filtered))
}

// TestParseBookingHistoryQuery_DropsInvalid verifies malformed dates and categories are ignored.
func TestParseBookingHistoryQuery_DropsInvalid(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"from": {"19/10/2026"}, "category": {"someday"}, "court": {"Padel"}})
	assert.Empty(t, q.From)
	assert.Equal(t, CategoryAll, q.Category)
	assert.Equal(t, "padel", q.Court)
	assert.NotContains(t, q.Values(), "from")
	assert.NotContains(t, q.Values(), "category")
}

// TestQueryBookingHistory_CourtAndStatusFilters verifies exact-match filters combine.
func TestQueryBookingHistory_CourtAndStatusFilters(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"court": {"padel"}, "status": {"pending"}})
	res := QueryBookingHistory(q, historyDeps())
	assert.Equal(t, []string{"b5"}, ids(res.Filtered))
}

// TestQueryBookingHistory_SortColumns verifies every sortable column and its tie-break.
func TestQueryBookingHistory_SortColumns(t *testing.T) {
	cases := []struct {
		sort, dir string
		want      []string
	}{
		{SortDate, listutil.Asc, []string{"b5", "b4", "b3", "b1", "b2"}},
		{SortCustomer, listutil.Asc, []string{"b3", "b2", "b4", "b1", "b5"}},
		{SortPrice, listutil.Desc, []string{"b1", "b3", "b5", "b2", "b4"}},
		{SortDuration, listutil.Asc, []string{"b5", "b3", "b1", "b2", "b4"}},
		{SortStatus, listutil.Asc, []string{"b3", "b1", "b2", "b5", "b4"}},
		{SortCourt, listutil.Asc, []string{"b5", "b1", "b3", "b4", "b2"}},
	}
	for _, tc := range cases {
		t.Run(tc.sort+"_"+tc.dir, func(t *testing.T) {
			q := ParseBookingHistoryQuery(url.Values{"sort": {tc.sort}, "dir": {tc.dir}})
			res := QueryBookingHistory(q, historyDeps())
			assert.Equal(t, tc.want, ids(res.Filtered))
		})
	}
}

// TestQueryBookingHistory_Pagination verifies the page slice and that Filtered stays whole for export.
func TestQueryBookingHistory_Pagination(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"per_page": {"10"}})
	var many []booking.Booking
	for i := 0; i < 23; i++ {
		many = append(many, booking.Booking{
			ID:          string(rune('a'+i%26)) + "-id",
			CourtType:   booking.CourtPadel,
			Start:       fixedNow.Add(-time.Duration(i) * time.Hour),
			DurationMin: 60,
			Price:       400,
			Status:      booking.StatusPaid,
		})
	}
	q.Page = 3
	res := QueryBookingHistory(q, GetBookingHistoryDeps{Bookings: many, Now: fixedNow, Location: cairo})

	require.Equal(t, 3, res.Page.TotalPages)
	assert.Len(t, res.Rows, 3)
	assert.Len(t, res.Filtered, 23)
	assert.Equal(t, float64(23*400), res.Revenue)
}

// TestQueryBookingHistory_RevenueExcludesCancelled verifies filtered revenue skips cancelled bookings.
func TestQueryBookingHistory_RevenueExcludesCancelled(t *testing.T) {
	q := ParseBookingHistoryQuery(url.Values{"category": {CategoryPast}})
	res := QueryBookingHistory(q, historyDeps())
	assert.Equal(t, float64(150), res.Revenue)
}

// TestQueryBookingHistory_DoesNotMutateInput verifies sorting works on a copy.
func TestQueryBookingHistory_DoesNotMutateInput(t *testing.T) {
	deps := historyDeps()
	before := ids(deps.Bookings)
	QueryBookingHistory(ParseBookingHistoryQuery(url.Values{"sort": {"price"}}), deps)
	assert.Equal(t, before, ids(deps.Bookings))
}
