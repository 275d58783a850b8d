package projections

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"courtadmin/internal/application/listutil"
	"courtadmin/internal/domain/booking"
)

// Categories partition bookings by day relative to today.
const (
	CategoryAll      = "all"
	CategoryToday    = "today"
	CategoryUpcoming = "upcoming"
	CategoryPast     = "past"
)

// Categories lists every category in tab order.
var Categories = []string{CategoryAll, CategoryToday, CategoryUpcoming, CategoryPast}

// Sortable history columns.
const (
	SortDate     = "date"
	SortCustomer = "customer"
	SortCourt    = "court"
	SortPrice    = "price"
	SortStatus   = "status"
	SortDuration = "duration"
)

// HistorySortColumns lists the columns the history table can sort by.
var HistorySortColumns = []string{SortDate, SortCustomer, SortCourt, SortPrice, SortStatus, SortDuration}

// HistoryFilterKeys are the exact-match query parameters the history view understands.
var HistoryFilterKeys = []string{"category", "from", "to", "court", "status"}

// DefaultHistorySort shows the newest bookings first.
var DefaultHistorySort = listutil.SortParams{Sort: SortDate, Dir: listutil.Desc}

// GetBookingHistoryQuery carries the history view's filters, sort and page.
type GetBookingHistoryQuery struct {
	listutil.ListParams
	Category string
	From     string // YYYY-MM-DD inclusive
	To       string // YYYY-MM-DD inclusive
	Court    string
	Status   string
}

// ParseBookingHistoryQuery reads the history view parameters from a query string.
// POST: Unknown categories become CategoryAll; malformed dates are dropped
func ParseBookingHistoryQuery(q url.Values) GetBookingHistoryQuery {
	lp := listutil.ParseListParams(q, HistorySortColumns, DefaultHistorySort, HistoryFilterKeys)
	query := GetBookingHistoryQuery{
		ListParams: lp,
		Category:   lp.Filters["category"],
		From:       validDay(lp.Filters["from"]),
		To:         validDay(lp.Filters["to"]),
		Court:      strings.ToLower(lp.Filters["court"]),
		Status:     strings.ToLower(lp.Filters["status"]),
	}
	if !isCategory(query.Category) {
		query.Category = CategoryAll
	}
	if query.Category == CategoryAll {
		delete(query.Filters, "category")
	}
	if query.From == "" {
		delete(query.Filters, "from")
	}
	if query.To == "" {
		delete(query.Filters, "to")
	}
	return query
}

// GetBookingHistoryDeps holds what the projection reads.
type GetBookingHistoryDeps struct {
	Bookings []booking.Booking
	Now      time.Time
	Location *time.Location
}

// GetBookingHistoryResult is one rendered page plus totals over the filtered set.
type GetBookingHistoryResult struct {
	Rows           []booking.Booking // current page
	Filtered       []booking.Booking // every match, unpaginated, sorted
	Page           listutil.PageInfo
	CategoryCounts map[string]int // over search and filters, ignoring the category itself
	Revenue        float64        // over Filtered
}

// QueryBookingHistory filters, sorts and paginates the loaded bookings.
// PRE: deps.Bookings are normalized
// POST: Same inputs always give the same output; deps.Bookings is not mutated
func QueryBookingHistory(query GetBookingHistoryQuery, deps GetBookingHistoryDeps) GetBookingHistoryResult {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	today := deps.Now.In(loc).Format(booking.DayLayout)

	counts := make(map[string]int, len(Categories))
	var filtered []booking.Booking
	for _, b := range deps.Bookings {
		if !matchesFilters(b, query, loc) {
			continue
		}
		cat := Category(b, today, loc)
		counts[CategoryAll]++
		if cat != "" {
			counts[cat]++
		}
		if query.Category == CategoryAll || query.Category == "" || query.Category == cat {
			filtered = append(filtered, b)
		}
	}

	SortBookings(filtered, query.Sort, query.Dir)
	page := listutil.NewPageInfo(query.Page, query.PerPage, len(filtered))

	return GetBookingHistoryResult{
		Rows:           listutil.Paginate(filtered, page),
		Filtered:       filtered,
		Page:           page,
		CategoryCounts: counts,
		Revenue:        booking.TotalRevenue(filtered),
	}
}

// Category places b relative to today ("" when b has no start time).
func Category(b booking.Booking, today string, loc *time.Location) string {
	day := b.Day(loc)
	switch {
	case day == "":
		return ""
	case day == today:
		return CategoryToday
	case day > today:
		return CategoryUpcoming
	default:
		return CategoryPast
	}
}

func matchesFilters(b booking.Booking, q GetBookingHistoryQuery, loc *time.Location) bool {
	if q.Court != "" && !strings.EqualFold(b.CourtType, q.Court) {
		return false
	}
	if q.Status != "" && b.Status != q.Status {
		return false
	}
	if q.From != "" || q.To != "" {
		day := b.Day(loc)
		if day == "" || (q.From != "" && day < q.From) || (q.To != "" && day > q.To) {
			return false
		}
	}
	return matchesSearch(b, q.Search)
}

func matchesSearch(b booking.Booking, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, field := range []string{b.ID, b.CustomerName, b.PhoneNumber, b.Email, b.CourtLabel(), b.PaymentMethod, b.Notes} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// SortBookings sorts in place by column; ties fall back to start time then id.
// Unknown columns sort by date.
func SortBookings(bs []booking.Booking, column, dir string) {
	desc := dir == listutil.Desc
	primary := comparators[column]
	if primary == nil {
		primary = compareDate
	}
	sort.SliceStable(bs, func(i, j int) bool {
		c := primary(bs[i], bs[j])
		if c == 0 && column != SortDate {
			c = compareDate(bs[i], bs[j])
		}
		if c == 0 {
			c = strings.Compare(bs[i].ID, bs[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

var comparators = map[string]func(a, b booking.Booking) int{
	SortDate: compareDate,
	SortCustomer: func(a, b booking.Booking) int {
		return strings.Compare(strings.ToLower(a.CustomerName), strings.ToLower(b.CustomerName))
	},
	SortCourt: func(a, b booking.Booking) int {
		return strings.Compare(a.CourtLabel(), b.CourtLabel())
	},
	SortPrice: func(a, b booking.Booking) int {
		return compareFloat(a.Price, b.Price)
	},
	SortStatus: func(a, b booking.Booking) int {
		return strings.Compare(a.Status, b.Status)
	},
	SortDuration: func(a, b booking.Booking) int {
		return a.DurationMin - b.DurationMin
	},
}

func compareDate(a, b booking.Booking) int {
	return a.Start.Compare(b.Start)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func validDay(s string) string {
	if _, err := time.Parse(booking.DayLayout, s); err != nil {
		return ""
	}
	return s
}
