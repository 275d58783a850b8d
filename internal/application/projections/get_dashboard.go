package projections

import (
	"sort"
	"time"

	"courtadmin/internal/domain/booking"
)

// DefaultRecentLimit is how many recent bookings the dashboard lists.
const DefaultRecentLimit = 8

// CourtStat aggregates one court type.
type CourtStat struct {
	CourtType string
	Bookings  int
	Revenue   float64
}

// GetDashboardQuery carries input for the dashboard projection.
type GetDashboardQuery struct {
	RecentLimit int
}

// GetDashboardDeps holds what the projection reads.
type GetDashboardDeps struct {
	Bookings []booking.Booking
	Now      time.Time
	Location *time.Location
}

// GetDashboardResult carries the dashboard statistics.
type GetDashboardResult struct {
	TotalBookings    int
	TodayBookings    int
	UpcomingBookings int
	TotalRevenue     float64
	TodayRevenue     float64
	ByStatus         map[string]int
	ByCourt          []CourtStat // sorted by bookings desc, then court type
	Recent           []booking.Booking
}

// QueryDashboard computes dashboard statistics over the loaded bookings.
// PRE: deps.Bookings are normalized
// POST: TotalRevenue == booking.TotalRevenue(deps.Bookings); no input is mutated
func QueryDashboard(query GetDashboardQuery, deps GetDashboardDeps) GetDashboardResult {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	today := deps.Now.In(loc).Format(booking.DayLayout)
	limit := query.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	res := GetDashboardResult{
		TotalBookings: len(deps.Bookings),
		ByStatus:      make(map[string]int, len(booking.ValidStatuses)),
	}
	courts := make(map[string]*CourtStat)

	for _, b := range deps.Bookings {
		res.TotalRevenue += b.Revenue()
		res.ByStatus[b.Status]++

		switch Category(b, today, loc) {
		case CategoryToday:
			res.TodayBookings++
			res.TodayRevenue += b.Revenue()
		case CategoryUpcoming:
			res.UpcomingBookings++
		}

		court := b.CourtType
		if court == "" {
			court = "unknown"
		}
		cs, ok := courts[court]
		if !ok {
			cs = &CourtStat{CourtType: court}
			courts[court] = cs
		}
		cs.Bookings++
		cs.Revenue += b.Revenue()
	}

	for _, cs := range courts {
		res.ByCourt = append(res.ByCourt, *cs)
	}
	sort.Slice(res.ByCourt, func(i, j int) bool {
		if res.ByCourt[i].Bookings != res.ByCourt[j].Bookings {
			return res.ByCourt[i].Bookings > res.ByCourt[j].Bookings
		}
		return res.ByCourt[i].CourtType < res.ByCourt[j].CourtType
	})

	recent := append([]booking.Booking(nil), deps.Bookings...)
	SortBookings(recent, SortDate, "desc")
	if len(recent) > limit {
		recent = recent[:limit]
	}
	res.Recent = recent
	return res
}
