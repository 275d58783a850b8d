package web

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/application/listutil"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/application/projections"
	"courtadmin/internal/domain/audit"
)

// viewStatus is the strip above every data view: freshness, degradation and the banner.
type viewStatus struct {
	orchestrators.LoadViewResult
	Online bool
}

// Stale reports whether the page shows saved data instead of a live response.
func (v viewStatus) Stale() bool {
	return v.FromCache && v.State == orchestrators.StateDegraded
}

// loadView runs the view's controller for the signed-in session.
// POST: Returns ok=false after writing a response (redirect to /login or an error)
func (s *server) loadView(w http.ResponseWriter, r *http.Request, view string, refresh bool) (viewStatus, bool) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	res, err := orchestrators.ExecuteLoadView(r.Context(), orchestrators.LoadViewInput{
		SessionID: sess.ID,
		View:      view,
		Refresh:   refresh,
	}, orchestrators.LoadViewDeps{Registry: s.deps.Registry})
	if err != nil {
		internalError(w, err)
		return viewStatus{}, false
	}
	if res.Redirected() {
		s.audit(r, s.auditEvent(sess.Email, audit.CategoryAuth, audit.ActionSessionEnded).
			WithSession(sess.ID).WithDescription(view))
		middleware.ClearSessionCookie(w)
		http.Redirect(w, r, "/login?expired=1", http.StatusSeeOther)
		return viewStatus{}, false
	}
	online := s.deps.Network == nil || s.deps.Network.Online()
	return viewStatus{LoadViewResult: res, Online: online}, true
}

type dashboardPage struct {
	Status viewStatus
	Stats  projections.GetDashboardResult
}

func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	status, ok := s.loadView(w, r, orchestrators.ViewDashboard, r.URL.Query().Get("refresh") == "1")
	if !ok {
		return
	}
	stats := projections.QueryDashboard(projections.GetDashboardQuery{}, projections.GetDashboardDeps{
		Bookings: status.Bookings,
		Now:      s.now(),
		Location: s.location(),
	})
	s.renderTemplate(w, r, "dashboard.html", dashboardPage{Status: status, Stats: stats})
}

// historyPage renders one page of the filtered history plus the links that keep its query.
type historyPage struct {
	Status     viewStatus
	Query      projections.GetBookingHistoryQuery
	Result     projections.GetBookingHistoryResult
	Categories []string
	Statuses   []string
	Notice     string
}

var historyNotices = map[string]string{
	"sent":     "The report was emailed to you.",
	"queued":   "The report could not be sent right now. It will be retried in the background.",
	"failed":   "The report could not be sent or queued.",
	"no_email": "Your session has no email address to send to.",
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, ok := s.loadView(w, r, orchestrators.ViewHistory, q.Get("refresh") == "1")
	if !ok {
		return
	}
	query := projections.ParseBookingHistoryQuery(q)
	result := projections.QueryBookingHistory(query, projections.GetBookingHistoryDeps{
		Bookings: status.Bookings,
		Now:      s.now(),
		Location: s.location(),
	})
	s.renderTemplate(w, r, "history.html", historyPage{
		Status:     status,
		Query:      query,
		Result:     result,
		Categories: projections.Categories,
		Statuses:   []string{"confirmed", "paid", "pending", "cancelled"},
		Notice:     historyNotices[q.Get("notice")],
	})
}

// values renders the query back, dropping the page so filter links start at page 1.
func (p historyPage) values() url.Values {
	v := p.Query.Values()
	v.Del("page")
	return v
}

func withQuery(path string, v url.Values) template.URL {
	if len(v) == 0 {
		return template.URL(path)
	}
	return template.URL(path + "?" + v.Encode())
}

// EncodedQuery is the current list state, carried by the refresh and email forms.
func (p historyPage) EncodedQuery() string {
	return p.Query.Values().Encode()
}

// CategoryURL switches category and keeps every other filter.
func (p historyPage) CategoryURL(cat string) template.URL {
	v := p.values()
	if cat == projections.CategoryAll {
		v.Del("category")
	} else {
		v.Set("category", cat)
	}
	return withQuery("/history", v)
}

// SortURL sorts by col, flipping the direction when col is already active.
func (p historyPage) SortURL(col string) template.URL {
	v := p.values()
	dir := listutil.Asc
	if p.Query.Sort == col && p.Query.Dir == listutil.Asc {
		dir = listutil.Desc
	}
	v.Set("sort", col)
	v.Set("dir", dir)
	return withQuery("/history", v)
}

// SortIndicator marks the active sort column.
func (p historyPage) SortIndicator(col string) string {
	if p.Query.Sort != col {
		return ""
	}
	if p.Query.Dir == listutil.Asc {
		return "▲"
	}
	return "▼"
}

// PageURL links to page n of the same list.
func (p historyPage) PageURL(n int) template.URL {
	v := p.values()
	if n > 1 {
		v.Set("page", strconv.Itoa(n))
	}
	return withQuery("/history", v)
}

// ExportURL links to an export of the whole filtered list.
func (p historyPage) ExportURL(format string) template.URL {
	v := p.values()
	v.Del("per_page")
	path := "/history/export." + format
	if format == "print" {
		path = "/history/print"
	}
	return withQuery(path, v)
}

// handleRefresh reloads a view past the fresh cache.
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	switch view := r.PostFormValue("view"); view {
	case orchestrators.ViewHistory:
		v, err := url.ParseQuery(r.PostFormValue("query"))
		if err != nil {
			v = url.Values{}
		}
		v.Set("refresh", "1")
		http.Redirect(w, r, "/history?"+v.Encode(), http.StatusSeeOther)
	case orchestrators.ViewDashboard, "":
		http.Redirect(w, r, "/dashboard?refresh=1", http.StatusSeeOther)
	default:
		http.Error(w, "unknown view "+view, http.StatusBadRequest)
	}
}
