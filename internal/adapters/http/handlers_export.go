package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/application/projections"
	"courtadmin/internal/domain/audit"
	"courtadmin/internal/domain/export"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// historyReport builds a report of the whole filtered history for query q.
// POST: Returns ok=false after writing a response
func (s *server) historyReport(w http.ResponseWriter, r *http.Request, q url.Values) (export.Report, bool) {
	status, ok := s.loadView(w, r, orchestrators.ViewHistory, false)
	if !ok {
		return export.Report{}, false
	}
	if status.State == orchestrators.StateFailed {
		http.Error(w, "bookings are unavailable right now, try again later", http.StatusServiceUnavailable)
		return export.Report{}, false
	}
	query := projections.ParseBookingHistoryQuery(q)
	result := projections.QueryBookingHistory(query, projections.GetBookingHistoryDeps{
		Bookings: status.Bookings,
		Now:      s.now(),
		Location: s.location(),
	})
	return export.Report{
		Title:       orchestrators.ReportTitle(query.Category),
		GeneratedAt: s.now(),
		Currency:    s.deps.Currency,
		Location:    s.location(),
		Filters:     describeFilters(query),
		Bookings:    result.Filtered,
	}, true
}

// describeFilters summarises the active filters for report headers.
func describeFilters(q projections.GetBookingHistoryQuery) string {
	var parts []string
	if q.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", q.Search))
	}
	if q.From != "" {
		parts = append(parts, "from "+q.From)
	}
	if q.To != "" {
		parts = append(parts, "to "+q.To)
	}
	if q.Court != "" {
		parts = append(parts, "court "+q.Court)
	}
	if q.Status != "" {
		parts = append(parts, "status "+q.Status)
	}
	return strings.Join(parts, ", ")
}

func (s *server) exportHandler(format string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, ok := s.historyReport(w, r, r.URL.Query())
		if !ok {
			return
		}
		var (
			buf         bytes.Buffer
			err         error
			contentType string
		)
		switch format {
		case export.FormatCSV:
			contentType = contentTypeCSV
			err = report.WriteCSV(&buf)
		case export.FormatXLSX:
			contentType = contentTypeXLSX
			err = report.WriteXLSX(&buf)
		default:
			err = export.ErrInvalidFormat
		}
		if err != nil {
			internalError(w, fmt.Errorf("export %s: %w", format, err))
			return
		}
		sess, _ := middleware.GetSessionFromContext(r.Context())
		s.audit(r, s.auditEvent(sess.Email, audit.CategoryReport, audit.ActionExport).
			WithSession(sess.ID).WithDescription(format+": "+report.Title))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(format)))
		buf.WriteTo(w)
	})
}

type printPage struct {
	Report export.Report
}

func (s *server) handlePrint(w http.ResponseWriter, r *http.Request) {
	report, ok := s.historyReport(w, r, r.URL.Query())
	if !ok {
		return
	}
	s.renderTemplate(w, r, "print.html", printPage{Report: report})
}

// handleEmailReport mails the filtered history to the signed-in admin and returns to the list.
func (s *server) handleEmailReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	q, err := url.ParseQuery(r.PostFormValue("query"))
	if err != nil {
		q = url.Values{}
	}
	report, ok := s.historyReport(w, r, q)
	if !ok {
		return
	}

	sess, _ := middleware.GetSessionFromContext(r.Context())
	result, err := orchestrators.ExecuteEmailReport(r.Context(), orchestrators.EmailReportInput{
		To:     sess.Email,
		Report: report,
	}, orchestrators.EmailReportDeps{
		Sender:      s.deps.EmailSender,
		OutboxStore: s.deps.OutboxStore,
		From:        s.deps.EmailFrom,
		GenerateID:  s.deps.GenerateID,
		Now:         s.now,
	})

	notice := "sent"
	switch {
	case errors.Is(err, orchestrators.ErrNoRecipient):
		notice = "no_email"
	case err != nil:
		slog.Error("email_event", "event", "report_failed", "error", err)
		notice = "failed"
	case result.Queued:
		notice = "queued"
	}
	event := s.auditEvent(sess.Email, audit.CategoryReport, audit.ActionEmail).
		WithSession(sess.ID).WithDescription(notice + ": " + report.Title)
	if notice == "failed" || notice == "no_email" {
		event = event.WithSeverity(audit.SeverityWarning)
	}
	s.audit(r, event)
	q.Del("refresh")
	q.Set("notice", notice)
	http.Redirect(w, r, "/history?"+q.Encode(), http.StatusSeeOther)
}
