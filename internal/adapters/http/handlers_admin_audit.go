package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"courtadmin/internal/adapters/http/middleware"
	auditStore "courtadmin/internal/adapters/storage/audit"
	auditDomain "courtadmin/internal/domain/audit"
)

const (
	auditDefaultLimit = 100
	auditPerfLimit    = 10
)

// audit records one activity event for the request. Failures are logged and never block the caller.
func (s *server) audit(r *http.Request, event auditDomain.Event) {
	if s.deps.Audit == nil {
		return
	}
	event = event.WithRequest(middleware.ClientIP(r), r.UserAgent())
	if err := s.deps.Audit.Save(r.Context(), event); err != nil {
		slog.Error("audit_save_failed", "action", event.Action, "error", err)
	}
}

// auditEvent starts an event stamped with the console clock.
func (s *server) auditEvent(email string, category auditDomain.Category, action auditDomain.Action) auditDomain.Event {
	return auditDomain.NewEvent(s.deps.GenerateID(), s.now(), email, category, action)
}

// handleAuditList returns the activity log as JSON (GET /admin/audit).
// Filters: category, action, actor, from and to (RFC 3339), limit (1..1000).
func (s *server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		http.Error(w, "audit log disabled", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	filter := auditStore.Filter{
		Category:   auditDomain.Category(q.Get("category")),
		Action:     auditDomain.Action(q.Get("action")),
		ActorEmail: q.Get("actor"),
	}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad "+name+" time, want RFC 3339", http.StatusBadRequest)
			return
		}
		*dst = t
	}

	limit := auditDefaultLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	events, err := s.deps.Audit.List(r.Context(), filter, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	if events == nil {
		events = []auditDomain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
