package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/adapters/http/perf"
	auditStore "courtadmin/internal/adapters/storage/audit"
	outboxStore "courtadmin/internal/adapters/storage/outbox"
	"courtadmin/internal/application/fetchpolicy"
	"courtadmin/internal/application/orchestrators"
	"courtadmin/internal/domain/audit"
	"courtadmin/internal/domain/outbox"
)

const (
	perfWindow   = time.Hour
	perfTopN     = 10
	outboxLimit  = 50
	healthzLimit = 2 * time.Second
)

type breakerRow struct {
	View    string
	State   orchestrators.ViewState
	Counter fetchpolicy.Counter
}

type perfPage struct {
	Snapshot      perf.Snapshot
	Window        time.Duration
	Online        bool
	Controllers   int
	Breakers      []breakerRow
	OutboxCounts  map[string]int
	OutboxFailed  []outbox.Entry
	Activity      []audit.Event
	SchemaVersion int
	Notice        string
}

var outboxNotices = map[string]string{
	"retried":   "Retry attempted.",
	"abandoned": "Entry abandoned.",
}

// handlePerf shows request, query and upstream timings plus the state of the console's
// background machinery.
func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := middleware.GetSessionFromContext(ctx)
	page := perfPage{
		Window:        perfWindow,
		Online:        s.deps.Network == nil || s.deps.Network.Online(),
		SchemaVersion: s.deps.SchemaVersion,
		Notice:        outboxNotices[r.URL.Query().Get("notice")],
	}
	if s.deps.Collector != nil {
		// collector entries carry wall-clock timestamps
		page.Snapshot = s.deps.Collector.Snapshot(time.Now().Add(-perfWindow), perfTopN)
	}
	if s.deps.Registry != nil {
		page.Controllers = s.deps.Registry.Len()
		for _, view := range []string{orchestrators.ViewDashboard, orchestrators.ViewHistory} {
			ctrl, err := s.deps.Registry.Controller(sess.ID, view)
			if err != nil {
				continue
			}
			page.Breakers = append(page.Breakers, breakerRow{View: view, State: ctrl.State(), Counter: ctrl.Breaker().Snapshot()})
		}
	}
	if s.deps.OutboxStore != nil {
		counts, err := s.deps.OutboxStore.CountByStatus(ctx)
		if err != nil {
			internalError(w, err)
			return
		}
		failed, err := s.deps.OutboxStore.ListFailed(ctx, outboxLimit)
		if err != nil {
			internalError(w, err)
			return
		}
		page.OutboxCounts = counts
		page.OutboxFailed = failed
	}
	if s.deps.Audit != nil {
		events, err := s.deps.Audit.List(ctx, auditStore.Filter{}, auditPerfLimit)
		if err != nil {
			internalError(w, err)
			return
		}
		page.Activity = events
	}
	s.renderTemplate(w, r, "perf.html", page)
}

// handleOutboxList returns outbox entries as JSON.
// ?status=all lists pending and retrying entries instead of failed ones.
func (s *server) handleOutboxList(w http.ResponseWriter, r *http.Request) {
	if s.deps.OutboxStore == nil {
		http.Error(w, "outbox disabled", http.StatusServiceUnavailable)
		return
	}
	limit := outboxLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	var (
		entries []outbox.Entry
		err     error
	)
	if r.URL.Query().Get("status") == "all" {
		entries, err = s.deps.OutboxStore.ListPending(r.Context(), limit)
	} else {
		entries, err = s.deps.OutboxStore.ListFailed(r.Context(), limit)
	}
	if err != nil {
		internalError(w, err)
		return
	}
	if entries == nil {
		entries = []outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleOutboxAction retries or abandons one entry and returns to the perf page.
func (s *server) handleOutboxAction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outbox == nil {
		http.Error(w, "outbox disabled", http.StatusServiceUnavailable)
		return
	}
	id, action := r.PathValue("id"), r.PathValue("action")
	sess, _ := middleware.GetSessionFromContext(r.Context())

	var (
		err    error
		notice string
		act    audit.Action
	)
	switch action {
	case "retry":
		err = s.deps.Outbox.ProcessSingle(r.Context(), id)
		notice, act = "retried", audit.ActionRetry
	case "abandon":
		err = s.deps.Outbox.AbandonEntry(r.Context(), id)
		notice, act = "abandoned", audit.ActionAbandon
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	switch {
	case errors.Is(err, outboxStore.ErrNotFound):
		http.Error(w, "outbox entry not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("outbox_event", "event", "manual_"+action, "entry_id", id)
	s.audit(r, s.auditEvent(sess.Email, audit.CategoryOutbox, act).WithSession(sess.ID).WithDescription(id))
	http.Redirect(w, r, "/admin/perf?notice="+notice, http.StatusSeeOther)
}

type healthz struct {
	Status        string `json:"status"`
	DB            string `json:"db"`
	Online        bool   `json:"online"`
	SchemaVersion int    `json:"schema_version"`
	Time          string `json:"time"`
}

// handleHealthz reports 200 while the database answers. Remote API reachability is
// informational; the console degrades to cached data without it.
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h := healthz{
		Status:        "ok",
		DB:            "ok",
		Online:        s.deps.Network == nil || s.deps.Network.Online(),
		SchemaVersion: s.deps.SchemaVersion,
		Time:          s.now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthzLimit)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			slog.Error("healthz_db_failed", "error", err)
			h.Status, h.DB = "unhealthy", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, h)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
