package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "courtadmin/internal/adapters/email"
	outboxStore "courtadmin/internal/adapters/storage/outbox"
	domain "courtadmin/internal/domain/outbox"
)

// Outbox retry defaults: 30s × 2^attempts, capped at an hour.
const (
	DefaultOutboxBaseDelay = 30 * time.Second
	DefaultOutboxMaxDelay  = 1 * time.Hour
	DefaultOutboxBatchSize = 10
)

// OutboxProcessor handles retrying failed external actions.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the provider's id for the delivered action and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: DefaultOutboxBaseDelay,
		maxDelay:  DefaultOutboxMaxDelay,
		batchSize: DefaultOutboxBatchSize,
		now:       time.Now,
	}
}

// WithClock replaces the processor's time source.
func (p *OutboxProcessor) WithClock(now func() time.Time) *OutboxProcessor {
	p.now = now
	return p
}

// ProcessPending processes due outbox entries.
// PRE: Context is valid
// POST: Each due entry attempted once; entries still backing off are left untouched
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("list pending outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
	}
	return nil
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry) error {
	now := p.now()
	if !entry.DueAt(now, p.baseDelay, p.maxDelay) {
		return nil
	}

	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.ErrorMessage = fmt.Sprintf("no executor registered for action type: %s", entry.ActionType)
		entry.MarkAbandoned()
		return p.store.Save(ctx, entry)
	}
	return p.run(ctx, entry, executor, now)
}

func (p *OutboxProcessor) run(ctx context.Context, entry domain.Entry, executor ActionExecutor, now time.Time) error {
	entry.MarkAttempt(now)
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "status", entry.Status, "error", err.Error())
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return p.store.Save(ctx, entry)
}

// ProcessSingle manually processes a single outbox entry, ignoring backoff.
// PRE: entryID is non-empty
// POST: Entry is attempted once and its status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == domain.StatusDone || entry.Status == domain.StatusAbandoned {
		return fmt.Errorf("entry %s is %s and cannot be retried", entryID, entry.Status)
	}
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		return fmt.Errorf("no executor registered for action type: %s", entry.ActionType)
	}
	if entry.Attempts >= entry.MaxAttempts {
		// a manual retry grants one more attempt
		entry.MaxAttempts = entry.Attempts + 1
	}
	return p.run(ctx, entry, executor, p.now())
}

// AbandonEntry marks an entry as abandoned by the admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	entry.MarkAbandoned()
	return p.store.Save(ctx, entry)
}

// ReportEmailExecutor replays a queued report mail.
type ReportEmailExecutor struct {
	Sender emailAdapter.Sender
}

// Execute sends the queued request.
// PRE: payload is a JSON-encoded email.SendRequest
// POST: Returns the provider message id
// INVARIANT: outbox entry status managed by caller
func (e ReportEmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var req emailAdapter.SendRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	res, err := e.Sender.Send(ctx, req)
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// DefaultOutboxInterval is used when RunOutboxWorker is given no positive interval.
const DefaultOutboxInterval = time.Minute

// RunOutboxWorker processes the outbox every interval until ctx is done.
// POST: Returns nil on cancellation
func RunOutboxWorker(ctx context.Context, processor *OutboxProcessor, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultOutboxInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := processor.ProcessPending(runCtx); err != nil {
				slog.Error("outbox_background_process_failed", "error", err.Error())
			}
			cancel()
		case <-ctx.Done():
			slog.Info("outbox_background_worker_stopped")
			return nil
		}
	}
}
