package orchestrators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	emailAdapter "courtadmin/internal/adapters/email"
	"courtadmin/internal/domain/booking"
	"courtadmin/internal/domain/export"
	"courtadmin/internal/domain/outbox"
)

// OutboxStoreForReport queues reports whose first send failed.
type OutboxStoreForReport interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// EmailReportInput carries input for mailing the filtered history.
type EmailReportInput struct {
	To     string
	Report export.Report
}

// EmailReportDeps holds dependencies for EmailReport.
type EmailReportDeps struct {
	Sender      emailAdapter.Sender
	OutboxStore OutboxStoreForReport
	From        string
	GenerateID  func() string
	Now         func() time.Time
}

// EmailReportResult tells the caller whether the mail went out now or was queued.
type EmailReportResult struct {
	MessageID string
	Queued    bool
	OutboxID  string
}

// ErrNoRecipient is returned when the session has no email to send to.
var ErrNoRecipient = errors.New("no recipient for report")

var reportTemplate = template.Must(template.New("report").Parse(`<h2>{{.Title}}</h2>
<p>Generated {{.Generated}}{{if .Filters}} &middot; {{.Filters}}{{end}}</p>
<p><strong>{{.Count}}</strong> bookings, revenue <strong>{{.Revenue}}</strong>.</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{if .Truncated}}<p>Showing the first {{len .Rows}} rows. The attached CSV holds all {{.Count}}.</p>{{end}}`))

// maxReportRows bounds the inline table; the CSV attachment is complete.
const maxReportRows = 50

// RenderReportHTML renders the mail body for a report.
func RenderReportHTML(r export.Report) (string, error) {
	rows := r.Rows()
	truncated := len(rows) > maxReportRows
	if truncated {
		rows = rows[:maxReportRows]
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	data := map[string]any{
		"Title":     r.Title,
		"Generated": r.GeneratedAt.In(loc).Format("2006-01-02 15:04"),
		"Filters":   r.Filters,
		"Count":     len(r.Bookings),
		"Revenue":   export.FormatMoney(r.TotalRevenue(), r.Currency),
		"Header":    export.Header,
		"Rows":      rows,
		"Truncated": truncated,
	}
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// ExecuteEmailReport mails the report with a CSV attachment to the signed-in admin.
// PRE: input.To is the session email
// POST: Sent now, or an outbox entry queued for the background worker; error only when
// neither happened
func ExecuteEmailReport(ctx context.Context, input EmailReportInput, deps EmailReportDeps) (EmailReportResult, error) {
	to := strings.TrimSpace(input.To)
	if to == "" {
		return EmailReportResult{}, ErrNoRecipient
	}

	body, err := RenderReportHTML(input.Report)
	if err != nil {
		return EmailReportResult{}, err
	}
	var csvBuf bytes.Buffer
	if err := input.Report.WriteCSV(&csvBuf); err != nil {
		return EmailReportResult{}, err
	}

	req := emailAdapter.SendRequest{
		To:      []string{to},
		From:    deps.From,
		Subject: fmt.Sprintf("%s (%d bookings)", input.Report.Title, len(input.Report.Bookings)),
		HTML:    body,
		Attachments: []emailAdapter.Attachment{
			{Filename: input.Report.Filename(export.FormatCSV), Content: csvBuf.Bytes()},
		},
	}

	res, sendErr := deps.Sender.Send(ctx, req)
	if sendErr == nil {
		slog.Info("email_event", "event", "report_sent", "to", to, "message_id", res.MessageID, "bookings", len(input.Report.Bookings))
		return EmailReportResult{MessageID: res.MessageID}, nil
	}
	slog.Warn("email_event", "event", "report_send_failed", "to", to, "error", sendErr)

	payload, err := json.Marshal(req)
	if err != nil {
		return EmailReportResult{}, fmt.Errorf("encode outbox payload: %w", err)
	}
	entry := outbox.NewEntry(deps.GenerateID(), outbox.ActionTypeReportEmail, string(payload), deps.Now())
	if err := entry.Validate(); err != nil {
		return EmailReportResult{}, err
	}
	if err := deps.OutboxStore.Save(ctx, entry); err != nil {
		return EmailReportResult{}, fmt.Errorf("send failed (%v) and queueing failed: %w", sendErr, err)
	}
	slog.Info("email_event", "event", "report_queued", "outbox_id", entry.ID)
	return EmailReportResult{Queued: true, OutboxID: entry.ID}, nil
}

// ReportTitle names a history report after its category.
func ReportTitle(category string) string {
	if category == "" || category == "all" {
		return "Booking history"
	}
	return "Booking history: " + booking.DisplayStatus(category)
}
