package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// ErrNoRecipients is returned when a request has no To addresses.
var ErrNoRecipients = errors.New("email has no recipients")

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// NewResendSender creates a sender with the given API key and default from address.
// PRE: apiKey is a valid Resend API key; from is a valid sender address
// POST: Returns a ready-to-use sender
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		now:    time.Now,
	}
}

// Send delivers one message.
// PRE: req has at least one recipient and a subject
// POST: Email is accepted for delivery; returns the Resend message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	params, err := s.params(req)
	if err != nil {
		return SendResult{}, err
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		slog.Error("resend_send_failed", "error", err, "to", req.To, "subject", req.Subject)
		return SendResult{}, fmt.Errorf("resend send: %w", err)
	}

	slog.Info("resend_sent", "message_id", sent.Id, "to", req.To, "attachments", len(req.Attachments))
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

func (s *ResendSender) params(req SendRequest) (*resend.SendEmailRequest, error) {
	if len(req.To) == 0 {
		return nil, ErrNoRecipients
	}
	from := req.From
	if from == "" {
		from = s.from
	}
	p := &resend.SendEmailRequest{
		From:    from,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: req.ReplyTo,
	}
	for _, a := range req.Attachments {
		p.Attachments = append(p.Attachments, &resend.Attachment{
			Filename: a.Filename,
			Content:  a.Content,
		})
	}
	return p, nil
}
