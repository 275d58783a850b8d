package email

import (
	"context"
	"time"
)

// Attachment is a file sent alongside the message body.
type Attachment struct {
	Filename string
	Content  []byte
}

// SendRequest contains the data needed to send an email via an external provider.
type SendRequest struct {
	To          []string // Recipient addresses
	From        string   // Sender, e.g. "Court Admin <noreply@club.example>"; empty uses the sender default
	Subject     string
	HTML        string
	ReplyTo     string
	Attachments []Attachment
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string    // Provider's message ID for tracking
	SentAt    time.Time // When the send was accepted
}

// Sender sends email through an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
