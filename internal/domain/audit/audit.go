package audit

import (
	"errors"
	"time"
)

// Category groups console activity.
type Category string

const (
	CategoryAuth   Category = "auth"
	CategoryReport Category = "report"
	CategoryOutbox Category = "outbox"
)

// Action is what the admin (or the console on their behalf) did.
type Action string

const (
	ActionLogin        Action = "login"
	ActionLoginFailed  Action = "login_failed"
	ActionLogout       Action = "logout"
	ActionSessionEnded Action = "session_ended"
	ActionExport       Action = "export"
	ActionEmail        Action = "email"
	ActionRetry        Action = "retry"
	ActionAbandon      Action = "abandon"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ErrInvalidEvent is returned for an event missing its id, time or action.
var ErrInvalidEvent = errors.New("audit event needs id, timestamp and action")

// Event is one entry of the console's activity log.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Category    Category  `json:"category"`
	Action      Action    `json:"action"`
	Severity    Severity  `json:"severity"`
	ActorEmail  string    `json:"actor_email"`
	SessionID   string    `json:"session_id,omitempty"`
	Description string    `json:"description,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// NewEvent creates an info-level event.
// PRE: id is unique; action is non-empty
// POST: Returns an Event stamped at now
func NewEvent(id string, now time.Time, actorEmail string, category Category, action Action) Event {
	return Event{
		ID:         id,
		Timestamp:  now,
		Category:   category,
		Action:     action,
		Severity:   SeverityInfo,
		ActorEmail: actorEmail,
	}
}

// WithSeverity sets the severity level.
func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithSession ties the event to a console session.
func (e Event) WithSession(id string) Event {
	e.SessionID = id
	return e
}

// WithDescription sets the event description.
func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithRequest sets IP address and user agent from the HTTP request.
func (e Event) WithRequest(ipAddress, userAgent string) Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// Validate checks the fields every stored event must carry.
func (e Event) Validate() error {
	if e.ID == "" || e.Timestamp.IsZero() || e.Action == "" {
		return ErrInvalidEvent
	}
	return nil
}
