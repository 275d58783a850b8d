package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies why a remote fetch failed.
type Kind string

// Failure kinds.
const (
	KindNone        Kind = ""
	KindAuthExpired Kind = "auth_expired"
	KindNetwork     Kind = "network"
	KindTimeout     Kind = "timeout"
	KindServer      Kind = "server"
	KindCircuitOpen Kind = "circuit_open"
	KindGeneric     Kind = "generic"
)

// Sentinel errors raised inside the console.
var (
	ErrAuthExpired = errors.New("session expired")
	ErrTimeout     = errors.New("request timed out")
	ErrOffline     = errors.New("network unavailable")
	ErrCircuitOpen = errors.New("too many failures, try again later")
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Code int
	Path string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.Path, e.Code, http.StatusText(e.Code))
}

// Classify maps an error to its Kind.
// PRE: err may be nil or wrapped
// POST: Returns KindNone for nil, KindGeneric for anything unrecognised
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *StatusError
	switch {
	case errors.Is(err, ErrAuthExpired):
		return KindAuthExpired
	case errors.As(err, &se):
		if se.Code == http.StatusUnauthorized {
			return KindAuthExpired
		}
		return KindServer
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrOffline):
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindNetwork
	}
	return KindGeneric
}

// IsAuthExpired reports whether err must force a logout.
func IsAuthExpired(err error) bool {
	return Classify(err) == KindAuthExpired
}

// Label returns the short banner label for the kind.
func (k Kind) Label() string {
	switch k {
	case KindNetwork:
		return "offline mode"
	case KindTimeout:
		return "request timed out"
	case KindServer:
		return "server error"
	case KindCircuitOpen:
		return "too many failures"
	case KindAuthExpired:
		return "session expired"
	case KindNone:
		return ""
	default:
		return "something went wrong"
	}
}

// Banner is the user-visible error strip shown above a view.
type Banner struct {
	Kind    Kind
	Label   string
	Message string
}

// NewBanner builds the banner for a failed load. withCache reports whether saved data is shown.
func NewBanner(kind Kind, withCache bool) Banner {
	b := Banner{Kind: kind, Label: kind.Label()}
	switch kind {
	case KindNetwork:
		b.Message = "The booking server cannot be reached."
	case KindTimeout:
		b.Message = "The booking server took too long to answer."
	case KindServer:
		b.Message = "The booking server returned an error."
	case KindCircuitOpen:
		b.Message = "Loading is paused after repeated failures."
	default:
		b.Message = "Bookings could not be loaded."
	}
	if withCache {
		b.Message += " Showing saved data."
	} else {
		b.Message += " No saved data is available."
	}
	return b
}
