package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxAge is the validity window applied when the token carries no expiry claim.
const MaxAge = 24 * time.Hour

// Domain errors
var (
	ErrMissingIdentity = errors.New("session has no email or token")
	ErrExpired         = errors.New("session has expired")
	ErrNotFound        = errors.New("session not found")
)

// Session is the persisted admin identity for one console sign-in.
type Session struct {
	ID        string
	Email     string
	Token     string
	LoginTime time.Time
}

// Validate checks identity presence and expiry.
// PRE: now is the current time
// POST: Returns nil if the session may render authenticated views
// INVARIANT: Session fields are not mutated
func (s Session) Validate(now time.Time) error {
	if strings.TrimSpace(s.Email) == "" || strings.TrimSpace(s.Token) == "" {
		return ErrMissingIdentity
	}
	if exp, ok := TokenExpiry(s.Token); ok {
		if !now.Before(exp) {
			return ErrExpired
		}
		return nil
	}
	if s.LoginTime.IsZero() || !now.Before(s.LoginTime.Add(MaxAge)) {
		return ErrExpired
	}
	return nil
}

// IsValid reports whether Validate succeeds.
func (s Session) IsValid(now time.Time) bool {
	return s.Validate(now) == nil
}

// TokenExpiry extracts the exp claim from a structured (JWT) token.
// The signature is not verified; the console only reads the claim the API issued.
// PRE: token may be any string
// POST: Returns (exp, true) only for three-segment tokens with a decodable exp claim
func TokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// a missing or unknown alg still leaves the claims decoded
		var verr *jwt.ValidationError
		if !errors.As(err, &verr) || verr.Errors != jwt.ValidationErrorUnverifiable {
			return time.Time{}, false
		}
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case json.Number:
		v, err := exp.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}
