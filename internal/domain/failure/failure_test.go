package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &url.Error{Op: "Get", URL: "http://api/admin/overview", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"401", &StatusError{Code: 401, Path: "/admin/overview"}, KindAuthExpired},
		{"wrapped 401", fmt.Errorf("fetch overview: %w", &StatusError{Code: 401}), KindAuthExpired},
		{"auth sentinel", ErrAuthExpired, KindAuthExpired},
		{"500", &StatusError{Code: 500}, KindServer},
		{"404", &StatusError{Code: 404}, KindServer},
		{"timeout sentinel", ErrTimeout, KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"net timeout", &url.Error{Op: "Get", URL: "x", Err: timeoutErr{}}, KindTimeout},
		{"refused", refused, KindNetwork},
		{"offline", ErrOffline, KindNetwork},
		{"circuit", ErrCircuitOpen, KindCircuitOpen},
		{"other", errors.New("boom"), KindGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestNewBanner(t *testing.T) {
	b := NewBanner(KindNetwork, true)
	assert.Equal(t, "offline mode", b.Label)
	assert.Contains(t, b.Message, "Showing saved data")

	b = NewBanner(KindServer, false)
	assert.Equal(t, "server error", b.Label)
	assert.Contains(t, b.Message, "No saved data")

	assert.Equal(t, "something went wrong", KindGeneric.Label())
	assert.Equal(t, "too many failures", KindCircuitOpen.Label())
}
