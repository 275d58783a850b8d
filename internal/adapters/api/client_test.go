package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtadmin/internal/adapters/http/perf"
	"courtadmin/internal/domain/failure"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*Client, *perf.Collector) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	collector := perf.NewCollector(100)
	return NewClient(srv.URL+"/", srv.Client(), collector), collector
}

// TestLogin_ReturnsToken verifies credentials are posted as JSON and the token read back.
func TestLogin_ReturnsToken(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathLogin, r.URL.Path)
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "admin@club.example", body.Email)
		w.Write([]byte(`{"token":"tok-123"}`))
	})

	tok, err := c.Login(context.Background(), "admin@club.example", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
}

func TestLogin_NestedToken(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"token":"nested"}}`))
	})
	tok, err := c.Login(context.Background(), "a@b.c", "p")
	require.NoError(t, err)
	assert.Equal(t, "nested", tok)
}

func TestLogin_NoToken(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	_, err := c.Login(context.Background(), "a@b.c", "p")
	assert.ErrorIs(t, err, ErrNoToken)
}

// TestOverview_SendsBearerAndDecodes verifies the bearer header and wrapped collections.
func TestOverview_SendsBearerAndDecodes(t *testing.T) {
	c, collector := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, PathOverview, r.URL.Path)
		w.Write([]byte(`{"totalBookings":2,"recentBookings":[{"id":"b1","status":"paid"},{"id":"b2"}]}`))
	})

	raws, err := c.Overview(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "b1", raws[0]["id"])

	snap := collector.Snapshot(time.Now().Add(-time.Minute), 5)
	assert.Equal(t, 1, snap.UpstreamCalls)
	assert.Equal(t, 0, snap.UpstreamFailed)
}

// TestHistory_StatusError verifies non-2xx responses surface as classified StatusErrors.
func TestHistory_StatusError(t *testing.T) {
	for _, tc := range []struct {
		code int
		want failure.Kind
	}{
		{http.StatusUnauthorized, failure.KindAuthExpired},
		{http.StatusInternalServerError, failure.KindServer},
		{http.StatusBadGateway, failure.KindServer},
	} {
		c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		})
		_, err := c.History(context.Background(), "tok")
		var se *failure.StatusError
		require.True(t, errors.As(err, &se), "code %d", tc.code)
		assert.Equal(t, tc.code, se.Code)
		assert.Equal(t, PathHistory, se.Path)
		assert.Equal(t, tc.want, failure.Classify(err))
	}
}

// TestHistory_TransportErrorIsNetwork verifies an unreachable API is classified as a network failure.
func TestHistory_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	collector := perf.NewCollector(10)
	_, err := NewClient(url, nil, collector).History(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, failure.KindNetwork, failure.Classify(err))
	assert.Equal(t, 1, collector.Snapshot(time.Now().Add(-time.Minute), 5).UpstreamFailed)
}

func TestDecodeCollection(t *testing.T) {
	cases := map[string]int{
		`[]`:                               0,
		`null`:                             0,
		`[{"id":1},{"id":2}]`:              2,
		`{"bookings":[{"id":1}]}`:          1,
		`{"history":[{"id":1},{"id":2}]}`:  2,
		`{"data":{"bookings":[{"id":1}]}}`: 1,
		`{"data":null}`:                    0,
	}
	for body, want := range cases {
		got, err := DecodeCollection([]byte(body))
		require.NoError(t, err, body)
		assert.Len(t, got, want, body)
	}

	_, err := DecodeCollection([]byte(`{"message":"hi"}`))
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
	_, err = DecodeCollection([]byte(`"text"`))
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}
