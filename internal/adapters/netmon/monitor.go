package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultInterval is how often Run probes when no interval is given.
const DefaultInterval = 15 * time.Second

// Prober reports whether the remote API is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Monitor tracks connectivity to the remote API and notifies subscribers on transitions.
// Listeners run synchronously on the goroutine that calls Set; they must not block.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    uint64
	listeners map[uint64]func(bool)
}

// New creates a monitor with the given initial state.
func New(online bool) *Monitor {
	return &Monitor{
		online:    online,
		listeners: make(map[uint64]func(bool)),
	}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the connectivity state and notifies listeners if it changed.
// PRE: none
// POST: Online() == online; every registered listener saw the transition exactly once
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	slog.Info("network_transition", "online", online, "listeners", len(listeners))
	for _, l := range listeners {
		l(online)
	}
}

// Subscribe registers listener for future transitions. Past transitions are not replayed.
// POST: Returns an idempotent function removing exactly this registration
func (m *Monitor) Subscribe(listener func(bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Run probes on every tick until ctx is done, feeding results to Set.
func (m *Monitor) Run(ctx context.Context, p Prober, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.Set(p.Probe(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("network_monitor_stopped")
			return nil
		case <-ticker.C:
			m.Set(p.Probe(ctx))
		}
	}
}

// HTTPProber treats any HTTP response from URL as reachable and a transport error as offline.
type HTTPProber struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Probe sends a HEAD request to URL.
func (p HTTPProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("network_probe_failed", "url", p.URL, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
