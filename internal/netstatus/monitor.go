package netstatus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cyntientops/field-sync/pkg/logger"
)

// Monitor reports whether the backend is reachable. The sync engine
// suppresses drains while offline and drains immediately on the
// offline-to-online edge.
type Monitor interface {
	Online() bool
	Subscribe() <-chan bool
}

// HTTPMonitor probes the backend health endpoint on a fixed interval.
type HTTPMonitor struct {
	client   *http.Client
	url      string
	interval time.Duration
	logger   *logger.Logger

	mu     sync.RWMutex
	online bool
	subs   []chan bool
}

func NewHTTPMonitor(url string, interval time.Duration, log *logger.Logger) *HTTPMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HTTPMonitor{
		client:   &http.Client{Timeout: 5 * time.Second},
		url:      url,
		interval: interval,
		logger:   log,
		online:   true,
	}
}

func (m *HTTPMonitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *HTTPMonitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start probes until the context is cancelled.
func (m *HTTPMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *HTTPMonitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.setOnline(false)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.setOnline(false)
		return
	}
	defer resp.Body.Close()

	m.setOnline(resp.StatusCode < http.StatusInternalServerError)
}

func (m *HTTPMonitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("network status changed", "online", online)
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// StaticMonitor always reports the same state. Useful for worker deployments
// with a guaranteed network path.
type StaticMonitor bool

func (s StaticMonitor) Online() bool           { return bool(s) }
func (s StaticMonitor) Subscribe() <-chan bool { return make(chan bool) }
