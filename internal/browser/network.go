// internal/browser/network.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

const networkIdleCheckFrequency = 100 * time.Millisecond

// responseWatch waits for the first response whose URL matches.
type responseWatch struct {
	match     schemas.ResponseMatcher
	requestID network.RequestID
	// done receives nil once the body is complete, or the loading error.
	done chan error
}

// networkMonitor tracks in-flight requests of one tab and resolves response
// watches. Its handlers run on the CDP event loop and never block.
type networkMonitor struct {
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	watches  []*responseWatch
}

func newNetworkMonitor(logger *zap.Logger) *networkMonitor {
	return &networkMonitor{
		logger:   logger.Named("network"),
		inflight: make(map[network.RequestID]struct{}),
	}
}

// listen subscribes to the tab's network events. The listener is removed
// when ctx is canceled.
func (m *networkMonitor) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, m.handle)
}

func (m *networkMonitor) handle(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request != nil && strings.HasPrefix(ev.Request.URL, "data:") {
			return
		}
		m.mu.Lock()
		m.inflight[ev.RequestID] = struct{}{}
		m.mu.Unlock()

	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		m.mu.Lock()
		for _, w := range m.watches {
			if w.requestID == "" && w.match(ev.Response.URL) {
				w.requestID = ev.RequestID
				break
			}
		}
		m.mu.Unlock()

	case *network.EventLoadingFinished:
		m.finish(ev.RequestID, nil)

	case *network.EventLoadingFailed:
		m.finish(ev.RequestID, fmt.Errorf("request failed: %s", ev.ErrorText))
	}
}

func (m *networkMonitor) finish(id network.RequestID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	for _, w := range m.watches {
		if w.requestID == id {
			select {
			case w.done <- err:
			default:
			}
		}
	}
}

func (m *networkMonitor) inFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// reset forgets requests of a previous document. Requests that were cut
// off by a navigation never report completion.
func (m *networkMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = make(map[network.RequestID]struct{})
}

func (m *networkMonitor) watch(match schemas.ResponseMatcher) *responseWatch {
	w := &responseWatch{match: match, done: make(chan error, 1)}
	m.mu.Lock()
	m.watches = append(m.watches, w)
	m.mu.Unlock()
	return w
}

func (m *networkMonitor) unwatch(w *responseWatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.watches {
		if cur == w {
			m.watches = append(m.watches[:i], m.watches[i+1:]...)
			return
		}
	}
}

// waitIdle blocks until no request has been in flight for quietPeriod.
func (m *networkMonitor) waitIdle(ctx context.Context, quietPeriod time.Duration) error {
	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()
	idle := false

	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	check := func() {
		active := m.inFlight()
		switch {
		case active > 0 && idle:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			idle = false
		case active == 0 && !idle:
			timer.Reset(quietPeriod)
			idle = true
		}
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			check()
		case <-timer.C:
			m.logger.Debug("Network is idle.")
			return nil
		}
	}
}
