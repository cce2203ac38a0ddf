// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// Session is one browser process with the primary and verification tabs.
// Both tabs live in the same browser context and share cookies.
type Session struct {
	id     string
	logger *zap.Logger

	browserCtx  context.Context
	allocCancel context.CancelFunc

	primary      *Page
	verification *Page

	shutdownTimeout time.Duration
	closeOnce       sync.Once
	closeErr        error
}

var _ schemas.BrowserSession = (*Session)(nil)

func newSession(logger *zap.Logger, browserCtx context.Context, allocCancel context.CancelFunc, shutdownTimeout time.Duration) *Session {
	id := uuid.New().String()
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Session{
		id:              id,
		logger:          logger.With(zap.String("session_id", id)),
		browserCtx:      browserCtx,
		allocCancel:     allocCancel,
		shutdownTimeout: shutdownTimeout,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Primary() schemas.Page { return s.primary }

func (s *Session) Verification() schemas.Page { return s.verification }

// Close shuts the tabs and the browser process down. It is safe to call more
// than once; later calls return the result of the first.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session.")
		for _, p := range []*Page{s.verification, s.primary} {
			if p != nil {
				p.close()
			}
		}

		// chromedp.Cancel waits for the browser to exit, which can hang on a
		// wedged renderer. Bound it and fall back to killing the allocator.
		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(s.browserCtx)
		}()

		timer := time.NewTimer(s.shutdownTimeout)
		defer timer.Stop()

		select {
		case err := <-done:
			if err != nil && err != context.Canceled {
				s.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-timer.C:
			s.logger.Warn("Timeout waiting for browser to exit, killing it.")
		case <-ctx.Done():
			s.logger.Warn("Context done before browser exited, killing it.", zap.Error(ctx.Err()))
		}
		s.allocCancel()
		s.logger.Debug("Browser session closed.")
	})
	return s.closeErr
}
