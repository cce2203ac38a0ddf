// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Launcher starts a dedicated browser process for each request.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.Launcher = (*Launcher)(nil)

// NewLauncher creates a launcher for the given browser settings.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

// Launch starts the browser and opens the primary and verification tabs.
// The session outlives ctx; the caller must Close it.
func (l *Launcher) Launch(ctx context.Context, req schemas.ReportRequest) (schemas.BrowserSession, error) {
	// The browser process is bound to a detached context so a caller timeout
	// cancels operations without killing the process mid-shutdown.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(l.cfg)...)
	browserCtx, _ := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	// The first Run on a chromedp context binds the allocated browser to
	// that context, so it must not be a derived one.
	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		return nil, schemas.Automation("failed to start browser", err)
	}

	s := newSession(l.logger, browserCtx, allocCancel, l.cfg.ShutdownTimeout)
	s.logger.Info("Browser started.", zap.Bool("headless", l.cfg.Headless), zap.String("timezone", timezone(l.cfg)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := l.openTab(gctx, browserCtx, "primary", req)
		s.primary = p
		return err
	})
	g.Go(func() error {
		p, err := l.openTab(gctx, browserCtx, "verification", req)
		s.verification = p
		return err
	})
	if err := g.Wait(); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, schemas.Automation("failed to open browser tabs", err)
	}
	return s, nil
}

func (l *Launcher) openTab(ctx, browserCtx context.Context, name string, req schemas.ReportRequest) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	page := &Page{
		name:        name,
		ctx:         tabCtx,
		cancel:      tabCancel,
		monitor:     newNetworkMonitor(l.logger.Named(name)),
		logger:      l.logger.Named(name),
		timeout:     req.Timeout,
		quietPeriod: l.cfg.NetworkIdleQuiet,
	}
	page.monitor.listen(tabCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		return page, fmt.Errorf("open %s tab: %w", name, err)
	}

	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx,
		network.Enable(),
		identityFor(l.cfg).apply(page.logger),
	)
	if err != nil {
		return page, fmt.Errorf("prepare %s tab: %w", name, err)
	}
	return page, nil
}
