// File: internal/orchestrator/orchestrator.go
// Description: Runs one report capture end to end. The browser, filesystem
// and status channel are injected so the sequence can be driven by fakes.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/auth"
	"github.com/xkilldash9x/reporting-cli/internal/capture"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"github.com/xkilldash9x/reporting-cli/internal/metrics"
	"github.com/xkilldash9x/reporting-cli/internal/persist"
	"github.com/xkilldash9x/reporting-cli/internal/source"
	"github.com/xkilldash9x/reporting-cli/internal/stability"
)

const closeTimeout = 15 * time.Second

// Result describes a successful run.
type Result struct {
	RunID         string
	Source        schemas.ReportSource
	Path          string
	EmailBodyPath string
	// Auth is nil when the page was opened without logging in.
	Auth      *schemas.AuthOutcome
	Stability stability.Result
	Bytes     int
	Elapsed   time.Duration
}

// Orchestrator owns the browser session of a single request and sequences
// login, page preparation, capture and persistence.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	launcher  schemas.Launcher
	persister *persist.Persister
	reporter  schemas.StatusReporter
	metrics   *metrics.Recorder

	capturer *capture.Capturer
	detector *stability.Detector

	// sleep and now are replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an orchestrator. All dependencies are required.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	launcher schemas.Launcher,
	persister *persist.Persister,
	reporter schemas.StatusReporter,
	recorder *metrics.Recorder,
) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		launcher == nil ||
		persister == nil ||
		reporter == nil ||
		recorder == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		launcher:  launcher,
		persister: persister,
		reporter:  reporter,
		metrics:   recorder,
		capturer:  capture.New(capture.OptionsFromConfig(cfg.Capture), logger, reporter),
		detector:  stability.NewDetector(logger, cfg.Capture.StabilityPoll, cfg.Capture.StabilityChecks),
		sleep:     sleepContext,
		now:       time.Now,
	}, nil
}

// destinations are the resolved output paths of a request.
type destinations struct {
	primary   string
	emailBody string
}

// Run captures req. Destinations are checked before the browser starts, so
// a second run with the same filename fails without any browser work. Every
// failure is a *schemas.Error; the session is closed on all paths.
func (o *Orchestrator) Run(ctx context.Context, req schemas.ReportRequest) (res *Result, err error) {
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))
	start := o.now()

	defer func() {
		o.metrics.RecordOutcome(req.Format, err, o.now())
		if err != nil {
			o.reporter.Fail("Downloading report failed. " + err.Error())
			logger.Error("Capture failed.", zap.String("code", string(schemas.CodeOf(err))), zap.Error(err))
		}
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	dest, err := o.preflight(req)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting capture.",
		zap.String("url", req.URL),
		zap.String("format", string(req.Format)),
		zap.String("auth", string(req.Auth)),
		zap.String("destination", dest.primary))
	o.reporter.Start("Connecting to url " + req.URL)

	sess, err := o.launcher.Launch(ctx, req)
	if err != nil {
		return nil, schemas.Automation("launch browser", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := sess.Close(closeCtx); cerr != nil {
			logger.Warn("Failed to close browser session.", zap.Error(cerr))
		}
	}()

	res = &Result{RunID: runID, Path: dest.primary, EmailBodyPath: dest.emailBody}
	page := sess.Primary()

	if req.Authenticated() {
		a, err := auth.New(req.Auth, auth.OptionsFromConfig(o.cfg.Auth), logger, o.reporter)
		if err != nil {
			return res, err
		}
		outcome, err := a.Authenticate(ctx, page, sess.Verification(), req)
		res.Auth = &outcome
		if err != nil {
			return res, err
		}
		o.reporter.Info("Credentials are verified")
	} else if err := page.Navigate(ctx, req.URL); err != nil {
		return res, schemas.Automation("navigate to "+req.URL, err)
	}

	o.reporter.Info("Connected to url " + req.URL)
	o.reporter.Start("Loading page")

	res.Source, err = o.prepare(ctx, page, req)
	if err != nil {
		return res, err
	}

	res.Stability, err = o.detector.Wait(ctx, stability.ContentSampler(page), req.Timeout)
	if err != nil {
		return res, schemas.Automation("wait for page to settle", err)
	}
	o.metrics.ObserveStability(res.Stability.Samples, res.Stability.Stable)

	captured, err := o.capturer.Capture(ctx, page, req.Format)
	if err != nil {
		return res, schemas.Automation("capture report", err)
	}
	if err := o.persister.Write(dest.primary, req.Format, schemas.NewArtifact(req.CreatedAt, captured)); err != nil {
		return res, err
	}
	res.Bytes = len(captured.Data)

	// A failure past this point fails the run but leaves the written report.
	if req.WantsEmailBody() {
		body, err := o.capturer.EmailBody(ctx, page)
		if err != nil {
			return res, schemas.Automation("capture email body", err)
		}
		if err := o.persister.Write(dest.emailBody, schemas.FormatPNG, schemas.NewArtifact(req.CreatedAt, body)); err != nil {
			return res, err
		}
	}

	res.Elapsed = o.now().Sub(start)
	o.metrics.ObserveCapture(req.Format, res.Source, res.Elapsed, res.Bytes)
	o.reporter.Succeed("The report is downloaded")
	logger.Info("Capture finished.",
		zap.String("path", res.Path),
		zap.String("source", string(res.Source)),
		zap.Bool("stable", res.Stability.Stable),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// preflight resolves the output paths and fails when one is taken.
func (o *Orchestrator) preflight(req schemas.ReportRequest) (destinations, error) {
	var d destinations
	var err error
	if d.primary, err = persist.Resolve(req.Filename); err != nil {
		return d, err
	}
	if err := o.persister.Check(d.primary); err != nil {
		return d, err
	}
	if !req.WantsEmailBody() {
		return d, nil
	}
	if d.emailBody, err = persist.Resolve(req.EmailBody); err != nil {
		return d, err
	}
	if d.emailBody == d.primary {
		return d, schemas.NewError(schemas.ErrCodeInvalidRequest, "email body and report must not share a filename", nil)
	}
	return d, o.persister.Check(d.emailBody)
}

// prepare sizes the viewport, strips application chrome and lets the page
// reflow before the stability wait.
func (o *Orchestrator) prepare(ctx context.Context, page schemas.Page, req schemas.ReportRequest) (schemas.ReportSource, error) {
	if err := page.SetViewport(ctx, req.Width, req.Height); err != nil {
		return "", schemas.Automation("set viewport", err)
	}

	src := source.Classify(req.URL)
	if script := pruneScript(src); script != "" {
		if err := page.Evaluate(ctx, script, nil); err != nil {
			return src, schemas.Automation("prune page chrome", err)
		}
		o.logger.Debug("Pruned page chrome.", zap.String("source", string(src)))
	}

	if err := o.sleep(ctx, o.cfg.Capture.SettleDelay); err != nil {
		return src, schemas.Automation("settle page", err)
	}
	return src, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
