// File: cmd/capture.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/browser"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"github.com/xkilldash9x/reporting-cli/internal/metrics"
	"github.com/xkilldash9x/reporting-cli/internal/observability"
	"github.com/xkilldash9x/reporting-cli/internal/orchestrator"
	"github.com/xkilldash9x/reporting-cli/internal/persist"
)

// launcherProvider creates the browser launcher for a run. Tests swap in a
// launcher backed by fake pages.
type launcherProvider interface {
	Create(cfg config.BrowserConfig, logger *zap.Logger) schemas.Launcher
}

type chromeLauncherProvider struct{}

func (chromeLauncherProvider) Create(cfg config.BrowserConfig, logger *zap.Logger) schemas.Launcher {
	return browser.NewLauncher(cfg, logger)
}

// captureDeps are the outer collaborators of the capture command.
type captureDeps struct {
	launchers launcherProvider
	fs        afero.Fs
	now       func() time.Time
}

func defaultCaptureDeps() captureDeps {
	return captureDeps{
		launchers: chromeLauncherProvider{},
		fs:        afero.NewOsFs(),
		now:       time.Now,
	}
}

// captureOptions holds the raw flag values of one invocation.
type captureOptions struct {
	url          string
	auth         string
	credentials  string
	tenant       string
	multitenancy bool
	format       string
	width        int
	height       int
	filename     string
	transport    string
	emailBody    string
	timeout      time.Duration
}

// newCaptureCmd creates and configures the `capture` command.
func newCaptureCmd(deps captureDeps) *cobra.Command {
	var opts captureOptions

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a report from a dashboard URL",
		Long: `Opens the URL in a headless browser, logs in if an auth type and credentials
are given, waits for the page to stop changing and writes it as a PDF, PNG
or CSV file. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("multitenancy") {
				opts.multitenancy = cfg.Auth.Multitenancy
			}

			reporter := observability.NewConsoleReporter(cmd.ErrOrStderr(), logger, cfg.Logger.Format != "json")
			res, err := runCapture(ctx, logger, cfg, opts, deps, reporter)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	f := captureCmd.Flags()
	f.StringVarP(&opts.url, "url", "u", "", "URL of the report to capture (required)")
	_ = captureCmd.MarkFlagRequired("url")
	f.StringVarP(&opts.auth, "auth", "a", string(schemas.AuthNone), "authentication type: none, basic, saml, cognito or openid")
	f.StringVarP(&opts.credentials, "credentials", "c", "", "login credentials as username:password (or REPORTING_USERNAME/REPORTING_PASSWORD)")
	f.StringVarP(&opts.tenant, "tenant", "t", "", "tenant to select after login: global, private or a custom tenant name")
	f.BoolVar(&opts.multitenancy, "multitenancy", true, "handle the tenant selection prompt")
	f.StringVarP(&opts.format, "format", "f", string(schemas.FormatPDF), "report format: pdf, png or csv")
	f.IntVarP(&opts.width, "width", "w", 0, "viewport width in pixels (default from config)")
	f.IntVarP(&opts.height, "height", "l", 0, "viewport height in pixels (default from config)")
	f.StringVarP(&opts.filename, "filename", "n", "", "output file (default reporting_<unix-ms>.<format>)")
	f.StringVarP(&opts.transport, "transport", "e", "", "delivery channel; when set an email body image is written too")
	f.StringVar(&opts.emailBody, "emailbody", "", "email body image file (default from config)")
	f.DurationVar(&opts.timeout, "timeout", 0, "per operation browser timeout (default from config)")

	return captureCmd
}

// runCapture contains the testable core of the capture command.
func runCapture(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	opts captureOptions,
	deps captureDeps,
	reporter schemas.StatusReporter,
) (*orchestrator.Result, error) {
	req, err := buildRequest(opts, cfg, deps.now())
	if err != nil {
		return nil, err
	}

	recorder := metrics.New()
	orch, err := orchestrator.New(
		cfg,
		logger,
		deps.launchers.Create(cfg.Browser, logger),
		persist.New(deps.fs, logger),
		reporter,
		recorder,
	)
	if err != nil {
		return nil, err
	}

	res, runErr := orch.Run(ctx, req)

	if cfg.Metrics.Enabled {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics.", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	return res, runErr
}

// buildRequest turns flag values into a validated request, filling gaps
// from the configuration.
func buildRequest(opts captureOptions, cfg *config.Config, now time.Time) (schemas.ReportRequest, error) {
	invalid := func(err error) error {
		return schemas.NewError(schemas.ErrCodeInvalidRequest, err.Error(), nil)
	}

	format, err := schemas.ParseFormat(opts.format)
	if err != nil {
		return schemas.ReportRequest{}, invalid(err)
	}
	scheme, err := schemas.ParseAuthScheme(opts.auth)
	if err != nil {
		return schemas.ReportRequest{}, invalid(err)
	}
	creds, err := parseCredentials(opts.credentials, cfg.Auth)
	if err != nil {
		return schemas.ReportRequest{}, invalid(err)
	}

	req := schemas.ReportRequest{
		URL:          strings.TrimSpace(opts.url),
		Format:       format,
		Width:        firstPositive(opts.width, cfg.Capture.Width),
		Height:       firstPositive(opts.height, cfg.Capture.Height),
		Filename:     opts.filename,
		Auth:         scheme,
		Credentials:  creds,
		Tenant:       firstNonEmpty(opts.tenant, cfg.Auth.Tenant),
		Multitenancy: opts.multitenancy,
		CreatedAt:    now,
		Transport:    opts.transport,
		EmailBody:    firstNonEmpty(opts.emailBody, cfg.Capture.EmailBody),
		Timeout:      opts.timeout,
	}
	if req.Filename == "" {
		req.Filename = defaultFilename(format, now)
	}
	if req.Timeout <= 0 {
		req.Timeout = cfg.Capture.Timeout
	}
	return req, req.Validate()
}

// parseCredentials splits "username:password" at the first colon. Missing
// parts come from the configuration.
func parseCredentials(raw string, cfg config.AuthConfig) (schemas.Credentials, error) {
	creds := schemas.Credentials{Username: cfg.Username, Password: cfg.Password}
	if raw == "" {
		return creds, nil
	}
	user, pass, found := strings.Cut(raw, ":")
	if !found || user == "" {
		return creds, fmt.Errorf("credentials must be given as username:password")
	}
	creds.Username = user
	if pass != "" {
		creds.Password = pass
	}
	return creds, nil
}

func defaultFilename(format schemas.Format, now time.Time) string {
	return fmt.Sprintf("reporting_%d.%s", now.UnixMilli(), format)
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func printResult(w io.Writer, res *orchestrator.Result) {
	fmt.Fprintln(w, res.Path)
	if res.EmailBodyPath != "" {
		fmt.Fprintln(w, res.EmailBodyPath)
	}
}
