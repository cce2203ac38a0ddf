// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/auth"
	"github.com/xkilldash9x/reporting-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"github.com/xkilldash9x/reporting-cli/internal/metrics"
	"github.com/xkilldash9x/reporting-cli/internal/mocks"
	"github.com/xkilldash9x/reporting-cli/internal/persist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	dashboardURL     = "https://dash.example.com/app/dashboards#/view/7adfa750"
	visualizationURL = "https://dash.example.com/app/visualize&_g=(time:(from:now-7d))#/edit/1"
	otherURL         = "https://status.example.com/overview"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nrendered dashboard")

// -- Test Fixture Setup --

type orchestratorTestFixture struct {
	Config       *config.Config
	FS           afero.Fs
	Primary      *browsertest.FakePage
	Verification *browsertest.FakePage
	Session      *mocks.MockSession
	Launcher     *mocks.MockLauncher
	Reporter     *mocks.MockReporter
	Metrics      *metrics.Recorder
	Orch         *Orchestrator
	Settled      []time.Duration
}

func setupTest(t *testing.T) *orchestratorTestFixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Capture.StabilityPoll = time.Millisecond
	cfg.Capture.StabilityChecks = 2
	cfg.Auth.PollInterval = time.Millisecond
	cfg.Auth.FormTimeout = 20 * time.Millisecond
	cfg.Auth.SubmitTimeout = 20 * time.Millisecond
	cfg.Auth.TenantProbeTimeout = 10 * time.Millisecond
	cfg.Auth.VerifyWindow = 10 * time.Millisecond
	cfg.Auth.PasswordTimeout = 10 * time.Millisecond

	f := &orchestratorTestFixture{
		Config:       cfg,
		FS:           afero.NewMemMapFs(),
		Primary:      browsertest.NewFakePage().SetContent("<html><body>report</body></html>").SetScreenshot(pngBytes),
		Verification: browsertest.NewFakePage(),
		Session:      &mocks.MockSession{},
		Launcher:     &mocks.MockLauncher{},
		Reporter:     mocks.NewMockReporter(),
		Metrics:      metrics.New(),
	}
	f.Session.On("Primary").Return(f.Primary).Maybe()
	f.Session.On("Verification").Return(f.Verification).Maybe()
	f.Session.On("Close", mock.Anything).Return(nil).Maybe()
	f.Launcher.On("Launch", mock.Anything, mock.Anything).Return(f.Session, nil).Maybe()

	logger := zaptest.NewLogger(t)
	orch, err := New(cfg, logger, f.Launcher, persist.New(f.FS, logger), f.Reporter, f.Metrics)
	require.NoError(t, err)
	orch.sleep = func(ctx context.Context, d time.Duration) error {
		f.Settled = append(f.Settled, d)
		return ctx.Err()
	}
	f.Orch = orch
	return f
}

func newRequest(url string, format schemas.Format, filename string) schemas.ReportRequest {
	return schemas.ReportRequest{
		URL:       url,
		Format:    format,
		Width:     1680,
		Height:    600,
		Filename:  filename,
		Auth:      schemas.AuthNone,
		CreatedAt: time.UnixMilli(1700000000000),
		Timeout:   50 * time.Millisecond,
	}
}

func (f *orchestratorTestFixture) file(t *testing.T, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(f.FS, path)
	require.NoError(t, err)
	return data
}

func (f *orchestratorTestFixture) assertRuns(t *testing.T, format schemas.Format, outcome string) {
	t.Helper()
	expected := `
# HELP reporting_runs_total Capture runs by format and outcome.
# TYPE reporting_runs_total counter
reporting_runs_total{format="` + string(format) + `",outcome="` + outcome + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.Metrics.Registry(), strings.NewReader(expected), "reporting_runs_total"))
}

// -- Test Cases --

func TestNewOrchestrator(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()
	p := persist.New(afero.NewMemMapFs(), logger)
	l := &mocks.MockLauncher{}
	r := mocks.NewMockReporter()
	m := metrics.New()

	_, err := New(cfg, logger, l, p, r, m)
	require.NoError(t, err)

	_, err = New(nil, logger, l, p, r, m)
	assert.Error(t, err)
	_, err = New(cfg, logger, nil, p, r, m)
	assert.Error(t, err)
	_, err = New(cfg, logger, l, nil, r, m)
	assert.Error(t, err)
	_, err = New(cfg, logger, l, p, nil, m)
	assert.Error(t, err)
	_, err = New(cfg, logger, l, p, r, nil)
	assert.Error(t, err)
}

func TestRun_RasterDashboard(t *testing.T) {
	f := setupTest(t)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/reports/out.png")

	res, err := f.Orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, pngBytes, f.file(t, "/reports/out.png"))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, schemas.SourceDashboard, res.Source)
	assert.Nil(t, res.Auth)
	assert.True(t, res.Stability.Stable)
	assert.Equal(t, len(pngBytes), res.Bytes)

	assert.Equal(t, []string{dashboardURL}, f.Primary.CallsTo("Navigate"))
	w, h := f.Primary.Viewport()
	assert.Equal(t, 1680, w)
	assert.Equal(t, 600, h)

	scripts := f.Primary.CallsTo("Evaluate")
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0], "[class^='euiHeader']")
	assert.Contains(t, scripts[0], "[class^='euiButton']")
	assert.Contains(t, scripts[0], "paddingTop = '0px'")
	assert.NotContains(t, scripts[0], "splitPanelResizer")

	assert.Equal(t, []time.Duration{f.Config.Capture.SettleDelay}, f.Settled)
	assert.Empty(t, f.Verification.Calls())

	assert.Equal(t, []string{
		"start: Connecting to url " + dashboardURL,
		"info: Connected to url " + dashboardURL,
		"start: Loading page",
		"start: Downloading report",
		"succeed: The report is downloaded",
	}, f.Reporter.Messages())

	f.Session.AssertCalled(t, "Close", mock.Anything)
	f.assertRuns(t, schemas.FormatPNG, "success")
}

func TestRun_SecondRunFailsBeforeLaunch(t *testing.T) {
	f := setupTest(t)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/reports/out.png")

	_, err := f.Orch.Run(context.Background(), req)
	require.NoError(t, err)
	f.Launcher.AssertNumberOfCalls(t, "Launch", 1)

	f.Primary.SetScreenshot([]byte("\x89PNGsecond"))
	_, err = f.Orch.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrDestinationExists)

	f.Launcher.AssertNumberOfCalls(t, "Launch", 1)
	assert.Equal(t, pngBytes, f.file(t, "/reports/out.png"), "the first artifact is never replaced")
	assert.Contains(t, f.Reporter.Messages(), "fail: Downloading report failed. "+err.Error())
}

func TestRun_VisualizationPrunesEditor(t *testing.T) {
	f := setupTest(t)
	_, err := f.Orch.Run(context.Background(), newRequest(visualizationURL, schemas.FormatPNG, "/viz.png"))
	require.NoError(t, err)

	scripts := f.Primary.CallsTo("Evaluate")
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0], `[data-test-subj="splitPanelResizer"]`)
	assert.Contains(t, scripts[0], ".visEditor__collapsibleSidebar")
}

func TestRun_OtherSourceIsNotPruned(t *testing.T) {
	f := setupTest(t)
	res, err := f.Orch.Run(context.Background(), newRequest(otherURL, schemas.FormatPNG, "/other.png"))
	require.NoError(t, err)

	assert.Equal(t, schemas.SourceOther, res.Source)
	assert.Empty(t, f.Primary.CallsTo("Evaluate"))
	assert.Len(t, f.Settled, 1, "the settle delay applies to every source")
}

func TestRun_PDF(t *testing.T) {
	f := setupTest(t)
	f.Primary.SetPDF([]byte("%PDF-1.7 report"))
	f.Primary.OnEvaluate("scrollHeight", func(string) (interface{}, error) { return 2400, nil })

	_, err := f.Orch.Run(context.Background(), newRequest(dashboardURL, schemas.FormatPDF, "/out.pdf"))
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF-1.7 report"), f.file(t, "/out.pdf"))
	opts := f.Primary.PDFOptions()
	require.Len(t, opts, 1)
	assert.Equal(t, 2400.0, opts[0].HeightPx)
}

func TestRun_CSVExportNotReady(t *testing.T) {
	f := setupTest(t)
	f.Primary.Show(`button[id="downloadReport"]`, "#generateCSV", "#generateCSV[disabled]")

	_, err := f.Orch.Run(context.Background(), newRequest(dashboardURL, schemas.FormatCSV, "/out.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrExportNotReady)

	exists, _ := afero.Exists(f.FS, "/out.csv")
	assert.False(t, exists)
	f.Session.AssertCalled(t, "Close", mock.Anything)
	f.assertRuns(t, schemas.FormatCSV, "export_not_ready")
}

func TestRun_CSV(t *testing.T) {
	f := setupTest(t)
	f.Primary.Show(`button[id="downloadReport"]`, "#generateCSV", `button[id="generateCSV"]`)
	f.Primary.AddResponse("https://dash.example.com/api/reporting/generateReport/abc", []byte(`{"data":"host,bytes\na,1\n"}`))

	_, err := f.Orch.Run(context.Background(), newRequest(dashboardURL, schemas.FormatCSV, "/out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "host,bytes\na,1\n", string(f.file(t, "/out.csv")))
}

func TestRun_EmailBody(t *testing.T) {
	f := setupTest(t)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Transport = "email"
	req.EmailBody = "/email-body.png"

	res, err := f.Orch.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/email-body.png", res.EmailBodyPath)
	assert.Equal(t, pngBytes, f.file(t, "/out.png"))
	assert.Equal(t, pngBytes, f.file(t, "/email-body.png"))
}

func TestRun_EmailBodyDestinationTaken(t *testing.T) {
	f := setupTest(t)
	require.NoError(t, afero.WriteFile(f.FS, "/email-body.png", []byte("old"), 0o644))
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Transport = "email"
	req.EmailBody = "/email-body.png"

	_, err := f.Orch.Run(context.Background(), req)
	assert.ErrorIs(t, err, schemas.ErrDestinationExists)
	f.Launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)

	exists, _ := afero.Exists(f.FS, "/out.png")
	assert.False(t, exists)
}

// failingFs refuses to create one path.
type failingFs struct {
	afero.Fs
	path string
}

func (fs failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == fs.path {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("no space left on device")}
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

func TestRun_EmailBodyWriteFailureKeepsPrimary(t *testing.T) {
	f := setupTest(t)
	f.Orch.persister = persist.New(failingFs{Fs: f.FS, path: "/email-body.png"}, zaptest.NewLogger(t))
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Transport = "email"
	req.EmailBody = "/email-body.png"

	_, err := f.Orch.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrFilesystem)
	assert.Contains(t, err.Error(), "no space left on device")

	// The report itself was already delivered and is left in place.
	assert.Equal(t, pngBytes, f.file(t, "/out.png"))
	exists, _ := afero.Exists(f.FS, "/email-body.png")
	assert.False(t, exists)

	assert.NotContains(t, f.Reporter.Messages(), "succeed: The report is downloaded")
	assert.Contains(t, f.Reporter.Messages(), "fail: Downloading report failed. "+err.Error())
	f.Session.AssertCalled(t, "Close", mock.Anything)
	f.assertRuns(t, schemas.FormatPNG, "filesystem_failure")
}

func TestRun_InvalidRequest(t *testing.T) {
	f := setupTest(t)
	req := newRequest("dashboards#/view/1", schemas.FormatPNG, "/out.png")

	_, err := f.Orch.Run(context.Background(), req)
	assert.ErrorIs(t, err, schemas.ErrInvalidRequest)
	f.Launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
	f.assertRuns(t, schemas.FormatPNG, "invalid_request")
}

func TestRun_LaunchFailure(t *testing.T) {
	f := setupTest(t)
	launcher := &mocks.MockLauncher{}
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("chrome not found"))
	f.Orch.launcher = launcher

	_, err := f.Orch.Run(context.Background(), newRequest(dashboardURL, schemas.FormatPNG, "/out.png"))
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeAutomation, schemas.CodeOf(err))
	assert.Contains(t, err.Error(), "chrome not found")
	f.Session.AssertNotCalled(t, "Close", mock.Anything)
}

func TestRun_NavigationFailureClosesSession(t *testing.T) {
	f := setupTest(t)
	f.Primary.FailOn("Navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))

	_, err := f.Orch.Run(context.Background(), newRequest(dashboardURL, schemas.FormatPNG, "/out.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrAutomation)
	f.Session.AssertCalled(t, "Close", mock.Anything)

	exists, _ := afero.Exists(f.FS, "/out.png")
	assert.False(t, exists)
}

func TestRun_Cancelled(t *testing.T) {
	f := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Orch.Run(ctx, newRequest(dashboardURL, schemas.FormatPNG, "/out.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	f.Session.AssertCalled(t, "Close", mock.Anything)
}

// basicLogin scripts the basic login form on the primary tab: submitting
// hides the form unless reject is set.
func basicLogin(t *testing.T, page *browsertest.FakePage, reject bool) {
	t.Helper()
	s, err := auth.SchemeFor(schemas.AuthBasic)
	require.NoError(t, err)
	page.Show(s.UsernameField, s.PasswordField, s.Submit)
	if !reject {
		page.OnClick(s.Submit, func(p *browsertest.FakePage) {
			p.Hide(s.UsernameField, s.PasswordField, s.Submit)
		})
	}
}

func TestRun_Authenticated(t *testing.T) {
	f := setupTest(t)
	basicLogin(t, f.Primary, false)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Auth = schemas.AuthBasic
	req.Credentials = schemas.Credentials{Username: "admin", Password: "s3cret"}

	res, err := f.Orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Auth)
	assert.True(t, res.Auth.Succeeded)
	assert.False(t, res.Auth.TenantPrompt)
	assert.Contains(t, f.Reporter.Messages(), "info: Credentials are verified")
	assert.Equal(t, pngBytes, f.file(t, "/out.png"))
}

func TestRun_InvalidCredentials(t *testing.T) {
	f := setupTest(t)
	basicLogin(t, f.Primary, true)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Auth = schemas.AuthBasic
	req.Credentials = schemas.Credentials{Username: "admin", Password: "wrong"}

	res, err := f.Orch.Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrInvalidCredentials)
	require.NotNil(t, res)
	require.NotNil(t, res.Auth)
	assert.False(t, res.Auth.Succeeded)

	exists, _ := afero.Exists(f.FS, "/out.png")
	assert.False(t, exists)
	f.Session.AssertCalled(t, "Close", mock.Anything)
	f.assertRuns(t, schemas.FormatPNG, "invalid_credentials")
}

func TestRun_CredentialsWithoutSchemeNavigatesDirectly(t *testing.T) {
	f := setupTest(t)
	req := newRequest(dashboardURL, schemas.FormatPNG, "/out.png")
	req.Credentials = schemas.Credentials{Username: "admin", Password: "s3cret"}

	res, err := f.Orch.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Auth)
	assert.Equal(t, []string{dashboardURL}, f.Primary.CallsTo("Navigate"))
}

func TestPruneScript(t *testing.T) {
	assert.Empty(t, pruneScript(schemas.SourceOther))
	assert.Empty(t, pruneScript(schemas.SourceSavedSearch))
	for _, src := range []schemas.ReportSource{schemas.SourceDashboard, schemas.SourceDiscover, schemas.SourceNotebook} {
		script := pruneScript(src)
		assert.Contains(t, script, "euiHeader", src)
		assert.NotContains(t, script, "visEditor", src)
	}
	assert.Contains(t, pruneScript(schemas.SourceVisualization), "visEditor__collapsibleSidebar")
}
