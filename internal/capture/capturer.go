// Package capture turns a stabilized page into report bytes.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"go.uber.org/zap"
)

// Selectors and endpoints of the saved search export.
const (
	DownloadReportButton = `button[id="downloadReport"]`
	GenerateCSVButton    = `button[id="generateCSV"]`
	generateCSVControl   = `#generateCSV`
	generateCSVDisabled  = `#generateCSV[disabled]`
	GenerateReportPath   = "/api/reporting/generateReport"

	scrollHeightJS = `document.documentElement.scrollHeight`
)

// DefaultPDFWidth is the fixed page width of document captures, in CSS pixels.
const DefaultPDFWidth = 1680

// Options tunes the capture steps.
type Options struct {
	PDFWidth float64
	// CSVButtonTimeout bounds the appearance of the generate control once the
	// download menu was opened.
	CSVButtonTimeout time.Duration
}

// OptionsFromConfig maps the capture section of the configuration.
func OptionsFromConfig(cfg config.CaptureConfig) Options {
	return Options{PDFWidth: cfg.PDFWidth, CSVButtonTimeout: cfg.CSVButtonTimeout}
}

// Capturer produces a CaptureResult in the requested format.
type Capturer struct {
	opts     Options
	logger   *zap.Logger
	reporter schemas.StatusReporter
}

// New creates a capturer.
func New(opts Options, logger *zap.Logger, reporter schemas.StatusReporter) *Capturer {
	if opts.PDFWidth <= 0 {
		opts.PDFWidth = DefaultPDFWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{opts: opts, logger: logger.Named("capture"), reporter: reporter}
}

// Capture renders page as format.
func (c *Capturer) Capture(ctx context.Context, page schemas.Page, format schemas.Format) (schemas.CaptureResult, error) {
	if c.reporter != nil {
		c.reporter.Start("Downloading report")
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case schemas.FormatPDF:
		data, err = c.pdf(ctx, page)
	case schemas.FormatPNG:
		data, err = c.png(ctx, page)
	case schemas.FormatCSV:
		data, err = c.csv(ctx, page)
	default:
		return schemas.CaptureResult{}, schemas.NewError(schemas.ErrCodeInvalidRequest, fmt.Sprintf("unsupported format %q", format), nil)
	}
	if err != nil {
		return schemas.CaptureResult{}, err
	}

	c.logger.Info("Report captured.", zap.String("format", string(format)), zap.Int("bytes", len(data)))
	return schemas.CaptureResult{Format: format, Data: data}, nil
}

// EmailBody takes the full page preview image attached to email deliveries.
func (c *Capturer) EmailBody(ctx context.Context, page schemas.Page) (schemas.CaptureResult, error) {
	data, err := c.png(ctx, page)
	if err != nil {
		return schemas.CaptureResult{}, err
	}
	return schemas.CaptureResult{Format: schemas.FormatPNG, Data: data}, nil
}

// pdf renders a single page document as tall as the scrollable content.
func (c *Capturer) pdf(ctx context.Context, page schemas.Page) ([]byte, error) {
	var height float64
	if err := page.Evaluate(ctx, scrollHeightJS, &height); err != nil {
		return nil, schemas.Automation("measure scroll height", err)
	}
	if height <= 0 {
		return nil, schemas.Automation("measure scroll height", fmt.Errorf("document has no height"))
	}

	data, err := page.PrintToPDF(ctx, schemas.PDFOptions{
		WidthPx:         c.opts.PDFWidth,
		HeightPx:        height,
		PrintBackground: true,
		PageRanges:      "1",
	})
	if err != nil {
		return nil, schemas.Automation("print to pdf", err)
	}
	return data, nil
}

func (c *Capturer) png(ctx context.Context, page schemas.Page) ([]byte, error) {
	data, err := page.Screenshot(ctx)
	if err != nil {
		return nil, schemas.Automation("take screenshot", err)
	}
	return data, nil
}

type generateReportResponse struct {
	Data *string `json:"data"`
}

// csv drives the saved search export. A disabled generate control means the
// search was never saved and fails before any network wait starts.
func (c *Capturer) csv(ctx context.Context, page schemas.Page) ([]byte, error) {
	if err := page.Click(ctx, DownloadReportButton); err != nil {
		return nil, schemas.Automation("open download menu", err)
	}
	if err := page.WaitFor(ctx, generateCSVControl, c.opts.CSVButtonTimeout); err != nil {
		return nil, schemas.Automation("wait for csv export control", err)
	}
	disabled, err := page.Exists(ctx, generateCSVDisabled)
	if err != nil {
		return nil, schemas.Automation("check csv export control", err)
	}
	if disabled {
		return nil, schemas.ErrExportNotReady
	}

	matchGenerate := func(url string) bool { return strings.Contains(url, GenerateReportPath) }
	clickGenerate := func(ctx context.Context) error { return page.Click(ctx, GenerateCSVButton) }

	body, err := page.AwaitResponse(ctx, matchGenerate, clickGenerate)
	if err != nil {
		return nil, schemas.Automation("generate csv", err)
	}

	var resp generateReportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, schemas.Automation("decode csv response", err)
	}
	if resp.Data == nil {
		return nil, schemas.Automation("decode csv response", fmt.Errorf("response has no data field"))
	}
	return []byte(*resp.Data), nil
}
