package schemas

import (
	"context"
	"time"
)

// -- Browser Control Plane --

// PDFOptions configures a paginated document render. Dimensions are CSS pixels.
type PDFOptions struct {
	WidthPx         float64
	HeightPx        float64
	PrintBackground bool
	PageRanges      string
}

// ResponseMatcher selects the network response a Page.AwaitResponse call waits for.
type ResponseMatcher func(url string) bool

// Page is a single browser tab. Every method is a suspension point bounded
// by ctx; implementations must be driven sequentially.
type Page interface {
	// Navigate loads url and waits until the network has been idle.
	Navigate(ctx context.Context, url string) error
	// Reload reloads the current document and waits for network idleness.
	Reload(ctx context.Context) error
	// Exists reports whether selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitFor blocks until selector matches an element or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	// Type focuses the element matched by selector and sends text as keystrokes.
	Type(ctx context.Context, selector, text string) error
	// Evaluate runs script in the page and unmarshals the result into res (which may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
	// Content returns the serialized markup of the current document.
	Content(ctx context.Context) (string, error)
	SetViewport(ctx context.Context, width, height int) error
	// Screenshot captures a PNG of the whole scrollable page.
	Screenshot(ctx context.Context) ([]byte, error)
	PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error)
	// AwaitResponse starts watching for a response matching match, runs
	// trigger, then blocks until the matched response body is available.
	AwaitResponse(ctx context.Context, match ResponseMatcher, trigger func(context.Context) error) ([]byte, error)
}

// BrowserSession owns the two tabs used by a single capture.
type BrowserSession interface {
	ID() string
	Primary() Page
	// Verification is an independently navigated tab that shares cookies
	// with Primary.
	Verification() Page
	Close(ctx context.Context) error
}

// Launcher starts a browser session for one request.
type Launcher interface {
	Launch(ctx context.Context, req ReportRequest) (BrowserSession, error)
}

// -- Status Channel --

// StatusReporter receives sequential, human readable progress messages.
// It is not part of the pipeline's correctness contract.
type StatusReporter interface {
	Start(msg string)
	Info(msg string)
	Fail(msg string)
	Succeed(msg string)
}
