// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

// cssPixelsPerInch converts CSS pixels to the inches PrintToPDF expects.
const cssPixelsPerInch = 96.0

// Page is one chromedp tab. Every call derives its context from the tab
// context and the caller's context, bounded by the per operation timeout.
type Page struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	monitor *networkMonitor
	logger  *zap.Logger

	timeout     time.Duration
	quietPeriod time.Duration
}

var _ schemas.Page = (*Page)(nil)

func (p *Page) op(ctx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := CombineContext(p.ctx, ctx)
	if p.timeout <= 0 {
		return combined, cancel
	}
	bounded, cancelTimeout := context.WithTimeout(combined, p.timeout)
	return bounded, func() {
		cancelTimeout()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// settle waits for the network of the current document to go idle.
func (p *Page) settle() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return p.monitor.waitIdle(ctx, p.quietPeriod)
	})
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	p.monitor.reset()
	if err := p.run(ctx, chromedp.Navigate(url), p.settle()); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.monitor.reset()
	if err := p.run(ctx, chromedp.Reload(), p.settle()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	sel, err := jsString(selector)
	if err != nil {
		return false, err
	}
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, sel), &found)); err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return found, nil
}

func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := p.op(ctx)
	defer cancel()
	if timeout > 0 {
		var cancelWait context.CancelFunc
		opCtx, cancelWait = context.WithTimeout(opCtx, timeout)
		defer cancelWait()
	}
	if err := chromedp.Run(opCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
}

// Screenshot captures the whole scrollable page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 selects PNG encoding.
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *Page) PrintToPDF(ctx context.Context, opts schemas.PDFOptions) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := cdppage.PrintToPDF().
			WithPaperWidth(opts.WidthPx / cssPixelsPerInch).
			WithPaperHeight(opts.HeightPx / cssPixelsPerInch).
			WithPrintBackground(opts.PrintBackground).
			WithPageRanges(opts.PageRanges).
			WithMarginTop(0).
			WithMarginBottom(0).
			WithMarginLeft(0).
			WithMarginRight(0).
			Do(ctx)
		buf = data
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return buf, nil
}

// AwaitResponse arms a watch before running trigger, so a response that
// arrives while trigger is still running is not missed.
func (p *Page) AwaitResponse(ctx context.Context, match schemas.ResponseMatcher, trigger func(context.Context) error) ([]byte, error) {
	opCtx, cancel := p.op(ctx)
	defer cancel()

	w := p.monitor.watch(match)
	defer p.monitor.unwatch(w)

	if err := trigger(opCtx); err != nil {
		return nil, err
	}

	select {
	case <-opCtx.Done():
		return nil, fmt.Errorf("waiting for response: %w", opCtx.Err())
	case err := <-w.done:
		if err != nil {
			return nil, err
		}
	}

	var body []byte
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(w.requestID).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (p *Page) close() {
	p.cancel()
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
