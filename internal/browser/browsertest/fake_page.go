// Package browsertest provides an in-memory schemas.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

// Call records one method invocation on a FakePage.
type Call struct {
	Method string
	Arg    string
}

// Response is a scripted network response for AwaitResponse.
type Response struct {
	URL  string
	Body []byte
}

type evalRule struct {
	contains string
	fn       func(script string) (interface{}, error)
}

// FakePage is a scripted page. Element presence is a set of selectors that
// tests and hooks mutate; nothing changes on its own.
type FakePage struct {
	mu sync.Mutex

	url      string
	content  string
	present  map[string]bool
	typed    map[string]string
	calls    []Call
	failures map[string]error

	onClick    map[string]func(p *FakePage)
	onNavigate func(p *FakePage, url string)
	onReload   func(p *FakePage)
	evals      []evalRule

	viewport   [2]int
	screenshot []byte
	pdf        []byte
	pdfOpts    []schemas.PDFOptions
	responses  []Response
}

var _ schemas.Page = (*FakePage)(nil)

// NewFakePage returns an empty page with non-empty screenshot and PDF payloads.
func NewFakePage() *FakePage {
	return &FakePage{
		present:    make(map[string]bool),
		typed:      make(map[string]string),
		failures:   make(map[string]error),
		onClick:    make(map[string]func(p *FakePage)),
		screenshot: []byte("\x89PNG\r\n\x1a\nfake"),
		pdf:        []byte("%PDF-1.4 fake"),
	}
}

// -- Scripting --

// Show marks selectors as present.
func (p *FakePage) Show(selectors ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.present[s] = true
	}
	return p
}

// Hide marks selectors as absent.
func (p *FakePage) Hide(selectors ...string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.present, s)
	}
	return p
}

// SetContent sets the markup returned by Content.
func (p *FakePage) SetContent(html string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = html
	return p
}

func (p *FakePage) SetScreenshot(data []byte) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshot = data
	return p
}

func (p *FakePage) SetPDF(data []byte) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pdf = data
	return p
}

// OnClick runs fn (without the page lock held) after selector is clicked.
func (p *FakePage) OnClick(selector string, fn func(p *FakePage)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
	return p
}

func (p *FakePage) OnNavigate(fn func(p *FakePage, url string)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
	return p
}

func (p *FakePage) OnReload(fn func(p *FakePage)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
	return p
}

// OnEvaluate answers scripts containing substr. Later rules win.
func (p *FakePage) OnEvaluate(substr string, fn func(script string) (interface{}, error)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append([]evalRule{{contains: substr, fn: fn}}, p.evals...)
	return p
}

// AddResponse queues a network response for AwaitResponse.
func (p *FakePage) AddResponse(url string, body []byte) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, Response{URL: url, Body: body})
	return p
}

// FailOn makes every call to method return err.
func (p *FakePage) FailOn(method string, err error) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = err
	return p
}

// -- Inspection --

func (p *FakePage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsTo returns the arguments of every call to method, in order.
func (p *FakePage) CallsTo(method string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

// Has reports whether selector is currently present.
func (p *FakePage) Has(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector]
}

// Typed returns the text typed into selector.
func (p *FakePage) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) Viewport() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport[0], p.viewport[1]
}

func (p *FakePage) PDFOptions() []schemas.PDFOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.PDFOptions(nil), p.pdfOpts...)
}

// -- schemas.Page --

func (p *FakePage) record(method, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Arg: arg})
	return p.failures[method]
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.record("Navigate", url); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	hook := p.onNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) Reload(ctx context.Context) error {
	if err := p.record("Reload", p.URL()); err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.onReload
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return ctx.Err()
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.record("Exists", selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector], ctx.Err()
}

// WaitFor answers immediately: the fake's state only changes through hooks,
// so waiting would never change the outcome.
func (p *FakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.record("WaitFor", selector); err != nil {
		return err
	}
	p.mu.Lock()
	ok := p.present[selector]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("waiting for %q (%s): %w", selector, timeout, context.DeadlineExceeded)
	}
	return ctx.Err()
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	if err := p.record("Click", selector); err != nil {
		return err
	}
	p.mu.Lock()
	ok := p.present[selector]
	hook := p.onClick[selector]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("click %q: no node matched", selector)
	}
	if hook != nil {
		hook(p)
	}
	return ctx.Err()
}

func (p *FakePage) Type(ctx context.Context, selector, text string) error {
	if err := p.record("Type", selector); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return fmt.Errorf("type into %q: no node matched", selector)
	}
	p.typed[selector] += text
	return ctx.Err()
}

func (p *FakePage) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := p.record("Evaluate", script); err != nil {
		return err
	}
	p.mu.Lock()
	var rule *evalRule
	for i := range p.evals {
		if strings.Contains(script, p.evals[i].contains) {
			rule = &p.evals[i]
			break
		}
	}
	p.mu.Unlock()

	if rule == nil {
		return ctx.Err()
	}
	v, err := rule.fn(script)
	if err != nil || res == nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	if err := p.record("Content", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, ctx.Err()
}

func (p *FakePage) SetViewport(ctx context.Context, width, height int) error {
	if err := p.record("SetViewport", fmt.Sprintf("%dx%d", width, height)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = [2]int{width, height}
	return ctx.Err()
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.record("Screenshot", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.screenshot...), ctx.Err()
}

func (p *FakePage) PrintToPDF(ctx context.Context, opts schemas.PDFOptions) ([]byte, error) {
	if err := p.record("PrintToPDF", fmt.Sprintf("%gx%g", opts.WidthPx, opts.HeightPx)); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pdfOpts = append(p.pdfOpts, opts)
	return append([]byte(nil), p.pdf...), ctx.Err()
}

// AwaitResponse runs trigger and returns the first queued response whose URL
// satisfies match.
func (p *FakePage) AwaitResponse(ctx context.Context, match schemas.ResponseMatcher, trigger func(context.Context) error) ([]byte, error) {
	if err := p.record("AwaitResponse", ""); err != nil {
		return nil, err
	}
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.responses {
		if match(r.URL) {
			p.responses = append(p.responses[:i], p.responses[i+1:]...)
			return r.Body, nil
		}
	}
	return nil, fmt.Errorf("no matching response: %w", context.DeadlineExceeded)
}
