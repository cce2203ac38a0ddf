// internal/browser/identity.go
package browser

import (
	"context"
	"fmt"
	"strings"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/reporting-cli/internal/config"
	"go.uber.org/zap"
)

// Some identity providers refuse logins from a browser that announces
// itself as automated.
const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// identity is how a tab presents itself to the sites it loads.
type identity struct {
	UserAgent string
	Locale    string
	Timezone  string
}

func identityFor(cfg config.BrowserConfig) identity {
	return identity{
		UserAgent: cfg.UserAgent,
		Locale:    cfg.Locale,
		Timezone:  timezone(cfg),
	}
}

// headfulUserAgent drops the headless marker from a Chrome user agent.
func headfulUserAgent(ua string) string {
	return strings.Replace(ua, "HeadlessChrome", "Chrome", 1)
}

// apply returns the tab setup actions for id.
func (id identity) apply(logger *zap.Logger) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			ua := id.UserAgent
			if ua == "" {
				_, _, _, real, _, err := cdpbrowser.GetVersion().Do(ctx)
				if err != nil {
					return fmt.Errorf("failed to read browser version: %w", err)
				}
				ua = headfulUserAgent(real)
			}
			logger.Debug("Setting user agent.", zap.String("user_agent", ua))
			override := emulation.SetUserAgentOverride(ua)
			if id.Locale != "" {
				override = override.WithAcceptLanguage(id.Locale)
			}
			return override.Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := cdppage.AddScriptToEvaluateOnNewDocument(hideWebdriverJS).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject identity script: %w", err)
			}
			return nil
		}),
		emulation.SetTimezoneOverride(id.Timezone),
	}
	if id.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(id.Locale))
	}
	return tasks
}
