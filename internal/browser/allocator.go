// internal/browser/allocator.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/reporting-cli/internal/config"
)

const defaultTimezone = "UTC"

// launchFlag is a single command line switch of the browser process.
type launchFlag struct {
	Name  string
	Value interface{}
}

// launchFlags lists the switches needed to run in a container: no sandbox,
// no GPU, no /dev/shm and deterministic font rendering.
func launchFlags(cfg config.BrowserConfig) []launchFlag {
	flags := []launchFlag{
		{"no-sandbox", true},
		{"disable-setuid-sandbox", true},
		{"disable-gpu", true},
		{"disable-dev-shm-usage", true},
		{"no-zygote", true},
		{"font-render-hinting", "none"},
		{"enable-features", "NetworkService"},
		{"headless", cfg.Headless},
	}
	if cfg.Headless {
		flags = append(flags, launchFlag{"hide-scrollbars", true}, launchFlag{"mute-audio", true})
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags, launchFlag{"ignore-certificate-errors", true})
	}
	if cfg.SingleProcess {
		flags = append(flags, launchFlag{"single-process", true})
	}

	// Extra args from the config file; "--key=value" or boolean "--key".
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, launchFlag{key, value})
		} else {
			flags = append(flags, launchFlag{key, true})
		}
	}
	return flags
}

// timezone returns the zone the browser process is pinned to.
func timezone(cfg config.BrowserConfig) string {
	if cfg.Timezone == "" {
		return defaultTimezone
	}
	return cfg.Timezone
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Env("TZ=" + timezone(cfg)),
	}
	for _, f := range launchFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
