// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Per-request settings
// (URL, format, credentials) come from CLI flags and are not part of it.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Timezone        string   `mapstructure:"timezone" yaml:"timezone"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	SingleProcess   bool     `mapstructure:"single_process" yaml:"single_process"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// UserAgent overrides the browser's user agent. Empty keeps the real one
	// with the headless marker removed.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Locale    string `mapstructure:"locale" yaml:"locale"`
	// NetworkIdleQuiet is how long the tab must have zero in-flight requests
	// before a navigation is considered settled.
	NetworkIdleQuiet time.Duration `mapstructure:"network_idle_quiet" yaml:"network_idle_quiet"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CaptureConfig tunes the stabilization and capture steps.
type CaptureConfig struct {
	Width            int           `mapstructure:"width" yaml:"width"`
	Height           int           `mapstructure:"height" yaml:"height"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StabilityPoll    time.Duration `mapstructure:"stability_poll" yaml:"stability_poll"`
	StabilityChecks  int           `mapstructure:"stability_checks" yaml:"stability_checks"`
	SettleDelay      time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PDFWidth         float64       `mapstructure:"pdf_width" yaml:"pdf_width"`
	CSVButtonTimeout time.Duration `mapstructure:"csv_button_timeout" yaml:"csv_button_timeout"`
	EmailBody        string        `mapstructure:"email_body" yaml:"email_body"`
}

// AuthConfig bounds every wait of the login handshake. Each wait polls a
// predicate at PollInterval until it holds or its timeout elapses.
type AuthConfig struct {
	Username           string        `mapstructure:"username" yaml:"-"`
	Password           string        `mapstructure:"password" yaml:"-"`
	Tenant             string        `mapstructure:"tenant" yaml:"tenant"`
	Multitenancy       bool          `mapstructure:"multitenancy" yaml:"multitenancy"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	FormTimeout        time.Duration `mapstructure:"form_timeout" yaml:"form_timeout"`
	SubmitTimeout      time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
	TenantProbeTimeout time.Duration `mapstructure:"tenant_probe_timeout" yaml:"tenant_probe_timeout"`
	VerifyWindow       time.Duration `mapstructure:"verify_window" yaml:"verify_window"`
	PasswordTimeout    time.Duration `mapstructure:"password_timeout" yaml:"password_timeout"`
}

// MetricsConfig controls the optional Prometheus textfile output.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "reporting-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.timezone", "UTC")
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.single_process", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.network_idle_quiet", "500ms")
	v.SetDefault("browser.shutdown_timeout", "10s")

	// -- Capture --
	v.SetDefault("capture.width", 1680)
	v.SetDefault("capture.height", 600)
	v.SetDefault("capture.timeout", "5m")
	v.SetDefault("capture.stability_poll", "1s")
	v.SetDefault("capture.stability_checks", 5)
	v.SetDefault("capture.settle_delay", "2s")
	v.SetDefault("capture.pdf_width", 1680)
	v.SetDefault("capture.csv_button_timeout", "10s")
	v.SetDefault("capture.email_body", "email-body.png")

	// -- Auth --
	v.SetDefault("auth.tenant", "private")
	v.SetDefault("auth.multitenancy", true)
	v.SetDefault("auth.poll_interval", "250ms")
	v.SetDefault("auth.form_timeout", "20s")
	v.SetDefault("auth.submit_timeout", "30s")
	v.SetDefault("auth.tenant_probe_timeout", "5s")
	v.SetDefault("auth.verify_window", "5s")
	v.SetDefault("auth.password_timeout", "5s")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials and environment driven browser settings.
	_ = v.BindEnv("auth.username", "REPORTING_USERNAME")
	_ = v.BindEnv("auth.password", "REPORTING_PASSWORD")
	_ = v.BindEnv("browser.exec_path", "REPORTING_BROWSER_EXEC_PATH", "CHROMIUM_PATH")
	_ = v.BindEnv("browser.timezone", "REPORTING_BROWSER_TIMEZONE", "TZ")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture configuration invalid: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}
	return nil
}

// Validate checks the capture settings.
func (c *CaptureConfig) Validate() error {
	if c.StabilityPoll <= 0 {
		return fmt.Errorf("stability_poll must be a positive duration")
	}
	if c.StabilityChecks <= 0 {
		return fmt.Errorf("stability_checks must be greater than 0")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if c.PDFWidth <= 0 {
		return fmt.Errorf("pdf_width must be greater than 0")
	}
	return nil
}

// Validate checks the auth wait bounds.
func (a *AuthConfig) Validate() error {
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if a.FormTimeout <= 0 || a.SubmitTimeout <= 0 {
		return fmt.Errorf("form_timeout and submit_timeout must be positive durations")
	}
	if a.TenantProbeTimeout < 0 || a.VerifyWindow < 0 || a.PasswordTimeout < 0 {
		return fmt.Errorf("tenant_probe_timeout, verify_window and password_timeout must not be negative")
	}
	return nil
}
