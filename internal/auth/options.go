package auth

import (
	"time"

	"github.com/xkilldash9x/reporting-cli/internal/config"
)

// Options bounds every wait of the handshake.
type Options struct {
	PollInterval time.Duration
	// FormTimeout bounds the appearance of form fields, tenant controls and links.
	FormTimeout time.Duration
	// SubmitTimeout bounds how long a submission (or a tenant confirmation) may take to settle.
	SubmitTimeout      time.Duration
	TenantProbeTimeout time.Duration
	// VerifyWindow is how long the verification tab is watched for a pending tenant confirmation.
	VerifyWindow    time.Duration
	PasswordTimeout time.Duration
}

// OptionsFromConfig maps the auth section of the configuration.
func OptionsFromConfig(cfg config.AuthConfig) Options {
	return Options{
		PollInterval:       cfg.PollInterval,
		FormTimeout:        cfg.FormTimeout,
		SubmitTimeout:      cfg.SubmitTimeout,
		TenantProbeTimeout: cfg.TenantProbeTimeout,
		VerifyWindow:       cfg.VerifyWindow,
		PasswordTimeout:    cfg.PasswordTimeout,
	}
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.NewDefaultConfig().Auth)
}
