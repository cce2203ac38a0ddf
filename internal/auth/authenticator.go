// Package auth drives the login handshakes that sit in front of a dashboard.
package auth

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"go.uber.org/zap"
)

// Authenticator logs a browser session in with one Scheme.
type Authenticator struct {
	scheme   Scheme
	opts     Options
	logger   *zap.Logger
	reporter schemas.StatusReporter
}

// New creates an authenticator for the named scheme.
func New(name schemas.AuthScheme, opts Options, logger *zap.Logger, reporter schemas.StatusReporter) (*Authenticator, error) {
	scheme, err := SchemeFor(name)
	if err != nil {
		return nil, schemas.NewError(schemas.ErrCodeInvalidRequest, "unsupported auth type", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		scheme:   scheme,
		opts:     opts,
		logger:   logger.Named("auth").With(zap.String("scheme", string(name))),
		reporter: reporter,
	}, nil
}

func (a *Authenticator) Scheme() Scheme { return a.scheme }

// handshake carries the state of one Authenticate call.
type handshake struct {
	*Authenticator
	req          schemas.ReportRequest
	primary      schemas.Page
	verification schemas.Page
	outcome      schemas.AuthOutcome
}

// Authenticate logs primary in and leaves it on req.URL. The verification
// page is only used by schemes completing with CompleteVerify.
//
// The returned outcome always carries the state trace, including on failure.
// Failures are *schemas.Error values: ErrInvalidCredentials, ErrInvalidTenant
// or an automation failure.
func (a *Authenticator) Authenticate(ctx context.Context, primary, verification schemas.Page, req schemas.ReportRequest) (schemas.AuthOutcome, error) {
	h := &handshake{
		Authenticator: a,
		req:           req,
		primary:       primary,
		verification:  verification,
		outcome:       schemas.AuthOutcome{Scheme: a.scheme.Name},
	}
	err := h.run(ctx)
	if err != nil {
		h.enter(schemas.StateFailed)
		a.logger.Warn("Login failed.", zap.Error(err), zap.Any("trace", h.outcome.Trace))
		return h.outcome, err
	}
	h.outcome.Succeeded = true
	return h.outcome, nil
}

func (h *handshake) enter(s schemas.AuthState) {
	h.outcome.Trace = append(h.outcome.Trace, s)
	h.logger.Debug("Login state changed.", zap.String("state", string(s)))
}

func (h *handshake) info(msg string) {
	if h.reporter != nil {
		h.reporter.Info(msg)
	}
}

func (h *handshake) run(ctx context.Context) error {
	h.enter(schemas.StateStart)
	h.info("Logging in with " + string(h.scheme.Name) + " authentication")

	if err := h.primary.Navigate(ctx, h.req.URL); err != nil {
		return schemas.Automation("navigate to login", err)
	}
	if err := h.enterCredentials(ctx); err != nil {
		return err
	}
	h.enter(schemas.StateCredentialsEntered)

	if err := h.primary.Click(ctx, h.scheme.Submit); err != nil {
		return schemas.Automation("submit login form", err)
	}
	h.enter(schemas.StateSubmitted)

	prompt, err := h.detectTenantPrompt(ctx)
	if err != nil {
		return err
	}

	if prompt && h.req.Multitenancy {
		h.enter(schemas.StateTenantPromptDetected)
		h.outcome.TenantPrompt = true
		tenant, err := h.selectTenant(ctx)
		if err != nil {
			return err
		}
		h.outcome.Tenant = tenant
		h.enter(schemas.StateTenantConfirmed)
	} else {
		h.enter(schemas.StateNoTenantPrompt)
		// A submit control that is still on screen means the form was rejected.
		still, err := h.primary.Exists(ctx, h.scheme.Submit)
		if err != nil {
			return schemas.Automation("check login result", err)
		}
		if still {
			return schemas.ErrInvalidCredentials
		}
		h.enter(schemas.StateSkipped)
	}

	return h.complete(ctx)
}

func (h *handshake) enterCredentials(ctx context.Context) error {
	s := h.scheme
	if err := h.primary.WaitFor(ctx, s.UsernameField, h.opts.FormTimeout); err != nil {
		if !s.ReloadForForm {
			return schemas.Automation("wait for login form", err)
		}
		h.logger.Debug("Username field missing, reloading login page.")
		if err := h.primary.Reload(ctx); err != nil {
			return schemas.Automation("reload login page", err)
		}
		if err := h.primary.WaitFor(ctx, s.UsernameField, h.opts.FormTimeout); err != nil {
			return schemas.Automation("wait for login form", err)
		}
	}
	if err := h.primary.Type(ctx, s.UsernameField, h.req.Credentials.Username); err != nil {
		return schemas.Automation("type username", err)
	}

	passwordTimeout := h.opts.FormTimeout
	if s.TwoStep() {
		passwordTimeout = h.opts.PasswordTimeout
	}
	if err := h.primary.WaitFor(ctx, s.PasswordField, passwordTimeout); err != nil {
		if !s.TwoStep() {
			return schemas.Automation("wait for password field", err)
		}
		h.logger.Debug("Password field not shown, continuing to the identity provider.")
		if err := h.primary.Click(ctx, s.Continue); err != nil {
			return schemas.Automation("continue login", err)
		}
		if err := h.primary.WaitFor(ctx, s.PasswordField, h.opts.FormTimeout); err != nil {
			return schemas.Automation("wait for password field", err)
		}
	}
	if err := h.primary.Type(ctx, s.PasswordField, h.req.Credentials.Password); err != nil {
		return schemas.Automation("type password", err)
	}
	return nil
}

// detectTenantPrompt waits for the submission to settle, then looks for the
// tenant selection prompt according to the scheme.
func (h *handshake) detectTenantPrompt(ctx context.Context) (bool, error) {
	promptShown := h.textVisible(h.primary, TenantPromptText)
	submitShown := h.selectorPresent(h.primary, h.scheme.Submit)

	// The submission has settled once the form is gone or the prompt is up.
	if _, err := poll(ctx, h.logger, h.opts.PollInterval, h.opts.SubmitTimeout, anyOf(promptShown, not(submitShown))); err != nil {
		return false, schemas.Automation("wait for login submission", err)
	}

	switch h.scheme.Tenant {
	case TenantOptional:
		if err := h.primary.Navigate(ctx, h.req.URL); err != nil {
			return false, schemas.Automation("navigate after login", err)
		}
		found, err := poll(ctx, h.logger, h.opts.PollInterval, h.opts.TenantProbeTimeout, promptShown)
		if err != nil {
			return false, schemas.Automation("probe tenant prompt", err)
		}
		return found, nil
	default:
		found, err := promptShown(ctx)
		if err != nil {
			return false, schemas.Automation("probe tenant prompt", err)
		}
		return found, nil
	}
}

// complete finalizes the login and leaves primary on the target URL.
func (h *handshake) complete(ctx context.Context) error {
	switch h.scheme.Completion {
	case CompleteVerify:
		if err := h.verify(ctx); err != nil {
			return err
		}
		h.enter(schemas.StateVerified)
		if err := h.renavigate(ctx); err != nil {
			return err
		}

	case CompleteFragmentLink:
		link := fmt.Sprintf(fragmentLinkSelectorF, h.req.Fragment())
		if err := h.primary.WaitFor(ctx, link, h.opts.FormTimeout); err != nil {
			return schemas.Automation("wait for report link", err)
		}
		if err := h.primary.Click(ctx, link); err != nil {
			return schemas.Automation("follow report link", err)
		}
		if err := h.primary.Reload(ctx); err != nil {
			return schemas.Automation("reload report", err)
		}

	case CompleteRenavigate:
		if err := h.renavigate(ctx); err != nil {
			return err
		}

	default:
		return schemas.Automation("complete login", fmt.Errorf("unknown completion %s", h.scheme.Completion))
	}

	h.enter(schemas.StateAuthenticated)
	h.logger.Info("Login succeeded.",
		zap.Bool("tenant_prompt", h.outcome.TenantPrompt),
		zap.String("tenant", h.outcome.Tenant))
	return nil
}

// verify loads the target in the independent tab. If a tenant was confirmed,
// the tab must not show a pending confirmation within the verify window.
func (h *handshake) verify(ctx context.Context) error {
	if h.verification == nil {
		return schemas.Automation("verify login", fmt.Errorf("no verification page"))
	}
	if err := h.verification.Navigate(ctx, h.req.URL); err != nil {
		return schemas.Automation("open verification page", err)
	}
	if !h.outcome.TenantPrompt {
		return nil
	}
	pending, err := poll(ctx, h.logger, h.opts.PollInterval, h.opts.VerifyWindow, h.selectorPresent(h.verification, TenantConfirm))
	if err != nil {
		return schemas.Automation("verify tenant", err)
	}
	if pending {
		return schemas.ErrInvalidTenant
	}
	return nil
}

func (h *handshake) renavigate(ctx context.Context) error {
	if err := h.primary.Navigate(ctx, h.req.URL); err != nil {
		return schemas.Automation("navigate to report", err)
	}
	if err := h.primary.Reload(ctx); err != nil {
		return schemas.Automation("reload report", err)
	}
	return nil
}

func (h *handshake) selectorPresent(page schemas.Page, selector string) condition {
	return func(ctx context.Context) (bool, error) {
		return page.Exists(ctx, selector)
	}
}

func (h *handshake) textVisible(page schemas.Page, text string) condition {
	script := fmt.Sprintf(tenantPromptProbeJS, text)
	return func(ctx context.Context) (bool, error) {
		var found bool
		if err := page.Evaluate(ctx, script, &found); err != nil {
			return false, err
		}
		return found, nil
	}
}
