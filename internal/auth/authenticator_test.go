package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
	"github.com/xkilldash9x/reporting-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/reporting-cli/internal/observability"
	"go.uber.org/zap/zaptest"
)

const targetURL = "https://dash.example.com/app/dashboards#/view/7adfa750"

func fastOptions() Options {
	return Options{
		PollInterval:       time.Millisecond,
		FormTimeout:        20 * time.Millisecond,
		SubmitTimeout:      20 * time.Millisecond,
		TenantProbeTimeout: 10 * time.Millisecond,
		VerifyWindow:       10 * time.Millisecond,
		PasswordTimeout:    10 * time.Millisecond,
	}
}

func newRequest(scheme schemas.AuthScheme, tenant string, multitenancy bool) schemas.ReportRequest {
	return schemas.ReportRequest{
		URL:          targetURL,
		Format:       schemas.FormatPNG,
		Auth:         scheme,
		Credentials:  schemas.Credentials{Username: "admin", Password: "s3cret"},
		Tenant:       tenant,
		Multitenancy: multitenancy,
	}
}

// loginPage scripts a single page login form. Submitting hides the form;
// with prompt set it also raises the tenant dialog.
func loginPage(s Scheme, prompt bool) *browsertest.FakePage {
	page := browsertest.NewFakePage()
	page.Show(s.UsernameField, s.PasswordField, s.Submit)
	page.OnEvaluate(TenantPromptText, func(string) (interface{}, error) {
		return page.Has(TenantConfirm), nil
	})
	page.OnClick(s.Submit, func(p *browsertest.FakePage) {
		p.Hide(s.UsernameField, s.PasswordField, s.Submit)
		if prompt {
			p.Show(TenantConfirm, tenantLabel(tenantGlobal), tenantLabel(tenantPrivate),
				TenantCustomLabel, TenantComboToggle, TenantComboSearch)
		}
	})
	page.OnClick(TenantConfirm, func(p *browsertest.FakePage) {
		p.Hide(TenantConfirm)
	})
	return page
}

func newAuthenticator(t *testing.T, name schemas.AuthScheme) *Authenticator {
	t.Helper()
	a, err := New(name, fastOptions(), zaptest.NewLogger(t), observability.NopReporter{})
	require.NoError(t, err)
	return a
}

func TestNew_UnknownScheme(t *testing.T) {
	for _, name := range []schemas.AuthScheme{schemas.AuthNone, "kerberos"} {
		_, err := New(name, fastOptions(), nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrInvalidRequest)
	}
}

func TestSchemeFor_Descriptors(t *testing.T) {
	tests := []struct {
		name       schemas.AuthScheme
		submit     string
		tenant     TenantDetection
		completion Completion
		twoStep    bool
	}{
		{schemas.AuthBasic, `button[type=submit]`, TenantAssumed, CompleteVerify, false},
		{schemas.AuthSAML, `[value="Sign in"]`, TenantAssumed, CompleteFragmentLink, false},
		{schemas.AuthCognito, `[name="signInSubmitButton"]`, TenantAssumed, CompleteVerify, false},
		{schemas.AuthOpenID, `[name="login"]`, TenantOptional, CompleteRenavigate, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			s, err := SchemeFor(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.submit, s.Submit)
			assert.Equal(t, tt.tenant, s.Tenant)
			assert.Equal(t, tt.completion, s.Completion)
			assert.Equal(t, tt.twoStep, s.TwoStep())
		})
	}
}

func TestAuthenticate_Basic_NoTenantPrompt(t *testing.T) {
	a := newAuthenticator(t, schemas.AuthBasic)
	s := a.Scheme()
	primary := loginPage(s, false)
	verification := browsertest.NewFakePage()

	outcome, err := a.Authenticate(context.Background(), primary, verification, newRequest(schemas.AuthBasic, "private", true))
	require.NoError(t, err)

	want := schemas.AuthOutcome{
		Scheme:    schemas.AuthBasic,
		Succeeded: true,
		Trace: []schemas.AuthState{
			schemas.StateStart,
			schemas.StateCredentialsEntered,
			schemas.StateSubmitted,
			schemas.StateNoTenantPrompt,
			schemas.StateSkipped,
			schemas.StateVerified,
			schemas.StateAuthenticated,
		},
	}
	if diff := cmp.Diff(want, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "admin", primary.Typed(s.UsernameField))
	assert.Equal(t, "s3cret", primary.Typed(s.PasswordField))
	assert.Equal(t, []string{targetURL, targetURL}, primary.CallsTo("Navigate"))
	assert.Len(t, primary.CallsTo("Reload"), 1)
	assert.Equal(t, []string{targetURL}, verification.CallsTo("Navigate"))
	// No tenant prompt means no tenant check on the verification page.
	assert.Empty(t, verification.CallsTo("Exists"))
}

func TestAuthenticate_SurvivesRedirectAfterSubmit(t *testing.T) {
	for _, name := range []schemas.AuthScheme{schemas.AuthBasic, schemas.AuthSAML, schemas.AuthCognito} {
		t.Run(string(name), func(t *testing.T) {
			a := newAuthenticator(t, name)
			s := a.Scheme()
			primary := loginPage(s, false)
			primary.Show("a[href='#/view/7adfa750']")

			// The first probe after submitting lands on a document that is
			// being replaced by the login redirect.
			submitted, failed := false, false
			primary.OnClick(s.Submit, func(p *browsertest.FakePage) {
				p.Hide(s.UsernameField, s.PasswordField, s.Submit)
				submitted = true
			})
			primary.OnEvaluate(TenantPromptText, func(string) (interface{}, error) {
				if submitted && !failed {
					failed = true
					return nil, errors.New("Execution context was destroyed.")
				}
				return primary.Has(TenantConfirm), nil
			})

			outcome, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(name, "private", true))
			require.NoError(t, err)
			assert.True(t, failed)
			assert.True(t, outcome.Succeeded)
			assert.Equal(t, schemas.StateAuthenticated, outcome.Trace[len(outcome.Trace)-1])
			assert.NotContains(t, outcome.Trace, schemas.StateFailed)
		})
	}
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	for _, name := range []schemas.AuthScheme{schemas.AuthBasic, schemas.AuthSAML, schemas.AuthCognito} {
		t.Run(string(name), func(t *testing.T) {
			a := newAuthenticator(t, name)
			s := a.Scheme()
			primary := browsertest.NewFakePage()
			// The form stays up after submission.
			primary.Show(s.UsernameField, s.PasswordField, s.Submit)
			verification := browsertest.NewFakePage()

			outcome, err := a.Authenticate(context.Background(), primary, verification, newRequest(name, "private", true))
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrInvalidCredentials)
			assert.Equal(t, schemas.ErrCodeInvalidCredentials, schemas.CodeOf(err))
			assert.False(t, outcome.Succeeded)
			assert.Equal(t, schemas.StateFailed, outcome.Trace[len(outcome.Trace)-1])
			assert.Contains(t, outcome.Trace, schemas.StateNoTenantPrompt)
			assert.Empty(t, verification.Calls())
		})
	}
}

func TestAuthenticate_TenantSelection(t *testing.T) {
	t.Run("built-in tenant", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := loginPage(a.Scheme(), true)
		verification := browsertest.NewFakePage()

		outcome, err := a.Authenticate(context.Background(), primary, verification, newRequest(schemas.AuthBasic, "global", true))
		require.NoError(t, err)

		assert.True(t, outcome.TenantPrompt)
		assert.Equal(t, "global", outcome.Tenant)
		assert.Equal(t, []schemas.AuthState{
			schemas.StateStart,
			schemas.StateCredentialsEntered,
			schemas.StateSubmitted,
			schemas.StateTenantPromptDetected,
			schemas.StateTenantConfirmed,
			schemas.StateVerified,
			schemas.StateAuthenticated,
		}, outcome.Trace)

		clicks := primary.CallsTo("Click")
		assert.Contains(t, clicks, "label[for=global]")
		assert.Contains(t, clicks, TenantConfirm)
		assert.NotContains(t, clicks, TenantCustomLabel)
		assert.Contains(t, verification.CallsTo("Exists"), TenantConfirm)
	})

	t.Run("custom tenant", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthCognito)
		primary := loginPage(a.Scheme(), true)

		outcome, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(schemas.AuthCognito, "analytics", true))
		require.NoError(t, err)

		assert.Equal(t, "analytics", outcome.Tenant)
		assert.Equal(t, []string{`[name="signInSubmitButton"]`, TenantCustomLabel, TenantComboToggle, TenantConfirm}, primary.CallsTo("Click"))
		assert.Equal(t, "analytics", primary.Typed(TenantComboSearch))
	})

	t.Run("multitenancy disabled ignores the prompt", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := loginPage(a.Scheme(), true)

		outcome, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(schemas.AuthBasic, "global", false))
		require.NoError(t, err)
		assert.False(t, outcome.TenantPrompt)
		assert.Contains(t, outcome.Trace, schemas.StateSkipped)
		assert.NotContains(t, primary.CallsTo("Click"), TenantConfirm)
	})

	t.Run("unknown tenant label", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := loginPage(a.Scheme(), true)
		primary.OnClick(a.Scheme().Submit, func(p *browsertest.FakePage) {
			// Prompt without the custom tenant controls.
			p.Hide(a.Scheme().Submit)
			p.Show(TenantConfirm)
		})

		_, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(schemas.AuthBasic, "analytics", true))
		assert.ErrorIs(t, err, schemas.ErrInvalidTenant)
	})

	t.Run("pending confirmation on verification page", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := loginPage(a.Scheme(), true)
		verification := browsertest.NewFakePage()
		verification.OnNavigate(func(p *browsertest.FakePage, _ string) {
			p.Show(TenantConfirm)
		})

		outcome, err := a.Authenticate(context.Background(), primary, verification, newRequest(schemas.AuthBasic, "global", true))
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrInvalidTenant)
		assert.NotContains(t, outcome.Trace, schemas.StateVerified)
		// The primary page is never re-requested after a failed verification.
		assert.Equal(t, []string{targetURL}, primary.CallsTo("Navigate"))
	})
}

func TestAuthenticate_SAML_FollowsFragmentLink(t *testing.T) {
	a := newAuthenticator(t, schemas.AuthSAML)
	primary := loginPage(a.Scheme(), false)
	link := "a[href='#/view/7adfa750']"
	primary.Show(link)
	verification := browsertest.NewFakePage()

	outcome, err := a.Authenticate(context.Background(), primary, verification, newRequest(schemas.AuthSAML, "private", true))
	require.NoError(t, err)

	assert.Equal(t, []schemas.AuthState{
		schemas.StateStart,
		schemas.StateCredentialsEntered,
		schemas.StateSubmitted,
		schemas.StateNoTenantPrompt,
		schemas.StateSkipped,
		schemas.StateAuthenticated,
	}, outcome.Trace)
	clicks := primary.CallsTo("Click")
	assert.Equal(t, link, clicks[len(clicks)-1])
	assert.Len(t, primary.CallsTo("Reload"), 1)
	assert.Empty(t, verification.Calls(), "saml never uses the verification page")
}

func TestAuthenticate_OpenID_TwoStepForm(t *testing.T) {
	a := newAuthenticator(t, schemas.AuthOpenID)
	s := a.Scheme()

	primary := browsertest.NewFakePage()
	primary.Show(s.Submit)
	primary.OnEvaluate(TenantPromptText, func(string) (interface{}, error) { return false, nil })
	// The username field only shows up after a reload.
	primary.OnReload(func(p *browsertest.FakePage) { p.Show(s.UsernameField) })
	logins := 0
	primary.OnClick(s.Submit, func(p *browsertest.FakePage) {
		logins++
		if logins == 1 {
			p.Show(s.PasswordField)
			return
		}
		p.Hide(s.UsernameField, s.PasswordField, s.Submit)
	})

	outcome, err := a.Authenticate(context.Background(), primary, nil, newRequest(schemas.AuthOpenID, "private", true))
	require.NoError(t, err)

	assert.Equal(t, 2, logins, "continue then submit")
	assert.Equal(t, "s3cret", primary.Typed(s.PasswordField))
	assert.False(t, outcome.TenantPrompt)
	assert.Equal(t, schemas.StateAuthenticated, outcome.Trace[len(outcome.Trace)-1])
	assert.NotContains(t, outcome.Trace, schemas.StateVerified)
	// Login page, post-login re-request, final re-request.
	assert.Equal(t, []string{targetURL, targetURL, targetURL}, primary.CallsTo("Navigate"))
	// One reload for the missing form, one after the final navigation.
	assert.Len(t, primary.CallsTo("Reload"), 2)
}

func TestAuthenticate_OpenID_OptionalTenantPrompt(t *testing.T) {
	a := newAuthenticator(t, schemas.AuthOpenID)
	s := a.Scheme()
	primary := loginPage(s, false)
	// The tenant dialog is raised by the post-login re-request.
	navigations := 0
	primary.OnNavigate(func(p *browsertest.FakePage, _ string) {
		navigations++
		if navigations == 2 {
			p.Show(TenantConfirm, tenantLabel(tenantPrivate))
		}
	})

	outcome, err := a.Authenticate(context.Background(), primary, nil, newRequest(schemas.AuthOpenID, "private", true))
	require.NoError(t, err)
	assert.True(t, outcome.TenantPrompt)
	assert.Equal(t, "private", outcome.Tenant)
}

func TestAuthenticate_AutomationFailures(t *testing.T) {
	t.Run("login form never appears", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := browsertest.NewFakePage()

		outcome, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(schemas.AuthBasic, "private", true))
		require.Error(t, err)
		assert.Equal(t, schemas.ErrCodeAutomation, schemas.CodeOf(err))
		assert.Equal(t, []schemas.AuthState{schemas.StateStart, schemas.StateFailed}, outcome.Trace)
	})

	t.Run("navigation error", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthCognito)
		boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
		primary := browsertest.NewFakePage().FailOn("Navigate", boom)

		_, err := a.Authenticate(context.Background(), primary, browsertest.NewFakePage(), newRequest(schemas.AuthCognito, "private", true))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, schemas.ErrCodeAutomation, schemas.CodeOf(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		a := newAuthenticator(t, schemas.AuthBasic)
		primary := loginPage(a.Scheme(), false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := a.Authenticate(ctx, primary, browsertest.NewFakePage(), newRequest(schemas.AuthBasic, "private", true))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
