package auth

import (
	"fmt"

	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

// TenantDetection controls how the tenant selection prompt is looked for
// after the credentials are submitted.
type TenantDetection int

const (
	// TenantAssumed probes for the prompt once the submission has settled.
	TenantAssumed TenantDetection = iota
	// TenantOptional re-requests the target and waits a short while for the
	// prompt. Its absence is not an error.
	TenantOptional
)

// Completion is the strategy that finalizes a login once credentials and
// tenant have been handled.
type Completion int

const (
	// CompleteVerify loads the target in the verification tab to prove the
	// session is global, then re-requests and reloads the primary tab.
	CompleteVerify Completion = iota
	// CompleteFragmentLink follows the in-app link to the target's fragment
	// and reloads. The identity provider redirect lands on the app root.
	CompleteFragmentLink
	// CompleteRenavigate re-requests and reloads the primary tab.
	CompleteRenavigate
)

func (c Completion) String() string {
	switch c {
	case CompleteVerify:
		return "verify"
	case CompleteFragmentLink:
		return "fragment-link"
	case CompleteRenavigate:
		return "renavigate"
	default:
		return fmt.Sprintf("Completion(%d)", int(c))
	}
}

// Scheme describes one login handshake. All schemes are driven by the same
// state machine.
type Scheme struct {
	Name          schemas.AuthScheme
	UsernameField string
	PasswordField string
	Submit        string
	// Continue is clicked when the password field does not show up after the
	// username was typed (identity provider realm discovery). Empty for
	// single page forms.
	Continue string
	// ReloadForForm reloads once when the username field is slow to appear.
	ReloadForForm bool
	Tenant        TenantDetection
	Completion    Completion
}

// TwoStep reports whether the password may live on a second form page.
func (s Scheme) TwoStep() bool { return s.Continue != "" }

// Tenant prompt selectors shared by every scheme.
const (
	TenantPromptText      = "Select your tenant"
	TenantCustomLabel     = `label[for="custom"]`
	TenantComboToggle     = `button[data-test-subj="comboBoxToggleListButton"]`
	TenantComboSearch     = `input[data-test-subj="comboBoxSearchInput"]`
	TenantConfirm         = `button[data-test-subj="confirm"]`
	tenantGlobal          = "global"
	tenantPrivate         = "private"
	tenantPromptProbeJS   = `(() => !!document.body && document.body.innerText.includes(%q))()`
	fragmentLinkSelectorF = `a[href='%s']`
)

var schemes = map[schemas.AuthScheme]Scheme{
	schemas.AuthBasic: {
		Name:          schemas.AuthBasic,
		UsernameField: `input[data-test-subj="user-name"]`,
		PasswordField: `[data-test-subj="password"]`,
		Submit:        `button[type=submit]`,
		Tenant:        TenantAssumed,
		Completion:    CompleteVerify,
	},
	schemas.AuthSAML: {
		Name:          schemas.AuthSAML,
		UsernameField: `[name="identifier"]`,
		PasswordField: `[name="credentials.passcode"]`,
		Submit:        `[value="Sign in"]`,
		Tenant:        TenantAssumed,
		Completion:    CompleteFragmentLink,
	},
	schemas.AuthCognito: {
		Name:          schemas.AuthCognito,
		UsernameField: `[name="username"]`,
		PasswordField: `[name="password"]`,
		Submit:        `[name="signInSubmitButton"]`,
		Tenant:        TenantAssumed,
		Completion:    CompleteVerify,
	},
	schemas.AuthOpenID: {
		Name:          schemas.AuthOpenID,
		UsernameField: `[name="username"]`,
		PasswordField: `[name="password"]`,
		Submit:        `[name="login"]`,
		Continue:      `[name="login"]`,
		ReloadForForm: true,
		Tenant:        TenantOptional,
		Completion:    CompleteRenavigate,
	},
}

// SchemeFor returns the descriptor registered for name.
func SchemeFor(name schemas.AuthScheme) (Scheme, error) {
	s, ok := schemes[name]
	if !ok {
		return Scheme{}, fmt.Errorf("no login handshake for auth type %q", name)
	}
	return s, nil
}

// tenantLabel returns the radio label for the built-in tenants.
func tenantLabel(tenant string) string {
	return fmt.Sprintf("label[for=%s]", tenant)
}
