package schemas

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// -- Enumerations --

// Format is the kind of artifact a capture produces.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
	FormatCSV Format = "csv"
)

// ParseFormat normalizes and validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatPNG, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected pdf, png or csv)", s)
	}
}

// IsBinary reports whether the format is carried as base64 encoded bytes.
func (f Format) IsBinary() bool {
	return f == FormatPDF || f == FormatPNG
}

// MIMEType returns the media type used in the data URI of a binary payload.
func (f Format) MIMEType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	default:
		return "text/csv"
	}
}

// AuthScheme names one of the supported login handshakes.
type AuthScheme string

const (
	AuthNone    AuthScheme = "none"
	AuthBasic   AuthScheme = "basic"
	AuthSAML    AuthScheme = "saml"
	AuthCognito AuthScheme = "cognito"
	AuthOpenID  AuthScheme = "openid"
)

// ParseAuthScheme normalizes and validates an auth scheme name. The empty
// string maps to AuthNone.
func ParseAuthScheme(s string) (AuthScheme, error) {
	switch a := AuthScheme(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AuthNone, nil
	case AuthNone, AuthBasic, AuthSAML, AuthCognito, AuthOpenID:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported auth type %q (expected none, basic, saml, cognito or openid)", s)
	}
}

// ReportSource is the category of dashboard content behind a URL.
type ReportSource string

const (
	SourceDashboard     ReportSource = "Dashboard"
	SourceVisualization ReportSource = "Visualization"
	SourceDiscover      ReportSource = "Discover"
	SourceNotebook      ReportSource = "Notebook"
	SourceSavedSearch   ReportSource = "Saved search"
	SourceOther         ReportSource = "Other"
)

// Prunable reports whether application chrome should be stripped before capture.
func (s ReportSource) Prunable() bool {
	return s != SourceOther && s != SourceSavedSearch
}

// HasEditor reports whether the page carries the visualization editor panel.
func (s ReportSource) HasEditor() bool {
	return s == SourceVisualization
}

// -- Request --

// Credentials holds the login secrets for an authenticated capture.
type Credentials struct {
	Username string
	Password string
}

// ReportRequest describes exactly one capture. It is treated as immutable once built.
type ReportRequest struct {
	URL          string
	Format       Format
	Width        int
	Height       int
	Filename     string
	Auth         AuthScheme
	Credentials  Credentials
	Tenant       string
	Multitenancy bool
	CreatedAt    time.Time
	// Transport names a secondary delivery channel. When set, an email body
	// preview image is written next to the primary artifact.
	Transport string
	EmailBody string
	Timeout   time.Duration
}

// Authenticated reports whether the request must go through a login handshake.
func (r ReportRequest) Authenticated() bool {
	return r.Auth != "" && r.Auth != AuthNone &&
		r.Credentials.Username != "" && r.Credentials.Password != ""
}

// WantsEmailBody reports whether a preview image must be produced.
func (r ReportRequest) WantsEmailBody() bool {
	return r.Transport != ""
}

// Fragment returns the "#..." portion of the target URL, or "#" when absent.
func (r ReportRequest) Fragment() string {
	parts := strings.SplitN(r.URL, "#", 2)
	if len(parts) < 2 {
		return "#"
	}
	return "#" + parts[1]
}

// Validate checks that the request is complete enough to be executed.
func (r ReportRequest) Validate() error {
	if r.URL == "" {
		return NewError(ErrCodeInvalidRequest, "url is required", nil)
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewError(ErrCodeInvalidRequest, fmt.Sprintf("url %q is not absolute", r.URL), err)
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return NewError(ErrCodeInvalidRequest, err.Error(), nil)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return NewError(ErrCodeInvalidRequest, fmt.Sprintf("viewport must be positive, got %dx%d", r.Width, r.Height), nil)
	}
	if r.Filename == "" {
		return NewError(ErrCodeInvalidRequest, "filename is required", nil)
	}
	if r.Timeout <= 0 {
		return NewError(ErrCodeInvalidRequest, "timeout must be positive", nil)
	}
	if r.WantsEmailBody() && r.EmailBody == "" {
		return NewError(ErrCodeInvalidRequest, "an email body filename is required when a transport is set", nil)
	}
	return nil
}

// -- Results --

// AuthState is a node of the login handshake state machine.
type AuthState string

const (
	StateStart                AuthState = "Start"
	StateCredentialsEntered   AuthState = "CredentialsEntered"
	StateSubmitted            AuthState = "Submitted"
	StateTenantPromptDetected AuthState = "TenantPromptDetected"
	StateNoTenantPrompt       AuthState = "NoTenantPrompt"
	StateTenantConfirmed      AuthState = "TenantConfirmed"
	StateSkipped              AuthState = "Skipped"
	StateVerified             AuthState = "Verified"
	StateAuthenticated        AuthState = "Authenticated"
	StateFailed               AuthState = "Failed"
)

// AuthOutcome summarizes one login handshake.
type AuthOutcome struct {
	Scheme       AuthScheme
	TenantPrompt bool
	// Tenant is the tenant that was confirmed, empty when no prompt was handled.
	Tenant    string
	Succeeded bool
	Trace     []AuthState
}

// CaptureResult is the raw output of a capture, consumed once by the persister.
type CaptureResult struct {
	Format Format
	Data   []byte
}

// Payload renders the result the way the persister consumes it: a data URI
// for binary formats and the verbatim text for tabular data.
func (r CaptureResult) Payload() string {
	if r.Format.IsBinary() {
		return "data:" + r.Format.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
	}
	return string(r.Data)
}

// Artifact pairs an encoded payload with the logical creation time of the request.
type Artifact struct {
	TimeCreated int64  `json:"timeCreated"`
	DataURL     string `json:"dataUrl"`
}

// NewArtifact builds the artifact record for a capture.
func NewArtifact(createdAt time.Time, res CaptureResult) Artifact {
	return Artifact{TimeCreated: createdAt.UnixMilli(), DataURL: res.Payload()}
}
