package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/crawler"
	"github.com/webaudit/webaudit/internal/model"
)

// ErrAuthFailed marks a login that the target rejected or that could not
// be completed. It is the one fatal audit error.
var ErrAuthFailed = errors.New("authentication failed")

// Driver is the browser surface the authenticator needs.
// Satisfied by browser.Session.
type Driver interface {
	Navigate(ctx context.Context, rawURL string) (*model.Page, error)
	SubmitForm(ctx context.Context, form model.Form, values map[string]string) (*model.Page, error)
}

// Authenticator performs form-based login through the browser session.
type Authenticator struct {
	driver    Driver
	logger    *slog.Logger
	loginPath string
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLoginPath overrides the login page path (default "/login").
func WithLoginPath(path string) Option {
	return func(a *Authenticator) {
		if path != "" {
			a.loginPath = path
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New creates an Authenticator driving the given session.
func New(driver Driver, opts ...Option) *Authenticator {
	a := &Authenticator{
		driver:    driver,
		logger:    slog.Default(),
		loginPath: config.DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login navigates to the login page, fills the credential form, submits
// it, and verifies the session is authenticated. All failures wrap
// ErrAuthFailed.
func (a *Authenticator) Login(ctx context.Context, baseURL, email, password string) error {
	loginURL, err := resolveLoginURL(baseURL, a.loginPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	a.logger.Info("authenticating", slog.String("login_url", loginURL))

	page, err := a.driver.Navigate(ctx, loginURL)
	if err != nil {
		return fmt.Errorf("%w: load login page: %v", ErrAuthFailed, err)
	}

	// An already-authenticated session gets bounced away from the login
	// page; nothing to do.
	if redirectedAway(loginURL, page) {
		a.logger.Info("session already authenticated",
			slog.String("landed_on", page.FinalURL))
		return nil
	}

	form, ok := findLoginForm(page)
	if !ok {
		return fmt.Errorf("%w: no login form found at %s", ErrAuthFailed, loginURL)
	}

	values, err := credentialValues(form, email, password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	after, err := a.driver.SubmitForm(ctx, form, values)
	if err != nil {
		return fmt.Errorf("%w: submit credentials: %v", ErrAuthFailed, err)
	}

	if redirectedAway(loginURL, after) {
		a.logger.Info("authentication succeeded", slog.String("landed_on", after.FinalURL))
		return nil
	}

	// Still on the login page. A surviving password field means the
	// credentials were rejected; a swapped-out form means a client-side
	// app logged in without changing the URL.
	if _, stillThere := findLoginForm(after); stillThere {
		return fmt.Errorf("%w: still on login page after submitting credentials", ErrAuthFailed)
	}

	a.logger.Info("authentication succeeded without redirect")
	return nil
}

// resolveLoginURL joins the target base URL with the login path.
func resolveLoginURL(baseURL, loginPath string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %v", baseURL, err)
	}
	ref, err := url.Parse(loginPath)
	if err != nil {
		return "", fmt.Errorf("invalid login path %q: %v", loginPath, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// redirectedAway reports whether the browser landed somewhere other than
// the login page.
func redirectedAway(loginURL string, page *model.Page) bool {
	if page == nil || page.FinalURL == "" {
		return false
	}
	return model.NormalizeURL(page.FinalURL) != model.NormalizeURL(loginURL)
}

// findLoginForm locates the first form with a password field.
func findLoginForm(page *model.Page) (model.Form, bool) {
	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	parser, err := crawler.NewParser(base)
	if err != nil {
		return model.Form{}, false
	}
	result, err := parser.Parse(strings.NewReader(page.HTML))
	if err != nil {
		return model.Form{}, false
	}

	for _, form := range result.Forms {
		for _, f := range form.Fields {
			if f.Type == "password" {
				return form, true
			}
		}
	}
	return model.Form{}, false
}

// credentialValues maps the login form's fields to the credentials:
// the password field gets the password, the identifier field gets the
// email. The identifier is the email-typed input or the first field
// whose name suggests a login identifier.
func credentialValues(form model.Form, email, password string) (map[string]string, error) {
	values := make(map[string]string, 2)

	var passwordField, identifierField string
	for _, f := range form.Fields {
		if f.Type == "password" && passwordField == "" {
			passwordField = f.Name
			continue
		}
		if identifierField == "" && isIdentifierField(f) {
			identifierField = f.Name
		}
	}

	if passwordField == "" {
		return nil, errors.New("login form has no password field")
	}
	if identifierField == "" {
		// Fall back to the first non-password field.
		for _, f := range form.Fields {
			if f.Type != "password" {
				identifierField = f.Name
				break
			}
		}
	}
	if identifierField == "" {
		return nil, errors.New("login form has no identifier field")
	}

	values[identifierField] = email
	values[passwordField] = password
	return values, nil
}

// isIdentifierField reports whether a field looks like the login
// identifier input.
func isIdentifierField(f model.FormField) bool {
	if f.Type == "email" {
		return true
	}
	name := strings.ToLower(f.Name + " " + f.ID)
	for _, hint := range []string{"email", "username", "user", "login", "identifier"} {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
