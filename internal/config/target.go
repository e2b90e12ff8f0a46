package config

// TargetConfig holds per-target overrides for a single base URL.
// Anything left empty falls back to the file's defaults and then to the
// built-in tables.
type TargetConfig struct {
	// Email overrides the login identifier for this target.
	Email string `yaml:"email,omitempty"`

	// Password overrides the login password for this target.
	Password string `yaml:"password,omitempty"`

	// LoginPath is the path of the login form relative to the base URL.
	// Defaults to "/login".
	LoginPath string `yaml:"loginPath,omitempty"`

	// PageCap overrides the global page cap for this target.
	PageCap int `yaml:"pageCap,omitempty"`

	// AllowSubdomains treats subdomains of the base host as internal.
	// Default is exact host match only.
	AllowSubdomains bool `yaml:"allowSubdomains,omitempty"`

	// FieldValues overrides synthesized form values by field name.
	// Keys are matched case-insensitively against field name and id.
	FieldValues map[string]string `yaml:"fieldValues,omitempty"`

	// DestructivePatterns are substrings that mark a form as unsafe to
	// submit when found in its action URL or submit-button text.
	// Replaces the built-in list when set.
	DestructivePatterns []string `yaml:"destructivePatterns,omitempty"`

	// SuccessIndicators are phrases whose presence in the post-submit
	// page classifies a form submission as PASS. Replaces the built-in
	// list when set.
	SuccessIndicators []string `yaml:"successIndicators,omitempty"`

	// FailureIndicators are phrases whose presence classifies a form
	// submission as FAIL. Replaces the built-in list when set.
	FailureIndicators []string `yaml:"failureIndicators,omitempty"`

	// IgnorePatterns are URL path globs excluded from crawling
	// (e.g. "/admin/reports/*", "*.pdf").
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`
}

// File represents the structure of the .webaudit configuration file.
type File struct {
	// Targets maps base URLs to their overrides.
	Targets map[string]TargetConfig `yaml:"targets,omitempty"`

	// Defaults applies to every target unless overridden.
	Defaults TargetConfig `yaml:"defaults,omitempty"`
}

// GetTargetConfig returns the merged configuration for a base URL:
// file defaults overlaid with the target-specific entry.
func (cf *File) GetTargetConfig(baseURL string) TargetConfig {
	result := cf.Defaults

	tc, ok := cf.Targets[baseURL]
	if !ok {
		return result
	}

	if tc.Email != "" {
		result.Email = tc.Email
	}
	if tc.Password != "" {
		result.Password = tc.Password
	}
	if tc.LoginPath != "" {
		result.LoginPath = tc.LoginPath
	}
	if tc.PageCap > 0 {
		result.PageCap = tc.PageCap
	}
	if tc.AllowSubdomains {
		result.AllowSubdomains = true
	}
	if len(tc.FieldValues) > 0 {
		if result.FieldValues == nil {
			result.FieldValues = make(map[string]string)
		}
		for k, v := range tc.FieldValues {
			result.FieldValues[k] = v
		}
	}
	if len(tc.DestructivePatterns) > 0 {
		result.DestructivePatterns = tc.DestructivePatterns
	}
	if len(tc.SuccessIndicators) > 0 {
		result.SuccessIndicators = tc.SuccessIndicators
	}
	if len(tc.FailureIndicators) > 0 {
		result.FailureIndicators = tc.FailureIndicators
	}
	if len(tc.IgnorePatterns) > 0 {
		result.IgnorePatterns = tc.IgnorePatterns
	}

	return result
}

// DefaultLoginPath is where the Authenticator looks for the login form
// when the target config does not say otherwise.
const DefaultLoginPath = "/login"

// DefaultDestructivePatterns marks forms that must never be submitted
// synthetically. Matched case-insensitively against the form action URL
// and the submit control's text.
var DefaultDestructivePatterns = []string{
	"logout", "log-out", "signout", "sign-out",
	"delete", "destroy", "remove", "truncate",
	"deactivate", "disable", "reset-password", "password/reset",
}

// DefaultSuccessIndicators classify a form submission as PASS when any
// of them appears in the resulting page. A redirect away from the form
// also counts as success, independent of these phrases.
var DefaultSuccessIndicators = []string{
	"success", "created", "updated", "saved", "added", "successfully",
}

// DefaultFailureIndicators classify a form submission as FAIL.
var DefaultFailureIndicators = []string{
	"error", "invalid", "failed", "is required", "must be",
}
