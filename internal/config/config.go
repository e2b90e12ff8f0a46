package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultPageCap limits the number of distinct pages visited in one
	// run. 50 pages gives a representative smoke test of a typical admin
	// panel without the run taking all afternoon; larger sites can raise
	// it via the --max-pages flag.
	DefaultPageCap = 50

	// DefaultNavigationTimeout bounds a single page navigation.
	// Local and staging deployments usually answer well under this;
	// on timeout the page is recorded as ERROR and the crawl moves on.
	DefaultNavigationTimeout = 20 * time.Second

	// DefaultSettleWait is the pause after load for dynamic content to
	// render before the DOM snapshot is taken. A couple of seconds
	// covers the common SPA hydration case; it is a bounded wait, not a
	// readiness check.
	DefaultSettleWait = 2 * time.Second

	// DefaultProbeTimeout bounds a single link reachability check.
	DefaultProbeTimeout = 15 * time.Second

	// DefaultBatchSize is the number of targets audited concurrently
	// when multiple base URLs are given. Each target owns its own
	// browser session; within a target the crawl is strictly serial.
	DefaultBatchSize = 1

	// DefaultOutputFile is the CSV report path when --output is not set.
	DefaultOutputFile = "record.csv"

	// AppName is the application name used for XDG directory paths.
	AppName = "webaudit"

	// DefaultUserAgent identifies webaudit probe requests.
	// The browser session keeps Chrome's own User-Agent; this one is
	// only used by the lightweight HTTP prober.
	DefaultUserAgent = "webaudit/1.0 (+https://github.com/webaudit/webaudit)"
)

// Config holds all options for one invocation of the audit command.
// It is populated from CLI flags plus the optional .webaudit file and
// passed through the application by dependency injection, no globals.
type Config struct {
	// Targets are the base URLs to audit. Usually one; multiple targets
	// are processed as a batch, each with its own browser session.
	Targets []string

	// Email is the login identifier submitted to the target's login form.
	Email string

	// Password is the login password. Never logged; the secure log
	// handler masks it if it slips into an attribute.
	Password string

	// OutputFile is the CSV report path. For multi-target runs the
	// target's host is appended before the extension.
	OutputFile string

	// PageCap is the maximum number of distinct pages to visit.
	PageCap int

	// NavigationTimeout bounds each page navigation.
	NavigationTimeout time.Duration

	// SettleWait is the post-load pause before reading the DOM.
	SettleWait time.Duration

	// ProbeTimeout bounds each link reachability check.
	ProbeTimeout time.Duration

	// AutoClose tears the browser down when the run ends. Disabling it
	// leaves the window open for human inspection of the final state.
	AutoClose bool

	// Headless runs the browser without a visible window.
	Headless bool

	// ChromePath overrides the browser binary location. Empty means
	// let the automation library find one.
	ChromePath string

	// LoginPath is the login form's path relative to the base URL.
	// Per-target config file entries override it.
	LoginPath string

	// AllowSubdomains treats subdomains of a target's host as internal.
	AllowSubdomains bool

	// Verbose enables debug-level logging.
	Verbose bool

	// ConfigFilePath is an explicit .webaudit path. Empty means search
	// the working directory and then the home directory.
	ConfigFilePath string

	// TargetConfigs holds per-target overrides loaded from the config
	// file (credentials, heuristics, destructive patterns).
	TargetConfigs *File

	// BatchSize is the number of targets audited concurrently.
	BatchSize int

	// JSONSummary and MarkdownSummary select the run-summary format
	// printed after the CSV is written. Mutually exclusive; default is
	// the human-readable text summary.
	JSONSummary     bool
	MarkdownSummary bool

	// SummaryFile writes the summary to a file instead of stdout.
	SummaryFile string

	// SaveToDB persists the run to the history database.
	SaveToDB bool

	// DBDir is the directory holding the history database.
	// Defaults to the XDG data directory.
	DBDir string
}

// NewConfig creates a Config with default values. Many defaults are
// non-zero, so construction goes through here rather than relying on the
// zero value.
func NewConfig() *Config {
	return &Config{
		PageCap:           DefaultPageCap,
		NavigationTimeout: DefaultNavigationTimeout,
		SettleWait:        DefaultSettleWait,
		ProbeTimeout:      DefaultProbeTimeout,
		BatchSize:         DefaultBatchSize,
		OutputFile:        DefaultOutputFile,
		AutoClose:         true,
		Headless:          true,
	}
}

// XDGDataDir returns the XDG data directory for webaudit.
// On Linux: ~/.local/share/webaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for webaudit.
// On Linux: ~/.config/webaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration, returning the first problem found.
// Called once after flag parsing, before the browser starts.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}

	if c.Email == "" || c.Password == "" {
		return ErrMissingCredentials
	}

	if c.PageCap <= 0 {
		return ErrInvalidPageCap
	}

	if c.NavigationTimeout <= 0 || c.ProbeTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.SettleWait < 0 {
		return ErrInvalidSettleWait
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONSummary && c.MarkdownSummary {
		return ErrConflictingSummaryFormats
	}

	return nil
}
