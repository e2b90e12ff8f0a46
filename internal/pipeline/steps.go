package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/webaudit/webaudit/internal/model"
)

// Authenticator logs a browser session into a target application.
// It is implemented by auth.Authenticator.
type Authenticator interface {
	Login(ctx context.Context, baseURL, email, password string) error
}

// Crawler walks a target and emits audit records.
// It is implemented by crawler.Scheduler.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) (int, error)
}

// CookieSource exposes the cookies of an authenticated browser session.
// It is implemented by browser.Session.
type CookieSource interface {
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// CookieImporter accepts cookies into an HTTP client's jar.
// It is implemented by probe.Checker.
type CookieImporter interface {
	ImportCookies(siteURL string, cookies []*http.Cookie) error
}

// ReportWriter renders a finished report to some output.
// It is implemented by the report package's writers.
type ReportWriter interface {
	Write(report *model.AuditReport) (int, error)
}

// RunStore persists finished reports.
// It is implemented by database.AuditDB.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.AuditReport) (int64, error)
}

// AuthStep logs the browser session into the target before the crawl.
//
// Design decision: Authentication is a separate step rather than part of
// the crawl because its failure mode is different. A page that fails to
// load during the crawl is a finding; a login that fails means every
// subsequent observation would describe the logged-out site, so the step
// marks the report FAILED_AUTH and aborts the pipeline.
type AuthStep struct {
	// authenticator drives the login flow.
	authenticator Authenticator

	// email and password are the credentials to submit.
	email    string
	password string

	// logger for structured logging.
	logger *slog.Logger
}

// AuthStepOption configures an AuthStep.
type AuthStepOption func(*AuthStep)

// WithAuthLogger sets a custom logger for the auth step.
func WithAuthLogger(logger *slog.Logger) AuthStepOption {
	return func(s *AuthStep) {
		s.logger = logger
	}
}

// NewAuthStep creates a step that authenticates against the report's
// target using the given credentials.
func NewAuthStep(authenticator Authenticator, email, password string, opts ...AuthStepOption) *AuthStep {
	s := &AuthStep{
		authenticator: authenticator,
		email:         email,
		password:      password,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AuthStep) Name() string {
	return "authenticate"
}

// Do executes the authentication step.
func (s *AuthStep) Do(ctx context.Context, report *model.AuditReport) error {
	report.State = model.StateAuthenticating

	if err := s.authenticator.Login(ctx, report.Target, s.email, s.password); err != nil {
		report.State = model.StateFailedAuth
		report.FinishedAt = time.Now()
		return fmt.Errorf("authenticate against %s: %w", report.Target, err)
	}

	s.logger.Info("authenticated", "target", report.Target)
	return nil
}

// CookieSyncStep copies the browser session's cookies into the link
// prober's cookie jar, so that probes of protected pages see the same
// authenticated session the crawl does.
//
// Cookie export failures are logged but not fatal: the crawl still
// works, probes just run unauthenticated and may report false FAILs on
// protected routes.
type CookieSyncStep struct {
	source   CookieSource
	importer CookieImporter
	logger   *slog.Logger
}

// CookieSyncStepOption configures a CookieSyncStep.
type CookieSyncStepOption func(*CookieSyncStep)

// WithCookieSyncLogger sets a custom logger for the cookie sync step.
func WithCookieSyncLogger(logger *slog.Logger) CookieSyncStepOption {
	return func(s *CookieSyncStep) {
		s.logger = logger
	}
}

// NewCookieSyncStep creates a step that transfers cookies from source
// to importer.
func NewCookieSyncStep(source CookieSource, importer CookieImporter, opts ...CookieSyncStepOption) *CookieSyncStep {
	s := &CookieSyncStep{
		source:   source,
		importer: importer,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CookieSyncStep) Name() string {
	return "cookie_sync"
}

// Do executes the cookie sync step. It is a no-op when authentication
// already failed: there is no session worth exporting.
func (s *CookieSyncStep) Do(ctx context.Context, report *model.AuditReport) error {
	if report.State == model.StateFailedAuth {
		return nil
	}

	cookies, err := s.source.Cookies(ctx)
	if err != nil {
		s.logger.Warn("cookie export failed, probes run unauthenticated",
			"target", report.Target,
			"error", err,
		)
		return nil
	}

	if err := s.importer.ImportCookies(report.Target, cookies); err != nil {
		s.logger.Warn("cookie import failed, probes run unauthenticated",
			"target", report.Target,
			"error", err,
		)
		return nil
	}

	s.logger.Debug("session cookies shared with prober",
		"target", report.Target,
		"cookies", len(cookies),
	)
	return nil
}

// CrawlStep walks the target and fills the report with audit records.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a step that crawls the report's target.
func NewCrawlStep(crawler Crawler, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		crawler: crawler,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. When authentication already failed the
// crawl is skipped entirely: every observation would describe the
// logged-out site. The pipeline runs with ContinueOnError so that the
// summary and persist steps still see the aborted report.
func (s *CrawlStep) Do(ctx context.Context, report *model.AuditReport) error {
	if report.State == model.StateFailedAuth {
		return nil
	}

	report.State = model.StateCrawling

	pages, err := s.crawler.Crawl(ctx, report.Target)
	report.PagesCrawled = pages
	report.FinishedAt = time.Now()
	if err != nil {
		return fmt.Errorf("crawl %s: %w", report.Target, err)
	}

	report.State = model.StateDone
	s.logger.Info("crawl finished",
		"target", report.Target,
		"pages", pages,
		"records", len(report.Records),
	)
	return nil
}

// SummaryStep renders the report through one or more writers.
type SummaryStep struct {
	writer ReportWriter
}

// NewSummaryStep creates a step that writes the report summary.
// Use report.NewMultiWriter to fan out to several formats.
func NewSummaryStep(writer ReportWriter) *SummaryStep {
	return &SummaryStep{writer: writer}
}

// Name returns the step name.
func (s *SummaryStep) Name() string {
	return "summary"
}

// Do executes the summary step.
func (s *SummaryStep) Do(_ context.Context, report *model.AuditReport) error {
	if _, err := s.writer.Write(report); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// PersistStep saves the finished run to the history database.
type PersistStep struct {
	store  RunStore
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persist step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates a step that stores the run in store.
func NewPersistStep(store RunStore, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persist step.
func (s *PersistStep) Do(ctx context.Context, report *model.AuditReport) error {
	id, err := s.store.SaveRun(ctx, report)
	if err != nil {
		return fmt.Errorf("persist run: %w", err)
	}

	s.logger.Info("run persisted", "target", report.Target, "run_id", id)
	return nil
}
