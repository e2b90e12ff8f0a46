package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/probe"
	"github.com/webaudit/webaudit/internal/synth"
)

// Driver navigates pages and submits forms through the browser session.
// It is an interface so the scheduler can be tested without a browser.
type Driver interface {
	// Navigate loads a URL and returns the rendered page.
	Navigate(ctx context.Context, rawURL string) (*model.Page, error)

	// SubmitForm fills the form with the given values in the live DOM
	// and submits it, returning the page the browser lands on.
	SubmitForm(ctx context.Context, form model.Form, values map[string]string) (*model.Page, error)
}

// Prober checks the health of internal links.
type Prober interface {
	Probe(ctx context.Context, rawURL string) probe.Result
}

// Recorder receives audit records as they are produced.
// Satisfied by the report sinks.
type Recorder interface {
	Append(rec model.Record) error
}

// Scheduler walks a site breadth-first from a start URL, recording one
// page_load per visited page, probing every link it sees, and submitting
// every non-destructive form.
//
// The crawl is deliberately single-threaded: one browser tab, one page at
// a time. Parallel tabs would interleave session state (form submissions
// mutate cookies and server state) and make records non-deterministic.
type Scheduler struct {
	driver   Driver
	prober   Prober
	recorder Recorder
	synth    *synth.Synthesizer
	logger   *slog.Logger

	// pageCap limits the number of pages taken off the frontier. A page
	// counts against the cap when it is dequeued, whether or not it
	// loads. Links and forms on the last page are still processed in
	// full.
	pageCap int

	// allowSubdomains widens internal classification from exact host
	// match to the host and its subdomains.
	allowSubdomains bool

	ignorePatterns      []string
	destructivePatterns []string
	successIndicators   []string
	failureIndicators   []string

	// visited holds normalized URLs of pages already dequeued for
	// navigation, load failures included.
	visited map[string]bool

	// enqueued holds normalized URLs already placed on the frontier,
	// so a link recorded on many pages is still crawled once.
	enqueued map[string]bool

	pageCount int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPageCap sets the maximum number of pages to navigate.
func WithPageCap(n int) Option {
	return func(s *Scheduler) {
		s.pageCap = n
	}
}

// WithAllowSubdomains treats subdomains of the start host as internal.
func WithAllowSubdomains(allow bool) Option {
	return func(s *Scheduler) {
		s.allowSubdomains = allow
	}
}

// WithIgnorePatterns sets URL path patterns excluded from crawling.
// Patterns use glob syntax (e.g. "/admin/*", "*.pdf"). Matching links
// are still probed and recorded, just never navigated.
func WithIgnorePatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.ignorePatterns = patterns
	}
}

// WithDestructivePatterns sets the substrings that mark a route or form
// as destructive. Destructive targets are recorded but never touched.
func WithDestructivePatterns(patterns []string) Option {
	return func(s *Scheduler) {
		s.destructivePatterns = patterns
	}
}

// WithIndicators sets the phrases used to classify form submission
// outcomes from the resulting page text.
func WithIndicators(success, failure []string) Option {
	return func(s *Scheduler) {
		s.successIndicators = success
		s.failureIndicators = failure
	}
}

// WithSynthesizer replaces the form value synthesizer.
func WithSynthesizer(sy *synth.Synthesizer) Option {
	return func(s *Scheduler) {
		s.synth = sy
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler creates a Scheduler with sane defaults.
func NewScheduler(driver Driver, prober Prober, recorder Recorder, opts ...Option) *Scheduler {
	s := &Scheduler{
		driver:              driver,
		prober:              prober,
		recorder:            recorder,
		synth:               synth.New(nil),
		logger:              slog.Default(),
		pageCap:             config.DefaultPageCap,
		destructivePatterns: config.DefaultDestructivePatterns,
		successIndicators:   config.DefaultSuccessIndicators,
		failureIndicators:   config.DefaultFailureIndicators,
		visited:             make(map[string]bool),
		enqueued:            make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// frontierEntry is a URL queued for navigation together with its
// discovery depth, counted in link hops from the start URL.
type frontierEntry struct {
	url   string
	depth int
}

// Crawl walks the site breadth-first from startURL until the frontier is
// empty or the page cap is reached. It returns the number of pages
// dequeued for navigation; a page that fails to load still counts,
// otherwise a site full of dead pages would keep the crawl dequeuing
// past the cap.
//
// Per-page failures are recorded and the crawl continues; only context
// cancellation and recorder write failures abort it.
func (s *Scheduler) Crawl(ctx context.Context, startURL string) (int, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return 0, fmt.Errorf("invalid start URL: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return 0, fmt.Errorf("unsupported scheme %q in start URL", start.Scheme)
	}

	frontier := []frontierEntry{{url: start.String()}}
	s.enqueued[model.NormalizeURL(start.String())] = true

	for len(frontier) > 0 && s.pageCount < s.pageCap {
		select {
		case <-ctx.Done():
			return s.pageCount, ctx.Err()
		default:
		}

		entry := frontier[0]
		frontier = frontier[1:]
		pageURL := entry.url

		norm := model.NormalizeURL(pageURL)
		if s.visited[norm] {
			continue
		}
		s.visited[norm] = true
		s.pageCount++

		s.logger.Info("crawling page",
			slog.String("url", pageURL),
			slog.Int("page", s.pageCount),
			slog.Int("depth", entry.depth),
			slog.Int("frontier", len(frontier)))

		page, err := s.driver.Navigate(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return s.pageCount, ctx.Err()
			}
			s.logger.Warn("page load failed", slog.String("url", pageURL), slog.String("error", err.Error()))
			if recErr := s.record(model.Record{
				Type:         model.RecordPageLoad,
				URL:          pageURL,
				Status:       model.StatusError,
				ErrorMessage: err.Error(),
			}); recErr != nil {
				return s.pageCount, recErr
			}
			continue
		}

		if err := s.record(pageLoadRecord(pageURL, page)); err != nil {
			return s.pageCount, err
		}

		result, err := s.parsePage(page)
		if err != nil {
			s.logger.Warn("page parse failed", slog.String("url", pageURL), slog.String("error", err.Error()))
			continue
		}

		for _, link := range result.Links {
			if err := s.handleLink(ctx, page, link, &frontier, entry.depth); err != nil {
				return s.pageCount, err
			}
		}

		for _, form := range result.Forms {
			if err := s.handleForm(ctx, page, form); err != nil {
				return s.pageCount, err
			}
		}
	}

	return s.pageCount, nil
}

// Stats returns crawl progress counters.
func (s *Scheduler) Stats() (pages, discovered int) {
	return s.pageCount, len(s.enqueued)
}

// parsePage runs the HTML parser against the rendered DOM. The final URL
// is the base for resolving relative links so redirected pages resolve
// correctly.
func (s *Scheduler) parsePage(page *model.Page) (*ParseResult, error) {
	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	parser, err := NewParser(base)
	if err != nil {
		return nil, err
	}
	return parser.Parse(strings.NewReader(page.HTML))
}

// pageLoadRecord builds the page_load record for a navigated page.
func pageLoadRecord(pageURL string, page *model.Page) model.Record {
	rec := model.Record{
		Type:         model.RecordPageLoad,
		URL:          pageURL,
		LinkText:     page.Title,
		ResponseTime: page.LoadTime,
	}
	switch {
	case page.StatusCode == 0:
		// Client-side routed page; no document status observed.
		rec.Status = model.StatusUnknown
	case page.StatusCode < 400:
		rec.Status = model.StatusPass
	default:
		rec.Status = model.StatusFail
		rec.ErrorMessage = fmt.Sprintf("HTTP %d", page.StatusCode)
	}
	return rec
}

// handleLink records one link appearance and, for internal links, probes
// it and enqueues it for crawling if new. depth is the discovery depth
// of the page the link was found on.
func (s *Scheduler) handleLink(ctx context.Context, page *model.Page, link model.Link, frontier *[]frontierEntry, depth int) error {
	if !s.isInternal(page, link.Href) {
		return s.record(model.Record{
			Type:     model.RecordExternalLink,
			URL:      page.URL,
			LinkURL:  link.Href,
			LinkText: link.Text,
			Status:   model.StatusExternal,
		})
	}

	rec := model.Record{
		Type:     model.RecordInternalLink,
		URL:      page.URL,
		LinkURL:  link.Href,
		LinkText: link.Text,
	}

	if s.isDestructiveURL(link.Href) {
		// Dereferencing a logout or delete route would mutate the
		// session or the site.
		rec.Status = model.StatusUnknown
		rec.ErrorMessage = "skipped: destructive route"
		return s.record(rec)
	}

	res := s.prober.Probe(ctx, link.Href)
	rec.Status = res.Status
	rec.ResponseTime = res.ResponseTime
	rec.ErrorMessage = res.ErrorMessage
	if err := s.record(rec); err != nil {
		return err
	}

	norm := model.NormalizeURL(link.Href)
	if !s.visited[norm] && !s.enqueued[norm] && s.shouldCrawl(link.Href) {
		s.enqueued[norm] = true
		*frontier = append(*frontier, frontierEntry{url: link.Href, depth: depth + 1})
	}
	return nil
}

// handleForm submits one form with synthetic values and classifies the
// outcome. Destructive forms are recorded but never submitted.
func (s *Scheduler) handleForm(ctx context.Context, page *model.Page, form model.Form) error {
	rec := model.Record{
		Type:     model.RecordFormSubmission,
		URL:      page.URL,
		LinkURL:  form.Action,
		LinkText: form.Label(),
	}

	if synth.Destructive(form, s.destructivePatterns) || s.isDestructiveURL(form.Action) {
		s.logger.Info("skipping destructive form",
			slog.String("url", page.URL),
			slog.String("form", form.Label()))
		rec.Status = model.StatusUnknown
		rec.ErrorMessage = "skipped: destructive form"
		return s.record(rec)
	}

	values := s.synth.Plan(form)

	start := time.Now()
	after, err := s.driver.SubmitForm(ctx, form, values)
	rec.ResponseTime = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rec.Status = model.StatusError
		rec.ErrorMessage = err.Error()
	} else {
		rec.Status, rec.ErrorMessage = s.classifyOutcome(page.URL, after)
	}

	if recErr := s.record(rec); recErr != nil {
		return recErr
	}

	// The submission may have navigated away; restore the page so the
	// next form on it can be addressed in the live DOM.
	if after != nil && model.NormalizeURL(after.FinalURL) != model.NormalizeURL(page.URL) {
		if _, navErr := s.driver.Navigate(ctx, page.URL); navErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// classifyOutcome decides whether a form submission succeeded from the
// page the browser landed on.
//
// A redirect away from the source page is the strongest success signal
// (POST-redirect-GET). Otherwise the page text is scanned for failure
// indicators first, then success indicators; validation errors re-render
// the same page, so failure phrases win on ties.
func (s *Scheduler) classifyOutcome(pageURL string, after *model.Page) (model.Status, string) {
	if after == nil {
		return model.StatusUnknown, "no page state after submission"
	}

	if after.FinalURL != "" && model.NormalizeURL(after.FinalURL) != model.NormalizeURL(pageURL) {
		return model.StatusPass, ""
	}

	text := strings.ToLower(after.HTML)
	for _, phrase := range s.failureIndicators {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return model.StatusFail, fmt.Sprintf("failure indicator %q present", phrase)
		}
	}
	for _, phrase := range s.successIndicators {
		if phrase != "" && strings.Contains(text, strings.ToLower(phrase)) {
			return model.StatusPass, ""
		}
	}

	return model.StatusUnknown, "no success or failure indicator detected"
}

// isInternal classifies a link against the source page's host.
func (s *Scheduler) isInternal(page *model.Page, rawURL string) bool {
	base := page.FinalURL
	if base == "" {
		base = page.URL
	}
	if model.SameHost(base, rawURL) {
		return true
	}
	if !s.allowSubdomains {
		return false
	}

	baseU, err := url.Parse(base)
	if err != nil {
		return false
	}
	targetU, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(targetU.Hostname()), "."+strings.ToLower(baseU.Hostname()))
}

// isDestructiveURL reports whether a URL path matches a destructive
// pattern, compared case-insensitively as substrings.
func (s *Scheduler) isDestructiveURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, p := range s.destructivePatterns {
		p = strings.ToLower(p)
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// shouldCrawl checks a URL's path against the ignore patterns.
func (s *Scheduler) shouldCrawl(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}
	return true
}

// record stamps and forwards a record to the recorder.
func (s *Scheduler) record(rec model.Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := s.recorder.Append(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	// For patterns like "/admin/*", match "/admin/anything" and "/admin".
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	// Extension patterns like "*.pdf".
	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Also try matching just the filename for patterns like "*.pdf".
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
