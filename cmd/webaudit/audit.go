package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/webaudit/webaudit/internal/auth"
	"github.com/webaudit/webaudit/internal/browser"
	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/crawler"
	"github.com/webaudit/webaudit/internal/database"
	"github.com/webaudit/webaudit/internal/log"
	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/pipeline"
	"github.com/webaudit/webaudit/internal/probe"
	"github.com/webaudit/webaudit/internal/report"
	"github.com/webaudit/webaudit/internal/synth"
)

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [base-url...]",
		Short: "Log in and audit a web application",
		Long: `Audit logs into a web application and exercises it the way a careful
QA engineer would.

It signs in through a real browser, crawls internal pages breadth-first
up to the page cap, checks every discovered link, fills forms with
synthetic test data and submits them, and appends one CSV row per
observation. Links and forms matching destructive patterns (logout,
delete, ...) are recorded but never triggered.

Examples:
  # Audit a single application
  webaudit audit -e qa@example.com -P secret https://app.example.com

  # Raise the page cap and keep the browser open afterwards
  webaudit audit -e qa@example.com -P secret -p 200 -k https://app.example.com

  # Audit several deployments concurrently
  webaudit audit -b 3 https://a.example.com https://b.example.com https://c.example.com

  # Credentials and per-target overrides from a .webaudit file
  webaudit audit -c .webaudit https://app.example.com

Configuration file (.webaudit) example:
  defaults:
    email: qa@example.com
    password: secret
  targets:
    https://app.example.com:
      loginPath: /signin
      pageCap: 100
      ignorePatterns:
        - "/admin/reports/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runAuditCmd,
	}

	// Credentials
	cmd.Flags().StringP("email", "e", "",
		"Login email or username submitted to the login form")
	cmd.Flags().StringP("password", "P", "",
		"Login password")
	cmd.Flags().String("login-path", "",
		"Path of the login form relative to the base URL (default \"/login\")")

	// Crawl behavior flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultPageCap,
		"Maximum number of distinct pages to visit")
	cmd.Flags().DurationP("nav-timeout", "t", config.DefaultNavigationTimeout,
		"Timeout for each page navigation")
	cmd.Flags().Duration("settle-wait", config.DefaultSettleWait,
		"Pause after page load before reading the DOM")
	cmd.Flags().Duration("probe-timeout", config.DefaultProbeTimeout,
		"Timeout for each link reachability check")
	cmd.Flags().Bool("subdomains", false,
		"Treat subdomains of the target host as internal")

	// Browser flags
	cmd.Flags().Bool("show-browser", false,
		"Run the browser with a visible window instead of headless")
	cmd.Flags().BoolP("keep-open", "k", false,
		"Leave the browser open after the audit for manual inspection")
	cmd.Flags().String("chrome-path", "",
		"Path to the Chrome/Chromium binary (default: auto-detect)")

	// Batch auditing flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent audits when multiple base URLs are given")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webaudit in current or home directory)")

	// Report flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputFile,
		"CSV report path (per-target host suffix added for multi-target runs)")
	cmd.Flags().BoolP("json", "j", false,
		"Print the run summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the run summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("summary-output", "s", "",
		"Write the run summary to a file instead of stdout")
	cmd.Flags().Bool("no-save", false,
		"Do not record the run in the history database")

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := validateConfig(cfg); err != nil {
		return err
	}

	// Set up structured logging. The secure handler masks credentials
	// and session cookies if they ever show up in log attributes.
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runAudit(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Email, err = cmd.Flags().GetString("email")
	if err != nil {
		return nil, err
	}

	cfg.Password, err = cmd.Flags().GetString("password")
	if err != nil {
		return nil, err
	}

	cfg.LoginPath, err = cmd.Flags().GetString("login-path")
	if err != nil {
		return nil, err
	}

	cfg.PageCap, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.NavigationTimeout, err = cmd.Flags().GetDuration("nav-timeout")
	if err != nil {
		return nil, err
	}

	cfg.SettleWait, err = cmd.Flags().GetDuration("settle-wait")
	if err != nil {
		return nil, err
	}

	cfg.ProbeTimeout, err = cmd.Flags().GetDuration("probe-timeout")
	if err != nil {
		return nil, err
	}

	cfg.AllowSubdomains, err = cmd.Flags().GetBool("subdomains")
	if err != nil {
		return nil, err
	}

	showBrowser, err := cmd.Flags().GetBool("show-browser")
	if err != nil {
		return nil, err
	}
	cfg.Headless = !showBrowser

	keepOpen, err := cmd.Flags().GetBool("keep-open")
	if err != nil {
		return nil, err
	}
	cfg.AutoClose = !keepOpen

	cfg.ChromePath, err = cmd.Flags().GetString("chrome-path")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.OutputFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.JSONSummary, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownSummary, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.SummaryFile, err = cmd.Flags().GetString("summary-output")
	if err != nil {
		return nil, err
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.DBDir = config.XDGDataDir()

	cfg.Verbose = getVerboseFlag(cmd)

	// Load per-target configurations from the config file.
	// If the user explicitly specified a path, error when it's missing.
	// Without an explicit path, silently run with an empty config.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.TargetConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.TargetConfigs = &config.File{
			Targets: make(map[string]config.TargetConfig),
		}
	}

	// Positional arguments are the base URLs to audit
	cfg.Targets = make([]string, 0, len(args))
	for _, arg := range args {
		target, err := normalizeTarget(arg)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	return cfg, nil
}

// validateConfig validates the run configuration. Missing global
// credentials are tolerated when the config file provides them for
// every target.
func validateConfig(cfg *config.Config) error {
	err := cfg.Validate()
	if err == nil {
		return nil
	}
	if !errors.Is(err, config.ErrMissingCredentials) {
		return fmt.Errorf("configuration error: %w", err)
	}

	for _, target := range cfg.Targets {
		if _, _, cerr := credentialsFor(cfg, targetConfigFor(cfg, target)); cerr != nil {
			return fmt.Errorf("configuration error for %s: %w", target, cerr)
		}
	}
	return nil
}

// normalizeTarget validates a base URL, defaulting the scheme to https.
func normalizeTarget(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", raw)
	}

	return u.String(), nil
}

// targetConfigFor returns the merged per-target configuration.
// Config file keys may be written with or without the scheme.
func targetConfigFor(cfg *config.Config, target string) config.TargetConfig {
	if cfg.TargetConfigs == nil {
		return config.TargetConfig{}
	}

	if _, ok := cfg.TargetConfigs.Targets[target]; ok {
		return cfg.TargetConfigs.GetTargetConfig(target)
	}

	stripped := target
	for _, prefix := range []string{"https://", "http://"} {
		stripped = strings.TrimPrefix(stripped, prefix)
	}
	if _, ok := cfg.TargetConfigs.Targets[stripped]; ok {
		return cfg.TargetConfigs.GetTargetConfig(stripped)
	}

	return cfg.TargetConfigs.GetTargetConfig(target)
}

// credentialsFor resolves the login credentials for one target:
// per-target config file entry first, then global flags/defaults.
func credentialsFor(cfg *config.Config, tc config.TargetConfig) (email, password string, err error) {
	email = tc.Email
	if email == "" {
		email = cfg.Email
	}
	password = tc.Password
	if password == "" {
		password = cfg.Password
	}
	if email == "" || password == "" {
		return "", "", config.ErrMissingCredentials
	}
	return email, password, nil
}

// runAudit executes the audit over all configured targets.
func runAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting audit",
		"targets", cfg.Targets,
		"pageCap", cfg.PageCap,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.AuditDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		logger.Info("history database opened", "dir", cfg.DBDir)
	}

	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		return runBatchAudit(ctx, cfg, db, logger)
	}

	return runSequentialAudit(ctx, cfg, db, logger)
}

// runSequentialAudit audits targets one at a time.
func runSequentialAudit(ctx context.Context, cfg *config.Config, db *database.AuditDB, logger *slog.Logger) error {
	multi := len(cfg.Targets) > 1

	for _, target := range cfg.Targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rep := model.NewAuditReport(target)
		p, err := buildPipelineForTarget(ctx, cfg, rep, db, logger, multi, true)
		if err != nil {
			return err
		}

		fmt.Printf("Auditing %s...\n", target)
		if err := p.Execute(ctx, rep); err != nil {
			return err
		}

		if rep.State == model.StateFailedAuth {
			return fmt.Errorf("authentication failed for %s: %s", target, rep.ErrorMessage)
		}
	}

	return nil
}

// runBatchAudit audits multiple targets concurrently.
func runBatchAudit(ctx context.Context, cfg *config.Config, db *database.AuditDB, logger *slog.Logger) error {
	fmt.Printf("Starting batch audit of %d targets (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.BatchSize)

	bp := pipeline.NewBatchProcessor(
		func(rep *model.AuditReport) (*pipeline.Pipeline, error) {
			return buildPipelineForTarget(ctx, cfg, rep, db, logger, true, false)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Summaries are printed from the worker goroutines; the mutex keeps
	// them from interleaving on stdout.
	var mu sync.Mutex
	reports, err := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(rep *model.AuditReport, index int) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Printf("[%d/%d] Audit finished: %s\n", index+1, len(cfg.Targets), rep.Target)
		if werr := writeSummary(cfg, rep, true); werr != nil {
			logger.Error("summary failed", "target", rep.Target, "error", werr)
		}
	})
	if err != nil {
		return err
	}

	var failed []string
	for _, rep := range reports {
		if rep != nil && rep.State == model.StateFailedAuth {
			failed = append(failed, rep.Target)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("authentication failed for: %s", strings.Join(failed, ", "))
	}

	return nil
}

// buildPipelineForTarget wires a fresh browser session, prober,
// scheduler, and sinks into a pipeline for one target. Every target
// gets its own session: the crawl depends on that session's login
// state, so sessions are never shared.
func buildPipelineForTarget(
	ctx context.Context,
	cfg *config.Config,
	rep *model.AuditReport,
	db *database.AuditDB,
	logger *slog.Logger,
	multi bool,
	withSummary bool,
) (*pipeline.Pipeline, error) {
	tc := targetConfigFor(cfg, rep.Target)

	email, password, err := credentialsFor(cfg, tc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rep.Target, err)
	}

	sessionOpts := []browser.SessionOption{
		browser.WithHeadless(cfg.Headless),
		browser.WithNavigationTimeout(cfg.NavigationTimeout),
		browser.WithSettleWait(cfg.SettleWait),
		browser.WithAutoClose(cfg.AutoClose),
	}
	if cfg.ChromePath != "" {
		sessionOpts = append(sessionOpts, browser.WithChromePath(cfg.ChromePath))
	}

	session, err := browser.NewSession(ctx, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	csvPath := pathForTarget(cfg.OutputFile, rep.Target, multi)
	csvSink, err := report.NewCSVSink(csvPath)
	if err != nil {
		session.Close() //nolint:errcheck // best-effort teardown on setup failure
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	recorder := report.NewMultiSink(csvSink, report.NewReportSink(rep))
	logger.Info("report file created", "path", csvPath, "target", rep.Target)

	checker := probe.NewChecker(probe.WithTimeout(cfg.ProbeTimeout))

	schedulerOpts := []crawler.Option{
		crawler.WithLogger(logger),
		crawler.WithAllowSubdomains(cfg.AllowSubdomains || tc.AllowSubdomains),
	}
	pageCap := cfg.PageCap
	if tc.PageCap > 0 {
		pageCap = tc.PageCap
	}
	schedulerOpts = append(schedulerOpts, crawler.WithPageCap(pageCap))
	if len(tc.IgnorePatterns) > 0 {
		schedulerOpts = append(schedulerOpts, crawler.WithIgnorePatterns(tc.IgnorePatterns))
	}
	if len(tc.DestructivePatterns) > 0 {
		schedulerOpts = append(schedulerOpts, crawler.WithDestructivePatterns(tc.DestructivePatterns))
	}
	if len(tc.SuccessIndicators) > 0 || len(tc.FailureIndicators) > 0 {
		schedulerOpts = append(schedulerOpts, crawler.WithIndicators(tc.SuccessIndicators, tc.FailureIndicators))
	}
	if len(tc.FieldValues) > 0 {
		schedulerOpts = append(schedulerOpts, crawler.WithSynthesizer(synth.New(tc.FieldValues)))
	}
	scheduler := crawler.NewScheduler(session, checker, recorder, schedulerOpts...)

	authOpts := []auth.Option{auth.WithLogger(logger)}
	loginPath := tc.LoginPath
	if loginPath == "" {
		loginPath = cfg.LoginPath
	}
	if loginPath != "" {
		authOpts = append(authOpts, auth.WithLoginPath(loginPath))
	}
	authenticator := auth.New(session, authOpts...)

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	p.AddSteps(
		pipeline.NewAuthStep(authenticator, email, password, pipeline.WithAuthLogger(logger)),
		pipeline.NewCookieSyncStep(session, checker, pipeline.WithCookieSyncLogger(logger)),
		pipeline.NewCrawlStep(scheduler, pipeline.WithCrawlLogger(logger)),
	)
	var summaryClosers []io.Closer
	if withSummary {
		out, closer, err := summaryDestination(cfg, rep.Target, multi)
		if err != nil {
			csvSink.Close() //nolint:errcheck // best-effort teardown on setup failure
			session.Close() //nolint:errcheck // best-effort teardown on setup failure
			return nil, err
		}
		if closer != nil {
			summaryClosers = append(summaryClosers, closer)
		}
		p.AddStep(pipeline.NewSummaryStep(buildSummaryWriter(cfg, out)))
	}
	if db != nil {
		p.AddStep(pipeline.NewPersistStep(db, pipeline.WithPersistLogger(logger)))
	}
	p.AddStep(&shutdownStep{sink: recorder, session: session, closers: summaryClosers, logger: logger})

	return p, nil
}

// writeSummary renders a report summary outside the pipeline. Used by
// batch mode, where summaries are serialized through a mutex instead
// of running as a pipeline step.
func writeSummary(cfg *config.Config, rep *model.AuditReport, multi bool) error {
	out, closer, err := summaryDestination(cfg, rep.Target, multi)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close() //nolint:errcheck // read-side already flushed by Write
	}

	_, err = buildSummaryWriter(cfg, out).Write(rep)
	return err
}

// buildSummaryWriter selects the summary format from the configuration.
func buildSummaryWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONSummary:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownSummary:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

// summaryDestination returns where the summary goes: stdout by default,
// a file when --summary-output is set. The caller closes the closer.
func summaryDestination(cfg *config.Config, target string, multi bool) (io.Writer, io.Closer, error) {
	if cfg.SummaryFile == "" {
		return os.Stdout, nil, nil
	}

	path := pathForTarget(cfg.SummaryFile, target, multi)
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create summary file: %w", err)
	}
	return f, f, nil
}

// pathForTarget derives a per-target file path for multi-target runs by
// inserting the target's host before the extension:
// record.csv + https://app.example.com -> record-app.example.com.csv
func pathForTarget(path, target string, multi bool) string {
	if !multi {
		return path
	}

	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ReplaceAll(host, ":", "-")

	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + host + ext
}

// shutdownStep closes the report sink and the browser session at the
// end of a pipeline run. Registered as the last step so it runs even
// over failed audits (the pipeline continues on error).
type shutdownStep struct {
	sink    report.Sink
	session *browser.Session
	closers []io.Closer
	logger  *slog.Logger
}

// Name returns the step name.
func (s *shutdownStep) Name() string {
	return "shutdown"
}

// Do closes the held resources, logging instead of failing: a close
// error must not mask the audit result.
func (s *shutdownStep) Do(_ context.Context, _ *model.AuditReport) error {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Error("close summary output", "error", err)
		}
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.Error("close report sink", "error", err)
		}
	}
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			if errors.Is(err, browser.ErrKeptOpen) {
				s.logger.Info("browser window left open for inspection")
			} else {
				s.logger.Error("close browser", "error", err)
			}
		}
	}
	return nil
}
