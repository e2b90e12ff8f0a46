package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
)

// Result is the outcome of probing a single link.
type Result struct {
	// Status is the classified outcome: PASS for 2xx/3xx, FAIL for
	// 4xx/5xx, ERROR when the request itself failed, UNKNOWN when no
	// status could be observed.
	Status model.Status

	// StatusCode is the final HTTP status after redirects, zero when
	// the request failed before a response arrived.
	StatusCode int

	// ResponseTime is the wall-clock duration of the probe.
	ResponseTime time.Duration

	// ErrorMessage carries transport failure detail, or the failing
	// status for 4xx/5xx responses. Empty on PASS and UNKNOWN.
	ErrorMessage string
}

// Checker probes internal links with HEAD requests.
//
// Design decision: HEAD first, GET on 405/501 rather than GET always.
// HEAD avoids transferring bodies for the common case, and the fallback
// covers servers that do not implement HEAD. The GET body is discarded
// unread beyond what the transport buffers.
type Checker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithTimeout sets the per-probe timeout.
func WithTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) CheckerOption {
	return func(c *Checker) {
		c.userAgent = ua
	}
}

// WithClient replaces the HTTP client, primarily for tests.
func WithClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.client = client
	}
}

// NewChecker creates a link prober with its own cookie jar.
func NewChecker(opts ...CheckerOption) *Checker {
	jar, _ := cookiejar.New(nil)
	c := &Checker{
		client: &http.Client{
			Jar: jar,
		},
		userAgent: config.DefaultUserAgent,
		timeout:   config.DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ImportCookies copies session cookies into the prober's jar so that
// auth-guarded links answer as they would for the logged-in user.
func (c *Checker) ImportCookies(siteURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return err
	}
	if c.client.Jar != nil {
		c.client.Jar.SetCookies(u, cookies)
	}
	return nil
}

// Probe checks a single URL and classifies the outcome.
// A probe failure never fails the audit; the error is folded into the
// returned Result.
func (c *Checker) Probe(ctx context.Context, rawURL string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	statusCode, err := c.request(ctx, http.MethodHead, rawURL)
	if err == nil && (statusCode == http.StatusMethodNotAllowed || statusCode == http.StatusNotImplemented) {
		// Server does not support HEAD; retry with GET.
		statusCode, err = c.request(ctx, http.MethodGet, rawURL)
	}
	elapsed := time.Since(start)

	if err != nil {
		return Result{
			Status:       model.StatusError,
			ResponseTime: elapsed,
			ErrorMessage: err.Error(),
		}
	}
	if statusCode == 0 {
		return Result{
			Status:       model.StatusUnknown,
			ResponseTime: elapsed,
		}
	}

	if statusCode >= 400 {
		return Result{
			Status:       model.StatusFail,
			StatusCode:   statusCode,
			ResponseTime: elapsed,
			ErrorMessage: fmt.Sprintf("HTTP %d", statusCode),
		}
	}
	return Result{
		Status:       model.StatusPass,
		StatusCode:   statusCode,
		ResponseTime: elapsed,
	}
}

// request performs a single probe request and returns the final status
// code after redirects.
func (c *Checker) request(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain a little so keep-alive connections can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	return resp.StatusCode, nil
}
