package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
)

// Session is one live browser with one tab. All navigation and form
// submission during an audit goes through the same session so cookies
// and server-side session state persist across pages.
//
// A Session is not safe for concurrent use; the crawl is single-threaded
// and so is the session.
type Session struct {
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelCtx   context.CancelFunc

	navTimeout time.Duration
	settleWait time.Duration
	autoClose  bool

	mu sync.Mutex
	// docStatus maps document URLs to the HTTP status the network layer
	// observed for them, filled by the DevTools event listener.
	docStatus map[string]int
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	headless   bool
	chromePath string
	userAgent  string
	navTimeout time.Duration
	settleWait time.Duration
	autoClose  bool
}

// WithHeadless controls whether the browser window is shown.
func WithHeadless(headless bool) SessionOption {
	return func(c *sessionConfig) {
		c.headless = headless
	}
}

// WithChromePath sets an explicit Chrome binary path instead of relying
// on chromedp's lookup.
func WithChromePath(path string) SessionOption {
	return func(c *sessionConfig) {
		c.chromePath = path
	}
}

// WithUserAgent sets the browser User-Agent.
func WithUserAgent(ua string) SessionOption {
	return func(c *sessionConfig) {
		c.userAgent = ua
	}
}

// WithNavigationTimeout bounds each page navigation.
func WithNavigationTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.navTimeout = d
	}
}

// WithSettleWait sets the pause after load before the DOM is snapshotted,
// giving client-side rendering a chance to finish.
func WithSettleWait(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.settleWait = d
	}
}

// WithAutoClose controls whether Close actually terminates the browser.
// Keeping it open is useful for inspecting the final state by hand.
func WithAutoClose(autoClose bool) SessionOption {
	return func(c *sessionConfig) {
		c.autoClose = autoClose
	}
}

// NewSession launches a browser and returns a ready Session.
// The caller must Close it.
func NewSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	cfg := &sessionConfig{
		headless:   true,
		userAgent:  config.DefaultUserAgent,
		navTimeout: config.DefaultNavigationTimeout,
		settleWait: config.DefaultSettleWait,
		autoClose:  true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	allocOpts := buildAllocatorOptions(cfg)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelCtx:   cancelCtx,
		navTimeout:  cfg.navTimeout,
		settleWait:  cfg.settleWait,
		autoClose:   cfg.autoClose,
		docStatus:   make(map[string]int),
	}

	// Record the HTTP status of every main document load. chromedp's
	// Navigate does not expose it; the network domain does.
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			s.mu.Lock()
			s.docStatus[e.Response.URL] = int(e.Response.Status)
			s.mu.Unlock()
		}
	})

	// Starting the browser eagerly surfaces a missing Chrome binary here
	// instead of on the first navigation.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return s, nil
}

// buildAllocatorOptions assembles the Chrome launch flags.
//
// chromedp.DefaultExecAllocatorOptions includes the Headless option at a
// fixed index; for a visible browser that entry has to be skipped rather
// than overridden.
func buildAllocatorOptions(cfg *sessionConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	if cfg.headless {
		opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	} else {
		defaults := chromedp.DefaultExecAllocatorOptions[:]
		opts = append(opts, defaults[0], defaults[1]) // NoFirstRun, NoDefaultBrowserCheck
		opts = append(opts, defaults[3:]...)          // skip Headless at index 2
		opts = append(opts, chromedp.Flag("start-maximized", true))
	}

	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(cfg.userAgent),
	)

	if cfg.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.chromePath))
	}
	return opts
}

// Navigate loads a URL, waits for the page to settle, and snapshots the
// rendered DOM.
func (s *Session) Navigate(ctx context.Context, rawURL string) (*model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(s.browserCtx, s.navTimeout+s.settleWait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	err := chromedp.Run(navCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(s.settleWait),
	)
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	page, err := s.snapshot(navCtx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", rawURL, err)
	}
	page.URL = rawURL
	page.LoadTime = time.Since(start)
	return page, nil
}

// snapshot captures the current tab state: final URL, title, rendered
// HTML, and the observed document status.
func (s *Session) snapshot(ctx context.Context) (*model.Page, error) {
	var finalURL, title, html string
	err := chromedp.Run(ctx,
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	status := s.docStatus[finalURL]
	s.mu.Unlock()

	return &model.Page{
		FinalURL:   finalURL,
		StatusCode: status,
		Title:      title,
		HTML:       html,
	}, nil
}

// fillSubmitScript fills a form's fields in the live DOM, firing input
// and change events so framework state stays in sync, then clicks the
// submit control (falling back to form.submit()). It evaluates to an
// empty string on success and an error description otherwise.
const fillSubmitScript = `(function(form, values) {
	if (!form) {
		return "form not found in DOM";
	}
	for (var name in values) {
		var el = form.elements[name];
		if (!el) {
			continue;
		}
		if (typeof RadioNodeList !== "undefined" && el instanceof RadioNodeList) {
			el.value = values[name];
			continue;
		}
		var type = (el.type || "").toLowerCase();
		if (type === "checkbox" || type === "radio") {
			el.checked = true;
		} else {
			el.value = values[name];
		}
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	}
	var btn = form.querySelector('button[type=submit], input[type=submit], button:not([type])');
	if (btn) {
		btn.click();
	} else if (typeof form.requestSubmit === "function") {
		form.requestSubmit();
	} else {
		form.submit();
	}
	return "";
})(%s, %s)`

// SubmitForm fills the form with the given values and submits it,
// returning the page the browser lands on afterwards.
func (s *Session) SubmitForm(ctx context.Context, form model.Form, values map[string]string) (*model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode form values: %w", err)
	}
	script := fmt.Sprintf(fillSubmitScript, formExpr(form), string(encoded))

	subCtx, cancel := context.WithTimeout(s.browserCtx, s.navTimeout+s.settleWait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var jsErr string
	err = chromedp.Run(subCtx,
		chromedp.Evaluate(script, &jsErr),
		// The submission may trigger a navigation; give it time.
		chromedp.Sleep(s.settleWait),
	)
	if err != nil {
		return nil, fmt.Errorf("submit form %s: %w", form.Label(), err)
	}
	if jsErr != "" {
		return nil, fmt.Errorf("submit form %s: %s", form.Label(), jsErr)
	}

	page, err := s.snapshot(subCtx)
	if err != nil {
		return nil, fmt.Errorf("snapshot after submit: %w", err)
	}
	page.URL = form.Action
	return page, nil
}

// formExpr returns a JavaScript expression addressing the form in the
// live DOM: by id, by name, or by document order.
func formExpr(form model.Form) string {
	switch {
	case form.ID != "":
		return "document.getElementById(" + strconv.Quote(form.ID) + ")"
	case form.Name != "":
		return "document.forms[" + strconv.Quote(form.Name) + "]"
	default:
		return "document.forms[" + strconv.Itoa(form.Index-1) + "]"
	}
}

// Cookies exports the browser's cookies so the link prober can reuse the
// authenticated session over plain HTTP.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*http.Cookie
	err := chromedp.Run(s.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]*http.Cookie, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Path:   c.Path,
				Domain: c.Domain,
				Secure: c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}
	return out, nil
}

// CurrentURL returns the URL the tab is showing.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var loc string
	if err := chromedp.Run(s.browserCtx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// ErrKeptOpen is returned by Close when auto-close is disabled and the
// browser was intentionally left running.
var ErrKeptOpen = errors.New("browser left open")

// Close shuts the browser down. When auto-close is disabled the browser
// is left running for manual inspection and ErrKeptOpen is returned.
//
// Cancelling chromedp contexts can block waiting for Chrome child
// processes; shutdown is bounded and the process force-killed past the
// deadline.
func (s *Session) Close() error {
	if !s.autoClose {
		return ErrKeptOpen
	}

	var proc *os.Process
	if c := chromedp.FromContext(s.browserCtx); c != nil && c.Browser != nil {
		proc = c.Browser.Process()
	}

	done := make(chan struct{})
	go func() {
		s.cancelCtx()
		s.cancelAlloc()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		if proc != nil {
			_ = proc.Kill()
		}
		return errors.New("browser shutdown timed out, process killed")
	}
}
