package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/probe"
)

// fakeDriver serves canned pages keyed by URL.
type fakeDriver struct {
	pages       map[string]*model.Page
	submissions []submission
	submitPage  *model.Page
	submitErr   error
	navigations []string
}

type submission struct {
	form   model.Form
	values map[string]string
}

func (d *fakeDriver) Navigate(_ context.Context, rawURL string) (*model.Page, error) {
	d.navigations = append(d.navigations, rawURL)
	page, ok := d.pages[rawURL]
	if !ok {
		return nil, errors.New("navigation failed: connection refused")
	}
	return page, nil
}

func (d *fakeDriver) SubmitForm(_ context.Context, form model.Form, values map[string]string) (*model.Page, error) {
	d.submissions = append(d.submissions, submission{form: form, values: values})
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	return d.submitPage, nil
}

// fakeProber returns canned results keyed by URL.
type fakeProber struct {
	results map[string]probe.Result
	probed  []string
}

func (p *fakeProber) Probe(_ context.Context, rawURL string) probe.Result {
	p.probed = append(p.probed, rawURL)
	if r, ok := p.results[rawURL]; ok {
		return r
	}
	return probe.Result{Status: model.StatusPass, StatusCode: 200, ResponseTime: time.Millisecond}
}

// fakeRecorder collects appended records.
type fakeRecorder struct {
	records []model.Record
	err     error
}

func (r *fakeRecorder) Append(rec model.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) byType(t model.RecordType) []model.Record {
	var out []model.Record
	for _, rec := range r.records {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

func page(url, html string) *model.Page {
	return &model.Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: 200,
		HTML:       html,
		LoadTime:   10 * time.Millisecond,
	}
}

func TestScheduler_Crawl_visitsLinkedPagesOnce(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/about">About</a> <a href="/about#team">Team</a>`),
		"https://app.example.com/about": page("https://app.example.com/about",
			`<a href="/">Home</a>`),
	}}
	prober := &fakeProber{}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec)
	pages, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	// /about and /about#team normalize to the same page.
	if pages != 2 {
		t.Errorf("pages crawled = %d, want 2", pages)
	}

	loads := rec.byType(model.RecordPageLoad)
	if len(loads) != 2 {
		t.Fatalf("got %d page_load records, want 2", len(loads))
	}
	if loads[0].Status != model.StatusPass {
		t.Errorf("page_load status = %s, want PASS", loads[0].Status)
	}

	// Every link appearance is recorded: 2 on /, 1 on /about.
	links := rec.byType(model.RecordInternalLink)
	if len(links) != 3 {
		t.Errorf("got %d internal_link records, want 3", len(links))
	}
}

func TestScheduler_Crawl_pageCap(t *testing.T) {
	t.Parallel()

	pages := map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/p1">1</a><a href="/p2">2</a><a href="/p3">3</a>`),
	}
	for _, p := range []string{"/p1", "/p2", "/p3"} {
		u := "https://app.example.com" + p
		pages[u] = page(u, "")
	}

	driver := &fakeDriver{pages: pages}
	rec := &fakeRecorder{}
	sched := NewScheduler(driver, &fakeProber{}, rec, WithPageCap(2))

	crawled, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if crawled != 2 {
		t.Errorf("pages crawled = %d, want cap of 2", crawled)
	}
	// Links on the first page are still fully recorded even though not
	// all of them get visited.
	if got := len(rec.byType(model.RecordInternalLink)); got != 3 {
		t.Errorf("internal_link records = %d, want 3", got)
	}
}

func TestScheduler_Crawl_pageCapCountsFailedLoads(t *testing.T) {
	t.Parallel()

	// Only the seed page exists; every linked page fails to load. The
	// cap bounds dequeues, so dead pages must not extend the crawl.
	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/d1">1</a><a href="/d2">2</a><a href="/d3">3</a><a href="/d4">4</a><a href="/d5">5</a>`),
	}}
	rec := &fakeRecorder{}
	sched := NewScheduler(driver, &fakeProber{}, rec, WithPageCap(2))

	crawled, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if crawled != 2 {
		t.Errorf("pages crawled = %d, want cap of 2", crawled)
	}
	if len(driver.navigations) != 2 {
		t.Errorf("navigations = %d, want 2: %v", len(driver.navigations), driver.navigations)
	}
	if got := len(rec.byType(model.RecordPageLoad)); got != 2 {
		t.Errorf("page_load records = %d, want 2", got)
	}
}

func TestScheduler_Crawl_externalLinksRecordedNotProbed(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="https://other.example.org/docs">Docs</a>`),
	}}
	prober := &fakeProber{}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec)
	if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	ext := rec.byType(model.RecordExternalLink)
	if len(ext) != 1 {
		t.Fatalf("got %d external_link records, want 1", len(ext))
	}
	if ext[0].Status != model.StatusExternal {
		t.Errorf("status = %s, want EXTERNAL", ext[0].Status)
	}
	if len(prober.probed) != 0 {
		t.Errorf("external link was probed: %v", prober.probed)
	}
	if len(driver.navigations) != 1 {
		t.Errorf("external link was navigated: %v", driver.navigations)
	}
}

func TestScheduler_Crawl_brokenLinkCarriesDetail(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/missing">Gone</a>`),
	}}
	prober := &fakeProber{results: map[string]probe.Result{
		"https://app.example.com/missing": {
			Status:       model.StatusFail,
			StatusCode:   404,
			ErrorMessage: "HTTP 404",
		},
	}}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec, WithPageCap(1))
	if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	links := rec.byType(model.RecordInternalLink)
	if len(links) != 1 {
		t.Fatalf("got %d internal_link records, want 1", len(links))
	}
	if links[0].Status != model.StatusFail {
		t.Errorf("status = %s, want FAIL", links[0].Status)
	}
	if links[0].ErrorMessage == "" {
		t.Error("FAIL link record has no error detail")
	}
}

func TestScheduler_Crawl_mailtoRecordedAsExternal(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="mailto:support@example.com">Contact us</a>`),
	}}
	prober := &fakeProber{}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec)
	if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	ext := rec.byType(model.RecordExternalLink)
	if len(ext) != 1 {
		t.Fatalf("got %d external_link records, want 1", len(ext))
	}
	if ext[0].LinkURL != "mailto:support@example.com" {
		t.Errorf("LinkURL = %q, want the mailto href", ext[0].LinkURL)
	}
	if len(prober.probed) != 0 {
		t.Errorf("mailto link was probed: %v", prober.probed)
	}
	if len(driver.navigations) != 1 {
		t.Errorf("mailto link was navigated: %v", driver.navigations)
	}
}

func TestScheduler_Crawl_subdomainPolicy(t *testing.T) {
	t.Parallel()

	const link = `<a href="https://api.app.example.com/v1">API</a>`

	t.Run("subdomain external by default", func(t *testing.T) {
		t.Parallel()

		rec := &fakeRecorder{}
		driver := &fakeDriver{pages: map[string]*model.Page{
			"https://app.example.com/": page("https://app.example.com/", link),
		}}
		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		if got := len(rec.byType(model.RecordExternalLink)); got != 1 {
			t.Errorf("external_link records = %d, want 1", got)
		}
	})

	t.Run("subdomain internal when allowed", func(t *testing.T) {
		t.Parallel()

		rec := &fakeRecorder{}
		driver := &fakeDriver{pages: map[string]*model.Page{
			"https://app.example.com/":       page("https://app.example.com/", link),
			"https://api.app.example.com/v1": page("https://api.app.example.com/v1", ""),
		}}
		sched := NewScheduler(driver, &fakeProber{}, rec, WithAllowSubdomains(true))
		pages, err := sched.Crawl(context.Background(), "https://app.example.com/")
		if err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		if got := len(rec.byType(model.RecordInternalLink)); got != 1 {
			t.Errorf("internal_link records = %d, want 1", got)
		}
		if pages != 2 {
			t.Errorf("pages crawled = %d, want 2", pages)
		}
	})
}

func TestScheduler_Crawl_destructiveRoutesSkipped(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/logout">Sign out</a><a href="/users/3/delete">Remove</a>`),
	}}
	prober := &fakeProber{}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec)
	if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if len(prober.probed) != 0 {
		t.Errorf("destructive routes were probed: %v", prober.probed)
	}
	if len(driver.navigations) != 1 {
		t.Errorf("destructive routes were navigated: %v", driver.navigations)
	}

	links := rec.byType(model.RecordInternalLink)
	if len(links) != 2 {
		t.Fatalf("got %d internal_link records, want 2", len(links))
	}
	for _, l := range links {
		if l.Status != model.StatusUnknown {
			t.Errorf("destructive link status = %s, want UNKNOWN", l.Status)
		}
	}
}

func TestScheduler_Crawl_pageLoadFailureContinues(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/broken">Broken</a><a href="/ok">OK</a>`),
		"https://app.example.com/ok": page("https://app.example.com/ok", ""),
		// /broken is absent: navigation fails.
	}}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, &fakeProber{}, rec)
	pages, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	// The failed page still counts: it was dequeued and navigated.
	if pages != 3 {
		t.Errorf("pages crawled = %d, want 3", pages)
	}

	loads := rec.byType(model.RecordPageLoad)
	if len(loads) != 3 {
		t.Fatalf("got %d page_load records, want 3", len(loads))
	}

	var sawError bool
	for _, l := range loads {
		if l.Status == model.StatusError && l.ErrorMessage != "" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("no ERROR page_load record for the broken page")
	}
}

func TestScheduler_Crawl_formSubmission(t *testing.T) {
	t.Parallel()

	const home = `<form action="/contact" method="post" id="contact">
		<input type="email" name="email" required>
		<input type="submit" value="Send">
	</form>`

	t.Run("redirect away is PASS", func(t *testing.T) {
		t.Parallel()

		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", home),
			},
			submitPage: page("https://app.example.com/thanks", "Thank you"),
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		forms := rec.byType(model.RecordFormSubmission)
		if len(forms) != 1 {
			t.Fatalf("got %d form_submission records, want 1", len(forms))
		}
		if forms[0].Status != model.StatusPass {
			t.Errorf("status = %s, want PASS", forms[0].Status)
		}
		if forms[0].LinkText != "contact" {
			t.Errorf("LinkText = %q, want form id", forms[0].LinkText)
		}

		if len(driver.submissions) != 1 {
			t.Fatalf("got %d submissions, want 1", len(driver.submissions))
		}
		if driver.submissions[0].values["email"] == "" {
			t.Error("email field was not synthesized")
		}
	})

	t.Run("failure indicator is FAIL", func(t *testing.T) {
		t.Parallel()

		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", home),
			},
			submitPage: page("https://app.example.com/", `<p>Email is invalid</p>`),
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		forms := rec.byType(model.RecordFormSubmission)
		if forms[0].Status != model.StatusFail {
			t.Errorf("status = %s, want FAIL", forms[0].Status)
		}
		if forms[0].ErrorMessage == "" {
			t.Error("FAIL record has no indicator detail")
		}
	})

	t.Run("success indicator without redirect is PASS", func(t *testing.T) {
		t.Parallel()

		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", home),
			},
			submitPage: page("https://app.example.com/", `<p>Message sent successfully</p>`),
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		if got := rec.byType(model.RecordFormSubmission)[0].Status; got != model.StatusPass {
			t.Errorf("status = %s, want PASS", got)
		}
	})

	t.Run("no indicator is UNKNOWN", func(t *testing.T) {
		t.Parallel()

		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", home),
			},
			submitPage: page("https://app.example.com/", `<p>same page, no banner</p>`),
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		if got := rec.byType(model.RecordFormSubmission)[0].Status; got != model.StatusUnknown {
			t.Errorf("status = %s, want UNKNOWN", got)
		}
	})

	t.Run("submission error is ERROR and crawl continues", func(t *testing.T) {
		t.Parallel()

		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", home),
			},
			submitErr: errors.New("element not interactable"),
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		forms := rec.byType(model.RecordFormSubmission)
		if forms[0].Status != model.StatusError {
			t.Errorf("status = %s, want ERROR", forms[0].Status)
		}
	})

	t.Run("destructive form not submitted", func(t *testing.T) {
		t.Parallel()

		const destructive = `<form action="/account" method="post">
			<input type="submit" value="Delete my account">
		</form>`
		driver := &fakeDriver{
			pages: map[string]*model.Page{
				"https://app.example.com/": page("https://app.example.com/", destructive),
			},
		}
		rec := &fakeRecorder{}

		sched := NewScheduler(driver, &fakeProber{}, rec)
		if _, err := sched.Crawl(context.Background(), "https://app.example.com/"); err != nil {
			t.Fatalf("Crawl: %v", err)
		}

		if len(driver.submissions) != 0 {
			t.Fatalf("destructive form was submitted: %+v", driver.submissions)
		}
		forms := rec.byType(model.RecordFormSubmission)
		if len(forms) != 1 || forms[0].Status != model.StatusUnknown {
			t.Errorf("destructive form record = %+v, want UNKNOWN", forms)
		}
	})
}

func TestScheduler_Crawl_ignorePatterns(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/",
			`<a href="/admin/users">Admin</a><a href="/about">About</a>`),
		"https://app.example.com/about": page("https://app.example.com/about", ""),
	}}
	prober := &fakeProber{}
	rec := &fakeRecorder{}

	sched := NewScheduler(driver, prober, rec, WithIgnorePatterns([]string{"/admin/*"}))
	pages, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if pages != 2 {
		t.Errorf("pages crawled = %d, want 2 (admin not visited)", pages)
	}
	// The ignored link is still probed and recorded.
	if got := len(rec.byType(model.RecordInternalLink)); got != 2 {
		t.Errorf("internal_link records = %d, want 2", got)
	}
	if len(prober.probed) != 2 {
		t.Errorf("probed = %v, want both links probed", prober.probed)
	}
}

func TestScheduler_Crawl_contextCancellation(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/", `<a href="/next">n</a>`),
	}}
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := NewScheduler(driver, &fakeProber{}, rec)
	_, err := sched.Crawl(ctx, "https://app.example.com/")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestScheduler_Crawl_recorderFailureAborts(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{pages: map[string]*model.Page{
		"https://app.example.com/": page("https://app.example.com/", ""),
	}}
	rec := &fakeRecorder{err: errors.New("disk full")}

	sched := NewScheduler(driver, &fakeProber{}, rec)
	_, err := sched.Crawl(context.Background(), "https://app.example.com/")
	if err == nil {
		t.Fatal("expected error when recorder fails")
	}
}
