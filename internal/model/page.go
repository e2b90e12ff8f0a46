package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Page is the result of navigating the browser session to a URL.
// It is the unit the crawler hands to the link prober and form tester.
type Page struct {
	// URL is the address the crawler asked for.
	URL string

	// FinalURL is the address after redirects. Differs from URL when
	// the server redirected (e.g. an auth-guarded page bouncing to
	// the login form).
	FinalURL string

	// StatusCode is the HTTP status of the main document, or zero when
	// the engine could not observe one (client-side routed pages).
	StatusCode int

	// Title is the document title, empty if none.
	Title string

	// HTML is the rendered DOM snapshot serialized back to HTML.
	// Parsed once per page by the crawler's parser.
	HTML string

	// LoadTime is how long the navigation took, including the
	// post-load settle wait.
	LoadTime time.Duration
}

// Link is one anchor discovered on a page.
type Link struct {
	// Href is the raw href attribute, possibly relative.
	Href string

	// Text is the anchor text, trimmed. Falls back to the title or
	// aria-label attribute when the anchor has no text content.
	Text string
}

// Form is one HTML form discovered on a page.
type Form struct {
	// Action is the form action resolved against the page URL.
	// When a form has no action the page's own URL is used.
	Action string

	// Method is the HTTP method, uppercased. Defaults to GET.
	Method string

	// ID is the id attribute, empty if none.
	ID string

	// Name is the name attribute, empty if none.
	Name string

	// Index is the position of the form on its page (1-based).
	// Used to address the form in the live DOM and to label
	// anonymous forms in the report.
	Index int

	// SubmitText is the visible text of the form's submit control,
	// used by the destructive-form filter.
	SubmitText string

	// Fields are the fillable input descriptors, document order.
	// Hidden inputs and submit/button/reset controls are excluded.
	Fields []FormField
}

// Label returns a human-readable identifier for the form: the id, the
// name, or a positional fallback.
func (f Form) Label() string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return f.Name
	default:
		return "form_" + strconv.Itoa(f.Index)
	}
}

// FormField describes one fillable form input.
// Field descriptors are ephemeral: they exist only to synthesize a value
// and are not persisted.
type FormField struct {
	// Name is the name attribute. Fields without a name are not
	// submitted by browsers and are skipped.
	Name string

	// ID is the id attribute, empty if none.
	ID string

	// Type is the declared input type (text, email, password, select,
	// checkbox, textarea, ...), lowercased. Defaults to "text".
	Type string

	// Required reports whether the required attribute is present.
	Required bool

	// Value is the pre-filled value attribute, if any.
	Value string

	// Placeholder is the placeholder attribute, if any.
	Placeholder string

	// Options holds the non-empty option values for select fields.
	Options []string
}

// NormalizeURL canonicalizes a URL for visited-set and frontier
// deduplication: lowercased scheme and host, fragment stripped, query
// parameters sorted, and the empty path treated as "/".
//
// Two URLs that normalize equal are considered the same page. The raw URL
// is still what gets recorded and navigated.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	// Sort query parameters so ?a=1&b=2 and ?b=2&a=1 dedupe together.
	if u.RawQuery != "" {
		q := u.Query()
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// SameHost reports whether two URLs share a host, after lowercasing.
// This is the default internal/external classification rule: exact host
// match, port included.
func SameHost(baseURL, targetURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	target, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Host, target.Host)
}
