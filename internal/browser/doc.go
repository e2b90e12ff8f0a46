// Package browser drives a real Chrome instance over the DevTools
// protocol via chromedp.
//
// A Session owns one browser with one tab for the lifetime of an audit.
// The crawler navigates through it, the authenticator logs in through
// it, and the link prober borrows its cookies so plain HTTP probes are
// answered as the logged-in user.
//
// Design decision: A real browser rather than an HTTP client because
// the targets are JavaScript-heavy applications. Links and forms often
// exist only in the rendered DOM, login flows set cookies from scripts,
// and a static fetch would audit markup the user never sees.
package browser
