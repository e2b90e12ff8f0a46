// Package probe checks the health of discovered links over plain HTTP.
//
// The crawler renders pages in a real browser, but dereferencing every
// link through the browser would be slow and would mutate session state.
// Instead the prober issues a lightweight HEAD request (falling back to
// GET when the server rejects HEAD) with the browser's cookies attached,
// so auth-guarded links answer the way they would for the logged-in user.
//
// External links are classified but never dereferenced.
package probe
