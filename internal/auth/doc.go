// Package auth logs the browser session into the target application
// before the crawl starts.
//
// Authentication is the only step whose failure aborts an audit: every
// later check degrades to a recorded FAIL or ERROR, but without a valid
// session the whole crawl would audit the login wall instead of the
// application.
package auth
