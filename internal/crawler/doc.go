// Package crawler walks a target site breadth-first and drives the
// per-page audit checks.
//
// # Architecture
//
// The package is designed around the Scheduler type, which coordinates
// the crawl: it maintains a FIFO frontier of URLs, a visited set keyed
// by normalized URL, and a page cap. For every visited page it emits a
// page_load record, hands each discovered link to the prober, and each
// discovered form to the synthesizer and browser driver.
//
// Design decision: The crawl is single-threaded on purpose. The audit
// runs inside one authenticated browser session, and form submissions
// mutate both cookies and server state; interleaving pages across tabs
// would make the records depend on scheduling.
//
// # Components
//
//   - Scheduler: the crawl loop, with dedup, page cap and safety filters
//   - Parser: HTML parser that extracts links and forms from the
//     rendered DOM
//
// # Safety
//
// The crawler never dereferences external links, never navigates or
// probes routes matching a destructive pattern (logout, delete, ...),
// and never submits a form whose action or submit text matches one.
//
// # Usage
//
//	sched := crawler.NewScheduler(session, checker, sink, crawler.WithPageCap(50))
//	pages, err := sched.Crawl(ctx, "https://app.example.com")
package crawler
