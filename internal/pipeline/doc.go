// Package pipeline provides a framework for executing audit stages in
// sequence.
//
// The pipeline pattern is used to process a target through multiple
// stages: authentication, cookie synchronization, crawling, summary
// generation, and history persistence. Each stage is implemented as a
// Step that receives the current report and can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running audits
// 4. It lets the CLI assemble different pipelines (with or without
//    persistence, with different report writers) from the same parts
//
// The pipeline supports both single-target audits and batch processing
// of multiple targets with concurrency control using errgroup. Within
// one pipeline the steps stay strictly sequential: the crawl depends on
// the authenticated browser session the auth step established.
package pipeline
