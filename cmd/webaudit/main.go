// Package main provides the entry point for the webaudit CLI.
//
// webaudit is a QA auditing tool for authenticated web applications.
// It logs into a target through a real browser, crawls the internal
// pages, checks every discovered link, submits forms with synthetic
// data, and writes the results to a CSV report.
//
// Usage:
//
//	webaudit audit --email qa@example.com --password secret https://app.example.com
//	webaudit history https://app.example.com
//
// See --help for all available options.
package main

// main is the entry point for webaudit.
func main() {
	Execute()
}
