// Package config provides configuration structures and utilities for
// webaudit. It defines the run options (target, credentials, page cap,
// output paths), the optional .webaudit YAML file with per-target
// overrides, and the heuristic tables (form field values, destructive-form
// patterns, submission outcome indicators) that the audit engine consumes.
package config
