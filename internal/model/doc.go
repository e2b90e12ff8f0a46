// Package model defines the data types shared across the audit engine:
// result records, page snapshots, discovered links and forms, and the
// per-run audit report. These types have no behavior beyond construction,
// validation, and serialization so they can be used by every layer without
// import cycles.
package model
