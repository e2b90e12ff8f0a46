// Package synth generates deterministic, plausible values for HTML form
// fields during form testing. Dispatch is an explicit ordered table of
// (predicate, synthesizer) rules evaluated top to bottom, so the mapping
// from a field's declared type and name to its test value is inspectable
// and overridable, not buried in string comparisons at call sites.
//
// The package also implements the destructive-form filter: forms whose
// action URL or submit control matches a configured pattern (logout,
// delete, ...) are reported but never submitted.
package synth
