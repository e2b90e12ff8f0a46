package synth

import (
	"strings"

	"github.com/webaudit/webaudit/internal/model"
)

// Destructive reports whether submitting the form could mutate or destroy
// site state the audit must not touch. A form is destructive when its
// action URL or submit-button text contains any of the given patterns,
// compared case-insensitively.
//
// Patterns come from configuration; config.DefaultDestructivePatterns
// covers the usual suspects (logout, delete, password reset, ...).
func Destructive(form model.Form, patterns []string) bool {
	haystacks := []string{
		strings.ToLower(form.Action),
		strings.ToLower(form.SubmitText),
	}
	for _, p := range patterns {
		p = strings.ToLower(p)
		if p == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, p) {
				return true
			}
		}
	}
	return false
}
