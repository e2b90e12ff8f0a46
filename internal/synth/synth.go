package synth

import (
	"strings"

	"github.com/webaudit/webaudit/internal/model"
)

// Fixed test values. Deterministic on purpose: re-running an audit against
// an unchanged site should submit the same data and classify the same way.
const (
	testEmail    = "test@example.com"
	testPassword = "TestPass123!"
	testPhone    = "01712345678"
	testName     = "Test User"
	testAddress  = "123 Test Street, Test City"
	testMessage  = "This is a test submission for QA automation."
	testNumber   = "42"
	testDate     = "2024-01-15"
	testURL      = "https://example.org"
	testGeneric  = "Test Value"
)

// Rule pairs a field predicate with a value synthesizer. Rules are
// evaluated in table order; the first match wins.
type Rule struct {
	// Name labels the rule for debugging and logs.
	Name string

	// Match reports whether the rule applies to the field.
	Match func(f model.FormField) bool

	// Value produces the synthetic value for a matched field.
	Value func(f model.FormField) string
}

// typeIs matches on the declared input type.
func typeIs(types ...string) func(model.FormField) bool {
	return func(f model.FormField) bool {
		t := strings.ToLower(f.Type)
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
}

// nameHas matches a substring of the field name or id, case-insensitively.
func nameHas(substrings ...string) func(model.FormField) bool {
	return func(f model.FormField) bool {
		name := strings.ToLower(f.Name + " " + f.ID)
		for _, s := range substrings {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
}

// either combines predicates with OR.
func either(preds ...func(model.FormField) bool) func(model.FormField) bool {
	return func(f model.FormField) bool {
		for _, p := range preds {
			if p(f) {
				return true
			}
		}
		return false
	}
}

// fixed returns a synthesizer that always yields v.
func fixed(v string) func(model.FormField) string {
	return func(model.FormField) string { return v }
}

// defaultRules is the built-in dispatch table. Order matters: specific
// name heuristics come before generic type fallbacks, and the catch-all
// text rule is last.
var defaultRules = []Rule{
	{
		Name:  "email",
		Match: either(typeIs("email"), nameHas("email", "e-mail")),
		Value: fixed(testEmail),
	},
	{
		Name:  "password",
		Match: either(typeIs("password"), nameHas("password", "passwd")),
		Value: fixed(testPassword),
	},
	{
		Name:  "phone",
		Match: either(typeIs("tel"), nameHas("phone", "mobile")),
		Value: fixed(testPhone),
	},
	{
		Name:  "first-name",
		Match: nameHas("first_name", "firstname", "first-name"),
		Value: fixed("Test"),
	},
	{
		Name:  "last-name",
		Match: nameHas("last_name", "lastname", "last-name"),
		Value: fixed("User"),
	},
	{
		Name:  "name",
		Match: nameHas("name"),
		Value: fixed(testName),
	},
	{
		Name:  "address",
		Match: nameHas("address", "street", "city"),
		Value: fixed(testAddress),
	},
	{
		Name:  "long-text",
		Match: either(typeIs("textarea"), nameHas("description", "comment", "message", "note")),
		Value: fixed(testMessage),
	},
	{
		Name:  "number",
		Match: either(typeIs("number", "range"), nameHas("amount", "quantity", "qty", "price")),
		Value: fixed(testNumber),
	},
	{
		Name:  "date",
		Match: either(typeIs("date"), nameHas("date", "dob")),
		Value: fixed(testDate),
	},
	{
		Name:  "datetime",
		Match: typeIs("datetime-local"),
		Value: fixed(testDate + "T10:00"),
	},
	{
		Name:  "time",
		Match: typeIs("time"),
		Value: fixed("10:00"),
	},
	{
		Name:  "url",
		Match: either(typeIs("url"), nameHas("website", "homepage")),
		Value: fixed(testURL),
	},
	{
		Name:  "select",
		Match: typeIs("select", "select-one"),
		Value: firstOption,
	},
	{
		Name:  "checkbox",
		Match: typeIs("checkbox"),
		Value: fixed("on"),
	},
	{
		Name:  "radio",
		Match: typeIs("radio"),
		Value: firstOptionOrValue,
	},
	{
		Name:  "color",
		Match: typeIs("color"),
		Value: fixed("#336699"),
	},
	{
		// Catch-all: every remaining fillable field gets a non-empty
		// token so required-field validation is satisfied.
		Name:  "generic-text",
		Match: func(model.FormField) bool { return true },
		Value: fixed(testGeneric),
	},
}

// firstOption picks the first non-empty option of a select field.
func firstOption(f model.FormField) string {
	for _, opt := range f.Options {
		if opt != "" {
			return opt
		}
	}
	return ""
}

// firstOptionOrValue picks an option, falling back to the declared value.
func firstOptionOrValue(f model.FormField) string {
	if v := firstOption(f); v != "" {
		return v
	}
	return f.Value
}

// Synthesizer maps form fields to synthetic values.
type Synthesizer struct {
	rules     []Rule
	overrides map[string]string
}

// New creates a Synthesizer with the built-in rule table.
// Overrides map field names (or ids) to fixed values and take precedence
// over every rule; keys are matched case-insensitively.
func New(overrides map[string]string) *Synthesizer {
	normalized := make(map[string]string, len(overrides))
	for k, v := range overrides {
		normalized[strings.ToLower(k)] = v
	}
	return &Synthesizer{
		rules:     defaultRules,
		overrides: normalized,
	}
}

// Value returns the synthetic value for a field.
// Required fields always get a non-empty value (the catch-all rule
// guarantees it); a select with no usable options yields "" and the
// caller leaves the field untouched.
func (s *Synthesizer) Value(f model.FormField) string {
	if v, ok := s.overrides[strings.ToLower(f.Name)]; ok {
		return v
	}
	if f.ID != "" {
		if v, ok := s.overrides[strings.ToLower(f.ID)]; ok {
			return v
		}
	}

	for _, rule := range s.rules {
		if rule.Match(f) {
			return rule.Value(f)
		}
	}

	// Unreachable while the table ends with a catch-all.
	return testGeneric
}

// Plan maps every fillable field of a form to its synthetic value.
// Fields without a name are skipped (browsers do not submit them), as are
// fields whose synthesized value is empty.
func (s *Synthesizer) Plan(form model.Form) map[string]string {
	values := make(map[string]string, len(form.Fields))
	for _, f := range form.Fields {
		if f.Name == "" {
			continue
		}
		if v := s.Value(f); v != "" {
			values[f.Name] = v
		}
	}
	return values
}
