package synth

import (
	"testing"

	"github.com/webaudit/webaudit/internal/model"
)

func TestSynthesizer_Value(t *testing.T) {
	t.Parallel()

	s := New(nil)

	tests := []struct {
		name  string
		field model.FormField
		want  string
	}{
		{
			name:  "email by type",
			field: model.FormField{Name: "contact", Type: "email"},
			want:  "test@example.com",
		},
		{
			name:  "email by name",
			field: model.FormField{Name: "user_email", Type: "text"},
			want:  "test@example.com",
		},
		{
			name:  "password by type",
			field: model.FormField{Name: "secret", Type: "password"},
			want:  "TestPass123!",
		},
		{
			name:  "phone by name",
			field: model.FormField{Name: "mobile_number", Type: "text"},
			want:  "01712345678",
		},
		{
			name:  "first name before generic name",
			field: model.FormField{Name: "first_name", Type: "text"},
			want:  "Test",
		},
		{
			name:  "last name before generic name",
			field: model.FormField{Name: "lastname", Type: "text"},
			want:  "User",
		},
		{
			name:  "full name",
			field: model.FormField{Name: "name", Type: "text"},
			want:  "Test User",
		},
		{
			name:  "address",
			field: model.FormField{Name: "street_address", Type: "text"},
			want:  "123 Test Street, Test City",
		},
		{
			name:  "textarea",
			field: model.FormField{Name: "bio", Type: "textarea"},
			want:  "This is a test submission for QA automation.",
		},
		{
			name:  "number by type",
			field: model.FormField{Name: "whatever", Type: "number"},
			want:  "42",
		},
		{
			name:  "date by type",
			field: model.FormField{Name: "start", Type: "date"},
			want:  "2024-01-15",
		},
		{
			name:  "url by type",
			field: model.FormField{Name: "site", Type: "url"},
			want:  "https://example.org",
		},
		{
			name:  "select picks first non-empty option",
			field: model.FormField{Name: "country", Type: "select", Options: []string{"", "BD", "US"}},
			want:  "BD",
		},
		{
			name:  "select with no options",
			field: model.FormField{Name: "country", Type: "select"},
			want:  "",
		},
		{
			name:  "checkbox",
			field: model.FormField{Name: "agree", Type: "checkbox"},
			want:  "on",
		},
		{
			name:  "radio uses declared value",
			field: model.FormField{Name: "plan", Type: "radio", Value: "basic"},
			want:  "basic",
		},
		{
			name:  "plain text falls through to generic",
			field: model.FormField{Name: "reference_code", Type: "text"},
			want:  "Test Value",
		},
		{
			name:  "match by id when name is opaque",
			field: model.FormField{Name: "f1", ID: "billing_email", Type: "text"},
			want:  "test@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := s.Value(tt.field); got != tt.want {
				t.Errorf("Value(%q/%q) = %q, want %q", tt.field.Name, tt.field.Type, got, tt.want)
			}
		})
	}
}

func TestSynthesizer_Value_overrides(t *testing.T) {
	t.Parallel()

	s := New(map[string]string{
		"Email":       "qa@corp.example",
		"coupon_code": "QA-2024",
	})

	t.Run("override beats rule table", func(t *testing.T) {
		t.Parallel()

		got := s.Value(model.FormField{Name: "email", Type: "email"})
		if got != "qa@corp.example" {
			t.Errorf("Value() = %q, want override %q", got, "qa@corp.example")
		}
	})

	t.Run("override matched case-insensitively", func(t *testing.T) {
		t.Parallel()

		got := s.Value(model.FormField{Name: "Coupon_Code", Type: "text"})
		if got != "QA-2024" {
			t.Errorf("Value() = %q, want override %q", got, "QA-2024")
		}
	})

	t.Run("override by id", func(t *testing.T) {
		t.Parallel()

		got := s.Value(model.FormField{Name: "field7", ID: "coupon_code", Type: "text"})
		if got != "QA-2024" {
			t.Errorf("Value() = %q, want override %q", got, "QA-2024")
		}
	})
}

func TestSynthesizer_Plan(t *testing.T) {
	t.Parallel()

	s := New(nil)
	form := model.Form{
		Action: "/contact",
		Method: "post",
		Fields: []model.FormField{
			{Name: "email", Type: "email"},
			{Name: "message", Type: "textarea"},
			{Name: "", Type: "text"}, // nameless, never submitted
			{Name: "country", Type: "select"}, // no options, left untouched
		},
	}

	plan := s.Plan(form)

	if len(plan) != 2 {
		t.Fatalf("Plan() produced %d entries, want 2: %v", len(plan), plan)
	}
	if plan["email"] != "test@example.com" {
		t.Errorf("plan[email] = %q", plan["email"])
	}
	if plan["message"] == "" {
		t.Error("plan[message] is empty")
	}
}

func TestDestructive(t *testing.T) {
	t.Parallel()

	patterns := []string{"logout", "delete", "reset-password"}

	tests := []struct {
		name string
		form model.Form
		want bool
	}{
		{
			name: "logout in action",
			form: model.Form{Action: "https://app.example.com/logout"},
			want: true,
		},
		{
			name: "delete in action path",
			form: model.Form{Action: "/users/42/delete"},
			want: true,
		},
		{
			name: "pattern in submit text",
			form: model.Form{Action: "/account", SubmitText: "Delete my account"},
			want: true,
		},
		{
			name: "case-insensitive",
			form: model.Form{Action: "/LOGOUT"},
			want: true,
		},
		{
			name: "safe contact form",
			form: model.Form{Action: "/contact", SubmitText: "Send"},
			want: false,
		},
		{
			name: "no patterns",
			form: model.Form{Action: "/logout"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pats := patterns
			if tt.name == "no patterns" {
				pats = nil
			}
			if got := Destructive(tt.form, pats); got != tt.want {
				t.Errorf("Destructive(%q) = %v, want %v", tt.form.Action, got, tt.want)
			}
		})
	}
}
