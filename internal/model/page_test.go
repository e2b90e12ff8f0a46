package model

import "testing"

// TestNormalizeURL tests visited-set canonicalization.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips fragment",
			in:   "http://localhost:8000/about#team",
			want: "http://localhost:8000/about",
		},
		{
			name: "lowercases scheme and host",
			in:   "HTTP://LocalHost:8000/About",
			want: "http://localhost:8000/About",
		},
		{
			name: "empty path becomes root",
			in:   "http://localhost:8000",
			want: "http://localhost:8000/",
		},
		{
			name: "sorts query parameters",
			in:   "http://localhost:8000/list?b=2&a=1",
			want: "http://localhost:8000/list?a=1&b=2",
		},
		{
			name: "invalid url returned unchanged",
			in:   "http://[::invalid",
			want: "http://[::invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("got %q, expected %q", got, tt.want)
			}
		})
	}

	t.Run("query permutations normalize equal", func(t *testing.T) {
		t.Parallel()

		a := NormalizeURL("http://localhost/x?a=1&b=2")
		b := NormalizeURL("http://localhost/x?b=2&a=1")
		if a != b {
			t.Errorf("%q != %q", a, b)
		}
	})
}

// TestSameHost tests internal/external classification.
func TestSameHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   string
		target string
		want   bool
	}{
		{"same host and port", "http://localhost:8000/", "http://localhost:8000/about", true},
		{"case-insensitive host", "http://Example.com/", "http://example.COM/x", true},
		{"different host", "http://localhost:8000/", "https://example.org/", false},
		{"different port is external", "http://localhost:8000/", "http://localhost:9000/", false},
		{"subdomain is external by default", "http://example.com/", "http://www.example.com/", false},
		{"unparseable target", "http://localhost/", "http://[::bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SameHost(tt.base, tt.target); got != tt.want {
				t.Errorf("SameHost(%q, %q) = %v, expected %v", tt.base, tt.target, got, tt.want)
			}
		})
	}
}

// TestFormLabel tests the form identifier fallback chain.
func TestFormLabel(t *testing.T) {
	t.Parallel()

	t.Run("prefers id", func(t *testing.T) {
		t.Parallel()

		f := Form{ID: "signup", Name: "signup-form", Index: 2}
		if got := f.Label(); got != "signup" {
			t.Errorf("got %q, expected 'signup'", got)
		}
	})

	t.Run("falls back to name", func(t *testing.T) {
		t.Parallel()

		f := Form{Name: "signup-form", Index: 2}
		if got := f.Label(); got != "signup-form" {
			t.Errorf("got %q, expected 'signup-form'", got)
		}
	})

	t.Run("positional fallback for anonymous forms", func(t *testing.T) {
		t.Parallel()

		f := Form{Index: 3}
		if got := f.Label(); got != "form_3" {
			t.Errorf("got %q, expected 'form_3'", got)
		}
	})
}
