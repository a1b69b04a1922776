package urlx

import "testing"

func TestHostname(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://Example.COM/path", "example.com"},
		{"https://docs.example.com:8443/x", "docs.example.com"},
		{"not a url\x7f", ""},
		{"/relative/path", ""},
	}
	for _, tc := range cases {
		if got := Hostname(tc.rawURL); got != tc.want {
			t.Errorf("Hostname(%q) = %q, want %q", tc.rawURL, got, tc.want)
		}
	}
}

func TestMatchesDomain(t *testing.T) {
	cases := []struct {
		host, domain string
		want         bool
	}{
		{"example.com", "example.com", true},
		{"docs.example.com", "example.com", true},
		{"EXAMPLE.com", "example.com", true},
		{"notexample.com", "example.com", false},
		{"example.com", "docs.example.com", false},
		{"", "example.com", false},
		{"example.com", "", false},
	}
	for _, tc := range cases {
		if got := MatchesDomain(tc.host, tc.domain); got != tc.want {
			t.Errorf("MatchesDomain(%q, %q) = %v, want %v", tc.host, tc.domain, got, tc.want)
		}
	}
}

func TestFirstPathSegment(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://github.com/owner/repo", "owner"},
		{"https://example.com/", ""},
		{"https://example.com", ""},
		{"https://example.com/single", "single"},
	}
	for _, tc := range cases {
		if got := FirstPathSegment(tc.rawURL); got != tc.want {
			t.Errorf("FirstPathSegment(%q) = %q, want %q", tc.rawURL, got, tc.want)
		}
	}
}
