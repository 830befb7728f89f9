package weburl

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Location
	}{
		{
			name: "full url",
			raw:  "https://example.com:8443/login.php?user=a&pass=b",
			expected: Location{
				Scheme:   "https",
				Hostname: "example.com",
				Port:     8443,
				Website:  "https://example.com:8443",
				Path:     "/login.php",
				Query:    "user=a&pass=b",
				Params:   "user, pass",
			},
		},
		{
			name: "no port no query",
			raw:  "http://example.com/",
			expected: Location{
				Scheme:   "http",
				Hostname: "example.com",
				Website:  "http://example.com",
				Path:     "/",
			},
		},
		{
			name: "relative path",
			raw:  "/index.php?id=1",
			expected: Location{
				Path:   "/index.php",
				Query:  "id=1",
				Params: "id",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.raw, err)
			}
			if got != tt.expected {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("http://[::1"); err == nil {
		t.Error("Parse() error = nil for an invalid host")
	}
}

func TestLocation_DefaultPort(t *testing.T) {
	tests := []struct {
		loc      Location
		expected int
	}{
		{Location{Scheme: "https"}, 443},
		{Location{Scheme: "http"}, 80},
		{Location{Scheme: "gopher"}, 80},
		{Location{Scheme: "https", Port: 8443}, 8443},
	}

	for _, tt := range tests {
		if got := tt.loc.DefaultPort(); got != tt.expected {
			t.Errorf("%+v.DefaultPort() = %d, want %d", tt.loc, got, tt.expected)
		}
	}
}

func TestParamNames(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://x/?a=1&b=2", "a, b"},
		{"http://x/", ""},
		{"id=1;session=abc", "id, session"},
	}

	for _, tt := range tests {
		if got := ParamNames(tt.input); got != tt.expected {
			t.Errorf("ParamNames(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
