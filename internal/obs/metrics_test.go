package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/auth/login":             "/v1/auth/login",
		"/v1/users/abc":              "/v1/users/:id",
		"/v1/roles/abc":              "/v1/roles/:id",
		"/v1/roles/abc/permissions":  "/v1/roles/:id/permissions",
		"/v1/enterprises/abc":        "/v1/enterprises/:id",
		"/v1/users/abc/extra/deep":   "/v1/users/abc/extra/deep",
		"/v1/users/abc?include=role": "/v1/users/:id",
		"/v1/dashboard":              "/v1/dashboard",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
