package config

import "testing"

func TestCredentialAllow(t *testing.T) {
	cred := Credential{
		Permissions: []PermissionRule{
			{Action: "Get*", Resource: "photos/*"},
			{Action: "*", Resource: "logs"},
		},
	}

	cases := []struct {
		action, resource string
		want             bool
	}{
		{"GetObject", "photos/cat.png", true},
		{"GetObject", "docs/readme.txt", false},
		{"PutObject", "logs", true},
		{"PutObject", "photos/cat.png", false},
	}
	for _, c := range cases {
		if got := cred.Allow(c.action, c.resource); got != c.want {
			t.Errorf("Allow(%q, %q) = %v, want %v", c.action, c.resource, got, c.want)
		}
	}
}

func TestACLAllows(t *testing.T) {
	public := ACL{Public: true}
	if !public.Allows("1.2.3.4") {
		t.Error("public ACL should allow any address")
	}

	restricted := ACL{AllowedCIDRs: []string{"10.0.0.0/8"}}
	if !restricted.Allows("10.1.2.3") {
		t.Error("expected 10.1.2.3 to be within 10.0.0.0/8")
	}
	if restricted.Allows("192.168.1.1") {
		t.Error("expected 192.168.1.1 to be rejected")
	}
	if restricted.Allows("not-an-ip") {
		t.Error("malformed address should be rejected, not panic")
	}
}

func TestCORSRuleMatches(t *testing.T) {
	rule := CORSRule{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET", "PUT"},
	}
	if !rule.Matches("https://example.com", "GET") {
		t.Error("expected matching origin/method to pass")
	}
	if rule.Matches("https://evil.example", "GET") {
		t.Error("expected unlisted origin to be rejected")
	}
	if rule.Matches("https://example.com", "DELETE") {
		t.Error("expected unlisted method to be rejected")
	}

	wildcard := CORSRule{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"*"}}
	if !wildcard.Matches("https://anything.example", "POST") {
		t.Error("wildcard rule should match anything")
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"Get*", "GetObject", true},
		{"Get*", "PutObject", false},
		{"photos/*", "photos/cat.png", true},
		{"photos/*", "docs/cat.png", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"a*b*c", "axxbxxc", true},
		{"a*b*c", "axxbxx", false},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.s); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestConfigFind(t *testing.T) {
	cfg := New(WithCredentials([]Credential{
		{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"},
	}))

	cred, ok := cfg.Find("AKIDEXAMPLE")
	if !ok || cred.SecretAccessKey != "secret" {
		t.Fatalf("expected to find configured credential, got %+v, %v", cred, ok)
	}

	if _, ok := cfg.Find("unknown"); ok {
		t.Error("expected unknown access key to not be found")
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.DefaultRegion == "" {
		t.Error("expected a non-empty default region")
	}
	if cfg.ClockSkewWindow <= 0 {
		t.Error("expected a positive clock skew window")
	}
}
