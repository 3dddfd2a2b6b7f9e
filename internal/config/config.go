// Package config defines the immutable snapshot the core is handed at
// construction time. Nothing in here touches flags, environment variables,
// or files — that belongs to cmd/s3box.
package config

import (
	"net"
	"strings"
	"time"
)

// PermissionRule is one entry of a credential's ordered rule list. Action is
// an S3 operation name glob (e.g. "Get*", "*"); Resource is "*", "<bucket>",
// "<bucket>/*" or "<bucket>/<prefix>*".
type PermissionRule struct {
	Action   string
	Resource string
}

// Credential is one access-key/secret-key pair plus its permission rules.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	Permissions     []PermissionRule
}

// Allow evaluates action/resource against the rule list in order. First
// match wins; no match is a default deny.
func (c Credential) Allow(action, resource string) bool {
	for _, rule := range c.Permissions {
		if globMatch(rule.Action, action) && globMatch(rule.Resource, resource) {
			return true
		}
	}
	return false
}

// ACL is a bucket's access rule: either public, or restricted to a set of
// CIDR blocks.
type ACL struct {
	Public       bool
	AllowedCIDRs []string
}

// Allows reports whether a client at ip is allowed by this ACL.
func (a ACL) Allows(ip string) bool {
	if a.Public {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range a.AllowedCIDRs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}

// CORSRule is a bucket's single CORS policy. The spec carries one rule per
// bucket, not a list of rules.
type CORSRule struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Matches reports whether origin/method are permitted by this rule.
func (c CORSRule) Matches(origin, method string) bool {
	if !matchesAny(c.AllowedOrigins, origin) {
		return false
	}
	return matchesAny(c.AllowedMethods, method)
}

func matchesAny(list []string, value string) bool {
	for _, item := range list {
		if item == "*" || strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// Config is the immutable snapshot the core consumes. Construct it with
// New and the With* options; nothing in the core mutates it after
// construction.
type Config struct {
	StorageRoot          string
	Credentials          []Credential
	DefaultACL           ACL
	DefaultCORS          CORSRule
	MultipartExpiry      time.Duration
	SweepInterval        time.Duration
	DefaultRegion        string
	HeaderReadTimeout    time.Duration
	IdleBodyTimeout      time.Duration
	ClockSkewWindow      time.Duration
}

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config from defaults plus the given options.
func New(opts ...Option) *Config {
	cfg := &Config{
		DefaultRegion:     "de-muc-01",
		MultipartExpiry:   24 * time.Hour,
		SweepInterval:     time.Hour,
		HeaderReadTimeout: 30 * time.Second,
		IdleBodyTimeout:   60 * time.Second,
		ClockSkewWindow:   15 * time.Minute,
		DefaultACL:        ACL{Public: false},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithStorageRoot(root string) Option {
	return func(c *Config) { c.StorageRoot = root }
}

func WithCredentials(creds []Credential) Option {
	return func(c *Config) { c.Credentials = creds }
}

func WithDefaultACL(acl ACL) Option {
	return func(c *Config) { c.DefaultACL = acl }
}

func WithDefaultCORS(cors CORSRule) Option {
	return func(c *Config) { c.DefaultCORS = cors }
}

func WithMultipartExpiry(d time.Duration) Option {
	return func(c *Config) { c.MultipartExpiry = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

func WithDefaultRegion(region string) Option {
	return func(c *Config) { c.DefaultRegion = region }
}

// Find looks up a credential by access key id.
func (c *Config) Find(accessKeyID string) (Credential, bool) {
	for _, cred := range c.Credentials {
		if cred.AccessKeyID == accessKeyID {
			return cred, true
		}
	}
	return Credential{}, false
}

// globMatch supports any number of "*" wildcards, each matching any run of
// characters, including none. Patterns without "*" require an exact match.
func globMatch(pattern, s string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == s
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	rest := s[len(prefix):]
	if strings.Contains(suffix, "*") {
		for i := 0; i <= len(rest); i++ {
			if globMatch(suffix, rest[i:]) {
				return true
			}
		}
		return false
	}
	return strings.HasSuffix(rest, suffix) && len(rest) >= len(suffix)
}
