package sigv4

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"s3box/internal/config"
)

// Identity is the resolved caller of a verified request.
type Identity struct {
	AccessKeyID string
}

// Result carries everything the Dispatcher needs after a successful
// verification, including what's needed to validate a streaming body.
type Result struct {
	Identity    Identity
	Credential  config.Credential
	PayloadHash string
	Streaming   bool
	Presigned   bool

	seedSignature string
	credScope     string
	signingKey    []byte
	amzDate       string
}

// Verifier checks SigV4 header and presigned-query authentication against a
// Config's credential set. Verification is constant-time with respect to
// the secret.
type Verifier struct {
	cfg *config.Config
	now func() time.Time
}

func NewVerifier(cfg *config.Config) *Verifier {
	return &Verifier{cfg: cfg, now: time.Now}
}

type credentialParts struct {
	accessKeyID string
	dateStamp   string
	region      string
	service     string
}

func parseCredentialScope(cred string) (credentialParts, error) {
	parts := strings.Split(cred, "/")
	if len(parts) != 5 || parts[4] != Terminator || parts[3] != Service {
		return credentialParts{}, fmt.Errorf("%w: malformed credential scope %q", ErrMalformed, cred)
	}
	return credentialParts{
		accessKeyID: parts[0],
		dateStamp:   parts[1],
		region:      parts[2],
		service:     parts[3],
	}, nil
}

func parseAuthorizationHeader(value string) (cred string, signedHeaders []string, signature string, err error) {
	value = strings.TrimPrefix(value, HeaderPrefix)
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(field, "Credential="):
			cred = strings.TrimPrefix(field, "Credential=")
		case strings.HasPrefix(field, "SignedHeaders="):
			signedHeaders = strings.Split(strings.TrimPrefix(field, "SignedHeaders="), ";")
		case strings.HasPrefix(field, "Signature="):
			signature = strings.TrimPrefix(field, "Signature=")
		}
	}
	if cred == "" || len(signedHeaders) == 0 || signature == "" {
		return "", nil, "", fmt.Errorf("%w: incomplete Authorization header", ErrMalformed)
	}
	return cred, signedHeaders, signature, nil
}

// Verify authenticates r, returning the resolved identity/credential on
// success. Exactly one of header or presigned-query authentication must be
// present.
func (v *Verifier) Verify(r *http.Request) (*Result, error) {
	authHeader := r.Header.Get("Authorization")
	query := r.URL.Query()
	presignedSig := query.Get("X-Amz-Signature")

	isHeader := strings.HasPrefix(authHeader, HeaderPrefix)
	isPresigned := presignedSig != ""
	if isHeader == isPresigned {
		return nil, ErrMissingOrDuplicateAuth
	}

	// net/http moves the Host header out of r.Header into r.Host on server
	// requests; restore it so a signed "host" header canonicalizes correctly.
	if r.Header.Get("Host") == "" && r.Host != "" {
		r = r.Clone(r.Context())
		r.Header.Set("Host", r.Host)
	}

	if isPresigned {
		return v.verifyPresigned(r, query)
	}
	return v.verifyHeader(r, authHeader)
}

func (v *Verifier) resolveCredential(accessKeyID string) (config.Credential, error) {
	cred, ok := v.cfg.Find(accessKeyID)
	if !ok {
		return config.Credential{}, ErrInvalidAccessKeyID
	}
	return cred, nil
}

func (v *Verifier) checkSkew(amzDate string) (time.Time, error) {
	t, err := time.Parse("20060102T150405Z", amzDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, amzDate)
	}
	if diff := v.now().Sub(t); diff > v.cfg.ClockSkewWindow || diff < -v.cfg.ClockSkewWindow {
		return time.Time{}, ErrRequestTimeTooSkewed
	}
	return t, nil
}

func (v *Verifier) verifyHeader(r *http.Request, authHeader string) (*Result, error) {
	credStr, signedHeaders, signature, err := parseAuthorizationHeader(authHeader)
	if err != nil {
		return nil, err
	}
	parts, err := parseCredentialScope(credStr)
	if err != nil {
		return nil, err
	}
	cred, err := v.resolveCredential(parts.accessKeyID)
	if err != nil {
		return nil, err
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	if _, err := v.checkSkew(amzDate); err != nil {
		return nil, err
	}

	payloadHash := r.Header.Get("x-amz-content-sha256")
	if payloadHash == "" {
		payloadHash = UnsignedPayload
	}

	credScope := scope(parts.dateStamp, parts.region, parts.service)
	canonicalRequest := buildCanonicalRequest(r.Method, r.URL.Path, r.URL.Query(), r.Header, signedHeaders, payloadHash)
	toSign := stringToSign(amzDate, credScope, sha256Hex([]byte(canonicalRequest)))
	key := signingKey(cred.SecretAccessKey, parts.dateStamp, parts.region, parts.service)
	expected := sign(key, toSign)

	if !constantTimeEqualHex(expected, signature) {
		return nil, ErrSignatureDoesNotMatch
	}

	return &Result{
		Identity:      Identity{AccessKeyID: parts.accessKeyID},
		Credential:    cred,
		PayloadHash:   payloadHash,
		Streaming:     payloadHash == StreamingPayload,
		seedSignature: expected,
		credScope:     credScope,
		signingKey:    key,
		amzDate:       amzDate,
	}, nil
}

func (v *Verifier) verifyPresigned(r *http.Request, query url.Values) (*Result, error) {
	algo := query.Get("X-Amz-Algorithm")
	if algo != Algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformed, algo)
	}
	credStr := query.Get("X-Amz-Credential")
	signedHeaders := strings.Split(query.Get("X-Amz-SignedHeaders"), ";")
	signature := query.Get("X-Amz-Signature")
	amzDate := query.Get("X-Amz-Date")
	expiresStr := query.Get("X-Amz-Expires")

	parts, err := parseCredentialScope(credStr)
	if err != nil {
		return nil, err
	}
	cred, err := v.resolveCredential(parts.accessKeyID)
	if err != nil {
		return nil, err
	}

	signedAt, err := time.Parse("20060102T150405Z", amzDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, amzDate)
	}
	var expirySeconds int64
	if _, err := fmt.Sscanf(expiresStr, "%d", &expirySeconds); err != nil {
		return nil, fmt.Errorf("%w: bad expires %q", ErrMalformed, expiresStr)
	}
	if v.now().After(signedAt.Add(time.Duration(expirySeconds) * time.Second)) {
		return nil, ErrExpired
	}

	queryWithoutSig := url.Values{}
	for k, vals := range query {
		if k == "X-Amz-Signature" {
			continue
		}
		queryWithoutSig[k] = vals
	}

	credScope := scope(parts.dateStamp, parts.region, parts.service)
	canonicalRequest := buildCanonicalRequest(r.Method, r.URL.Path, queryWithoutSig, r.Header, signedHeaders, UnsignedPayload)
	toSign := stringToSign(amzDate, credScope, sha256Hex([]byte(canonicalRequest)))
	key := signingKey(cred.SecretAccessKey, parts.dateStamp, parts.region, parts.service)
	expected := sign(key, toSign)

	if !constantTimeEqualHex(expected, signature) {
		return nil, ErrSignatureDoesNotMatch
	}

	return &Result{
		Identity:      Identity{AccessKeyID: parts.accessKeyID},
		Credential:    cred,
		PayloadHash:   UnsignedPayload,
		Presigned:     true,
		seedSignature: expected,
		credScope:     credScope,
		signingKey:    key,
		amzDate:       amzDate,
	}, nil
}

func constantTimeEqualHex(a, b string) bool {
	decodedA, err1 := hex.DecodeString(a)
	decodedB, err2 := hex.DecodeString(b)
	if err1 != nil || err2 != nil || len(decodedA) != len(decodedB) {
		return false
	}
	return subtle.ConstantTimeCompare(decodedA, decodedB) == 1
}
