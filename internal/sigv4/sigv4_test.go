package sigv4

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"s3box/internal/config"
)

const (
	testAccessKey = "AKIDEXAMPLE"
	testSecretKey = "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
	testRegion    = "de-muc-01"
)

func testVerifier(at time.Time) (*Verifier, *config.Config) {
	cfg := config.New(config.WithCredentials([]config.Credential{
		{AccessKeyID: testAccessKey, SecretAccessKey: testSecretKey},
	}))
	v := NewVerifier(cfg)
	v.now = func() time.Time { return at }
	return v, cfg
}

// signRequest signs req the way a well-behaved client would, using the
// package's own canonical-request helpers, so the test is exercising
// Verify against a real computed signature rather than a fixture.
func signRequest(req *http.Request, amzDate string, payloadHash string) {
	dateStamp := amzDate[:8]
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("Host", req.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	signedHeaders := []string{"host", "x-amz-date", "x-amz-content-sha256"}
	credScope := scope(dateStamp, testRegion, Service)
	canonicalRequest := buildCanonicalRequest(req.Method, req.URL.Path, req.URL.Query(), req.Header, signedHeaders, payloadHash)
	toSign := stringToSign(amzDate, credScope, sha256Hex([]byte(canonicalRequest)))
	key := signingKey(testSecretKey, dateStamp, testRegion, Service)
	signature := sign(key, toSign)

	auth := fmt.Sprintf("%sCredential=%s/%s,SignedHeaders=%s,Signature=%s",
		HeaderPrefix, testAccessKey, credScope, "host;x-amz-date;x-amz-content-sha256", signature)
	req.Header.Set("Authorization", auth)
}

func TestVerifyHeaderSignedRequest(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	req := httptest.NewRequest(http.MethodPut, "/my-bucket/my-key.txt", bytes.NewReader([]byte("hello")))
	req.Host = "s3box.example.com"
	signRequest(req, now.Format("20060102T150405Z"), sha256Hex([]byte("hello")))

	result, err := v.Verify(req)
	require.NoError(t, err)
	require.Equal(t, testAccessKey, result.Identity.AccessKeyID)
	require.False(t, result.Presigned)
	require.False(t, result.Streaming)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	req := httptest.NewRequest(http.MethodPut, "/my-bucket/my-key.txt", bytes.NewReader([]byte("hello")))
	req.Host = "s3box.example.com"
	signRequest(req, now.Format("20060102T150405Z"), sha256Hex([]byte("hello")))

	// tamper with the path after signing
	req.URL.Path = "/my-bucket/other-key.txt"

	_, err := v.Verify(req)
	require.ErrorIs(t, err, ErrSignatureDoesNotMatch)
}

func TestVerifyRejectsUnknownAccessKey(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	req := httptest.NewRequest(http.MethodGet, "/my-bucket", nil)
	req.Host = "s3box.example.com"
	req.Header.Set("X-Amz-Date", now.Format("20060102T150405Z"))
	req.Header.Set("x-amz-content-sha256", UnsignedPayload)
	req.Header.Set("Authorization", HeaderPrefix+"Credential=UNKNOWNKEY/20240115/de-muc-01/s3/aws4_request,SignedHeaders=host;x-amz-date,Signature=deadbeef")

	_, err := v.Verify(req)
	require.ErrorIs(t, err, ErrInvalidAccessKeyID)
}

func TestVerifyRejectsClockSkew(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	req := httptest.NewRequest(http.MethodGet, "/my-bucket", nil)
	req.Host = "s3box.example.com"
	skewed := now.Add(-1 * time.Hour)
	signRequest(req, skewed.Format("20060102T150405Z"), UnsignedPayload)

	_, err := v.Verify(req)
	require.ErrorIs(t, err, ErrRequestTimeTooSkewed)
}

func TestVerifyRejectsMissingAndDuplicateAuth(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	req := httptest.NewRequest(http.MethodGet, "/my-bucket", nil)
	_, err := v.Verify(req)
	require.ErrorIs(t, err, ErrMissingOrDuplicateAuth)

	req2 := httptest.NewRequest(http.MethodGet, "/my-bucket?X-Amz-Signature=abc", nil)
	signRequest(req2, now.Format("20060102T150405Z"), UnsignedPayload)
	_, err = v.Verify(req2)
	require.ErrorIs(t, err, ErrMissingOrDuplicateAuth)
}

func TestVerifyPresignedRequest(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(now)

	amzDate := now.Format("20060102T150405Z")
	dateStamp := amzDate[:8]
	credScope := scope(dateStamp, testRegion, Service)

	req := httptest.NewRequest(http.MethodGet, "/my-bucket/my-key.txt", nil)
	req.Host = "s3box.example.com"
	q := req.URL.Query()
	q.Set("X-Amz-Algorithm", Algorithm)
	q.Set("X-Amz-Credential", fmt.Sprintf("%s/%s", testAccessKey, credScope))
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", "900")
	q.Set("X-Amz-SignedHeaders", "host")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Host", req.Host)

	canonicalRequest := buildCanonicalRequest(req.Method, req.URL.Path, req.URL.Query(), req.Header, []string{"host"}, UnsignedPayload)
	toSign := stringToSign(amzDate, credScope, sha256Hex([]byte(canonicalRequest)))
	key := signingKey(testSecretKey, dateStamp, testRegion, Service)
	signature := sign(key, toSign)

	q.Set("X-Amz-Signature", signature)
	req.URL.RawQuery = q.Encode()

	result, err := v.Verify(req)
	require.NoError(t, err)
	require.True(t, result.Presigned)
}

func TestVerifyPresignedExpired(t *testing.T) {
	signedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	v, _ := testVerifier(signedAt.Add(20 * time.Minute))

	amzDate := signedAt.Format("20060102T150405Z")
	dateStamp := amzDate[:8]
	credScope := scope(dateStamp, testRegion, Service)

	req := httptest.NewRequest(http.MethodGet, "/my-bucket/my-key.txt", nil)
	req.Host = "s3box.example.com"
	q := req.URL.Query()
	q.Set("X-Amz-Algorithm", Algorithm)
	q.Set("X-Amz-Credential", fmt.Sprintf("%s/%s", testAccessKey, credScope))
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", "900") // 15 minutes, now 20 minutes in the past
	q.Set("X-Amz-SignedHeaders", "host")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Host", req.Host)

	canonicalRequest := buildCanonicalRequest(req.Method, req.URL.Path, req.URL.Query(), req.Header, []string{"host"}, UnsignedPayload)
	toSign := stringToSign(amzDate, credScope, sha256Hex([]byte(canonicalRequest)))
	key := signingKey(testSecretKey, dateStamp, testRegion, Service)
	signature := sign(key, toSign)
	q.Set("X-Amz-Signature", signature)
	req.URL.RawQuery = q.Encode()

	_, err := v.Verify(req)
	require.ErrorIs(t, err, ErrExpired)
}

func TestCanonicalQueryStringSortsAndEncodes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/bucket?b=2&a=1&a=0", nil)
	got := canonicalQueryString(req.URL.Query())
	require.Equal(t, "a=0&a=1&b=2", got)
}

func TestAWSURLEncodePreservesUnreserved(t *testing.T) {
	require.Equal(t, "abc-._~", awsURLEncode("abc-._~", false))
	require.Equal(t, "%2F", awsURLEncode("/", true))
	require.Equal(t, "/", awsURLEncode("/", false))
	require.Equal(t, "a%20b", awsURLEncode("a b", true))
}
