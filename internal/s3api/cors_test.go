package s3api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"s3box/internal/config"
)

func newTestServerWithCORS(t *testing.T, bucket string, cors config.CORSRule) *Server {
	t.Helper()
	cfg := config.New(
		config.WithStorageRoot(t.TempDir()),
		config.WithDefaultCORS(cors),
		config.WithCredentials([]config.Credential{
			{AccessKeyID: testAccessKey, SecretAccessKey: testSecretKey,
				Permissions: []config.PermissionRule{{Action: "*", Resource: "*"}}},
		}),
	)
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.store.CreateBucket(bucket, testAccessKey))

	return srv
}

func TestEmitCORSHeadersAllowedOrigin(t *testing.T) {
	srv := newTestServerWithCORS(t, "docs", config.CORSRule{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET"},
	})

	req := httptest.NewRequest(http.MethodGet, "/docs/key.txt", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	srv.emitCORSHeaders(rec, req, "docs")

	require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestEmitCORSHeadersRejectsUnknownOrigin(t *testing.T) {
	srv := newTestServerWithCORS(t, "docs", config.CORSRule{
		AllowedOrigins: []string{"https://example.com"},
		AllowedMethods: []string{"GET"},
	})

	req := httptest.NewRequest(http.MethodGet, "/docs/key.txt", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	srv.emitCORSHeaders(rec, req, "docs")

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEmitCORSHeadersNoOriginHeaderIsNoop(t *testing.T) {
	srv := newTestServerWithCORS(t, "docs", config.CORSRule{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"*"},
	})

	req := httptest.NewRequest(http.MethodGet, "/docs/key.txt", nil)
	rec := httptest.NewRecorder()

	srv.emitCORSHeaders(rec, req, "docs")

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithCORSAppliesHeadersBeforeDelegating(t *testing.T) {
	srv := newTestServerWithCORS(t, "docs", config.CORSRule{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"*"},
	})

	var sawOrigin string
	wrapped := srv.withCORS(func(w http.ResponseWriter, r *http.Request) {
		sawOrigin = w.Header().Get("Access-Control-Allow-Origin")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/docs/key.txt", nil)
	req.SetPathValue("bucket", "docs")
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	wrapped(rec, req)

	require.Equal(t, "https://example.com", sawOrigin)
}
