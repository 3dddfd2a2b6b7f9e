package s3api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlashFixCollapsesOnlyLeadingSlashes(t *testing.T) {
	var gotPath string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})
	handler := SlashFix(next)

	req := httptest.NewRequest(http.MethodGet, "http://example.com//my-bucket/my-key.txt", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "/my-bucket/my-key.txt", gotPath)
}

func TestSlashFixPreservesRepeatedAndTrailingSlashesInKey(t *testing.T) {
	var gotPath string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	})
	handler := SlashFix(next)

	cases := []string{
		"/my-bucket/2024//report.pdf",
		"/my-bucket/trailing-slash-key/",
	}
	for _, path := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, path, gotPath, "SlashFix must not alter object key content")
	}
}
