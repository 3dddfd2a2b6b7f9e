package s3err

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"s3box/internal/sigv4"
	"s3box/internal/storage"
)

func TestMapErrorKnownSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want APIError
	}{
		{storage.ErrNoSuchBucket, ErrNoSuchBucket},
		{storage.ErrBucketAlreadyExists, ErrBucketAlreadyExists},
		{storage.ErrBucketAlreadyOwned, ErrBucketAlreadyOwnedByYou},
		{storage.ErrNoSuchKey, ErrNoSuchKey},
		{storage.ErrInvalidObjectKey, ErrInvalidObjectName},
		{sigv4.ErrSignatureDoesNotMatch, ErrSignatureDoesNotMatch},
		{sigv4.ErrInvalidAccessKeyID, ErrInvalidAccessKeyID},
		{errors.New("something unrelated"), ErrInternalError},
	}
	for _, c := range cases {
		got := MapError(c.err)
		require.Equal(t, c.want.Code, got.Code)
	}
}

func TestMapErrorWraps(t *testing.T) {
	wrapped := fmt.Errorf("storage: %w", storage.ErrNoSuchBucket)
	got := MapError(wrapped)
	require.Equal(t, ErrNoSuchBucket.Code, got.Code)
}

func TestWriteRendersXMLEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, "req-123", ErrNoSuchBucket, "/my-bucket")

	require.Equal(t, ErrNoSuchBucket.StatusCode, rec.Code)
	require.Equal(t, "req-123", rec.Header().Get("x-amz-request-id"))
	body := rec.Body.String()
	require.Contains(t, body, "<Code>NoSuchBucket</Code>")
	require.Contains(t, body, "<Resource>/my-bucket</Resource>")
	require.Contains(t, body, "<RequestId>req-123</RequestId>")
}
