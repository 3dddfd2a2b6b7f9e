package s3api

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
	"github.com/stretchr/testify/require"

	"s3box/internal/config"
)

const (
	testAccessKey = "testkey"
	testSecretKey = "testsecret"
)

func newTestServer(t *testing.T) (*httptest.Server, *minio.Client) {
	t.Helper()

	cfg := config.New(
		config.WithStorageRoot(t.TempDir()),
		config.WithCredentials([]config.Credential{
			{
				AccessKeyID:     testAccessKey,
				SecretAccessKey: testSecretKey,
				Permissions:     []config.PermissionRule{{Action: "*", Resource: "*"}},
			},
		}),
	)

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	client, err := minio.New(ts.Listener.Addr().String(), &minio.Options{
		Creds:  credentials.NewStaticV4(testAccessKey, testSecretKey, ""),
		Secure: false,
	})
	require.NoError(t, err)

	return ts, client
}

func TestBucketLifecycle(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)

	require.NoError(t, client.MakeBucket(ctx, "my-bucket", minio.MakeBucketOptions{}))

	exists, err := client.BucketExists(ctx, "my-bucket")
	require.NoError(t, err)
	require.True(t, exists)

	buckets, err := client.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, "my-bucket", buckets[0].Name)

	require.NoError(t, client.RemoveBucket(ctx, "my-bucket"))

	exists, err = client.BucketExists(ctx, "my-bucket")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestObjectPutGetDelete(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)

	require.NoError(t, client.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}))

	body := []byte("the quick brown fox")
	_, err := client.PutObject(ctx, "docs", "fox.txt", bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	require.NoError(t, err)

	obj, err := client.GetObject(ctx, "docs", "fox.txt", minio.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, body, data)

	info, err := client.StatObject(ctx, "docs", "fox.txt", minio.StatObjectOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), info.Size)

	require.NoError(t, client.RemoveObject(ctx, "docs", "fox.txt", minio.RemoveObjectOptions{}))

	_, err = client.StatObject(ctx, "docs", "fox.txt", minio.StatObjectOptions{})
	require.Error(t, err)
}

func TestObjectRangeGet(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)
	require.NoError(t, client.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}))

	body := []byte("0123456789")
	_, err := client.PutObject(ctx, "docs", "digits.txt", bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{})
	require.NoError(t, err)

	opts := minio.GetObjectOptions{}
	require.NoError(t, opts.SetRange(2, 5))
	obj, err := client.GetObject(ctx, "docs", "digits.txt", opts)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, "2345", string(data))
}

func TestListObjectsWithPrefix(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)
	require.NoError(t, client.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}))

	for _, key := range []string{"a/1.txt", "a/2.txt", "b/1.txt"} {
		_, err := client.PutObject(ctx, "docs", key, bytes.NewReader([]byte("x")), 1, minio.PutObjectOptions{})
		require.NoError(t, err)
	}

	var keys []string
	for obj := range client.ListObjects(ctx, "docs", minio.ListObjectsOptions{Prefix: "a/", Recursive: true}) {
		require.NoError(t, obj.Err)
		keys = append(keys, obj.Key)
	}
	require.ElementsMatch(t, []string{"a/1.txt", "a/2.txt"}, keys)
}

func TestCopyObject(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)
	require.NoError(t, client.MakeBucket(ctx, "src", minio.MakeBucketOptions{}))
	require.NoError(t, client.MakeBucket(ctx, "dst", minio.MakeBucketOptions{}))

	body := []byte("copy payload")
	_, err := client.PutObject(ctx, "src", "a.txt", bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{})
	require.NoError(t, err)

	_, err = client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: "dst", Object: "b.txt"},
		minio.CopySrcOptions{Bucket: "src", Object: "a.txt"},
	)
	require.NoError(t, err)

	obj, err := client.GetObject(ctx, "dst", "b.txt", minio.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, body, data)
}

func TestMultipartUploadViaLargeObject(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)
	require.NoError(t, client.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}))

	size := 12 * 1024 * 1024 // forces the client to use multipart internally
	body := bytes.Repeat([]byte("z"), size)

	_, err := client.PutObject(ctx, "docs", "big.bin", bytes.NewReader(body), int64(size), minio.PutObjectOptions{
		PartSize: 5 * 1024 * 1024,
	})
	require.NoError(t, err)

	info, err := client.StatObject(ctx, "docs", "big.bin", minio.StatObjectOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(size), info.Size)
}

func TestObjectTagging(t *testing.T) {
	ctx := context.Background()
	_, client := newTestServer(t)
	require.NoError(t, client.MakeBucket(ctx, "docs", minio.MakeBucketOptions{}))

	_, err := client.PutObject(ctx, "docs", "tagged.txt", bytes.NewReader([]byte("x")), 1, minio.PutObjectOptions{})
	require.NoError(t, err)

	objTags, err := tags.NewTags(map[string]string{"env": "prod"}, true)
	require.NoError(t, err)
	require.NoError(t, client.PutObjectTagging(ctx, "docs", "tagged.txt", objTags, minio.PutObjectTaggingOptions{}))

	got, err := client.GetObjectTagging(ctx, "docs", "tagged.txt", minio.GetObjectTaggingOptions{})
	require.NoError(t, err)
	require.Equal(t, "prod", got.ToMap()["env"])

	require.NoError(t, client.RemoveObjectTagging(ctx, "docs", "tagged.txt", minio.RemoveObjectTaggingOptions{}))
}

func TestPermissionDenied(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(
		config.WithStorageRoot(t.TempDir()),
		config.WithCredentials([]config.Credential{
			{
				AccessKeyID:     testAccessKey,
				SecretAccessKey: testSecretKey,
				Permissions:     []config.PermissionRule{{Action: "GetObject", Resource: "*"}},
			},
		}),
	)
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() { ts.Close(); srv.Close() })

	client, err := minio.New(ts.Listener.Addr().String(), &minio.Options{
		Creds:  credentials.NewStaticV4(testAccessKey, testSecretKey, ""),
		Secure: false,
	})
	require.NoError(t, err)

	err = client.MakeBucket(ctx, "denied", minio.MakeBucketOptions{})
	require.Error(t, err)
	errResp := minio.ToErrorResponse(err)
	require.Equal(t, "AccessDenied", errResp.Code)
}
