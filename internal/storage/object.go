package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ObjectInfo describes an object's current state, mirroring the attributes
// spec.md's data model assigns it: everything but content-type is read
// straight off the filesystem, never persisted separately.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// quoteETag renders a lowercase hex digest as a double-quoted ETag.
func quoteETag(hexDigest string) string {
	return `"` + strings.ToLower(hexDigest) + `"`
}

// PutObject streams r into bucket/key via a temp-file-then-rename, hashing
// incrementally with a SIMD MD5 hasher so the whole body is never buffered
// in memory. Returns the quoted ETag.
func (s *Storage) PutObject(bucket, key string, r io.Reader) (ObjectInfo, error) {
	if !s.BucketExists(bucket) {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, bucket)
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: creating parent dirs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := s.newHasher()
	defer hasher.Close()

	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("storage: writing object body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: closing temp file: %w", err)
	}

	etag := quoteETag(hex.EncodeToString(hasher.Sum(nil)))

	if err := os.Rename(tmpPath, path); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: renaming into place: %w", err)
	}
	committed = true

	info, statErr := os.Stat(path)
	modTime := s.now().UTC()
	if statErr == nil {
		modTime = info.ModTime().UTC()
	}

	return ObjectInfo{
		Key:          key,
		Size:         size,
		ETag:         etag,
		LastModified: modTime,
		ContentType:  inferContentType(key),
	}, nil
}

// GetObject opens the object file and returns a ReadCloser plus its
// metadata. The descriptor is opened at call time and streamed
// independently of any concurrent delete — POSIX open-fd semantics mean an
// in-flight read is unaffected by a later unlink.
func (s *Storage) GetObject(bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	if !s.BucketExists(bucket) {
		return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, bucket)
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchKey, key)
		}
		return nil, ObjectInfo{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	etag, err := s.fileETag(path)
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ETag:         etag,
		LastModified: info.ModTime().UTC(),
		ContentType:  inferContentType(key),
	}, nil
}

// HeadObject returns object metadata. It opens the object through GetObject
// and closes the handle before returning.
func (s *Storage) HeadObject(bucket, key string) (ObjectInfo, error) {
	rc, info, err := s.GetObject(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	_ = rc.Close()
	return info, nil
}

// fileETag computes the quoted MD5 ETag of the file at path by reading it
// whole through the SIMD hasher. Used for Head/Get where PutObject's
// incremental digest isn't available (e.g. objects produced by
// CompleteMultipart's rename, or a freshly restarted server).
func (s *Storage) fileETag(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := s.newHasher()
	defer hasher.Close()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return quoteETag(hex.EncodeToString(hasher.Sum(nil))), nil
}

// DeleteObject unlinks bucket/key. Missing is not an error — delete is
// idempotent. Empty parent directories under the bucket root are pruned
// best-effort.
func (s *Storage) DeleteObject(bucket, key string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: deleting object: %w", err)
	}
	s.pruneEmptyDirs(filepath.Dir(path), s.bucketDir(bucket))
	return nil
}

// pruneEmptyDirs removes dir and its ancestors, stopping at (and never
// removing) stop, as long as each is empty.
func (s *Storage) pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// CopyObject copies srcBucket/srcKey to bucket/key. When both objects share
// the same storage root (always true here — single root) it hard-links;
// a hard-link failure (e.g. crossing a bind mount) falls back to a
// streamed copy. Grounded on eteran-silo's CopyObject/PutObjectFromFile
// hard-link-when-possible pattern, adapted from content-addressed to
// key-addressed paths.
func (s *Storage) CopyObject(srcBucket, srcKey, dstBucket, dstKey string) (ObjectInfo, error) {
	srcPath, err := s.objectPath(srcBucket, srcKey)
	if err != nil {
		return ObjectInfo{}, err
	}
	if !s.BucketExists(srcBucket) {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, srcBucket)
	}
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchKey, srcKey)
		}
		return ObjectInfo{}, err
	}
	if !s.BucketExists(dstBucket) {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, dstBucket)
	}
	dstPath, err := s.objectPath(dstBucket, dstKey)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return ObjectInfo{}, err
	}

	tmpPath := dstPath + fmt.Sprintf(".%d.tmp", time.Now().UnixNano())
	if err := os.Link(srcPath, tmpPath); err != nil {
		if err := copyFileContents(srcPath, tmpPath); err != nil {
			return ObjectInfo{}, fmt.Errorf("storage: copying object: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return ObjectInfo{}, fmt.Errorf("storage: renaming copy into place: %w", err)
	}

	return s.HeadObject(dstBucket, dstKey)
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// extensionContentTypes is a deliberately small, conservative table: it
// never fabricates a type absent from the key's extension.
var extensionContentTypes = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".mp4":  "video/mp4",
	".bin":  "application/octet-stream",
}

func inferContentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	return extensionContentTypes[ext]
}
