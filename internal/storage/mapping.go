package storage

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

const metadataDirName = "_metadata"

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// validateBucketName mirrors eteran-silo's isValidBucketName: 3-63 chars,
// lowercase alphanumeric plus "." and "-", no leading/trailing hyphen, no
// ".." or "-."/".-" adjacency, and not IP-shaped.
func validateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: length must be 3-63, got %d", ErrInvalidBucketName, len(name))
	}
	if !bucketNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q has invalid characters", ErrInvalidBucketName, name)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "-.") || strings.Contains(name, ".-") {
		return fmt.Errorf("%w: %q has invalid adjacency", ErrInvalidBucketName, name)
	}
	if net.ParseIP(name) != nil {
		return fmt.Errorf("%w: %q looks like an IP address", ErrInvalidBucketName, name)
	}
	return nil
}

// validateObjectKey rejects empty keys, keys over 1024 bytes, and keys
// containing control characters (including NUL).
func validateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidObjectKey)
	}
	if len(key) > 1024 {
		return fmt.Errorf("%w: key exceeds 1024 bytes", ErrInvalidObjectKey)
	}
	if strings.ContainsFunc(key, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return fmt.Errorf("%w: key contains control characters", ErrInvalidObjectKey)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: key escapes with \"..\"", ErrInvalidObjectKey)
		}
	}
	return nil
}

func (s *Storage) bucketDir(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *Storage) metadataDir(bucket string) string {
	return filepath.Join(s.bucketDir(bucket), metadataDirName)
}

func (s *Storage) bucketMetaPath(bucket string) string {
	return filepath.Join(s.metadataDir(bucket), "bucket.yaml")
}

func (s *Storage) multipartRoot(bucket string) string {
	return filepath.Join(s.metadataDir(bucket), "multipart")
}

func (s *Storage) uploadDir(bucket, uploadID string) string {
	return filepath.Join(s.multipartRoot(bucket), uploadID)
}

// objectPath resolves bucket/key to an absolute path, rejecting any
// resolution that escapes the bucket root. Escaping is reported as
// ErrInvalidObjectKey, never ErrNoSuchKey, per spec.
func (s *Storage) objectPath(bucket, key string) (string, error) {
	if err := validateObjectKey(key); err != nil {
		return "", err
	}
	root := s.bucketDir(bucket)
	joined := filepath.Join(root, key)
	rootWithSep := root + string(filepath.Separator)
	if joined != root && !strings.HasPrefix(joined, rootWithSep) {
		return "", fmt.Errorf("%w: %q escapes bucket root", ErrInvalidObjectKey, key)
	}
	// A key resolving to the bucket root itself or the metadata subtree is
	// never a valid object.
	if joined == root || joined == s.metadataDir(bucket) || strings.HasPrefix(joined, s.metadataDir(bucket)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves to a reserved path", ErrInvalidObjectKey, key)
	}
	return joined, nil
}
