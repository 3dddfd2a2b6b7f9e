package storage

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxScanKeys bounds a single listing walk, grounded on geckos3's
// MaxScanLimit guard against pathological trees.
const maxScanKeys = 100000

// ListOptions covers both ListObjectsV1 (Marker) and ListObjectsV2
// (ContinuationToken/StartAfter) — the Dispatcher picks whichever applies.
type ListOptions struct {
	Prefix             string
	Delimiter          string
	Marker             string
	ContinuationToken  string
	StartAfter         string
	MaxKeys            int
}

// ListEntry is either an object or a common-prefix grouping, in the single
// lexicographic order the listing emits both in.
type ListEntry struct {
	IsPrefix bool
	Prefix   string
	Object   ObjectInfo
}

// ListResult is the full page produced by ListObjects.
type ListResult struct {
	Entries               []ListEntry
	IsTruncated           bool
	NextMarker            string
	NextContinuationToken string
	KeyCount              int
}

// EncodeToken / DecodeToken implement the opaque continuation-token: a
// base64 encoding of the last emitted key, per spec.
func EncodeToken(key string) string {
	return base64.URLEncoding.EncodeToString([]byte(key))
}

func DecodeToken(token string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: bad continuation token", ErrInvalidObjectKey)
	}
	return string(b), nil
}

// ListObjects enumerates bucket's keys filtered by opts.Prefix, grouping
// anything past a Delimiter into CommonPrefixes, in a single page of at
// most opts.MaxKeys entries (default/cap 1000). The _metadata subtree is
// never exposed.
func (s *Storage) ListObjects(bucket string, opts ListOptions) (ListResult, error) {
	if !s.BucketExists(bucket) {
		return ListResult{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, bucket)
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}

	keys, err := s.collectKeys(bucket)
	if err != nil {
		return ListResult{}, err
	}
	sort.Strings(keys)

	after := opts.Marker
	if opts.ContinuationToken != "" {
		decoded, err := DecodeToken(opts.ContinuationToken)
		if err != nil {
			return ListResult{}, err
		}
		after = decoded
	} else if opts.StartAfter != "" {
		after = opts.StartAfter
	}

	var result ListResult
	lastEmitted := ""
	emittedPrefixes := map[string]bool{}

	for _, key := range keys {
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			continue
		}
		if after != "" && key <= after {
			continue
		}

		remainder := key[len(opts.Prefix):]
		if opts.Delimiter != "" {
			if idx := strings.Index(remainder, opts.Delimiter); idx >= 0 {
				cp := opts.Prefix + remainder[:idx+len(opts.Delimiter)]
				if emittedPrefixes[cp] {
					continue
				}
				if len(result.Entries) >= maxKeys {
					result.IsTruncated = true
					break
				}
				emittedPrefixes[cp] = true
				result.Entries = append(result.Entries, ListEntry{IsPrefix: true, Prefix: cp})
				lastEmitted = cp
				continue
			}
		}

		if len(result.Entries) >= maxKeys {
			result.IsTruncated = true
			break
		}

		info, err := s.statKey(bucket, key)
		if err != nil {
			continue
		}
		result.Entries = append(result.Entries, ListEntry{Object: info})
		lastEmitted = key
	}

	result.KeyCount = len(result.Entries)
	if result.IsTruncated {
		result.NextMarker = lastEmitted
		result.NextContinuationToken = EncodeToken(lastEmitted)
	}
	return result, nil
}

func (s *Storage) statKey(bucket, key string) (ObjectInfo, error) {
	return s.HeadObject(bucket, key)
}

// collectKeys walks bucket's tree, skipping _metadata, and returns
// "/"-joined keys relative to the bucket root.
func (s *Storage) collectKeys(bucket string) ([]string, error) {
	root := s.bucketDir(bucket)
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if d.Name() == metadataDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if len(keys) >= maxScanKeys {
			return fmt.Errorf("storage: listing exceeds %d key scan limit", maxScanKeys)
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
