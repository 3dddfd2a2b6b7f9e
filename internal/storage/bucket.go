package storage

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// BucketMeta is the exact schema of _metadata/bucket.yaml.
type BucketMeta struct {
	Name      string            `yaml:"name"`
	Region    string            `yaml:"region"`
	CreatedAt time.Time         `yaml:"created_at"`
	Owner     string            `yaml:"owner"`
	ACL       BucketACL         `yaml:"acl"`
	CORS      BucketCORS        `yaml:"cors"`
	Tags      map[string]string `yaml:"tags,omitempty"`
}

type BucketACL struct {
	Public       bool     `yaml:"public"`
	AllowedCIDRs []string `yaml:"allowed_cidrs,omitempty"`
}

type BucketCORS struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// CreateBucket validates name, then either creates a new bucket owned by
// owner, or — if the bucket already exists and is owned by owner — returns
// ErrBucketAlreadyOwned (the Dispatcher maps that to 200 for the default
// region and 409 otherwise). Writes bucket.yaml last, so a bucket's
// directory existing with no valid sidecar never happens.
func (s *Storage) CreateBucket(bucket, owner string) error {
	if err := validateBucketName(bucket); err != nil {
		return err
	}

	unlock := s.locks.lock(bucketLockKey(bucket))
	defer unlock()

	if meta, err := s.readBucketMeta(bucket); err == nil {
		if meta.Owner == owner {
			return ErrBucketAlreadyOwned
		}
		return ErrBucketAlreadyExists
	}

	if err := os.MkdirAll(s.metadataDir(bucket), 0o755); err != nil {
		return fmt.Errorf("storage: creating bucket dir: %w", err)
	}

	meta := BucketMeta{
		Name:      bucket,
		Region:    s.cfg.DefaultRegion,
		CreatedAt: s.now().UTC(),
		Owner:     owner,
		ACL:       BucketACL{Public: s.cfg.DefaultACL.Public, AllowedCIDRs: s.cfg.DefaultACL.AllowedCIDRs},
		CORS: BucketCORS{
			AllowedOrigins: s.cfg.DefaultCORS.AllowedOrigins,
			AllowedMethods: s.cfg.DefaultCORS.AllowedMethods,
			AllowedHeaders: s.cfg.DefaultCORS.AllowedHeaders,
		},
	}
	return s.writeBucketMeta(bucket, meta)
}

func (s *Storage) readBucketMeta(bucket string) (BucketMeta, error) {
	data, err := os.ReadFile(s.bucketMetaPath(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return BucketMeta{}, fmt.Errorf("%w: %s", ErrNoSuchBucket, bucket)
		}
		return BucketMeta{}, err
	}
	var meta BucketMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return BucketMeta{}, fmt.Errorf("%w: %s: %v", ErrNoSuchBucket, bucket, err)
	}
	return meta, nil
}

func (s *Storage) writeBucketMeta(bucket string, meta BucketMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("storage: marshaling bucket.yaml: %w", err)
	}
	if err := os.MkdirAll(s.metadataDir(bucket), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(s.bucketMetaPath(bucket), bytes.NewReader(data))
}

// BucketExists reports whether bucket's sidecar exists and parses.
func (s *Storage) BucketExists(bucket string) bool {
	_, err := s.readBucketMeta(bucket)
	return err == nil
}

// GetBucketMeta returns the bucket's sidecar contents.
func (s *Storage) GetBucketMeta(bucket string) (BucketMeta, error) {
	return s.readBucketMeta(bucket)
}

// DeleteBucket removes the bucket if it contains no non-metadata entries.
func (s *Storage) DeleteBucket(bucket string) error {
	unlock := s.locks.lock(bucketLockKey(bucket))
	defer unlock()

	if _, err := s.readBucketMeta(bucket); err != nil {
		return err
	}

	empty, err := s.bucketIsEmpty(bucket)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: %s", ErrBucketNotEmpty, bucket)
	}

	if err := os.RemoveAll(s.metadataDir(bucket)); err != nil {
		return fmt.Errorf("storage: removing metadata: %w", err)
	}
	if err := os.Remove(s.bucketDir(bucket)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: removing bucket dir: %w", err)
	}
	return nil
}

func (s *Storage) bucketIsEmpty(bucket string) (bool, error) {
	entries, err := os.ReadDir(s.bucketDir(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	for _, e := range entries {
		if e.Name() != metadataDirName {
			return false, nil
		}
	}
	return true, nil
}

// BucketSummary is one entry of a ListBuckets response.
type BucketSummary struct {
	Name         string
	CreationDate time.Time
}

// ListBuckets enumerates every bucket under root owned by owner.
func (s *Storage) ListBuckets(owner string) ([]BucketSummary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("storage: listing root: %w", err)
	}
	var out []BucketSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readBucketMeta(e.Name())
		if err != nil {
			continue
		}
		if meta.Owner != owner {
			continue
		}
		out = append(out, BucketSummary{Name: meta.Name, CreationDate: meta.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PutBucketTagging replaces bucket's best-effort tag set.
func (s *Storage) PutBucketTagging(bucket string, tags map[string]string) error {
	unlock := s.locks.lock(bucketLockKey(bucket))
	defer unlock()
	meta, err := s.readBucketMeta(bucket)
	if err != nil {
		return err
	}
	meta.Tags = tags
	return s.writeBucketMeta(bucket, meta)
}

// GetBucketTagging returns bucket's tag set.
func (s *Storage) GetBucketTagging(bucket string) (map[string]string, error) {
	meta, err := s.readBucketMeta(bucket)
	if err != nil {
		return nil, err
	}
	return meta.Tags, nil
}

// DeleteBucketTagging clears bucket's tag set.
func (s *Storage) DeleteBucketTagging(bucket string) error {
	return s.PutBucketTagging(bucket, nil)
}
