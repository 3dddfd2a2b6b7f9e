package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// objectTagsPath keeps per-object tag sidecars under _metadata/tags/, never
// beside the object itself — the listing walk skips _metadata entirely, so
// a sidecar there can never leak into a bucket listing.
func (s *Storage) objectTagsPath(bucket, key string) string {
	return filepath.Join(s.metadataDir(bucket), "tags", key+".yaml")
}

type objectTags struct {
	Tags map[string]string `yaml:"tags"`
}

// PutObjectTagging replaces key's best-effort tag set.
func (s *Storage) PutObjectTagging(bucket, key string, tags map[string]string) error {
	if _, err := s.objectPath(bucket, key); err != nil {
		return err
	}
	path := s.objectTagsPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(objectTags{Tags: tags})
	if err != nil {
		return fmt.Errorf("storage: marshaling tags: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

// GetObjectTagging returns key's tag set, empty if none were ever set.
func (s *Storage) GetObjectTagging(bucket, key string) (map[string]string, error) {
	if _, err := s.objectPath(bucket, key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.objectTagsPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ot objectTags
	if err := yaml.Unmarshal(data, &ot); err != nil {
		return nil, fmt.Errorf("storage: parsing tags: %w", err)
	}
	return ot.Tags, nil
}

// DeleteObjectTagging clears key's tag sidecar.
func (s *Storage) DeleteObjectTagging(bucket, key string) error {
	err := os.Remove(s.objectTagsPath(bucket, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
