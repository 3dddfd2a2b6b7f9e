// Package storage owns all on-disk state: bucket/object layout under a
// single root directory, streaming object I/O, ETags, range reads,
// multipart staging, listing, and the expiry sweeper. Every other
// component borrows streaming handles from here; nothing else touches the
// filesystem directly.
package storage

import (
	"os"
	"time"

	md5simd "github.com/minio/md5-simd"

	"s3box/internal/config"
)

// Storage is the sole owner of the on-disk tree rooted at root. All
// mutation paths go through temp-file-then-rename; metadata transitions
// (bucket create/delete, multipart sidecar updates) serialize through the
// striped advisory-lock table.
type Storage struct {
	root       string
	cfg        *config.Config
	locks      stripedLocks
	now        func() time.Time
	hashServer md5simd.Server
}

// New constructs a Storage rooted at cfg.StorageRoot, creating the root
// directory if it does not already exist.
func New(cfg *config.Config) (*Storage, error) {
	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil {
		return nil, err
	}
	return &Storage{
		root:       cfg.StorageRoot,
		cfg:        cfg,
		now:        time.Now,
		hashServer: md5simd.NewServer(),
	}, nil
}

// Root returns the storage root directory.
func (s *Storage) Root() string {
	return s.root
}

// Close releases the SIMD MD5 server's worker goroutines.
func (s *Storage) Close() {
	s.hashServer.Close()
}

func (s *Storage) newHasher() md5simd.Hasher {
	return s.hashServer.NewHash()
}
