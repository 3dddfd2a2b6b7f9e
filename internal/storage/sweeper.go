package storage

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// RunSweeper scans every bucket's multipart staging area at cfg.SweepInterval,
// aborting uploads older than cfg.MultipartExpiry, until ctx is canceled.
// Intended to run under the same errgroup.Context as the HTTP listener, per
// eteran-silo's cmd/silo/main.go coordination pattern.
func (s *Storage) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweepOnce(); err != nil {
				slog.Error("multipart sweep failed", "err", err)
			}
		}
	}
}

func (s *Storage) sweepOnce() error {
	buckets, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	cutoff := s.now().Add(-s.cfg.MultipartExpiry)

	for _, b := range buckets {
		if !b.IsDir() {
			continue
		}
		uploads, err := s.ListMultipartUploads(b.Name())
		if err != nil {
			continue
		}
		for _, u := range uploads {
			if u.Initiated.After(cutoff) {
				continue
			}
			size := s.uploadStagingSize(b.Name(), u.UploadID)
			if err := s.AbortMultipart(b.Name(), u.UploadID); err != nil {
				slog.Error("aborting expired upload", "bucket", b.Name(), "upload_id", u.UploadID, "err", err)
				continue
			}
			slog.Info("aborted expired multipart upload",
				"bucket", b.Name(), "key", u.Key, "upload_id", u.UploadID,
				"staged_bytes", humanize.Bytes(uint64(size)))
		}
	}
	return nil
}

func (s *Storage) uploadStagingSize(bucket, uploadID string) int64 {
	entries, err := os.ReadDir(s.uploadDir(bucket, uploadID))
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
