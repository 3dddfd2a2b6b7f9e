package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// minPartSize is the minimum size of a non-final part at completion time.
const minPartSize = 5 * 1024 * 1024

// PartMeta is one recorded part of an in-progress multipart upload.
type PartMeta struct {
	Number       int       `yaml:"number"`
	Size         int64     `yaml:"size"`
	ETag         string    `yaml:"etag"`
	LastModified time.Time `yaml:"last_modified"`
}

// UploadMeta is the exact schema of a multipart upload's meta.yaml.
type UploadMeta struct {
	UploadID    string     `yaml:"upload_id"`
	Bucket      string     `yaml:"bucket"`
	Key         string     `yaml:"key"`
	Initiated   time.Time  `yaml:"initiated"`
	Initiator   string     `yaml:"initiator"`
	ContentType string     `yaml:"content_type,omitempty"`
	Parts       []PartMeta `yaml:"parts"`
}

// UploadSummary is one entry of a ListMultipartUploads response.
type UploadSummary struct {
	UploadID  string
	Key       string
	Initiated time.Time
	Initiator string
}

// CompletedPart is one entry of a CompleteMultipartUpload request body.
type CompletedPart struct {
	Number int
	ETag   string
}

func (s *Storage) uploadMetaPath(bucket, uploadID string) string {
	return filepath.Join(s.uploadDir(bucket, uploadID), "meta.yaml")
}

func (s *Storage) partPath(bucket, uploadID string, number int) string {
	return filepath.Join(s.uploadDir(bucket, uploadID), strconv.Itoa(number))
}

// InitiateMultipart creates the staging directory and sidecar for a new
// upload, returning its opaque upload id.
func (s *Storage) InitiateMultipart(bucket, key, contentType, initiator string) (string, error) {
	if !s.BucketExists(bucket) {
		return "", fmt.Errorf("%w: %s", ErrNoSuchBucket, bucket)
	}
	if err := validateObjectKey(key); err != nil {
		return "", err
	}

	uploadID := strings.ReplaceAll(uuid.New().String(), "-", "")

	if err := os.MkdirAll(s.uploadDir(bucket, uploadID), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating upload staging dir: %w", err)
	}

	meta := UploadMeta{
		UploadID:    uploadID,
		Bucket:      bucket,
		Key:         key,
		Initiated:   s.now().UTC(),
		Initiator:   initiator,
		ContentType: contentType,
	}
	if err := s.writeUploadMeta(bucket, uploadID, meta); err != nil {
		return "", err
	}
	return uploadID, nil
}

func (s *Storage) readUploadMeta(bucket, uploadID string) (UploadMeta, error) {
	data, err := os.ReadFile(s.uploadMetaPath(bucket, uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return UploadMeta{}, fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
		}
		return UploadMeta{}, err
	}
	var meta UploadMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return UploadMeta{}, fmt.Errorf("%w: %s: %v", ErrNoSuchUpload, uploadID, err)
	}
	return meta, nil
}

func (s *Storage) writeUploadMeta(bucket, uploadID string, meta UploadMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("storage: marshaling meta.yaml: %w", err)
	}
	return atomic.WriteFile(s.uploadMetaPath(bucket, uploadID), bytes.NewReader(data))
}

// UploadPart streams part data to disk and records {size, etag} in the
// upload's sidecar under the upload's advisory lock. Re-uploading the same
// part number replaces it.
func (s *Storage) UploadPart(bucket, key, uploadID string, number int, r io.Reader) (PartMeta, error) {
	if number < 1 || number > 10000 {
		return PartMeta{}, fmt.Errorf("%w: partNumber %d out of range", ErrInvalidPart, number)
	}

	partPath := s.partPath(bucket, uploadID, number)
	tmpPath := partPath + ".tmp"

	hasher := s.newHasher()
	defer hasher.Close()

	f, err := os.Create(tmpPath)
	if err != nil {
		return PartMeta{}, fmt.Errorf("storage: creating part temp file: %w", err)
	}
	size, err := io.Copy(io.MultiWriter(f, hasher), r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return PartMeta{}, fmt.Errorf("storage: writing part: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return PartMeta{}, err
	}
	if err := os.Rename(tmpPath, partPath); err != nil {
		_ = os.Remove(tmpPath)
		return PartMeta{}, fmt.Errorf("storage: renaming part into place: %w", err)
	}

	part := PartMeta{
		Number:       number,
		Size:         size,
		ETag:         quoteETag(hex.EncodeToString(hasher.Sum(nil))),
		LastModified: s.now().UTC(),
	}

	unlock := s.locks.lock(uploadLockKey(bucket, uploadID))
	defer unlock()

	meta, err := s.readUploadMeta(bucket, uploadID)
	if err != nil {
		return PartMeta{}, err
	}
	meta.Key = key

	replaced := false
	for i, p := range meta.Parts {
		if p.Number == number {
			meta.Parts[i] = part
			replaced = true
			break
		}
	}
	if !replaced {
		meta.Parts = append(meta.Parts, part)
		sort.Slice(meta.Parts, func(i, j int) bool { return meta.Parts[i].Number < meta.Parts[j].Number })
	}
	if err := s.writeUploadMeta(bucket, uploadID, meta); err != nil {
		return PartMeta{}, err
	}
	return part, nil
}

// CompleteMultipart validates the client's claimed part list against the
// sidecar, concatenates the staged part files in order, and atomically
// renames the result over the target object. The final ETag follows S3's
// multipart convention: hex(md5(concat(part md5 bytes))) + "-" + N.
func (s *Storage) CompleteMultipart(bucket, key, uploadID string, claimed []CompletedPart) (ObjectInfo, error) {
	unlock := s.locks.lock(uploadLockKey(bucket, uploadID))
	meta, err := s.readUploadMeta(bucket, uploadID)
	unlock()
	if err != nil {
		return ObjectInfo{}, err
	}

	if err := validateCompletion(claimed, meta.Parts); err != nil {
		return ObjectInfo{}, err
	}

	dstPath, err := s.objectPath(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return ObjectInfo{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), filepath.Base(dstPath)+".*.tmp")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: creating assembly temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	var partMD5s []byte
	byNumber := map[int]PartMeta{}
	for _, p := range meta.Parts {
		byNumber[p.Number] = p
	}
	for _, cp := range claimed {
		p := byNumber[cp.Number]
		partFile, err := os.Open(s.partPath(bucket, uploadID, p.Number))
		if err != nil {
			_ = tmp.Close()
			return ObjectInfo{}, fmt.Errorf("%w: reading staged part %d: %v", ErrInvalidPart, p.Number, err)
		}
		if _, err := io.Copy(tmp, partFile); err != nil {
			_ = partFile.Close()
			_ = tmp.Close()
			return ObjectInfo{}, fmt.Errorf("storage: assembling parts: %w", err)
		}
		_ = partFile.Close()

		digest, err := hex.DecodeString(strings.Trim(p.ETag, `"`))
		if err != nil {
			_ = tmp.Close()
			return ObjectInfo{}, fmt.Errorf("%w: part %d has malformed etag", ErrInvalidPart, p.Number)
		}
		partMD5s = append(partMD5s, digest...)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, err
	}

	hasher := s.newHasher()
	defer hasher.Close()
	_, _ = hasher.Write(partMD5s)
	finalETag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(hasher.Sum(nil)), len(claimed))

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: renaming completed object into place: %w", err)
	}
	committed = true

	if err := os.RemoveAll(s.uploadDir(bucket, uploadID)); err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: removing staging dir: %w", err)
	}

	info, statErr := os.Stat(dstPath)
	modTime := s.now().UTC()
	if statErr == nil {
		modTime = info.ModTime().UTC()
	}
	return ObjectInfo{
		Key:          key,
		Size:         sumPartSizes(meta.Parts, claimed),
		ETag:         finalETag,
		LastModified: modTime,
		ContentType:  meta.ContentType,
	}, nil
}

func sumPartSizes(recorded []PartMeta, claimed []CompletedPart) int64 {
	byNumber := map[int]int64{}
	for _, p := range recorded {
		byNumber[p.Number] = p.Size
	}
	var total int64
	for _, cp := range claimed {
		total += byNumber[cp.Number]
	}
	return total
}

// validateCompletion checks: every claimed part exists with a matching
// ETag, numbers strictly ascending, and every non-final part at least
// minPartSize.
func validateCompletion(claimed []CompletedPart, recorded []PartMeta) error {
	if len(claimed) == 0 {
		return fmt.Errorf("%w: no parts listed", ErrInvalidPart)
	}
	byNumber := map[int]PartMeta{}
	for _, p := range recorded {
		byNumber[p.Number] = p
	}

	last := -1
	for i, cp := range claimed {
		if cp.Number <= last {
			return fmt.Errorf("%w: part %d out of order", ErrInvalidPartOrder, cp.Number)
		}
		last = cp.Number

		p, ok := byNumber[cp.Number]
		if !ok {
			return fmt.Errorf("%w: part %d was never uploaded", ErrInvalidPart, cp.Number)
		}
		if p.ETag != cp.ETag {
			return fmt.Errorf("%w: part %d etag mismatch", ErrInvalidPart, cp.Number)
		}
		if i < len(claimed)-1 && p.Size < minPartSize {
			return fmt.Errorf("%w: part %d is %d bytes, below the 5 MiB minimum", ErrPartTooSmall, cp.Number, p.Size)
		}
	}
	return nil
}

// AbortMultipart removes an upload's staging directory entirely.
func (s *Storage) AbortMultipart(bucket, uploadID string) error {
	unlock := s.locks.lock(uploadLockKey(bucket, uploadID))
	defer unlock()

	if _, err := s.readUploadMeta(bucket, uploadID); err != nil {
		return err
	}
	return os.RemoveAll(s.uploadDir(bucket, uploadID))
}

// ListParts returns the recorded parts of an in-progress upload, ascending
// by part number.
func (s *Storage) ListParts(bucket, uploadID string) ([]PartMeta, error) {
	meta, err := s.readUploadMeta(bucket, uploadID)
	if err != nil {
		return nil, err
	}
	return meta.Parts, nil
}

// ListMultipartUploads enumerates every in-progress upload under bucket.
func (s *Storage) ListMultipartUploads(bucket string) ([]UploadSummary, error) {
	entries, err := os.ReadDir(s.multipartRoot(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []UploadSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readUploadMeta(bucket, e.Name())
		if err != nil {
			continue
		}
		out = append(out, UploadSummary{
			UploadID:  meta.UploadID,
			Key:       meta.Key,
			Initiated: meta.Initiated,
			Initiator: meta.Initiator,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
