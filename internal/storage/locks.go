package storage

import (
	"hash/fnv"
	"sync"
)

// lockStripes bounds the advisory-lock table; grounded on
// randilt-geckos3's FilesystemStorage.stripe() — a fixed-size mutex array
// indexed by an FNV-1a hash of the lock key, covering metadata transitions
// only (object bodies need no external lock, they land via atomic rename).
const lockStripes = 256

type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLocks) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *stripedLocks) lock(key string) func() {
	m := l.stripe(key)
	m.Lock()
	return m.Unlock
}

func bucketLockKey(bucket string) string {
	return "bucket:" + bucket
}

func uploadLockKey(bucket, uploadID string) string {
	return "upload:" + bucket + "/" + uploadID
}
