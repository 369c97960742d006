package secondary

import (
	"context"
	"sync"

	"github.com/opencradle/cradle/pkg/blob"
)

// Memory is an in-memory storage plugin, for tests and benchmarks. A
// blob-file-allowing instance stores outer blobs as they are (like a disk
// cache); a disallowing one forces inline serialization (like an HTTP
// cache).
type Memory struct {
	name       string
	allowFiles bool

	mu sync.RWMutex
	m  map[string]blob.Blob
}

func NewMemory(name string, allowBlobFiles bool) *Memory {
	return &Memory{name: name, allowFiles: allowBlobFiles, m: make(map[string]blob.Blob)}
}

func (s *Memory) Name() string {
	return s.name
}

func (s *Memory) Read(ctx context.Context, key string) (blob.Blob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Write(ctx context.Context, key string, value blob.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]blob.Blob)
	return nil
}

func (s *Memory) AllowBlobFiles() bool {
	return s.allowFiles
}

// Size returns the number of stored entries.
func (s *Memory) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
