// Package blobstore holds uploaded document content. Metadata lives with the
// owning domain record; a blob is addressed only by its ID.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrEmptyBlob    = errors.New("blob is empty")
)

// MaxFileSize is the default upper bound for a single blob (20 MB).
const MaxFileSize = 20 * 1024 * 1024

// Info describes a stored blob.
type Info struct {
	ID     string `json:"id"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type BlobStore interface {
	Put(ctx context.Context, content io.Reader) (Info, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// readLimited buffers content up to limit bytes and hashes it.
func readLimited(content io.Reader, limit int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(content, limit+1), h))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyBlob
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// MemoryStore is a thread-safe BlobStore used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	maxSize int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), maxSize: MaxFileSize}
}

func (s *MemoryStore) Put(_ context.Context, content io.Reader) (Info, error) {
	data, sum, err := readLimited(content, s.maxSize)
	if err != nil {
		return Info{}, err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()
	return Info{ID: id, Size: int64(len(data)), SHA256: sum}, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// DiskStore writes each blob to <dir>/<id[:2]>/<id>. Writes go to a temp file
// first and are renamed into place, so a reader never sees a partial blob.
type DiskStore struct {
	dir     string
	maxSize int64
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskStore{dir: dir, maxSize: MaxFileSize}, nil
}

func (s *DiskStore) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrBlobNotFound
	}
	return filepath.Join(s.dir, id[:2], id), nil
}

func (s *DiskStore) Put(_ context.Context, content io.Reader) (info Info, err error) {
	id := uuid.NewString()
	dst, _ := s.path(id)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return Info{}, fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var h hash.Hash = sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return Info{}, fmt.Errorf("write blob: %w", err)
	}
	if n > s.maxSize {
		return Info{}, ErrFileTooLarge
	}
	if n == 0 {
		return Info{}, ErrEmptyBlob
	}
	if err = tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close blob: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return Info{}, fmt.Errorf("commit blob: %w", err)
	}
	return Info{ID: id, Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

func (s *DiskStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

func (s *DiskStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}
