// Package storage provides file-backed persistence for the engine: JSON
// documents addressed by path slices, and append-oriented line-record files
// (JSONL) for conversation transcripts. Writes go through a temp-file rename
// so readers never observe a partially written file.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Storage reads and writes JSON documents under a base directory. Each
// document is locked individually, so writers to different documents do
// not contend.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New returns a Storage rooted at basePath. The directory is created
// lazily on first write.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// docPath maps a path slice to its document file on disk.
func (s *Storage) docPath(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

// docID renders a path slice for error messages.
func docID(path []string) string {
	return strings.Join(path, "/")
}

// Get decodes the document at path into v. Returns ErrNotFound when no
// document exists there.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.docPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", docID(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", docID(path), err)
	}
	return nil
}

// Put writes v as the document at path, replacing any previous version
// atomically.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", docID(path), err)
	}

	filePath := s.docPath(path)
	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", docID(path), err)
	}
	defer lock.Unlock()

	if err := writeAtomic(filePath, data); err != nil {
		return fmt.Errorf("write %s: %w", docID(path), err)
	}
	return nil
}

// writeAtomic writes data to filePath via a temp file and rename, creating
// parent directories as needed.
func writeAtomic(filePath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// getLock returns the lock guarding filePath, creating it on first use.
func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
