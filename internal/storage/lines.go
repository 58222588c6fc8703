package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// linePath maps a path slice to its line-record file on disk.
func (s *Storage) linePath(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".jsonl"
}

// encodeLines renders values as one JSON record per line.
func encodeLines(path []string, values []any) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode record for %s: %w", docID(path), err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// AppendLines appends one JSON record per value to a line-record file,
// creating it if needed. The batch goes out in a single write so concurrent
// appenders cannot interleave records.
func (s *Storage) AppendLines(ctx context.Context, path []string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	data, err := encodeLines(path, values)
	if err != nil {
		return err
	}

	filePath := s.linePath(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("append %s: %w", docID(path), err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", docID(path), err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("append %s: %w", docID(path), err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append %s: %w", docID(path), err)
	}
	return nil
}

// ReadLines returns the raw JSON records of a line-record file in file order.
// Blank lines are dropped; records come back unvalidated so callers decide
// how to treat corrupt ones. Returns ErrNotFound when the file is absent.
func (s *Storage) ReadLines(ctx context.Context, path []string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.linePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", docID(path), err)
	}

	var records []json.RawMessage
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		records = append(records, json.RawMessage(append([]byte(nil), line...)))
	}
	return records, nil
}

// CountLines returns the number of records in a line-record file. A missing
// file counts as zero.
func (s *Storage) CountLines(ctx context.Context, path []string) (int, error) {
	records, err := s.ReadLines(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(records), nil
}

// ReplaceLines atomically rewrites a line-record file with the given values.
// Compaction uses this so readers never observe a partially rewritten file.
func (s *Storage) ReplaceLines(ctx context.Context, path []string, values []any) error {
	data, err := encodeLines(path, values)
	if err != nil {
		return err
	}

	filePath := s.linePath(path)
	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", docID(path), err)
	}
	defer lock.Unlock()

	if err := writeAtomic(filePath, data); err != nil {
		return fmt.Errorf("rewrite %s: %w", docID(path), err)
	}
	return nil
}

// DeleteLines removes a line-record file. No-op if absent.
func (s *Storage) DeleteLines(ctx context.Context, path []string) error {
	filePath := s.linePath(path)

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", docID(path), err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", docID(path), err)
	}
	return nil
}
