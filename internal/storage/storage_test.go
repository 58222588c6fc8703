package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type metaDoc struct {
	Key      string `json:"key"`
	Messages int    `json:"messages"`
}

type turnDoc struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	want := metaDoc{Key: "parley:direct:42", Messages: 7}
	if err := s.Put(ctx, []string{"sessions", "index"}, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got metaDoc
	if err := s.Get(ctx, []string{"sessions", "index"}, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestGetMissingDocument(t *testing.T) {
	s := New(t.TempDir())

	var doc metaDoc
	err := s.Get(context.Background(), []string{"sessions", "absent"}, &doc)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPutLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	if err := s.Put(ctx, []string{"sessions", "index"}, metaDoc{Key: "k"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	tmpPath := filepath.Join(dir, "sessions", "index.json.tmp")
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("temp file survived the write")
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", "index.json")); err != nil {
		t.Errorf("document missing after write: %v", err)
	}
}

func TestConcurrentPutSameDocument(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.Put(ctx, []string{"sessions", "index"}, metaDoc{Messages: n}); err != nil {
				t.Errorf("Put: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// Whichever write landed last, the document must decode cleanly.
	var doc metaDoc
	if err := s.Get(ctx, []string{"sessions", "index"}, &doc); err != nil {
		t.Fatalf("Get after concurrent writes: %v", err)
	}
}

func TestFileLockTryLockContention(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "index.json")
	held := NewFileLock(lockPath)
	if err := held.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if held.TryLock() {
		t.Error("TryLock succeeded while the lock was held")
	}

	held.Unlock()
	if !held.TryLock() {
		t.Error("TryLock failed after Unlock")
	}
	held.Unlock()
}

func TestAppendLinesPreservesOrder(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"transcripts", "parley_direct_42"}

	err := s.AppendLines(ctx, path,
		turnDoc{Role: "user", Content: "hello"},
		turnDoc{Role: "assistant", Content: "hi there"},
	)
	if err != nil {
		t.Fatalf("AppendLines: %v", err)
	}
	if err := s.AppendLines(ctx, path, turnDoc{Role: "user", Content: "bye"}); err != nil {
		t.Fatalf("AppendLines: %v", err)
	}

	records, err := s.ReadLines(ctx, path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	var first, last turnDoc
	if err := json.Unmarshal(records[0], &first); err != nil {
		t.Fatalf("decode first record: %v", err)
	}
	if err := json.Unmarshal(records[2], &last); err != nil {
		t.Fatalf("decode last record: %v", err)
	}
	if first.Content != "hello" || last.Content != "bye" {
		t.Errorf("records out of order: first=%q last=%q", first.Content, last.Content)
	}
}

func TestAppendLinesEmptyBatchIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.AppendLines(context.Background(), []string{"transcripts", "t"}); err != nil {
		t.Fatalf("AppendLines: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "transcripts", "t.jsonl")); !os.IsNotExist(err) {
		t.Error("empty append created a file")
	}
}

func TestReadLinesMissingFile(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.ReadLines(context.Background(), []string{"transcripts", "absent"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCountLines(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"transcripts", "counted"}

	n, err := s.CountLines(ctx, path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if n != 0 {
		t.Errorf("missing file should count as zero, got %d", n)
	}

	for i := 0; i < 5; i++ {
		if err := s.AppendLines(ctx, path, turnDoc{Role: "user"}); err != nil {
			t.Fatalf("AppendLines: %v", err)
		}
	}

	n, err = s.CountLines(ctx, path)
	if err != nil {
		t.Fatalf("CountLines: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 records, got %d", n)
	}
}

func TestReplaceLinesKeepsOnlyGivenRecords(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()
	path := []string{"transcripts", "compacted"}

	for i := 0; i < 6; i++ {
		if err := s.AppendLines(ctx, path, turnDoc{Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("AppendLines: %v", err)
		}
	}

	if err := s.ReplaceLines(ctx, path, []any{
		turnDoc{Content: "e"},
		turnDoc{Content: "f"},
	}); err != nil {
		t.Fatalf("ReplaceLines: %v", err)
	}

	records, err := s.ReadLines(ctx, path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after rewrite, got %d", len(records))
	}

	var last turnDoc
	if err := json.Unmarshal(records[1], &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if last.Content != "f" {
		t.Errorf("expected last record f, got %q", last.Content)
	}

	tmpPath := filepath.Join(dir, "transcripts", "compacted.jsonl.tmp")
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("temp file survived the rewrite")
	}
}

func TestDeleteLinesIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"transcripts", "gone"}

	if err := s.AppendLines(ctx, path, turnDoc{Content: "x"}); err != nil {
		t.Fatalf("AppendLines: %v", err)
	}
	if err := s.DeleteLines(ctx, path); err != nil {
		t.Fatalf("DeleteLines: %v", err)
	}
	if _, err := s.ReadLines(ctx, path); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteLines(ctx, path); err != nil {
		t.Errorf("second delete should be a no-op: %v", err)
	}
}

func TestConcurrentAppendLinesRecordsIntact(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	path := []string{"transcripts", "hot"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.AppendLines(ctx, path, turnDoc{Role: "user", Content: string(rune('0' + n))}); err != nil {
				t.Errorf("AppendLines: %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := s.ReadLines(ctx, path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}
	for i, rec := range records {
		var d turnDoc
		if err := json.Unmarshal(rec, &d); err != nil {
			t.Errorf("record %d corrupt: %v", i, err)
		}
	}
}
