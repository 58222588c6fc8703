package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/storage"
	"github.com/parley-ai/parley/pkg/types"
)

func newTestStore(t *testing.T, opts Options) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	if opts.Owner == "" {
		opts.Owner = "agent"
	}
	s := NewStore(storage.New(dir), opts)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func directKey(subject string) string {
	return Key{Owner: "agent", Scope: ScopeDirect, ScopeID: subject, SubjectID: subject}.String()
}

func userTurn(content string) types.Turn {
	return types.Turn{Role: types.RoleUser, Content: content}
}

func TestStore_AppendAndHistory(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	err := s.AppendMessages(ctx, key, []types.Turn{
		userTurn("hello"),
		{Role: types.RoleAssistant, Content: "hi there"},
	}, 100)
	require.NoError(t, err)

	turns := s.History(ctx, key, 50)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, types.RoleAssistant, turns[1].Role)

	meta, ok := s.Meta(ctx, key)
	require.True(t, ok)
	assert.Equal(t, key, meta.Key)
	assert.Equal(t, 2, meta.MessageCount)
	assert.Zero(t, meta.CompactionCount)
	assert.Greater(t, meta.CreatedAt, int64(0))
	assert.GreaterOrEqual(t, meta.LastActivityAt, meta.CreatedAt)
}

func TestStore_HistoryLimit(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	for _, text := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn(text)}, 100))
	}

	turns := s.History(ctx, key, 2)
	require.Len(t, turns, 2)
	assert.Equal(t, "four", turns[0].Content)
	assert.Equal(t, "five", turns[1].Content)

	// Zero means unlimited
	assert.Len(t, s.History(ctx, key, 0), 5)
	assert.Len(t, s.FullHistory(ctx, key), 5)
}

func TestStore_HistoryMissing(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	turns := s.History(context.Background(), directKey("unknown"), 10)
	assert.Empty(t, turns)
}

func TestStore_HistorySkipsCorruptLines(t *testing.T) {
	s, dir := newTestStore(t, Options{})
	key := directKey("42")

	path := filepath.Join(dir, "transcripts", SanitizeKey(key)+".jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	content := `{"role":"user","content":"first"}` + "\n" +
		`{not json` + "\n" +
		`{"role":"assistant","content":"second"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	turns := s.History(context.Background(), key, 10)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
}

func TestStore_Compaction(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	// Stays under 2x the bound: no compaction yet
	for _, text := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn(text)}, 3))
	}
	meta, ok := s.Meta(ctx, key)
	require.True(t, ok)
	assert.Zero(t, meta.CompactionCount)
	assert.Len(t, s.FullHistory(ctx, key), 6)

	// Seventh append crosses the threshold
	require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("m7")}, 3))

	meta, ok = s.Meta(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1, meta.CompactionCount)
	assert.Equal(t, 7, meta.MessageCount)

	turns := s.FullHistory(ctx, key)
	require.Len(t, turns, 3)
	assert.Equal(t, "m5", turns[0].Content)
	assert.Equal(t, "m6", turns[1].Content)
	assert.Equal(t, "m7", turns[2].Content)
}

func TestStore_CompactionIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	for i := 0; i < 7; i++ {
		require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("m")}, 3))
	}
	before := s.FullHistory(ctx, key)
	require.Len(t, before, 3)

	// Re-running compaction on an already-compacted transcript is a no-op
	s.mu.Lock()
	compacted, _, err := s.compactLocked(ctx, key, 3)
	s.mu.Unlock()
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, before, s.FullHistory(ctx, key))
}

func TestStore_IsExpiredReadOnly(t *testing.T) {
	s, _ := newTestStore(t, Options{Policy: ResetPolicy{IdleMinutes: 60}})
	ctx := context.Background()
	key := directKey("42")

	require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("hello")}, 100))

	// Fresh session is live
	assert.False(t, s.IsExpired(ctx, key))

	// Age the session past the idle threshold
	aged := time.Now().Add(-2 * time.Hour).UnixMilli()
	s.mu.Lock()
	meta := s.metas[key]
	meta.LastActivityAt = aged
	s.metas[key] = meta
	s.mu.Unlock()

	assert.True(t, s.IsExpired(ctx, key))
	assert.True(t, s.IsExpired(ctx, key), "repeated checks stay true")

	expired, reason := s.CheckExpiry(ctx, key)
	assert.True(t, expired)
	assert.Equal(t, ExpiryIdle, reason)

	// Detection touched nothing: history and metadata are intact
	assert.Len(t, s.History(ctx, key, 10), 1)
	meta, ok := s.Meta(ctx, key)
	require.True(t, ok)
	assert.Equal(t, aged, meta.LastActivityAt)
}

func TestStore_IsExpiredUnknownKey(t *testing.T) {
	s, _ := newTestStore(t, Options{Policy: ResetPolicy{IdleMinutes: 1}})
	assert.False(t, s.IsExpired(context.Background(), directKey("never-seen")))
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("hello")}, 100))
	require.NoError(t, s.Clear(ctx, key))

	assert.Empty(t, s.History(ctx, key, 10))
	_, ok := s.Meta(ctx, key)
	assert.False(t, ok)

	// Clearing again is a no-op
	require.NoError(t, s.Clear(ctx, key))

	// The key is immediately reusable
	require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("fresh start")}, 100))
	meta, ok := s.Meta(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1, meta.MessageCount)
}

func TestStore_MarkFlushed(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	key := directKey("42")

	// Unknown key: nothing to mark
	require.NoError(t, s.MarkFlushed(ctx, key))

	require.NoError(t, s.AppendMessages(ctx, key, []types.Turn{userTurn("hello")}, 100))
	require.NoError(t, s.MarkFlushed(ctx, key))

	meta, ok := s.Meta(ctx, key)
	require.True(t, ok)
	require.NotNil(t, meta.LastFlushCompactionIndex)
	assert.Equal(t, 0, *meta.LastFlushCompactionIndex)
}

func TestStore_ListMetas(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	older := directKey("1")
	newer := directKey("2")
	require.NoError(t, s.AppendMessages(ctx, older, []types.Turn{userTurn("a")}, 100))
	require.NoError(t, s.AppendMessages(ctx, newer, []types.Turn{userTurn("b")}, 100))

	s.mu.Lock()
	m := s.metas[older]
	m.LastActivityAt = 1000
	s.metas[older] = m
	m = s.metas[newer]
	m.LastActivityAt = 2000
	s.metas[newer] = m
	s.mu.Unlock()

	metas := s.ListMetas(ctx)
	require.Len(t, metas, 2)
	assert.Equal(t, newer, metas[0].Key)
	assert.Equal(t, older, metas[1].Key)
}

func TestStore_PersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := directKey("42")

	s1 := NewStore(storage.New(dir), Options{Owner: "agent"})
	require.NoError(t, s1.AppendMessages(ctx, key, []types.Turn{userTurn("hello")}, 100))
	require.NoError(t, s1.Close())

	s2 := NewStore(storage.New(dir), Options{Owner: "agent"})
	defer s2.Close()

	meta, ok := s2.Meta(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 1, meta.MessageCount)
	require.Len(t, s2.History(ctx, key, 10), 1)
}
