package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/logging"
	"github.com/parley-ai/parley/internal/storage"
	"github.com/parley-ai/parley/pkg/types"
)

// DefaultActiveFlushDebounce batches reply-window disk writes so a burst of
// group messages does not rewrite the file per message.
const DefaultActiveFlushDebounce = 2 * time.Second

// DefaultMaxHistory is the transcript retention bound used when the
// configuration does not set one.
const DefaultMaxHistory = 50

// Group activation modes.
const (
	ActivationAlways  = "always"
	ActivationMention = "mention"
)

// GroupSettings controls when the engine responds in multi-party chats.
type GroupSettings struct {
	Activation          string // "always" | "mention"
	ReplyWindowMinutes  int    // 0 = unlimited
	ForumTopicIsolation bool
	SelfHandle          string
	NamePatterns        []string
}

// Options configures a Store.
type Options struct {
	// Owner is the agent identity all derived keys are scoped to.
	Owner  string
	Policy ResetPolicy
	Group  GroupSettings
	// ActiveFlushDebounce overrides DefaultActiveFlushDebounce. Zero keeps
	// the default.
	ActiveFlushDebounce time.Duration
}

// Store owns conversation identity, transcript persistence, session metadata,
// reset policies, and the group reply window. All mutation of its maps
// happens under one mutex; per-key transcript ordering is preserved because
// dispatches for a key are already serialized upstream.
type Store struct {
	storage       *storage.Storage
	owner         string
	policy        ResetPolicy
	group         GroupSettings
	patterns      []*regexp.Regexp
	handlePattern *regexp.Regexp
	flushDebounce time.Duration
	log           zerolog.Logger

	mu          sync.Mutex
	metas       map[string]types.SessionMeta
	metasLoaded bool
	active      map[string]int64
	activeOK    bool
	activeDirty bool
	activeTimer *time.Timer
}

// NewStore creates a session store backed by the given storage.
func NewStore(store *storage.Storage, opts Options) *Store {
	flush := opts.ActiveFlushDebounce
	if flush <= 0 {
		flush = DefaultActiveFlushDebounce
	}

	s := &Store{
		storage:       store,
		owner:         opts.Owner,
		policy:        opts.Policy,
		group:         opts.Group,
		flushDebounce: flush,
		log:           logging.Component("session"),
		metas:         make(map[string]types.SessionMeta),
		active:        make(map[string]int64),
	}

	for _, pattern := range opts.Group.NamePatterns {
		re, err := regexp.Compile(`(?i)\b(?:` + regexp.QuoteMeta(pattern) + `)\b`)
		if err != nil {
			s.log.Warn().Str("pattern", pattern).Err(err).Msg("skipping unusable name pattern")
			continue
		}
		s.patterns = append(s.patterns, re)
	}
	if opts.Group.SelfHandle != "" {
		s.handlePattern = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(opts.Group.SelfHandle))
	}

	return s
}

// Owner returns the agent identity this store is scoped to.
func (s *Store) Owner() string {
	return s.owner
}

// Policy returns the configured reset policy.
func (s *Store) Policy() ResetPolicy {
	return s.policy
}

// DeriveKey derives the conversation key for an inbound event using the
// store's owner and forum-isolation setting.
func (s *Store) DeriveKey(ev types.EventContext) Key {
	return DeriveKey(s.owner, ev, s.group.ForumTopicIsolation)
}

// History returns the last maxTurns transcript turns for the serialized key,
// oldest first. Missing transcripts yield an empty history; corrupt lines are
// skipped with a warning. Never fails: transient read errors degrade to an
// empty history. maxTurns <= 0 means no limit.
func (s *Store) History(ctx context.Context, key string, maxTurns int) []types.Turn {
	turns := s.readTranscript(ctx, key)
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return turns
}

// FullHistory returns the complete transcript for the key. Used to flush a
// session elsewhere before a destructive Clear.
func (s *Store) FullHistory(ctx context.Context, key string) []types.Turn {
	return s.readTranscript(ctx, key)
}

func (s *Store) readTranscript(ctx context.Context, key string) []types.Turn {
	raws, err := s.storage.ReadLines(ctx, transcriptPath(key))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Str("key", key).Err(err).Msg("transcript read failed")
		}
		return nil
	}

	turns := make([]types.Turn, 0, len(raws))
	for i, raw := range raws {
		var turn types.Turn
		if err := json.Unmarshal(raw, &turn); err != nil {
			s.log.Warn().Str("key", key).Int("line", i+1).Msg("skipping corrupt transcript line")
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}

// AppendMessages atomically appends turns to the key's transcript, updates
// the session metadata, and compacts the transcript when it exceeds twice
// maxHistory lines.
func (s *Store) AppendMessages(ctx context.Context, key string, turns []types.Turn, maxHistory int) error {
	if len(turns) == 0 {
		return nil
	}

	values := make([]any, len(turns))
	for i, turn := range turns {
		values[i] = turn
	}
	if err := s.storage.AppendLines(ctx, transcriptPath(key), values...); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMetasLocked(ctx)

	now := time.Now().UnixMilli()
	meta, ok := s.metas[key]
	if !ok {
		meta = types.SessionMeta{Key: key, CreatedAt: now}
	}
	meta.LastActivityAt = now
	meta.MessageCount += len(turns)

	compacted, retained, err := s.compactLocked(ctx, key, maxHistory)
	if err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("compaction failed")
	} else if compacted {
		meta.CompactionCount++
	}

	s.metas[key] = meta
	if err := s.saveMetasLocked(ctx); err != nil {
		return fmt.Errorf("update session index: %w", err)
	}

	event.Publish(event.Event{
		Type: event.SessionAppended,
		Data: event.SessionAppendedData{
			Key:          key,
			Turns:        len(turns),
			MessageCount: meta.MessageCount,
		},
	})
	if compacted {
		event.Publish(event.Event{
			Type: event.SessionCompacted,
			Data: event.SessionCompactedData{
				Key:             key,
				Retained:        retained,
				CompactionCount: meta.CompactionCount,
			},
		})
	}
	return nil
}

// Meta returns the session metadata for the serialized key.
func (s *Store) Meta(ctx context.Context, key string) (types.SessionMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMetasLocked(ctx)
	meta, ok := s.metas[key]
	return meta, ok
}

// ListMetas returns all session metadata entries, ordered by last activity,
// most recent first.
func (s *Store) ListMetas(ctx context.Context) []types.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMetasLocked(ctx)

	metas := make([]types.SessionMeta, 0, len(s.metas))
	for _, meta := range s.metas {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].LastActivityAt > metas[j].LastActivityAt
	})
	return metas
}

// MarkFlushed records that the caller has summarized the transcript up
// through the current compaction, so a later flush does not re-process the
// same material.
func (s *Store) MarkFlushed(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMetasLocked(ctx)

	meta, ok := s.metas[key]
	if !ok {
		return nil
	}
	index := meta.CompactionCount
	meta.LastFlushCompactionIndex = &index
	s.metas[key] = meta
	return s.saveMetasLocked(ctx)
}

// IsExpired reports whether the session's reset policies have expired it.
// Read-only: detection and the destructive Clear are deliberately decoupled
// so callers can flush history first.
func (s *Store) IsExpired(ctx context.Context, key string) bool {
	expired, _ := s.CheckExpiry(ctx, key)
	return expired
}

// CheckExpiry is IsExpired plus the policy that fired ("daily" or "idle").
func (s *Store) CheckExpiry(ctx context.Context, key string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadMetasLocked(ctx)

	meta, ok := s.metas[key]
	if !ok {
		return false, ""
	}
	return s.policy.Evaluate(time.UnixMilli(meta.LastActivityAt), time.Now())
}

// Clear deletes the key's transcript and metadata. Idempotent.
func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.storage.DeleteLines(ctx, transcriptPath(key)); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}

	s.mu.Lock()
	s.loadMetasLocked(ctx)
	_, existed := s.metas[key]
	var err error
	if existed {
		delete(s.metas, key)
		err = s.saveMetasLocked(ctx)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("update session index: %w", err)
	}

	if existed {
		event.Publish(event.Event{
			Type: event.SessionCleared,
			Data: event.SessionClearedData{Key: key},
		})
	}
	return nil
}

// Close flushes any pending reply-window writes.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.activeTimer != nil {
		s.activeTimer.Stop()
		s.activeTimer = nil
	}
	dirty := s.activeDirty
	s.mu.Unlock()

	if dirty {
		return s.flushActive(context.Background())
	}
	return nil
}

func (s *Store) loadMetasLocked(ctx context.Context) {
	if s.metasLoaded {
		return
	}
	s.metasLoaded = true

	var metas map[string]types.SessionMeta
	if err := s.storage.Get(ctx, indexPath(), &metas); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Msg("session index unreadable, starting fresh")
		}
		return
	}
	s.metas = metas
	if s.metas == nil {
		s.metas = make(map[string]types.SessionMeta)
	}
}

func (s *Store) saveMetasLocked(ctx context.Context) error {
	return s.storage.Put(ctx, indexPath(), s.metas)
}

func transcriptPath(key string) []string {
	return []string{"transcripts", SanitizeKey(key)}
}

func indexPath() []string {
	return []string{"sessions", "index"}
}

func activePath() []string {
	return []string{"sessions", "active"}
}
