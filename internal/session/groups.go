package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/storage"
	"github.com/parley-ai/parley/pkg/types"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// MarkActive refreshes the reply-window timestamp for a group participant.
// Persistence is debounced so bursts of group traffic batch into one disk
// write.
func (s *Store) MarkActive(chatID, subjectID string) {
	windowKey := ActiveWindowKey(chatID, subjectID)
	now := time.Now().UnixMilli()

	s.mu.Lock()
	s.loadActiveLocked(context.Background())
	s.active[windowKey] = now
	s.activeDirty = true
	if s.activeTimer == nil {
		s.activeTimer = time.AfterFunc(s.flushDebounce, func() {
			if err := s.flushActive(context.Background()); err != nil {
				s.log.Warn().Err(err).Msg("reply-window flush failed")
			}
		})
	}
	s.mu.Unlock()

	event.Publish(event.Event{
		Type: event.GroupActivity,
		Data: event.GroupActivityData{ChatID: chatID, SubjectID: subjectID},
	})
}

// HasActiveWindow reports whether the participant has an unexpired
// reply-window entry for the chat. Entries older than the configured window
// are treated as absent; a zero window means entries never age out.
func (s *Store) HasActiveWindow(chatID, subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadActiveLocked(context.Background())

	ts, ok := s.active[ActiveWindowKey(chatID, subjectID)]
	if !ok {
		return false
	}
	if s.group.ReplyWindowMinutes <= 0 {
		return true
	}
	return time.Since(time.UnixMilli(ts)) <= time.Duration(s.group.ReplyWindowMinutes)*time.Minute
}

// ShouldRespondInGroup decides whether an inbound group message activates
// processing. Checks run in precedence order; the first hit wins:
// always-on activation, reply to the engine's own message, handle mention,
// name-pattern match, then an open reply window for the sender.
func (s *Store) ShouldRespondInGroup(ev types.EventContext) bool {
	if s.group.Activation == ActivationAlways {
		return true
	}
	if ev.IsReplyToBot {
		return true
	}
	if s.handlePattern != nil && s.handlePattern.MatchString(ev.Text) {
		return true
	}
	for _, re := range s.patterns {
		if re.MatchString(ev.Text) {
			return true
		}
	}
	return s.HasActiveWindow(ev.ChatID, ev.SubjectID)
}

// StripMention removes the engine's handle and name-pattern occurrences from
// text and collapses the leftover whitespace.
func (s *Store) StripMention(text string) string {
	cleaned := text
	if s.handlePattern != nil {
		cleaned = s.handlePattern.ReplaceAllString(cleaned, " ")
	}
	for _, re := range s.patterns {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))
}

func (s *Store) loadActiveLocked(ctx context.Context) {
	if s.activeOK {
		return
	}
	s.activeOK = true

	var active map[string]int64
	if err := s.storage.Get(ctx, activePath(), &active); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Msg("reply-window state unreadable, starting fresh")
		}
		return
	}
	if active != nil {
		s.active = active
	}
}

// flushActive persists the reply-window map, dropping entries that have aged
// past the configured window.
func (s *Store) flushActive(ctx context.Context) error {
	s.mu.Lock()
	s.activeTimer = nil
	if !s.activeDirty {
		s.mu.Unlock()
		return nil
	}
	s.activeDirty = false

	if s.group.ReplyWindowMinutes > 0 {
		cutoff := time.Now().Add(-time.Duration(s.group.ReplyWindowMinutes) * time.Minute).UnixMilli()
		for key, ts := range s.active {
			if ts < cutoff {
				delete(s.active, key)
			}
		}
	}
	snapshot := make(map[string]int64, len(s.active))
	for key, ts := range s.active {
		snapshot[key] = ts
	}
	s.mu.Unlock()

	return s.storage.Put(ctx, activePath(), snapshot)
}
