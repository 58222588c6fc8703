package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/storage"
	"github.com/parley-ai/parley/pkg/types"
)

func newGroupStore(t *testing.T, group GroupSettings) *Store {
	t.Helper()
	s := NewStore(storage.New(t.TempDir()), Options{Owner: "agent", Group: group})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func groupEvent(text string) types.EventContext {
	return types.EventContext{
		ChatID:    "-100",
		ChatType:  "supergroup",
		SubjectID: "42",
		Text:      text,
	}
}

func TestShouldRespondInGroup_Always(t *testing.T) {
	s := newGroupStore(t, GroupSettings{Activation: ActivationAlways})

	assert.True(t, s.ShouldRespondInGroup(groupEvent("completely unrelated chatter")))
}

func TestShouldRespondInGroup_ReplyToBot(t *testing.T) {
	s := newGroupStore(t, GroupSettings{Activation: ActivationMention})

	ev := groupEvent("sure, go ahead")
	assert.False(t, s.ShouldRespondInGroup(ev))

	ev.IsReplyToBot = true
	assert.True(t, s.ShouldRespondInGroup(ev))
}

func TestShouldRespondInGroup_Handle(t *testing.T) {
	s := newGroupStore(t, GroupSettings{
		Activation: ActivationMention,
		SelfHandle: "@parley_bot",
	})

	assert.True(t, s.ShouldRespondInGroup(groupEvent("hey @parley_bot what's up")))
	assert.True(t, s.ShouldRespondInGroup(groupEvent("HEY @PARLEY_BOT")))
	assert.False(t, s.ShouldRespondInGroup(groupEvent("hey everyone")))
}

func TestShouldRespondInGroup_NamePattern(t *testing.T) {
	s := newGroupStore(t, GroupSettings{
		Activation:   ActivationMention,
		NamePatterns: []string{"parley"},
	})

	assert.True(t, s.ShouldRespondInGroup(groupEvent("parley, are you there?")))
	assert.True(t, s.ShouldRespondInGroup(groupEvent("ask Parley about it")))
	// Word boundary: substrings of longer words do not trigger
	assert.False(t, s.ShouldRespondInGroup(groupEvent("parleys are fun")))
	assert.False(t, s.ShouldRespondInGroup(groupEvent("nothing relevant")))
}

func TestShouldRespondInGroup_ReplyWindow(t *testing.T) {
	s := newGroupStore(t, GroupSettings{
		Activation:         ActivationMention,
		ReplyWindowMinutes: 30,
	})

	ev := groupEvent("just a followup")
	assert.False(t, s.ShouldRespondInGroup(ev))

	// An addressed message opens the window for that sender
	s.MarkActive(ev.ChatID, ev.SubjectID)
	assert.True(t, s.ShouldRespondInGroup(ev))

	// Other senders in the same chat stay gated
	other := ev
	other.SubjectID = "99"
	assert.False(t, s.ShouldRespondInGroup(other))
}

func TestHasActiveWindow_Expiry(t *testing.T) {
	s := newGroupStore(t, GroupSettings{
		Activation:         ActivationMention,
		ReplyWindowMinutes: 30,
	})

	s.mu.Lock()
	s.activeOK = true
	s.active[ActiveWindowKey("-100", "42")] = time.Now().Add(-31 * time.Minute).UnixMilli()
	s.active[ActiveWindowKey("-100", "7")] = time.Now().Add(-5 * time.Minute).UnixMilli()
	s.mu.Unlock()

	assert.False(t, s.HasActiveWindow("-100", "42"), "window has lapsed")
	assert.True(t, s.HasActiveWindow("-100", "7"))
}

func TestHasActiveWindow_Unlimited(t *testing.T) {
	s := newGroupStore(t, GroupSettings{Activation: ActivationMention})

	s.mu.Lock()
	s.activeOK = true
	s.active[ActiveWindowKey("-100", "42")] = time.Now().Add(-90 * 24 * time.Hour).UnixMilli()
	s.mu.Unlock()

	// Zero window: entries never age out
	assert.True(t, s.HasActiveWindow("-100", "42"))
}

func TestMarkActive_DebouncedFlush(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)
	s := NewStore(st, Options{
		Owner:               "agent",
		Group:               GroupSettings{Activation: ActivationMention},
		ActiveFlushDebounce: 20 * time.Millisecond,
	})
	defer s.Close()

	s.MarkActive("-100", "42")
	s.MarkActive("-100", "43")

	var active map[string]int64
	err := st.Get(context.Background(), []string{"sessions", "active"}, &active)
	assert.ErrorIs(t, err, storage.ErrNotFound, "write is deferred past the debounce")

	require.Eventually(t, func() bool {
		return st.Get(context.Background(), []string{"sessions", "active"}, &active) == nil
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, active, "-100:42")
	assert.Contains(t, active, "-100:43")
}

func TestMarkActive_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	s1 := NewStore(storage.New(dir), Options{
		Owner:               "agent",
		Group:               GroupSettings{Activation: ActivationMention, ReplyWindowMinutes: 30},
		ActiveFlushDebounce: 10 * time.Millisecond,
	})
	s1.MarkActive("-100", "42")
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s1.Close())

	s2 := NewStore(storage.New(dir), Options{
		Owner: "agent",
		Group: GroupSettings{Activation: ActivationMention, ReplyWindowMinutes: 30},
	})
	defer s2.Close()

	assert.True(t, s2.HasActiveWindow("-100", "42"))
	assert.False(t, s2.HasActiveWindow("-100", "99"))
}

func TestStripMention(t *testing.T) {
	s := newGroupStore(t, GroupSettings{
		Activation:   ActivationMention,
		SelfHandle:   "@parley_bot",
		NamePatterns: []string{"parley"},
	})

	assert.Equal(t, "what's the weather", s.StripMention("@parley_bot what's the weather"))
	assert.Equal(t, "hey how are you", s.StripMention("hey parley how are you"))
	assert.Equal(t, "trailing too", s.StripMention("trailing too @parley_bot"))
	assert.Equal(t, "no mention here", s.StripMention("no mention here"))
	// Removal never glues neighboring words together
	assert.Equal(t, "a b", s.StripMention("a @parley_bot b"))
}

func TestStripMention_NoPatterns(t *testing.T) {
	s := newGroupStore(t, GroupSettings{Activation: ActivationMention})

	assert.Equal(t, "untouched text", s.StripMention("untouched  text"))
}
