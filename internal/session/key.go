// Package session provides conversation identity, transcript persistence,
// reset policies, and group-activation state.
package session

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/types"
)

// Scope distinguishes one-on-one conversations from shared ones.
type Scope string

const (
	ScopeDirect Scope = "direct"
	ScopeGroup  Scope = "group"
)

// Key is the stable identity of a single conversation. It is a value: two
// keys address the same conversation iff all fields are equal.
type Key struct {
	Owner     string `json:"owner"`
	Scope     Scope  `json:"scope"`
	ScopeID   string `json:"scopeId"`
	SubjectID string `json:"subjectId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
}

// DeriveKey maps raw platform identifiers onto a conversation key. Private
// chats key by the sending subject; group and channel chats key by the chat,
// plus the thread when forum topic isolation is enabled. Pure function: the
// same event context always derives the same key.
func DeriveKey(owner string, ev types.EventContext, forumTopicIsolation bool) Key {
	if !ev.IsGroup() {
		return Key{
			Owner:     owner,
			Scope:     ScopeDirect,
			ScopeID:   ev.SubjectID,
			SubjectID: ev.SubjectID,
		}
	}

	key := Key{
		Owner:   owner,
		Scope:   ScopeGroup,
		ScopeID: ev.ChatID,
	}
	if forumTopicIsolation && ev.ThreadID != "" {
		key.ThreadID = ev.ThreadID
	}
	return key
}

// String returns the forward-stable serialized form used as the map and file
// key everywhere. It is not required to parse back; only stability matters.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Owner)
	b.WriteByte(':')
	b.WriteString(string(k.Scope))
	b.WriteByte(':')
	b.WriteString(k.ScopeID)
	if k.ThreadID != "" {
		b.WriteString(":topic:")
		b.WriteString(k.ThreadID)
	}
	return b.String()
}

// SanitizeKey replaces path-hostile runes in a serialized key with
// underscores. Distinct keys that differ only in hostile runes can collide;
// key components come from platform IDs, which do not contain them in
// practice.
func SanitizeKey(serialized string) string {
	var b strings.Builder
	b.Grow(len(serialized))
	for _, r := range serialized {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ActiveWindowKey is the map key for the group reply-window file.
func ActiveWindowKey(chatID, subjectID string) string {
	return fmt.Sprintf("%s:%s", chatID, subjectID)
}
