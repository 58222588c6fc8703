package types

import "strings"

// Message roles used in transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EventContext carries the raw platform identifiers for one inbound chat
// event. It is the only place platform-specific shapes enter the engine;
// adapters are expected to fill it and nothing else.
type EventContext struct {
	ChatID       string `json:"chatId"`
	ChatType     string `json:"chatType"` // "private" | "group" | "supergroup" | "channel"
	SubjectID    string `json:"subjectId"`
	ThreadID     string `json:"threadId,omitempty"`
	MessageID    int64  `json:"messageId"`
	Text         string `json:"text"`
	IsReplyToBot bool   `json:"isReplyToBot,omitempty"`
}

// IsGroup reports whether the event originates from a multi-party chat.
// An empty or unknown chat type is treated as private.
func (e EventContext) IsGroup() bool {
	switch strings.ToLower(strings.TrimSpace(e.ChatType)) {
	case "group", "supergroup", "channel":
		return true
	}
	return false
}

// Payload is the content of a buffer entry handed to the processor.
type Payload struct {
	Text string `json:"text"`
	// Images holds already-resolved references (URLs or file paths);
	// resolution is the adapter's job.
	Images []string `json:"images,omitempty"`
	// SessionText is a display-safe variant used only for transcript
	// persistence. Empty means Text is safe to persist as-is.
	SessionText string `json:"sessionText,omitempty"`
}

// Entry is one unit of inbound work. It is owned exclusively by the dispatch
// buffer between enqueue and dispatch (or merge into a later entry) and is
// never persisted.
type Entry struct {
	ConversationKey string  `json:"conversationKey"`
	Payload         Payload `json:"payload"`
	MessageID       int64   `json:"messageId"`
	IsMedia         bool    `json:"isMedia"`
	EnqueuedAt      int64   `json:"enqueuedAt"` // unix milliseconds
}

// Turn is a single persisted transcript turn.
type Turn struct {
	Role    string   `json:"role"` // "user" | "assistant"
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}
