package event

// EntryEnqueuedData is the data for entry.enqueued events.
type EntryEnqueuedData struct {
	ConversationKey string `json:"conversationKey"`
	MessageID       int64  `json:"messageID,omitempty"`
	Queued          bool   `json:"queued"`
}

func (d EntryEnqueuedData) EventKey() string { return d.ConversationKey }

// EntryDeduplicatedData is the data for entry.deduplicated events.
type EntryDeduplicatedData struct {
	ConversationKey string `json:"conversationKey"`
	MessageID       int64  `json:"messageID"`
}

func (d EntryDeduplicatedData) EventKey() string { return d.ConversationKey }

// EntryDroppedData is the data for entry.dropped events, published when
// the busy queue for a conversation is full and the oldest waiting entry
// is discarded.
type EntryDroppedData struct {
	ConversationKey string `json:"conversationKey"`
	MessageID       int64  `json:"messageID,omitempty"`
	QueueCap        int    `json:"queueCap"`
}

func (d EntryDroppedData) EventKey() string { return d.ConversationKey }

// DispatchStartedData is the data for dispatch.started events.
type DispatchStartedData struct {
	ConversationKey string `json:"conversationKey"`
	Merged          int    `json:"merged"`
}

func (d DispatchStartedData) EventKey() string { return d.ConversationKey }

// DispatchFinishedData is the data for dispatch.finished events.
type DispatchFinishedData struct {
	ConversationKey string `json:"conversationKey"`
	OK              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	DurationMs      int64  `json:"durationMs"`
}

func (d DispatchFinishedData) EventKey() string { return d.ConversationKey }

// SessionAppendedData is the data for session.appended events.
type SessionAppendedData struct {
	Key          string `json:"key"`
	Turns        int    `json:"turns"`
	MessageCount int    `json:"messageCount"`
}

func (d SessionAppendedData) EventKey() string { return d.Key }

// SessionCompactedData is the data for session.compacted events.
type SessionCompactedData struct {
	Key             string `json:"key"`
	Retained        int    `json:"retained"`
	CompactionCount int    `json:"compactionCount"`
}

func (d SessionCompactedData) EventKey() string { return d.Key }

// SessionClearedData is the data for session.cleared events.
type SessionClearedData struct {
	Key string `json:"key"`
}

func (d SessionClearedData) EventKey() string { return d.Key }

// SessionExpiredData is the data for session.expired events, published when
// an expired session is flushed and reset before new turns are appended.
type SessionExpiredData struct {
	Key    string `json:"key"`
	Reason string `json:"reason"` // "daily" | "idle"
}

func (d SessionExpiredData) EventKey() string { return d.Key }

// GroupActivityData is the data for group.activity events, published when
// a group participant is marked active and the reply window opens.
type GroupActivityData struct {
	ChatID    string `json:"chatID"`
	SubjectID string `json:"subjectID"`
}

// ConfigUpdatedData is the data for config.updated events.
type ConfigUpdatedData struct {
	Path string `json:"path,omitempty"`
}
