package types

// Config represents the parley configuration. Optional scalar fields use
// pointers so a merged layer can distinguish "absent" from a deliberate zero
// (a debounce of 0 is a valid setting, not a default request).
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Owner is the agent identity conversation keys are scoped to.
	Owner string `json:"owner,omitempty"`

	// DataDir overrides the default state directory.
	DataDir string `json:"dataDir,omitempty"`

	Log     *LogConfig     `json:"log,omitempty"`
	Buffer  *BufferConfig  `json:"buffer,omitempty"`
	Session *SessionConfig `json:"session,omitempty"`
	Group   *GroupConfig   `json:"group,omitempty"`
	Forward *ForwardConfig `json:"forward,omitempty"`
	Server  *ServerConfig  `json:"server,omitempty"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level  string `json:"level,omitempty"` // DEBUG|INFO|WARN|ERROR|FATAL
	Pretty bool   `json:"pretty,omitempty"`
}

// BufferConfig tunes the dispatch buffer.
type BufferConfig struct {
	// InboundDebounceMs is the Tier 1 coalescing window. 0 disables
	// debouncing and dispatches immediately.
	InboundDebounceMs *int `json:"inboundDebounceMs,omitempty"`
	// QueueDebounceMs is the settle delay before draining the busy-queue.
	QueueDebounceMs *int `json:"queueDebounceMs,omitempty"`
	// QueueCap bounds the per-key busy-queue; overflow drops the oldest.
	QueueCap *int `json:"queueCap,omitempty"`
	// DedupCacheSize bounds the seen-message set.
	DedupCacheSize *int `json:"dedupCacheSize,omitempty"`
	// BusyReleaseTimeoutMs force-clears a busy marker whose processor has
	// not settled. 0 disables the watchdog.
	BusyReleaseTimeoutMs *int `json:"busyReleaseTimeoutMs,omitempty"`
}

// SessionConfig tunes transcript retention and reset policies.
type SessionConfig struct {
	// MaxHistory is the retained transcript tail; compaction triggers past
	// twice this count.
	MaxHistory *int `json:"maxHistory,omitempty"`
	// DailyResetHour expires sessions once the local clock crosses this
	// hour (0-23). Nil disables the daily policy.
	DailyResetHour *int `json:"dailyResetHour,omitempty"`
	// IdleMinutes expires sessions idle longer than this. 0 disables.
	IdleMinutes *int `json:"idleMinutes,omitempty"`
}

// GroupConfig controls group-chat activation.
type GroupConfig struct {
	Activation string `json:"activation,omitempty"` // "always" | "mention"
	// ReplyWindowMinutes bounds the active window; 0 means unlimited.
	ReplyWindowMinutes *int `json:"replyWindowMinutes,omitempty"`
	// ForumTopicIsolation keys forum topics as separate conversations.
	ForumTopicIsolation bool     `json:"forumTopicIsolation,omitempty"`
	SelfHandle          string   `json:"selfHandle,omitempty"`
	NamePatterns        []string `json:"namePatterns,omitempty"`
}

// ForwardConfig points serve mode at the downstream agent endpoint.
type ForwardConfig struct {
	URL            string            `json:"url,omitempty"`
	TimeoutSeconds *int              `json:"timeoutSeconds,omitempty"`
	MaxRetries     *int              `json:"maxRetries,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Hostname   string `json:"hostname,omitempty"`
	Port       *int   `json:"port,omitempty"`
	EnableCORS *bool  `json:"enableCors,omitempty"`
}
