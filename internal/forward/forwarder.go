// Package forward implements the downstream conversation processor: it
// delivers merged payloads to the configured agent endpoint and folds the
// exchange back into the session store.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/logging"
	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/pkg/types"
)

const (
	// DefaultMaxRetries is the delivery retry budget per dispatch.
	DefaultMaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 60 * time.Second
)

// Request is the payload POSTed to the downstream agent.
type Request struct {
	ConversationKey string       `json:"conversationKey"`
	Message         string       `json:"message"`
	Images          []string     `json:"images,omitempty"`
	History         []types.Turn `json:"history,omitempty"`
}

// Response is the downstream agent's reply. An empty reply (or a 204) means
// the agent chose not to answer; only the user turn is persisted then.
type Response struct {
	Reply string `json:"reply"`
}

// Options configures a Forwarder.
type Options struct {
	// URL is the downstream agent endpoint.
	URL string
	// Headers are set on every delivery request.
	Headers map[string]string
	// Timeout bounds a single attempt. Zero uses DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is the retry budget after the first attempt. Negative
	// values mean no retries.
	MaxRetries int
	// MaxHistory is the transcript retention bound; it also sizes the
	// history window sent downstream.
	MaxHistory int
}

// Forwarder hands conversations to the downstream agent. Its Process method
// satisfies the dispatch buffer's processor contract: one call per
// conversation key at a time, errors logged and dropped upstream.
type Forwarder struct {
	store  *session.Store
	client *http.Client
	opts   Options
	log    zerolog.Logger
}

// New creates a Forwarder backed by the given session store.
func New(store *session.Store, opts Options) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Forwarder{
		store:  store,
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    logging.Component("forward"),
	}
}

// newRetryBackoff creates an exponential backoff with jitter for delivery
// retries, context-aware so a cancelled dispatch stops retrying.
func newRetryBackoff(ctx context.Context, maxRetries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// Process delivers one merged payload for a conversation key. An expired
// session is cleared first so the downstream agent starts from a fresh
// transcript; on delivery success the user turn and any reply are appended.
func (f *Forwarder) Process(ctx context.Context, key string, payload types.Payload) error {
	f.expireIfNeeded(ctx, key)

	history := f.store.History(ctx, key, f.opts.MaxHistory)
	reply, err := f.deliver(ctx, key, payload, history)
	if err != nil {
		return fmt.Errorf("deliver to agent: %w", err)
	}

	turns := []types.Turn{{
		Role:    types.RoleUser,
		Content: persistText(payload),
		Images:  payload.Images,
	}}
	if reply != "" {
		turns = append(turns, types.Turn{Role: types.RoleAssistant, Content: reply})
	}
	if err := f.store.AppendMessages(ctx, key, turns, f.opts.MaxHistory); err != nil {
		return fmt.Errorf("persist exchange: %w", err)
	}
	return nil
}

// expireIfNeeded applies the reset policies before a dispatch touches the
// session. Expiry detection is read-only, so the full history is still
// available here for hand-off before the destructive clear.
func (f *Forwarder) expireIfNeeded(ctx context.Context, key string) {
	expired, reason := f.store.CheckExpiry(ctx, key)
	if !expired {
		return
	}

	turns := f.store.FullHistory(ctx, key)
	f.log.Info().
		Str("key", key).
		Str("reason", reason).
		Int("turns", len(turns)).
		Msg("session expired, starting fresh")

	if err := f.store.Clear(ctx, key); err != nil {
		f.log.Warn().Str("key", key).Err(err).Msg("expired session clear failed")
		return
	}
	event.Publish(event.Event{
		Type: event.SessionExpired,
		Data: event.SessionExpiredData{Key: key, Reason: reason},
	})
}

func (f *Forwarder) deliver(ctx context.Context, key string, payload types.Payload, history []types.Turn) (string, error) {
	body, err := json.Marshal(Request{
		ConversationKey: key,
		Message:         payload.Text,
		Images:          payload.Images,
		History:         history,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	retry := newRetryBackoff(ctx, f.opts.MaxRetries)
	attempt := 0
	for {
		attempt++
		reply, err := f.post(ctx, body)
		if err == nil {
			return reply, nil
		}

		next := retry.NextBackOff()
		if next == backoff.Stop {
			return "", err
		}
		f.log.Warn().
			Str("key", key).
			Int("attempt", attempt).
			Dur("backoff", next).
			Err(err).
			Msg("delivery failed, retrying")
		time.Sleep(next)
	}
}

func (f *Forwarder) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", f.opts.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// A 204 or an empty body means the agent chose not to reply.
	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return "", nil
	}

	var result Response
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.Reply, nil
}

// persistText picks the display-safe variant for the transcript when the
// adapter provided one.
func persistText(payload types.Payload) string {
	if payload.SessionText != "" {
		return payload.SessionText
	}
	return payload.Text
}
