package dispatch

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/types"
)

// mergeFlat coalesces a debounce batch into one entry. Texts join with
// newlines in arrival order, images concatenate, and the display-safe session
// text joins the same way when any entry carries one. The merged entry keeps
// the first entry's identity and timestamps.
func mergeFlat(entries []*types.Entry) types.Entry {
	if len(entries) == 1 {
		return *entries[0]
	}

	texts := make([]string, 0, len(entries))
	sessionTexts := make([]string, 0, len(entries))
	var images []string
	hasSessionText := false
	for _, e := range entries {
		if e.Payload.Text != "" {
			texts = append(texts, e.Payload.Text)
		}
		images = append(images, e.Payload.Images...)
		if e.Payload.SessionText != "" {
			hasSessionText = true
		}
		if text := sessionTextOf(e); text != "" {
			sessionTexts = append(sessionTexts, text)
		}
	}

	merged := *entries[0]
	merged.Payload.Text = strings.Join(texts, "\n")
	merged.Payload.Images = images
	merged.Payload.SessionText = ""
	if hasSessionText {
		merged.Payload.SessionText = strings.Join(sessionTexts, "\n")
	}
	return merged
}

// mergeQueued coalesces a drained busy-queue into one synthetic entry. Unlike
// the flat debounce join, each message keeps its own numbered line so the
// processor can see the per-message separation. A single queued entry passes
// through untouched.
func mergeQueued(entries []*types.Entry) types.Entry {
	if len(entries) == 1 {
		return *entries[0]
	}

	var text strings.Builder
	fmt.Fprintf(&text, "[%d messages received while busy]", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&text, "\n#%d: %s", i+1, e.Payload.Text)
	}

	var images []string
	hasSessionText := false
	for _, e := range entries {
		images = append(images, e.Payload.Images...)
		if e.Payload.SessionText != "" {
			hasSessionText = true
		}
	}

	merged := *entries[0]
	merged.Payload.Text = text.String()
	merged.Payload.Images = images
	merged.Payload.SessionText = ""
	if hasSessionText {
		var session strings.Builder
		fmt.Fprintf(&session, "[%d messages received while busy]", len(entries))
		for i, e := range entries {
			fmt.Fprintf(&session, "\n#%d: %s", i+1, sessionTextOf(e))
		}
		merged.Payload.SessionText = session.String()
	}
	return merged
}

// sessionTextOf returns the display-safe text for an entry, falling back to
// the raw text when no separate session variant was provided.
func sessionTextOf(e *types.Entry) string {
	if e.Payload.SessionText != "" {
		return e.Payload.SessionText
	}
	return e.Payload.Text
}
