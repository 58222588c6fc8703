package session

import (
	"context"
)

// compactLocked rewrites the key's transcript down to the last maxHistory
// lines once the line count exceeds twice that bound. Returns whether a
// rewrite happened and the retained line count. Retained lines keep their
// relative order. Caller holds s.mu.
func (s *Store) compactLocked(ctx context.Context, key string, maxHistory int) (bool, int, error) {
	if maxHistory <= 0 {
		return false, 0, nil
	}

	path := transcriptPath(key)
	count, err := s.storage.CountLines(ctx, path)
	if err != nil {
		return false, 0, err
	}
	if count <= 2*maxHistory {
		return false, 0, nil
	}

	raws, err := s.storage.ReadLines(ctx, path)
	if err != nil {
		return false, 0, err
	}
	if len(raws) > maxHistory {
		raws = raws[len(raws)-maxHistory:]
	}

	values := make([]any, len(raws))
	for i, raw := range raws {
		values[i] = raw
	}
	if err := s.storage.ReplaceLines(ctx, path, values); err != nil {
		return false, 0, err
	}

	s.log.Debug().
		Str("key", key).
		Int("before", count).
		Int("retained", len(raws)).
		Msg("transcript compacted")
	return true, len(raws), nil
}
