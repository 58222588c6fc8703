package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/logging"
)

// reloadDebounce coalesces the burst of fsnotify events an editor save
// produces into a single reload.
const reloadDebounce = 300 * time.Millisecond

// Watcher watches the resolved config locations and reloads on change.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	fileNames map[string]bool
	lastJSON  []byte
	debounce  *time.Timer
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.RWMutex
}

// NewWatcher creates a config watcher for the given directory.
// Returns nil if no config location exists to watch.
func NewWatcher(directory string) (*Watcher, error) {
	dirs, names := watchTargets(directory)
	if len(dirs) == 0 {
		logging.Debug().Str("directory", directory).Msg("no config locations found, config watcher disabled")
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the parent directories rather than the files themselves.
	// On some systems, watching the file directly doesn't work reliably
	// (editors replace files on save).
	added := 0
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			logging.Debug().Err(err).Str("dir", dir).Msg("cannot watch config dir")
			continue
		}
		added++
	}
	if added == 0 {
		w.Close()
		return nil, nil
	}

	cfg, _ := Load(directory)
	snapshot, _ := json.Marshal(cfg)
	logging.Info().Int("dirs", added).Msg("config watcher initialized")

	return &Watcher{
		watcher:   w,
		directory: directory,
		fileNames: names,
		lastJSON:  snapshot,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching for config changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if w.fileNames[filepath.Base(ev.Name)] {
					w.scheduleReload(ev.Name)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(reloadDebounce, func() {
		w.checkConfigChange(path)
	})
}

func (w *Watcher) checkConfigChange(path string) {
	cfg, err := Load(w.directory)
	if err != nil {
		logging.Error().Err(err).Msg("config reload failed")
		return
	}
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := !bytes.Equal(snapshot, w.lastJSON)
	if changed {
		w.lastJSON = snapshot
	}
	w.mu.Unlock()

	if changed {
		logging.Info().Str("path", path).Msg("config changed")

		event.PublishSync(event.Event{
			Type: event.ConfigUpdated,
			Data: event.ConfigUpdatedData{Path: path},
		})
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	// Signal stop
	select {
	case <-w.stopCh:
		// Already stopped
	default:
		close(w.stopCh)
	}

	// Wait for run() to finish if it was started
	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}

// watchTargets returns the existing directories Load consults and the set of
// file base names that should trigger a reload.
func watchTargets(directory string) ([]string, map[string]bool) {
	names := map[string]bool{
		"config.json":  true,
		"parley.json":  true,
		"parley.jsonc": true,
	}

	var candidates []string
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, ".parley"))
	}
	candidates = append(candidates, GetPaths().Config)
	if directory != "" {
		candidates = append(candidates, directory, filepath.Join(directory, ".parley"))
	}
	if configPath := os.Getenv("PARLEY_CONFIG"); configPath != "" {
		candidates = append(candidates, filepath.Dir(configPath))
		names[filepath.Base(configPath)] = true
	}

	var dirs []string
	seen := make(map[string]bool)
	for _, dir := range candidates {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs, names
}
