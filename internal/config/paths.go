// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Paths holds the engine's standard directories, XDG-resolved.
type Paths struct {
	Data   string // ~/.local/share/parley
	Config string // ~/.config/parley
	Cache  string // ~/.cache/parley
	State  string // ~/.local/state/parley
}

// GetPaths resolves the standard directories from the environment.
func GetPaths() *Paths {
	return &Paths{
		Data:   xdgDir("XDG_DATA_HOME", ".local", "share"),
		Config: xdgDir("XDG_CONFIG_HOME", ".config"),
		Cache:  xdgDir("XDG_CACHE_HOME", ".cache"),
		State:  xdgDir("XDG_STATE_HOME", ".local", "state"),
	}
}

// xdgDir resolves one XDG base directory and appends the app name. When
// the variable is unset it falls back to the home-relative default, or
// APPDATA on Windows.
func xdgDir(envVar string, fallback ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		if runtime.GOOS == "windows" {
			base = os.Getenv("APPDATA")
		} else {
			parts := append([]string{os.Getenv("HOME")}, fallback...)
			base = filepath.Join(parts...)
		}
	}
	return filepath.Join(base, "parley")
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the engine state directory under Data.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// ResolveDataDir returns the engine state directory, honoring an explicit
// override from config before falling back to the XDG storage path.
func ResolveDataDir(override string) string {
	if override == "" {
		return GetPaths().StoragePath()
	}
	if strings.HasPrefix(override, "~/") {
		return filepath.Join(os.Getenv("HOME"), override[2:])
	}
	return override
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "parley.json")
}

// DirectoryConfigPath returns the path to a directory-scoped config file.
func DirectoryConfigPath(directory string) string {
	return filepath.Join(directory, ".parley", "parley.json")
}
