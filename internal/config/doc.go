// Package config loads and merges engine configuration from layered
// sources and manages the engine's on-disk locations.
//
// # Sources
//
// Load merges every location that exists, lowest priority first:
//
//  1. dotdir global config (~/.parley/)
//  2. XDG global config (~/.config/parley/)
//  3. directory config (parley.json and .parley/ in the given directory)
//  4. PARLEY_CONFIG file
//  5. PARLEY_CONFIG_CONTENT inline JSON
//  6. PARLEY_* environment variables
//
// Files may be JSON or JSONC (comments are stripped with tidwall/jsonc
// before parsing). Later layers win field by field: non-empty strings and
// non-nil pointers override, and pointer fields let an explicit zero in a
// later layer beat a non-zero in an earlier one. Forward headers merge key
// by key.
//
// # Interpolation
//
// String values may embed {env:VAR} and {file:path} placeholders. File
// paths resolve relative to the config file's directory, support ~/
// expansion, and the contents are JSON-escaped on substitution. A missing
// file leaves the placeholder untouched so the problem is visible in the
// loaded value.
//
// # Environment overrides
//
//   - PARLEY_OWNER: agent owner identity
//   - PARLEY_DATA_DIR: engine state directory
//   - PARLEY_LOG_LEVEL: log level
//   - PARLEY_FORWARD_URL: downstream agent endpoint
//   - PARLEY_PORT: HTTP gateway port
//
// # Paths
//
// GetPaths returns XDG Base Directory locations (data, config, cache,
// state) under a parley subdirectory, honoring the XDG_* variables when
// set. ResolveDataDir maps the configured dataDir onto those defaults.
//
// # Hot reload
//
// Watcher watches the resolved config locations with fsnotify and
// publishes a config.updated event when the merged configuration actually
// changes, so running components can pick up live-tunable settings.
package config
