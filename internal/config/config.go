package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/parley-ai/parley/pkg/types"
	"github.com/tidwall/jsonc"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// configSource is one location Load consults, in priority order.
type configSource struct {
	path    string
	baseDir string
}

// Load resolves configuration by merging every location that exists,
// lowest priority first:
//
//  1. dotdir global config (~/.parley/)
//  2. XDG global config (~/.config/parley/)
//  3. directory config (parley.json, .parley/parley.json)
//  4. PARLEY_CONFIG file
//  5. PARLEY_CONFIG_CONTENT inline JSON
//  6. PARLEY_* environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	for _, src := range configSources(directory) {
		loadConfigFile(src, config)
	}

	if content := os.Getenv("PARLEY_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal([]byte(content), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// configSources lists candidate config files in merge order, deduplicated.
func configSources(directory string) []configSource {
	var sources []configSource
	add := func(baseDir string, names ...string) {
		for _, name := range names {
			sources = append(sources, configSource{filepath.Join(baseDir, name), baseDir})
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		add(filepath.Join(home, ".parley"), "config.json", "parley.json", "parley.jsonc")
	}
	add(GetPaths().Config, "parley.json", "parley.jsonc")
	if directory != "" {
		add(directory, "parley.json", "parley.jsonc")
		add(filepath.Join(directory, ".parley"), "parley.json", "parley.jsonc")
	}
	if path := os.Getenv("PARLEY_CONFIG"); path != "" {
		sources = append(sources, configSource{path, filepath.Dir(path)})
	}

	seen := make(map[string]bool)
	deduped := sources[:0]
	for _, src := range sources {
		abs, err := filepath.Abs(src.path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, src)
	}
	return deduped
}

// loadConfigFile merges one config file into config. Missing or invalid
// files are skipped.
func loadConfigFile(src configSource, config *types.Config) {
	data, err := os.ReadFile(src.path)
	if err != nil {
		return
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, src.baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return
	}
	mergeConfig(config, &fileConfig)
}

// interpolate expands {env:VAR} and {file:path} placeholders. File
// contents are JSON-escaped; a missing file leaves the placeholder as-is.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		path := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(path, "~/") {
			path = filepath.Join(os.Getenv("HOME"), path[2:])
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		escaped, err := json.Marshal(string(content))
		if err != nil {
			return match
		}
		// Strip the surrounding quotes; the placeholder sits inside a
		// JSON string already.
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Non-empty strings and non-nil
// pointer fields in source override target; plain bools are sticky once set.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Owner != "" {
		target.Owner = source.Owner
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}

	if source.Log != nil {
		if target.Log == nil {
			target.Log = &types.LogConfig{}
		}
		if source.Log.Level != "" {
			target.Log.Level = source.Log.Level
		}
		if source.Log.Pretty {
			target.Log.Pretty = true
		}
	}

	if source.Buffer != nil {
		if target.Buffer == nil {
			target.Buffer = &types.BufferConfig{}
		}
		if source.Buffer.InboundDebounceMs != nil {
			target.Buffer.InboundDebounceMs = source.Buffer.InboundDebounceMs
		}
		if source.Buffer.QueueDebounceMs != nil {
			target.Buffer.QueueDebounceMs = source.Buffer.QueueDebounceMs
		}
		if source.Buffer.QueueCap != nil {
			target.Buffer.QueueCap = source.Buffer.QueueCap
		}
		if source.Buffer.DedupCacheSize != nil {
			target.Buffer.DedupCacheSize = source.Buffer.DedupCacheSize
		}
		if source.Buffer.BusyReleaseTimeoutMs != nil {
			target.Buffer.BusyReleaseTimeoutMs = source.Buffer.BusyReleaseTimeoutMs
		}
	}

	if source.Session != nil {
		if target.Session == nil {
			target.Session = &types.SessionConfig{}
		}
		if source.Session.MaxHistory != nil {
			target.Session.MaxHistory = source.Session.MaxHistory
		}
		if source.Session.DailyResetHour != nil {
			target.Session.DailyResetHour = source.Session.DailyResetHour
		}
		if source.Session.IdleMinutes != nil {
			target.Session.IdleMinutes = source.Session.IdleMinutes
		}
	}

	if source.Group != nil {
		if target.Group == nil {
			target.Group = &types.GroupConfig{}
		}
		if source.Group.Activation != "" {
			target.Group.Activation = source.Group.Activation
		}
		if source.Group.ReplyWindowMinutes != nil {
			target.Group.ReplyWindowMinutes = source.Group.ReplyWindowMinutes
		}
		if source.Group.ForumTopicIsolation {
			target.Group.ForumTopicIsolation = true
		}
		if source.Group.SelfHandle != "" {
			target.Group.SelfHandle = source.Group.SelfHandle
		}
		if len(source.Group.NamePatterns) > 0 {
			target.Group.NamePatterns = source.Group.NamePatterns
		}
	}

	if source.Forward != nil {
		if target.Forward == nil {
			target.Forward = &types.ForwardConfig{}
		}
		if source.Forward.URL != "" {
			target.Forward.URL = source.Forward.URL
		}
		if source.Forward.TimeoutSeconds != nil {
			target.Forward.TimeoutSeconds = source.Forward.TimeoutSeconds
		}
		if source.Forward.MaxRetries != nil {
			target.Forward.MaxRetries = source.Forward.MaxRetries
		}
		if source.Forward.Headers != nil {
			if target.Forward.Headers == nil {
				target.Forward.Headers = make(map[string]string)
			}
			for k, v := range source.Forward.Headers {
				target.Forward.Headers[k] = v
			}
		}
	}

	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if source.Server.Hostname != "" {
			target.Server.Hostname = source.Server.Hostname
		}
		if source.Server.Port != nil {
			target.Server.Port = source.Server.Port
		}
		if source.Server.EnableCORS != nil {
			target.Server.EnableCORS = source.Server.EnableCORS
		}
	}
}

// applyEnvOverrides applies PARLEY_* environment overrides, the highest
// priority source.
func applyEnvOverrides(config *types.Config) {
	if owner := os.Getenv("PARLEY_OWNER"); owner != "" {
		config.Owner = owner
	}
	if dataDir := os.Getenv("PARLEY_DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}
	if level := os.Getenv("PARLEY_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = level
	}
	if url := os.Getenv("PARLEY_FORWARD_URL"); url != "" {
		if config.Forward == nil {
			config.Forward = &types.ForwardConfig{}
		}
		config.Forward.URL = url
	}
	if port := os.Getenv("PARLEY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			if config.Server == nil {
				config.Server = &types.ServerConfig{}
			}
			config.Server.Port = &p
		}
	}
}

// Save writes the configuration to path, creating parent directories.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
