package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parley-ai/parley/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHome points HOME at a fresh temp dir so global configs on the host
// cannot leak into the test.
func testHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return dir
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadEngineConfig(t *testing.T) {
	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"$schema": "https://parley.dev/config.json",
		"owner": "agent-main",
		"buffer": {
			"inboundDebounceMs": 600,
			"queueDebounceMs": 1000,
			"queueCap": 20,
			"dedupCacheSize": 250
		},
		"session": {
			"maxHistory": 100,
			"dailyResetHour": 4,
			"idleMinutes": 60
		},
		"group": {
			"activation": "mention",
			"replyWindowMinutes": 15,
			"forumTopicIsolation": true,
			"selfHandle": "@parley_bot",
			"namePatterns": ["parley"]
		},
		"forward": {
			"url": "http://localhost:9090/agent",
			"timeoutSeconds": 30,
			"headers": {
				"Authorization": "Bearer test-token"
			}
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "https://parley.dev/config.json", cfg.Schema)
	assert.Equal(t, "agent-main", cfg.Owner)

	require.NotNil(t, cfg.Buffer)
	require.NotNil(t, cfg.Buffer.InboundDebounceMs)
	assert.Equal(t, 600, *cfg.Buffer.InboundDebounceMs)
	require.NotNil(t, cfg.Buffer.QueueCap)
	assert.Equal(t, 20, *cfg.Buffer.QueueCap)

	require.NotNil(t, cfg.Session)
	require.NotNil(t, cfg.Session.DailyResetHour)
	assert.Equal(t, 4, *cfg.Session.DailyResetHour)
	require.NotNil(t, cfg.Session.IdleMinutes)
	assert.Equal(t, 60, *cfg.Session.IdleMinutes)

	require.NotNil(t, cfg.Group)
	assert.Equal(t, "mention", cfg.Group.Activation)
	assert.True(t, cfg.Group.ForumTopicIsolation)
	assert.Equal(t, "@parley_bot", cfg.Group.SelfHandle)
	assert.Equal(t, []string{"parley"}, cfg.Group.NamePatterns)

	require.NotNil(t, cfg.Forward)
	assert.Equal(t, "http://localhost:9090/agent", cfg.Forward.URL)
	assert.Equal(t, "Bearer test-token", cfg.Forward.Headers["Authorization"])
}

func TestLoadStripsJSONCComments(t *testing.T) {
	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.jsonc", `{
		// single-line comment
		"owner": "agent-main",
		/* multi-line
		   comment */
		"buffer": {
			"queueCap": 10 // inline comment
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "agent-main", cfg.Owner)
	require.NotNil(t, cfg.Buffer)
	require.NotNil(t, cfg.Buffer.QueueCap)
	assert.Equal(t, 10, *cfg.Buffer.QueueCap)
}

func TestEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_FORWARD_TOKEN", "interpolated-token")

	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"forward": {
			"url": "http://localhost:9090/agent",
			"headers": {
				"Authorization": "Bearer {env:TEST_FORWARD_TOKEN}"
			}
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.NotNil(t, cfg.Forward)
	assert.Equal(t, "Bearer interpolated-token", cfg.Forward.Headers["Authorization"])
}

func TestFileInterpolation(t *testing.T) {
	dir := testHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "owner.txt"), []byte("agent-from-file"), 0644))

	// Relative paths resolve against the config file's directory.
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"owner": "{file:../owner.txt}"
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "agent-from-file", cfg.Owner)
}

func TestFileInterpolationEscapesContent(t *testing.T) {
	dir := testHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handle.txt"), []byte("line\"one\"\nline two"), 0644))

	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"group": {"selfHandle": "{file:../handle.txt}"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Group)
	assert.Equal(t, "line\"one\"\nline two", cfg.Group.SelfHandle)
}

func TestFileInterpolationMissingFileKeptVerbatim(t *testing.T) {
	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"owner": "{file:/nonexistent/owner.txt}"
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "{file:/nonexistent/owner.txt}", cfg.Owner)
}

func TestDirectoryConfigOverridesGlobal(t *testing.T) {
	home := testHome(t)
	dir := t.TempDir()

	writeConfig(t, filepath.Join(home, ".parley"), "parley.json", `{
		"owner": "agent-global",
		"buffer": {
			"inboundDebounceMs": 600,
			"queueCap": 20
		},
		"group": {
			"selfHandle": "@parley_bot"
		}
	}`)

	// An explicit zero wins over the global value because pointer fields
	// distinguish absent from zero.
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"owner": "agent-local",
		"buffer": {
			"inboundDebounceMs": 0
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "agent-local", cfg.Owner)
	require.NotNil(t, cfg.Buffer)
	require.NotNil(t, cfg.Buffer.InboundDebounceMs)
	assert.Equal(t, 0, *cfg.Buffer.InboundDebounceMs)

	require.NotNil(t, cfg.Buffer.QueueCap)
	assert.Equal(t, 20, *cfg.Buffer.QueueCap)
	require.NotNil(t, cfg.Group)
	assert.Equal(t, "@parley_bot", cfg.Group.SelfHandle)
}

func TestInvalidConfigFileSkipped(t *testing.T) {
	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{not json at all`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Owner)
}

func TestEnvVarOverride(t *testing.T) {
	t.Setenv("PARLEY_OWNER", "agent-env")
	t.Setenv("PARLEY_LOG_LEVEL", "DEBUG")
	t.Setenv("PARLEY_PORT", "7733")

	dir := testHome(t)
	writeConfig(t, filepath.Join(dir, ".parley"), "parley.json", `{
		"owner": "agent-file"
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "agent-env", cfg.Owner)
	require.NotNil(t, cfg.Log)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	require.NotNil(t, cfg.Server)
	require.NotNil(t, cfg.Server.Port)
	assert.Equal(t, 7733, *cfg.Server.Port)
}

func TestExplicitConfigPath(t *testing.T) {
	dir := testHome(t)
	customPath := filepath.Join(dir, "custom-config.json")
	require.NoError(t, os.WriteFile(customPath, []byte(`{"owner": "agent-custom"}`), 0644))
	t.Setenv("PARLEY_CONFIG", customPath)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "agent-custom", cfg.Owner)
}

func TestInlineConfigContent(t *testing.T) {
	testHome(t)
	t.Setenv("PARLEY_CONFIG_CONTENT", `{"owner": "agent-inline", "group": {"activation": "always"}}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "agent-inline", cfg.Owner)
	require.NotNil(t, cfg.Group)
	assert.Equal(t, "always", cfg.Group.Activation)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := testHome(t)

	port := 7733
	queueCap := 20
	cfg := &types.Config{
		Owner: "agent-main",
		Buffer: &types.BufferConfig{
			QueueCap: &queueCap,
		},
		Server: &types.ServerConfig{
			Port: &port,
		},
	}

	path := filepath.Join(dir, ".parley", "parley.json")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "agent-main", loaded.Owner)
	require.NotNil(t, loaded.Buffer)
	require.NotNil(t, loaded.Buffer.QueueCap)
	assert.Equal(t, 20, *loaded.Buffer.QueueCap)
	require.NotNil(t, loaded.Server)
	require.NotNil(t, loaded.Server.Port)
	assert.Equal(t, 7733, *loaded.Server.Port)
}
