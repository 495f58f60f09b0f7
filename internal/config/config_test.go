package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sidekick.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "backend", cfg.Primary.Name)
	assert.Equal(t, DefaultPrimaryPort, cfg.Primary.Port)
	assert.Equal(t, "kubilitics-backend", cfg.Primary.Command)
	assert.Equal(t, "kubilitics-backend", cfg.Primary.ServiceID)
	assert.Equal(t, uint32(3), cfg.Primary.MaxRestarts)
	assert.Equal(t, 10*time.Second, cfg.Primary.HealthInterval)
	assert.Contains(t, cfg.Primary.Env, "KUBILITICS_PORT=819")
	require.Len(t, cfg.Primary.Aux, 1)
	assert.Equal(t, "KCLI_BIN", cfg.Primary.Aux[0].EnvVar)

	hasOrigins := false
	for _, kv := range cfg.Primary.Env {
		if kv == "KUBILITICS_ALLOWED_ORIGINS="+DefaultAllowedOrigins {
			hasOrigins = true
		}
	}
	assert.True(t, hasOrigins)

	require.NotNil(t, cfg.Secondary)
	sec := cfg.Secondary
	assert.True(t, sec.Optional)
	assert.Equal(t, "ai", sec.Name)
	assert.Equal(t, DefaultSecondaryPort, sec.Port)
	assert.Equal(t, uint32(2), sec.MaxRestarts)
	assert.Equal(t, 30*time.Second, sec.HealthInterval)
	assert.Equal(t, 5*time.Second, sec.RespawnDelay)
	assert.Contains(t, sec.Env, "KUBILITICS_MCP_ENABLED=true")
	assert.Contains(t, sec.Env, "KUBILITICS_PORT=8081")

	assert.Equal(t, "127.0.0.1:7819", cfg.Server.Listen)
	assert.Equal(t, "/api", cfg.Server.BasePath)
}

func TestLoadOverridesAndDisabledSecondary(t *testing.T) {
	path := writeConfig(t, `
env = ["GLOBAL_FLAG=1"]

[log]
level = "debug"
dir = "/tmp/sidekick-logs"

[server]
listen = "127.0.0.1:9000"
base_path = "/control"

[primary]
port = 9100
command = "my-backend"
env = ["KUBILITICS_PORT=override"]

[secondary]
enabled = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/sidekick-logs", cfg.Log.Dir)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "/control", cfg.Server.BasePath)

	assert.Equal(t, 9100, cfg.Primary.Port)
	assert.Equal(t, "my-backend", cfg.Primary.Command)
	assert.Contains(t, cfg.Primary.Env, "GLOBAL_FLAG=1")
	// The explicit entry wins over the derived default.
	assert.Contains(t, cfg.Primary.Env, "KUBILITICS_PORT=override")
	assert.NotContains(t, cfg.Primary.Env, "KUBILITICS_PORT=9100")

	assert.Nil(t, cfg.Secondary)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrimaryPort, cfg.Primary.Port)
}

func TestEnvFilePrecedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "extra.env")
	require.NoError(t, os.WriteFile(envFile, []byte("# comment\nA=from-file\nB=from-file\n"), 0o644))

	path := writeConfig(t, `
env = ["A=inline"]
env_files = ["`+envFile+`"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Contains(t, cfg.Primary.Env, "A=inline")
	assert.Contains(t, cfg.Primary.Env, "B=from-file")
	assert.NotContains(t, cfg.Primary.Env, "A=from-file")
}

func TestMaxRestartsOverride(t *testing.T) {
	path := writeConfig(t, `
[primary]
max_restarts = 7
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), cfg.Primary.MaxRestarts)
}

func TestDataDirCreated(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	dir := DataDir()
	require.NotEmpty(t, dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
