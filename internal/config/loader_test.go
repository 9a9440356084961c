package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
service:
  name: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, ":8080", cfg.API.Listen)
	assert.Equal(t, time.Second, cfg.Runner.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Runner.HealthInterval)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  name: portwhine
  log_level: debug
  log_format: text
storage:
  path: /var/lib/portwhine/portwhine.db
runner:
  poll_interval: 500ms
  health_interval: 10s
  docker_network: scannet
api:
  listen: ":9090"
  api_key: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/portwhine/portwhine.db", cfg.Storage.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Runner.PollInterval)
	assert.Equal(t, "scannet", cfg.Runner.DockerNetwork)
	assert.Equal(t, ":9090", cfg.API.Listen)
	assert.Equal(t, "secret", cfg.API.APIKey)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("PORTWHINE_API_KEY", "from-env")
	path := writeConfig(t, `
api:
  api_key: ${PORTWHINE_API_KEY}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad log level": `
service:
  log_level: verbose
`,
		"bad log format": `
service:
  log_format: xml
`,
		"tiny poll interval": `
runner:
  poll_interval: 1ms
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
