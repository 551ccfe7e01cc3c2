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

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
client:
  reconnect_max_attempts: 8
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 8, cfg.Client.ReconnectMaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched values keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Client.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
signal:
  ping_interval: 30s
  pong_timeout: 10s
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCatchesBadPortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebRTC.PortRange.Min = 60000
	cfg.WebRTC.PortRange.Max = 50000

	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresPositiveBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.ReconnectBaseDelay = 0

	assert.Error(t, cfg.Validate())
}
