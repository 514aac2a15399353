package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: "token-observer"
host: "127.0.0.1"
port: 8800
log_level: "INFO"

storage:
  db_type: "sqlite"
  db_path: "observer.db"

upstream:
  rpc_url: "https://rpc.example.com"
  websocket_url: "wss://rpc.example.com"
  api_key: "key123"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "token-observer", cfg.Name)
	assert.Equal(t, 30, cfg.Analytics.ValuationTimeoutSecs)
	assert.Equal(t, 45, cfg.Analytics.VelocityTimeoutSecs)
	assert.Equal(t, 30, cfg.Analytics.ConcentrationTimeoutSec)
	assert.Equal(t, 60, cfg.Analytics.ChurnTimeoutSecs)
	assert.Equal(t, 300, cfg.Analytics.FreshnessSeconds)
	assert.Equal(t, 5, cfg.Analytics.MinSampleSize)
	assert.Equal(t, 10, cfg.Tracking.MaxAccountsDefault)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 5, cfg.Upstream.ReconnectWaitSecs)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsMissingUpstream(t *testing.T) {
	broken := `
name: "token-observer"
host: "127.0.0.1"
port: 8800
storage:
  db_type: "sqlite"
  db_path: "observer.db"
`
	_, err := NewConfig(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url")
}

func TestValidateRejectsBadPort(t *testing.T) {
	broken := `
name: "token-observer"
host: "127.0.0.1"
port: 80
storage:
  db_type: "sqlite"
  db_path: "observer.db"
upstream:
  rpc_url: "https://rpc.example.com"
  websocket_url: "wss://rpc.example.com"
  api_key: "key123"
`
	_, err := NewConfig(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateRejectsPostgresWithoutConnString(t *testing.T) {
	broken := `
name: "token-observer"
host: "127.0.0.1"
port: 8800
storage:
  db_type: "postgres"
upstream:
  rpc_url: "https://rpc.example.com"
  websocket_url: "wss://rpc.example.com"
  api_key: "key123"
`
	_, err := NewConfig(writeConfig(t, broken))
	assert.Error(t, err)
}

func TestValidateRejectsBrokersWithoutTopic(t *testing.T) {
	broken := validYAML + `
events:
  brokers: ["localhost:9092"]
  topic: ""
`
	_, err := NewConfig(writeConfig(t, broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestValidateRejectsOutOfRangeMaxAccounts(t *testing.T) {
	broken := validYAML + `
tracking:
  max_accounts_default: 20
`
	_, err := NewConfig(writeConfig(t, broken))
	assert.Error(t, err)
}
