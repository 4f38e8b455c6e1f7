package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
path: /var/lib/scouting-api/
tls_config:
  key_path: /etc/tls/key.pem
  cert_path: /etc/tls/cert.pem
  application_bind: 0.0.0.0:8443
  metrics_bind: 127.0.0.1:9090
authenticator:
  client_id: cid
  client_secret: secret
  auth_uri: https://accounts.example.com/auth
  token_uri: https://accounts.example.com/token
  redirect_uri: https://api.example.com/callback
jwt_manager:
  key_path: /etc/jwt/key.pem
  duration_minutes: 60
  accepted_domains: [example.org]
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
  parent: https://parent:8443
  approved_children:
    - 0e9c05b8-3a34-4d33-8a65-2c1a56641f5e
`

// TestParseFull tests decoding every recognized option
func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scouting-api/", cfg.Path)
	assert.True(t, cfg.TLS.Enabled())
	assert.Equal(t, "0.0.0.0:8443", cfg.TLS.ApplicationBind)
	assert.Equal(t, "cid", cfg.Authenticator.ClientID)
	assert.Equal(t, 60, cfg.JWTManager.DurationMinutes)
	assert.Equal(t, uuid.MustParse("5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8"), cfg.Sync.NodeID())
	assert.Equal(t, "https://parent:8443", cfg.Sync.Parent)
	require.Len(t, cfg.Sync.Children(), 1)
	assert.Equal(t, uuid.MustParse("0e9c05b8-3a34-4d33-8a65-2c1a56641f5e"), cfg.Sync.Children()[0])
}

// TestParseUnknownKeyRejected tests the strict decoding contract
func TestParseUnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte(`
path: /data/
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
telemetry: enabled
`))
	require.Error(t, err)

	// Nested unknown keys are rejected too.
	_, err = Parse([]byte(`
path: /data/
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
  mode: push
`))
	require.Error(t, err)
}

// TestParseRequiredFields tests startup validation
func TestParseRequiredFields(t *testing.T) {
	_, err := Parse([]byte("path: /data/\nsync:\n  id: not-a-uuid\n"))
	assert.ErrorContains(t, err, "sync.id")

	_, err = Parse([]byte("sync:\n  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8\n"))
	assert.ErrorContains(t, err, "path")

	_, err = Parse([]byte("path: /data/\n"))
	assert.ErrorContains(t, err, "sync.id")

	_, err = Parse([]byte(`
path: /data/
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
tls_config:
  key_path: /etc/key.pem
`))
	assert.ErrorContains(t, err, "tls_config")

	_, err = Parse([]byte(`
path: /data/
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
authenticator:
  client_id: cid
`))
	assert.ErrorContains(t, err, "authenticator")
}

// TestDefaults tests bind-address defaults
func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
path: /data/
sync:
  id: 5f1c6f32-7f6a-4dd6-9db3-98cfdc21b4a8
`))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.TLS.ApplicationBind)
	assert.Equal(t, "127.0.0.1:9090", cfg.TLS.MetricsBind)
	assert.False(t, cfg.TLS.Enabled())
	assert.Empty(t, cfg.Sync.Parent)
}

// TestLoadMissingFile tests that a missing config is an error, not a
// silent default
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
