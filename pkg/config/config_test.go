package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sipserver.local", cfg.SIP.Server)
	assert.Equal(t, "wss://sipserver.local:8089/ws", cfg.WebSocketServer())
	assert.Equal(t, "sip:webrtc_309@sipserver.local", cfg.AOR())
	assert.Equal(t, "SIP User", cfg.SIP.DisplayName)
	assert.Equal(t, "webrtc_000", cfg.SIP.AuthUser)
	assert.Equal(t, "PASSWORD", cfg.SIP.Password)
	assert.Equal(t, uint32(600), cfg.SIP.Expires)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Phonebook)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "webphone.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
sip:
  server: pbx.example.com
  aor_user: "1000"
log_level: debug
phonebook:
  - name: Echo
    number: "600"
`), 0o600))
	t.Setenv("WEBPHONE_SIP_WS_PORT", "443")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "wss://pbx.example.com:443/ws", cfg.WebSocketServer())
	assert.Equal(t, "sip:1000@pbx.example.com", cfg.AOR())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []PhonebookEntry{{Name: "Echo", Number: "600"}}, cfg.Phonebook)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.SIP.WSPort = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.SIP.Server = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Phonebook = []PhonebookEntry{{Name: "nobody"}}
	assert.Error(t, bad.Validate())
}
