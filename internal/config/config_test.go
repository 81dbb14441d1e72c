package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostframes.toml")
	data := `
[Node]
  Name = "alice"
  Debug = true

[Radio]
  Interface = "wlan1mon"

[Crypto]
  PreSharedKeyHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

[Logging]
  Level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.Node.Name)
	require.True(t, cfg.Node.Debug)
	require.Equal(t, "wlan1mon", cfg.Radio.Interface)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Crypto.PreSharedKeyHex, 64)
}

func TestDefaultHasInterfaceAndLogLevel(t *testing.T) {
	cfg := Default()
	require.Equal(t, "wlan0mon", cfg.Radio.Interface)
	require.Equal(t, "info", cfg.Logging.Level)
}
