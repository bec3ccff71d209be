package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TETHER_RPC_ADDR", "127.0.0.1:9999")
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, config{
		TelnetAddr: ":4001",
		RPCAddr:    "127.0.0.1:9999",
		LogLevel:   "info",
		Charset:    "UTF-8",
	}, cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tether.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telnet_addr: :5000\nlog_level: debug\ncharset: ISO-8859-1\n"), 0o600))

	cfg, err := loadConfig([]string{"--config", path, "--log-level", "warn"})
	require.NoError(t, err)
	require.Equal(t, ":5000", cfg.TelnetAddr)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "ISO-8859-1", cfg.Charset)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	_, err = loadConfig([]string{"--bogus"})
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	_, err = newLogger(&buf, "loud")
	require.Error(t, err)
}
