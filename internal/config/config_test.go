package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	v := viper.New()
	InitEnv(v)
	require.NoError(t, v.BindPFlags(fs))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load(newViper(t, "--addr", "127.0.0.1:7000", "--timeout", "30s", "--max-bit-offset", "1024", "--log-json"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, int64(1024), cfg.MaxBitOffset)
	assert.True(t, cfg.LogJSON)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("FLASHKV_MAXCLIENTS", "5")
	t.Setenv("FLASHKV_HOTKEYS_WINDOW", "10s")
	t.Setenv("FLASHKV_REQUIREPASS", "secret")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxClients)
	assert.Equal(t, 10*time.Second, cfg.HotKeysWindow)
	assert.Equal(t, "secret", cfg.RequirePass)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("FLASHKV_ADDR", ":1111")

	cfg, err := Load(newViper(t, "--addr", ":2222"))
	require.NoError(t, err)
	assert.Equal(t, ":2222", cfg.Addr)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flashkv.yaml")
	data := "addr: \":7777\"\nlog-level: debug\nexpire-interval: 250ms\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(newViper(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.ExpireInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(newViper(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Addr = ""
	cfg.MaxClients = -1
	cfg.MaxBitOffset = 0
	cfg.LogLevel = "chatty"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addr must not be empty")
	assert.Contains(t, err.Error(), "maxclients")
	assert.Contains(t, err.Error(), "max-bit-offset")
	assert.Contains(t, err.Error(), "chatty")
}

func TestLoad_InvalidRejected(t *testing.T) {
	_, err := Load(newViper(t, "--maxclients", "-3"))
	assert.Error(t, err)
}
