package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, "warning", cfg.Logging.Level)
	require.Equal(t, []string{"dsp"}, cfg.Logging.EnabledComponents)
}

func TestLoadParsesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dsphle.toml")
	body := `
[logging]
level = "debug"
enabled_components = ["dsp", "cpu"]
max_entries = 500

[[crc.overrides]]
crc32 = "DEADBEEF"
class = "g711"
version = 16
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 500, cfg.Logging.MaxEntries)
	require.Len(t, cfg.CRC.Overrides, 1)
	require.Equal(t, "g711", cfg.CRC.Overrides[0].Class)
	require.Equal(t, int32(16), cfg.CRC.Overrides[0].Version)
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dsphle.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644))

	reloaded := make(chan *Config, 1)
	_, initial, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	require.Equal(t, "info", initial.Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644))

	select {
	case c := <-reloaded:
		require.NotNil(t, c)
		require.Equal(t, "debug", c.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the config file change in time")
	}
}
