package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoaderAppliesDefaultsWithNoFile(t *testing.T) {
	l, err := NewLoader("")
	require.NoError(t, err)

	cfg := l.Snapshot()
	assert.Equal(t, "0.0.0.0", cfg.ServerIP)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.NumIOThreads)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoaderReadsFileValues(t *testing.T) {
	path := writeConfig(t, `
server_ip = "127.0.0.1"
port = 9090
num_io_threads = 4
num_infer_threads = 2
static_root_path = "./www"
log_path = "./logs"
log_level = "debug"
`)

	l, err := NewLoader(path)
	require.NoError(t, err)

	cfg := l.Snapshot()
	assert.Equal(t, "127.0.0.1", cfg.ServerIP)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 4, cfg.NumIOThreads)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoaderRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
static_root_path = "./www"
log_level = "nonsense"
`)

	_, err := NewLoader(path)
	assert.Error(t, err)
}

func TestLoaderRejectsBadPort(t *testing.T) {
	path := writeConfig(t, `
port = 70000
static_root_path = "./www"
`)

	_, err := NewLoader(path)
	assert.Error(t, err)
}

func TestLoaderResolvesNonPositiveIOThreadsToGOMAXPROCS(t *testing.T) {
	path := writeConfig(t, `
num_io_threads = 0
static_root_path = "./www"
`)

	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, runtime.GOMAXPROCS(0), l.Snapshot().NumIOThreads)
}
