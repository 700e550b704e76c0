package staticcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewWalksDirectoryAndAliasesIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>hi</html>")
	writeFile(t, dir, "style.css", "body{}")

	c, err := New(dir, 0)
	require.NoError(t, err)

	idx, ok := c.Get("/")
	require.True(t, ok)
	assert.Equal(t, "<html>hi</html>", string(idx.Bytes))

	explicit, ok := c.Get("/index.html")
	require.True(t, ok)
	assert.Equal(t, idx.Bytes, explicit.Bytes)

	css, ok := c.Get("/style.css")
	require.True(t, ok)
	assert.Equal(t, "body{}", string(css.Bytes))
}

func TestGetMissingPathReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0)
	require.NoError(t, err)

	_, ok := c.Get("/nope.html")
	assert.False(t, ok)
}

func TestGetRevalidatesOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "v1")

	c, err := New(dir, 0)
	require.NoError(t, err)

	first, ok := c.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, "v1", string(first.Bytes))

	time.Sleep(10 * time.Millisecond)
	writeFile(t, dir, "a.txt", "v2")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.txt"), future, future))

	second, ok := c.Get("/a.txt")
	require.True(t, ok)
	assert.Equal(t, "v2", string(second.Bytes))
}

func TestGetDropsEntryWhenFileDeleted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gone.txt", "bye")

	c, err := New(dir, 0)
	require.NoError(t, err)

	_, ok := c.Get("/gone.txt")
	require.True(t, ok)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))

	_, ok = c.Get("/gone.txt")
	assert.False(t, ok)
}

func TestMimeTypeTable(t *testing.T) {
	cases := map[string]string{
		"/a.html": "text/html; charset=utf-8",
		"/a.css":  "text/css; charset=utf-8",
		"/a.js":   "application/javascript; charset=utf-8",
		"/a.png":  "image/png",
		"/a.jpg":  "image/jpeg",
		"/a.jpeg": "image/jpeg",
		"/a.ico":  "image/x-icon",
		"/a.svg":  "image/svg+xml",
		"/a.bin":  "application/octet-stream",
	}
	for path, want := range cases {
		assert.Equal(t, want, MimeType(path), "path=%s", path)
	}
}
