// Package staticcache implements the eager in-memory static-file cache
// of spec.md section 4.11 (C12), grounded on the source project's
// filesystem enumeration used by httpapplication.cc to serve the web
// front-end. It supplements spec.md with an optional LRU of recently
// served paths (SPEC_FULL.md domain-stack wiring of
// hashicorp/golang-lru), disabled by default. The LRU only records
// keys: nothing is ever removed from the in-memory map because of it,
// so the cache is not memory-bounded.
package staticcache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Entry is one cached static file, keyed by its web path (spec.md
// section 3, "Static-File Entry").
type Entry struct {
	Bytes []byte
	Mtime time.Time
}

var mimeTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
}

// MimeType returns the MIME type inferred from path's extension, per
// spec.md's table, defaulting to application/octet-stream.
func MimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := mimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// Cache is the static-file cache: a read-mostly map of web path to
// Entry, with rare mtime-driven updates (spec.md section 5, "Static-file
// cache").
type Cache struct {
	root string

	mu      sync.RWMutex
	entries map[string]Entry

	// evict, when non-nil, records each served path in an LRU of the
	// configured capacity. Keys it drops are not removed from entries;
	// entries is still populated eagerly and never shrinks on its account.
	evict *lru.Cache
}

// New walks root recursively, loading every regular file's bytes and
// mtime, keyed by its path relative to root (spec.md section 4.11). If
// capacity > 0, an LRU of that size records served paths; 0 disables
// it. Either way every loaded entry stays in memory.
func New(root string, capacity int) (*Cache, error) {
	c := &Cache{
		root:    root,
		entries: make(map[string]Entry),
	}

	if capacity > 0 {
		ev, err := lru.New(capacity)
		if err != nil {
			return nil, err
		}
		c.evict = ev
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		webPath := "/" + filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		c.entries[webPath] = Entry{Bytes: data, Mtime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if idx, ok := c.entries["/index.html"]; ok {
		c.entries["/"] = idx
	}

	return c, nil
}

// Get serves webPath, revalidating against the filesystem on every
// call, per spec.md section 4.11: a path missing from memory is loaded
// from disk, and a cached one is stat()ed and refreshed if its mtime
// advanced. The returned bool is false if the file is not on disk,
// signaling a 404.
func (c *Cache) Get(webPath string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[webPath]
	c.mu.RUnlock()

	if !ok {
		return c.revalidate(webPath)
	}

	if c.evict != nil {
		c.evict.Add(webPath, struct{}{})
	}

	fresh, stillThere := c.revalidateIfStale(webPath, e)
	return fresh, stillThere
}

func (c *Cache) diskPath(webPath string) string {
	p := webPath
	if p == "/" {
		p = "/index.html"
	}
	return filepath.Join(c.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

// revalidate is used when the path is entirely absent from the cache
// (a path never loaded, or dropped after its file disappeared).
func (c *Cache) revalidate(webPath string) (Entry, bool) {
	info, err := os.Stat(c.diskPath(webPath))
	if err != nil {
		return Entry{}, false
	}
	data, err := os.ReadFile(c.diskPath(webPath))
	if err != nil {
		return Entry{}, false
	}

	e := Entry{Bytes: data, Mtime: info.ModTime()}
	c.mu.Lock()
	c.entries[webPath] = e
	c.mu.Unlock()
	return e, true
}

// revalidateIfStale stat()s the file; if it disappeared, the cached
// entry is dropped and the caller sees a 404. If mtime advanced, the
// entry is refreshed. Otherwise the in-memory entry is served as-is.
func (c *Cache) revalidateIfStale(webPath string, cached Entry) (Entry, bool) {
	info, err := os.Stat(c.diskPath(webPath))
	if err != nil {
		c.mu.Lock()
		delete(c.entries, webPath)
		c.mu.Unlock()
		return Entry{}, false
	}

	if !info.ModTime().After(cached.Mtime) {
		return cached, true
	}

	data, err := os.ReadFile(c.diskPath(webPath))
	if err != nil {
		return cached, true
	}

	fresh := Entry{Bytes: data, Mtime: info.ModTime()}
	c.mu.Lock()
	c.entries[webPath] = fresh
	c.mu.Unlock()
	return fresh, true
}

// Paths returns every cached web path, used by the HTTP application glue
// to register one GET route per file (spec.md section 4.13).
func (c *Cache) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	return out
}
