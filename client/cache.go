package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/witanlabs/rowsmith/internal/atomicfile"
)

// CacheEntry is one remembered rewrite.
type CacheEntry struct {
	Text string `json:"text"`
}

// cacheData is the on-disk JSON structure.
type cacheData struct {
	Version int                   `json:"v"`
	Entries map[string]CacheEntry `json:"entries"`
}

// ResponseCache persists rewrites keyed by a hash of backend settings and
// input text, so a rerun over the same units does not call the backend
// again. If no writable directory is found, it operates in-memory only.
type ResponseCache struct {
	mu       sync.Mutex
	dir      string // empty string = in-memory only
	data     cacheData
	inMemory map[string]CacheEntry
}

// NewResponseCache probes for a writable cache directory using the cascade:
//  1. $TMPDIR/rowsmith/ (or os.TempDir()/rowsmith/)
//  2. .rowsmith/ in cwd
//  3. in-memory only (no persistence)
func NewResponseCache() *ResponseCache {
	rc := &ResponseCache{
		inMemory: make(map[string]CacheEntry),
	}

	// Tier 1: tmpdir
	if dir := filepath.Join(os.TempDir(), "rowsmith"); probeWritable(dir) {
		rc.dir = dir
		rc.load()
		return rc
	}

	// Tier 2: cwd/.rowsmith
	if cwd, err := os.Getwd(); err == nil {
		if dir := filepath.Join(cwd, ".rowsmith"); probeWritable(dir) {
			rc.dir = dir
			rc.load()
			return rc
		}
	}

	// Tier 3: in-memory only
	return rc
}

// Get looks up a cached rewrite.
func (rc *ResponseCache) Get(key string) (CacheEntry, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.dir != "" {
		e, ok := rc.data.Entries[key]
		return e, ok
	}
	e, ok := rc.inMemory[key]
	return e, ok
}

// Put stores a rewrite and persists to disk if possible.
func (rc *ResponseCache) Put(key string, entry CacheEntry) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.dir != "" {
		rc.data.Entries[key] = entry
		rc.save()
	} else {
		rc.inMemory[key] = entry
	}
}

// Evict removes a cache entry.
func (rc *ResponseCache) Evict(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.dir != "" {
		delete(rc.data.Entries, key)
		rc.save()
	} else {
		delete(rc.inMemory, key)
	}
}

// CacheKey hashes everything that influences a rewrite: "sha256:<hex>".
func CacheKey(fingerprint, text string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(fingerprint))))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func (rc *ResponseCache) load() {
	path := filepath.Join(rc.dir, "cache.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		rc.data = cacheData{Version: 1, Entries: make(map[string]CacheEntry)}
		return
	}
	if err := json.Unmarshal(raw, &rc.data); err != nil || rc.data.Version != 1 {
		rc.data = cacheData{Version: 1, Entries: make(map[string]CacheEntry)}
		return
	}
	if rc.data.Entries == nil {
		rc.data.Entries = make(map[string]CacheEntry)
	}
}

func (rc *ResponseCache) save() {
	if rc.dir == "" {
		return
	}
	_ = os.MkdirAll(rc.dir, 0o755)
	raw, err := json.MarshalIndent(rc.data, "", "  ")
	if err != nil {
		return
	}
	_ = atomicfile.WriteFile(filepath.Join(rc.dir, "cache.json"), raw, 0o644)
}

// probeWritable tries to create the directory and write a probe file.
func probeWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

// Cached serves repeated inputs from a ResponseCache. Absent results are
// never cached, and a stored blank entry is evicted and fetched again.
type Cached struct {
	inner       Backend
	cache       *ResponseCache
	fingerprint string
}

// NewCached wraps inner. fingerprint must change whenever the backend would
// answer differently (model, prompt, length limit).
func NewCached(inner Backend, cache *ResponseCache, fingerprint string) *Cached {
	return &Cached{inner: inner, cache: cache, fingerprint: fingerprint}
}

func (c *Cached) Reword(ctx context.Context, text string) (string, error) {
	key := CacheKey(c.fingerprint, text)
	if e, ok := c.cache.Get(key); ok {
		if strings.TrimSpace(e.Text) != "" {
			return e.Text, nil
		}
		c.cache.Evict(key)
	}
	out, err := c.inner.Reword(ctx, text)
	if err != nil || out == "" {
		return out, err
	}
	c.cache.Put(key, CacheEntry{Text: out})
	return out, nil
}
