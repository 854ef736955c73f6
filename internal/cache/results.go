package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/finxai/xai/internal/models"
)

// ResultCache persists completed global attributions on disk. Global
// results are deterministic for a given model, method, sample size and
// seed, so a hit can be served without re-running the job.
type ResultCache struct {
	dir string
	mu  sync.Mutex
}

// NewResultCache creates a result cache in dir. An empty dir disables it.
func NewResultCache(dir string) *ResultCache {
	return &ResultCache{dir: dir}
}

// Dir returns the cache directory.
func (c *ResultCache) Dir() string { return c.dir }

// ResultKey generates the cache key for a global attribution request.
func ResultKey(modelID string, method models.Method, sampleSize int, seed int64) (string, error) {
	h := sha256.New()
	if err := writeString(h, modelID); err != nil {
		return "", err
	}
	if err := writeString(h, string(method)); err != nil {
		return "", err
	}
	if err := writeInt(h, int64(sampleSize)); err != nil {
		return "", err
	}
	if err := writeInt(h, seed); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached global attribution if it exists.
func (c *ResultCache) Get(key string) (*models.GlobalAttribution, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return nil, false
	}

	var result models.GlobalAttribution
	if err := json.Unmarshal(data, &result); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}
	return &result, true
}

// Put stores a global attribution.
func (c *ResultCache) Put(key string, result *models.GlobalAttribution) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if err := os.WriteFile(c.cachePath(key), data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// DeleteModel removes every cached result for modelID.
func (c *ResultCache) DeleteModel(modelID string) (int, error) {
	if c.dir == "" {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var head struct {
			ModelID string `json:"model_id"`
		}
		if json.Unmarshal(data, &head) != nil || head.ModelID != modelID {
			continue
		}
		if err := os.Remove(p); err != nil {
			return n, fmt.Errorf("removing %s: %w", p, err)
		}
		n++
	}
	return n, nil
}

// Clear removes all cached results
func (c *ResultCache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Safety check: only remove a directory that holds nothing but cache files
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if filepath.Ext(entry.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

// cachePath returns the file path for a cache key
func (c *ResultCache) cachePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func writeString(w io.Writer, s string) error {
	if err := writeInt(w, int64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeInt(w io.Writer, n int64) error {
	return binary.Write(w, binary.LittleEndian, n)
}
