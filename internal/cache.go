package internal

import (
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	tt "github.com/gnolang/dfa/internal/types"
)

const (
	cacheFileName = "dfa_cache.gob"
	// DefaultCacheMaxAge is how long cached issues stay valid.
	DefaultCacheMaxAge = 24 * time.Hour
)

// stamp identifies one version of a file.
type stamp struct {
	Hash    string
	ModTime time.Time
}

// CacheEntry holds the issues found in one program file together with
// everything they were derived from.
type CacheEntry struct {
	Program stamp
	// Settings identifies the rules and limits the issues were found with.
	Settings string
	// Deps maps every dependency file to its hash when the entry was made.
	Deps      map[string]string
	Issues    []tt.Issue
	CreatedAt time.Time
}

// Cache stores analysis results on disk, keyed by absolute program path.
// An entry is reused while the program file, the dependency files and the
// analysis settings are unchanged.
type Cache struct {
	CacheDir string

	mu       sync.Mutex
	entries  map[string]CacheEntry
	maxAge   time.Duration
	settings string
	deps     []string
}

// NewCache opens the cache stored in cacheDir, creating the directory if
// needed. Expired entries are dropped on load.
func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]CacheEntry),
		maxAge:   DefaultCacheMaxAge,
	}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
		}
	}
	return c, nil
}

func (c *Cache) path() string { return filepath.Join(c.CacheDir, cacheFileName) }

func (c *Cache) load() error {
	file, err := os.Open(c.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()
	if err := gob.NewDecoder(file).Decode(&c.entries); err != nil {
		// unreadable entries are recomputed
		c.entries = make(map[string]CacheEntry)
	}
	return nil
}

// save replaces the cache file so that concurrent readers never see a
// partial write.
func (c *Cache) save() error {
	tmp, err := os.CreateTemp(c.CacheDir, cacheFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(c.entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path())
}

// SetSettings records the analysis settings new entries are made with.
// Entries made with other settings are ignored.
func (c *Cache) SetSettings(settings string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}

// SetDependencies makes every new entry depend on files, typically the
// configuration file. Every file must be readable.
func (c *Cache) SetDependencies(files ...string) error {
	for _, f := range files {
		if _, err := hashFile(f); err != nil {
			return fmt.Errorf("failed to hash dependency %s: %w", f, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = files
	return nil
}

// SetMaxAge changes how long entries stay valid.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAge = d
}

// Set stores issues for filename and writes the cache to disk.
func (c *Cache) Set(filename string, issues []tt.Issue) error {
	key, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	st, err := stampFile(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deps := make(map[string]string, len(c.deps))
	for _, f := range c.deps {
		h, err := hashFile(f)
		if err != nil {
			return fmt.Errorf("failed to hash dependency %s: %w", f, err)
		}
		deps[f] = h
	}
	c.entries[key] = CacheEntry{
		Program:   st,
		Settings:  c.settings,
		Deps:      deps,
		Issues:    issues,
		CreatedAt: time.Now(),
	}
	return c.save()
}

// Get returns the issues stored for filename while they are still valid.
func (c *Cache) Get(filename string) ([]tt.Issue, bool) {
	key, err := filepath.Abs(filename)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.valid(key, entry) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Issues, true
}

func (c *Cache) expired(entry CacheEntry) bool {
	return time.Since(entry.CreatedAt) > c.maxAge
}

func (c *Cache) valid(key string, entry CacheEntry) bool {
	if c.expired(entry) || entry.Settings != c.settings {
		return false
	}
	st, err := stampFile(key)
	if err != nil || st.Hash != entry.Program.Hash || !st.ModTime.Equal(entry.Program.ModTime) {
		return false
	}
	if len(entry.Deps) != len(c.deps) {
		return false
	}
	for _, f := range c.deps {
		want, ok := entry.Deps[f]
		if !ok {
			return false
		}
		if h, err := hashFile(f); err != nil || h != want {
			return false
		}
	}
	return true
}

func stampFile(path string) (stamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}, err
	}
	h, err := hashFile(path)
	if err != nil {
		return stamp{}, err
	}
	return stamp{Hash: h, ModTime: info.ModTime()}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
