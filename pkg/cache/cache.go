// Package cache provides the file-backed bill cache. Each source owns one
// JSON file under the cache directory; entries are never deleted, so stale
// data remains available as a fallback when a live fetch fails.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/model"
)

// DefaultTTL is the maximum age at which a cache entry is still fresh.
const DefaultTTL = 24 * time.Hour

// Entry is the on-disk cache format. Timestamp is epoch milliseconds;
// bill dates are ISO-8601 strings via time.Time.
type Entry struct {
	Timestamp int64        `json:"timestamp"`
	Provider  string       `json:"provider"`
	Bills     []model.Bill `json:"bills"`
}

// Store reads and writes per-source cache files under a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// New creates a Store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

var sourceNameRE = regexp.MustCompile(`^[a-z0-9._-]+$`)

// path maps a source identifier to its cache file. Source names are
// lower-cased; anything that could escape the cache directory is rejected.
func (s *Store) path(source string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(source))
	if name == "" {
		return "", fmt.Errorf("source name is empty")
	}
	if !sourceNameRE.MatchString(name) {
		return "", fmt.Errorf("invalid source name: %q", source)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// ReadFresh returns the cached bills for source if the entry is younger than
// ttl. A missing, corrupt, or expired entry reports ok=false; corruption is
// never surfaced as an error, the caller simply refetches.
func (s *Store) ReadFresh(source string, ttl time.Duration) ([]model.Bill, bool) {
	entry, ok := s.read(source)
	if !ok {
		return nil, false
	}
	age := s.now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= ttl {
		return nil, false
	}
	return entry.Bills, true
}

// ReadStale returns the cached bills for source regardless of age.
func (s *Store) ReadStale(source string) ([]model.Bill, bool) {
	entry, ok := s.read(source)
	if !ok {
		return nil, false
	}
	return entry.Bills, true
}

func (s *Store) read(source string) (*Entry, bool) {
	path, err := s.path(source)
	if err != nil {
		slog.Warn("invalid cache source name", "source", source, "error", err)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("cache file unreadable, treating as absent", "path", path, "error", err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Debug("cache file corrupt, treating as absent", "path", path, "error", err)
		return nil, false
	}

	return &entry, true
}

// Write persists bills for source, stamping the entry with the current time.
// The write is atomic: a temp file in the same directory is renamed over the
// previous entry, so a reader never observes a partial file.
func (s *Store) Write(source string, bills []model.Bill) error {
	path, err := s.path(source)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	entry := Entry{
		Timestamp: s.now().UnixMilli(),
		Provider:  strings.ToLower(strings.TrimSpace(source)),
		Bills:     bills,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}
