// Package session persists authenticated browser sessions across runs so a
// fragile login flow is not repeated on every invocation. The store keeps
// one JSON file per source; the manager decides when a saved session can
// still be trusted and drives a fresh login when it cannot.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
)

// DefaultTTL is how long a saved session is trusted after login.
const DefaultTTL = 24 * time.Hour

// Record is the persisted session artifact. SavedAt/ExpiresAt are epoch
// milliseconds. The record is written once after a successful login and then
// only read until it expires or a new login overwrites it.
type Record struct {
	SavedAt   int64            `json:"savedAt"`
	ExpiresAt int64            `json:"expiresAt"`
	Data      []browser.Cookie `json:"data"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(time.UnixMilli(r.ExpiresAt))
}

// Store reads and writes per-source session files under a single directory.
// The store never evaluates expiry; that is the manager's job.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

var sourceNameRE = regexp.MustCompile(`^[a-z0-9._-]+$`)

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

// Read returns the persisted session for source, or ok=false if none exists.
// A corrupt or unreadable file is treated as absent.
func (s *Store) Read(source string) (*Record, bool) {
	path, err := s.path(source)
	if err != nil {
		slog.Warn("invalid session source name", "source", source, "error", err)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("session file unreadable, treating as absent", "path", path, "error", err)
		}
		return nil, false
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		slog.Debug("session file corrupt, treating as absent", "path", path, "error", err)
		return nil, false
	}

	return &record, true
}

// Write persists the session record for source. Session files hold
// credentials-equivalent material, so they are created 0600.
func (s *Store) Write(source string, record *Record) error {
	path, err := s.path(source)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}
