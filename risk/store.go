package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CapsStore is a CapsSource backed by a JSON file. The file is re-read
// whenever its mtime changes, so edits take effect on the next admission
// without a restart. A missing or unreadable file falls back to the last
// good caps (or the defaults if none were ever loaded).
type CapsStore struct {
	path string

	mu      sync.Mutex
	caps    Caps
	modTime time.Time
}

// NewCapsStore creates a store reading limits from path. The file does not
// need to exist yet.
func NewCapsStore(path string) *CapsStore {
	return &CapsStore{path: path, caps: DefaultCaps()}
}

// Caps returns the current limits, reloading the file if it changed.
func (s *CapsStore) Caps() Caps {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := os.Stat(s.path)
	if err != nil {
		return s.caps
	}
	if fi.ModTime().Equal(s.modTime) {
		return s.caps
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.caps
	}
	var caps Caps
	if err := json.Unmarshal(data, &caps); err != nil {
		return s.caps
	}

	s.caps = caps
	s.modTime = fi.ModTime()
	return s.caps
}

// Save writes the given limits to the store's file, creating parent
// directories as needed.
func (s *CapsStore) Save(caps Caps) error {
	data, err := json.MarshalIndent(caps, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal risk caps: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create caps dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write risk caps: %w", err)
	}

	s.mu.Lock()
	s.caps = caps
	s.modTime = time.Time{} // force re-stat on next read
	s.mu.Unlock()
	return nil
}
