package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLSink appends one JSON object per line to a file. Every write is
// synced to disk before returning so a crash never loses an acknowledged
// record. The line shape is {"ts": <epoch seconds>, "event": <name>, ...payload}.
type JSONLSink struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// NewJSONLSink opens (or creates) the audit file at path in append mode,
// creating parent directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLSink{f: f, now: time.Now}, nil
}

// Write appends one record and syncs the file.
func (s *JSONLSink) Write(event string, payload map[string]any) error {
	rec := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		rec[k] = v
	}
	rec["ts"] = float64(s.now().UnixNano()) / 1e9
	rec["event"] = event

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
