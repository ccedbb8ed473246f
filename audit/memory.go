package audit

import (
	"sync"
	"time"
)

// MemorySink keeps records in memory. It backs tests and dry runs where no
// durable log is wanted.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{
		Time:    time.Now(),
		Event:   event,
		Payload: payload,
	})
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Events returns just the event names, in write order.
func (s *MemorySink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Event
	}
	return out
}

// MultiSink fans every write out to all wrapped sinks, returning the first
// error encountered after attempting all of them.
type MultiSink []Sink

func (m MultiSink) Write(event string, payload map[string]any) error {
	var first error
	for _, s := range m {
		if err := s.Write(event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
