package events

import (
	"context"
	"sync"
)

// MemorySink keeps everything it receives. Used by tests and the CLI.
type MemorySink struct {
	mu      sync.Mutex
	events  []Event
	records []AuditRecord
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Publish(_ context.Context, evts ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evts...)
	return nil
}

func (m *MemorySink) Record(_ context.Context, records ...AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

// Events returns a copy of the published events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Records returns a copy of the audit records.
func (m *MemorySink) Records() []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditRecord(nil), m.records...)
}

// OfType filters published events by type.
func (m *MemorySink) OfType(t Type) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
