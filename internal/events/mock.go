package events

import (
	"context"
	"sync"
)

// MockPublisher records published events for tests.
type MockPublisher struct {
	mu     sync.Mutex
	Events []ExportCompleted

	// Err, when set, is returned by PublishExport.
	Err error
}

var _ Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) PublishExport(ctx context.Context, evt ExportCompleted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, evt)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []ExportCompleted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExportCompleted(nil), m.Events...)
}
