package persistence

import (
	"context"
	"sync"

	"vivarium/pkg/domain"
)

// Memory keeps the last saved snapshot in process. Used for tests and for
// ephemeral deployments where a restart reseeds.
type Memory struct {
	mu    sync.Mutex
	saved bool
	rev   uint64
	snap  domain.Snapshot
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns the last saved snapshot, if any.
func (m *Memory) Load(_ context.Context) (domain.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return domain.Snapshot{}, false, nil
	}
	return m.snap.Clone(), true, nil
}

// Save retains the snapshot. Older revisions never overwrite newer ones;
// commit hooks run concurrently and may arrive out of order.
func (m *Memory) Save(_ context.Context, rev uint64, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved && rev < m.rev {
		return nil
	}
	m.saved = true
	m.rev = rev
	m.snap = snap.Clone()
	return nil
}

// Revision returns the sequence number of the saved snapshot.
func (m *Memory) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
