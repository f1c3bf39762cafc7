// Package core holds the vivarium state engine: the snapshot store, the
// identifier generators, and the role-gated mutation operations applied
// through the Service facade.
package core

import (
	"sync"
	"sync/atomic"

	"vivarium/pkg/domain"
)

// Revision pairs an immutable snapshot value with its sequence number.
// Sequence numbers start at 1 for the initial snapshot and increase by one
// per installed mutation.
type Revision struct {
	Snapshot domain.Snapshot
	Seq      uint64
}

// Store is the single shared snapshot cell. Writers clone the current value,
// edit the clone, and install it with compare-and-swap; a concurrent install
// between read and write forces a retry against the latest value, so no
// update is ever silently overwritten. Readers always observe a fully formed
// snapshot.
type Store struct {
	current atomic.Pointer[Revision]

	subMu   sync.Mutex
	subs    map[uint64]chan Revision
	nextSub uint64
	closed  bool
}

// NewStore returns a store seeded with the given snapshot at sequence 1.
func NewStore(initial domain.Snapshot) *Store {
	s := &Store{subs: make(map[uint64]chan Revision)}
	s.current.Store(&Revision{Snapshot: initial, Seq: 1})
	return s
}

// Current returns the latest installed revision. The returned snapshot must
// be treated as read-only; mutations go through Apply.
func (s *Store) Current() Revision {
	return *s.current.Load()
}

// Snapshot returns the latest snapshot value.
func (s *Store) Snapshot() domain.Snapshot {
	return s.current.Load().Snapshot
}

// Apply runs the mutator against a clone of the current snapshot and installs
// the result as the next revision. A failed outcome installs nothing. When a
// concurrent writer won the install race, the mutator is re-run against the
// new current value.
func (s *Store) Apply(mutate func(next *domain.Snapshot) domain.Outcome) (Revision, domain.Outcome) {
	for {
		cur := s.current.Load()
		next := cur.Snapshot.Clone()
		if out := mutate(&next); out.Failed() {
			return *cur, out
		}
		installed := &Revision{Snapshot: next, Seq: cur.Seq + 1}
		if s.current.CompareAndSwap(cur, installed) {
			s.publish(*installed)
			return *installed, domain.Success()
		}
	}
}

// Subscribe registers a push stream of installed revisions. The channel holds
// the most recent revision only; a slow consumer observes the latest value,
// not every intermediate one. The current revision is delivered immediately.
// The returned cancel func releases the subscription.
func (s *Store) Subscribe() (<-chan Revision, func()) {
	ch := make(chan Revision, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch
	s.subMu.Unlock()

	ch <- s.Current()

	cancel := func() {
		s.subMu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// Close tears down every subscription. Apply remains usable afterwards.
func (s *Store) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) publish(rev Revision) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- rev:
		default:
			// Replace the stale buffered revision with the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- rev:
			default:
			}
		}
	}
}
