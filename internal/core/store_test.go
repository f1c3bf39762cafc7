package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"vivarium/pkg/domain"
)

func TestStoreApplyInstallsNextRevision(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	if store.Current().Seq != 1 {
		t.Fatalf("expected initial revision 1, got %d", store.Current().Seq)
	}

	rev, out := store.Apply(func(next *domain.Snapshot) domain.Outcome {
		next.Protocols = append(next.Protocols, domain.Protocol{ID: "P-1", Active: true})
		return domain.Success()
	})
	if out.Failed() {
		t.Fatalf("expected success, got %v", out)
	}
	if rev.Seq != 2 {
		t.Fatalf("expected revision 2, got %d", rev.Seq)
	}
	if len(store.Snapshot().Protocols) != 1 {
		t.Fatal("expected installed snapshot to carry the new protocol")
	}
}

func TestStoreApplyFailureInstallsNothing(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	rev, out := store.Apply(func(next *domain.Snapshot) domain.Outcome {
		next.Protocols = append(next.Protocols, domain.Protocol{ID: "P-1"})
		return domain.Fail(domain.KindInvalidState, "rejected")
	})
	if out.OK {
		t.Fatal("expected failure")
	}
	if rev.Seq != 1 {
		t.Fatalf("expected revision to stay at 1, got %d", rev.Seq)
	}
	if len(store.Snapshot().Protocols) != 0 {
		t.Fatal("expected snapshot untouched after rejected mutation")
	}
}

func TestStoreApplyRetriesUnderContention(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	const writers = 32

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Apply(func(next *domain.Snapshot) domain.Outcome {
				next.StrainCatalog = append(next.StrainCatalog, fmt.Sprintf("S-%d", n))
				return domain.Success()
			})
		}(i)
	}
	wg.Wait()

	cur := store.Current()
	if cur.Seq != 1+writers {
		t.Fatalf("expected revision %d, got %d", 1+writers, cur.Seq)
	}
	if len(cur.Snapshot.StrainCatalog) != writers {
		t.Fatalf("expected %d catalog entries, got %d", writers, len(cur.Snapshot.StrainCatalog))
	}
}

func TestStoreSubscribeDeliversCurrentThenLatest(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	ch, cancel := store.Subscribe()
	defer cancel()

	first := <-ch
	if first.Seq != 1 {
		t.Fatalf("expected immediate delivery of revision 1, got %d", first.Seq)
	}

	// two installs without a read in between: the buffered value is replaced
	for i := 0; i < 2; i++ {
		store.Apply(func(next *domain.Snapshot) domain.Outcome {
			next.StrainCatalog = append(next.StrainCatalog, "S")
			return domain.Success()
		})
	}
	select {
	case rev := <-ch:
		if rev.Seq != 3 {
			t.Fatalf("expected latest revision 3, got %d", rev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a buffered revision")
	}
}

func TestStoreSubscribeCancelClosesChannel(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	ch, cancel := store.Subscribe()
	<-ch
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	// cancelling twice is harmless
	cancel()
}

func TestStoreCloseTearsDownSubscribers(t *testing.T) {
	store := NewStore(domain.Snapshot{CurrentRole: domain.RoleAdmin})
	ch, _ := store.Subscribe()
	<-ch
	store.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after store close")
	}

	// a subscription after close is immediately closed
	late, cancel := store.Subscribe()
	defer cancel()
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel for late subscriber")
	}

	// Apply still works
	if _, out := store.Apply(func(next *domain.Snapshot) domain.Outcome { return domain.Success() }); out.Failed() {
		t.Fatalf("expected apply to keep working after close, got %v", out)
	}
}
