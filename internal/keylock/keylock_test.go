package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestPairOfIsUnordered(t *testing.T) {
	if PairOf(1, 2) != PairOf(2, 1) {
		t.Error("PairOf(1,2) != PairOf(2,1)")
	}
	if p := PairOf(7, 3); p.Low != 3 || p.High != 7 {
		t.Errorf("PairOf(7,3) = %+v, want {3 7}", p)
	}
}

func TestLockSerializesSameKey(t *testing.T) {
	m := New[int64]()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(10)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after all released, want 0", m.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New[string]()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
