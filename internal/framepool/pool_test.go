package framepool_test

import (
	"sync"
	"testing"
	"time"

	"kinescope/internal/framepool"
)

func frameAt(ts time.Time) framepool.Frame {
	return framepool.Frame{Payload: make([]byte, 16), CapturedAt: ts}
}

func TestAddBeyondCapacityEvictsOldest(t *testing.T) {
	pool := framepool.New(100)
	base := time.Now()

	var first framepool.HandleID
	for i := 0; i < 100; i++ {
		id := pool.Add(frameAt(base.Add(time.Duration(i) * time.Millisecond)))
		if i == 0 {
			first = id
		}
	}
	if pool.Count() != 100 {
		t.Fatalf("expected 100 live handles, got %d", pool.Count())
	}

	pool.Add(frameAt(base.Add(200 * time.Millisecond)))
	if pool.Count() != 100 {
		t.Fatalf("expected count to stay at 100, got %d", pool.Count())
	}

	d := pool.Diagnostics()
	if d.TotalEvicted != 1 {
		t.Fatalf("expected exactly one eviction, got %d", d.TotalEvicted)
	}
	if _, ok := pool.Take(first); ok {
		t.Fatal("expected oldest handle to be evicted")
	}
}

func TestPoolSizeLaw(t *testing.T) {
	pool := framepool.New(10)
	for i := 0; i < 35; i++ {
		pool.Add(frameAt(time.Now()))
	}
	d := pool.Diagnostics()
	want := int(d.TotalAllocated - d.TotalEvicted)
	if want > 10 {
		want = 10
	}
	if d.Count != want {
		t.Fatalf("size law violated: count=%d allocated=%d evicted=%d", d.Count, d.TotalAllocated, d.TotalEvicted)
	}
}

func TestEvictionIsFIFO(t *testing.T) {
	pool := framepool.New(3)
	base := time.Now()

	ids := make([]framepool.HandleID, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, pool.Add(frameAt(base.Add(time.Duration(i)*time.Second))))
	}

	// ids[0] and ids[1] should have been evicted, in that order.
	for _, id := range ids[:2] {
		if _, ok := pool.Take(id); ok {
			t.Fatalf("handle %d should have been evicted", id)
		}
	}
	for _, id := range ids[2:] {
		if _, ok := pool.Take(id); !ok {
			t.Fatalf("handle %d should still be live", id)
		}
	}
}

func TestReleaseUnknownIsNoop(t *testing.T) {
	pool := framepool.New(5)
	pool.Add(frameAt(time.Now()))

	pool.Release(framepool.HandleID(9999))
	if pool.Count() != 1 {
		t.Fatalf("unknown release must not change count, got %d", pool.Count())
	}

	id := pool.Add(frameAt(time.Now()))
	pool.Release(id)
	pool.Release(id) // double release is a no-op
	if pool.Count() != 1 {
		t.Fatalf("expected single live handle, got %d", pool.Count())
	}
}

func TestTakeTransfersOwnership(t *testing.T) {
	pool := framepool.New(5)
	id := pool.Add(framepool.Frame{Payload: []byte{1, 2, 3}, CapturedAt: time.Now()})

	frame, ok := pool.Take(id)
	if !ok {
		t.Fatal("expected to take live handle")
	}
	if len(frame.Payload) != 3 {
		t.Fatalf("expected payload transferred intact, got %d bytes", len(frame.Payload))
	}
	if pool.Count() != 0 {
		t.Fatalf("taken handle must leave the pool, count=%d", pool.Count())
	}
	if _, ok := pool.Take(id); ok {
		t.Fatal("second take must fail")
	}
	if d := pool.Diagnostics(); d.TotalEvicted != 0 {
		t.Fatalf("take is not an eviction, got %d", d.TotalEvicted)
	}
}

func TestReleaseAllClearsPoolAndBytes(t *testing.T) {
	pool := framepool.New(10)
	for i := 0; i < 7; i++ {
		pool.Add(frameAt(time.Now()))
	}
	pool.ReleaseAll()
	d := pool.Diagnostics()
	if d.Count != 0 || d.EstimatedBytes != 0 {
		t.Fatalf("expected empty pool, got count=%d bytes=%d", d.Count, d.EstimatedBytes)
	}
}

func TestConcurrentAddAndRelease(t *testing.T) {
	pool := framepool.New(50)
	var wg sync.WaitGroup

	ids := make(chan framepool.HandleID, 1024)
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ids <- pool.Add(frameAt(time.Now()))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 600; i++ {
			pool.Release(<-ids)
		}
	}()
	wg.Wait()
	close(ids)

	d := pool.Diagnostics()
	if d.Count > 50 {
		t.Fatalf("capacity bound violated: %d", d.Count)
	}
	live := int(d.TotalAllocated-d.TotalEvicted) - d.Count
	if live < 0 {
		t.Fatalf("counter invariant violated: %+v", d)
	}
}
