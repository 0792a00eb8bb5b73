package framepool

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCapacity bounds the pool when no explicit capacity is given.
const DefaultCapacity = 100

// HandleID identifies a frame held by the pool.
type HandleID uint64

// Frame is one captured screen image plus its acquisition timestamp.
type Frame struct {
	Payload    []byte
	Width      int
	Height     int
	DisplayID  int
	CapturedAt time.Time
}

// Diagnostics is a read-only snapshot of pool state.
type Diagnostics struct {
	Count          int           `json:"count"`
	Capacity       int           `json:"capacity"`
	TotalAllocated uint64        `json:"total_allocated"`
	TotalEvicted   uint64        `json:"total_evicted"`
	EstimatedBytes int64         `json:"estimated_bytes"`
	OldestAge      time.Duration `json:"oldest_age"`
}

type entry struct {
	id      HandleID
	frame   Frame
	element *list.Element
}

// Pool is a bounded in-memory buffer of captured frames with strict FIFO
// eviction. The pool is the sole owner of every payload it holds: eviction
// and release drop the payload synchronously, and Take transfers ownership
// out so there is exactly one release path per frame.
type Pool struct {
	mu       sync.Mutex
	capacity int
	nextID   HandleID
	entries  map[HandleID]*entry
	order    *list.List // front = oldest

	allocated uint64
	evicted   uint64
	bytes     int64
}

// New constructs a pool with the given capacity. Capacities outside
// [1, DefaultCapacity] fall back to DefaultCapacity.
func New(capacity int) *Pool {
	if capacity < 1 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Pool{
		capacity: capacity,
		entries:  make(map[HandleID]*entry, capacity),
		order:    list.New(),
	}
}

// Add admits a frame, evicting the single oldest live handle first when the
// pool is full. It returns the handle id of the admitted frame.
func (p *Pool) Add(frame Frame) HandleID {
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) >= p.capacity {
		p.evictOldestLocked()
	}

	p.nextID++
	id := p.nextID
	e := &entry{id: id, frame: frame}
	e.element = p.order.PushBack(e)
	p.entries[id] = e
	p.allocated++
	p.bytes += int64(len(frame.Payload))
	return id
}

// Take removes a handle from the pool and transfers frame ownership to the
// caller. It reports false when the handle is unknown or already released.
func (p *Pool) Take(id HandleID) (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return Frame{}, false
	}
	p.removeLocked(e, false)
	return e.frame, true
}

// Release drops a handle and its payload. Unknown ids are a no-op.
func (p *Pool) Release(id HandleID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[id]; ok {
		p.removeLocked(e, false)
		e.frame.Payload = nil
	}
}

// ReleaseAll drops every live handle.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, e := range p.entries {
		p.order.Remove(e.element)
		p.bytes -= int64(len(e.frame.Payload))
		e.frame.Payload = nil
		delete(p.entries, id)
	}
}

// Count returns the number of live handles.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Diagnostics returns a snapshot of pool counters.
func (p *Pool) Diagnostics() Diagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := Diagnostics{
		Count:          len(p.entries),
		Capacity:       p.capacity,
		TotalAllocated: p.allocated,
		TotalEvicted:   p.evicted,
		EstimatedBytes: p.bytes,
	}
	if front := p.order.Front(); front != nil {
		oldest := front.Value.(*entry)
		d.OldestAge = time.Since(oldest.frame.CapturedAt)
	}
	return d
}

func (p *Pool) evictOldestLocked() {
	front := p.order.Front()
	if front == nil {
		return
	}
	e := front.Value.(*entry)
	p.removeLocked(e, true)
	e.frame.Payload = nil
}

func (p *Pool) removeLocked(e *entry, evicted bool) {
	p.order.Remove(e.element)
	p.bytes -= int64(len(e.frame.Payload))
	delete(p.entries, e.id)
	if evicted {
		p.evicted++
	}
}
