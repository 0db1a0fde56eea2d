// Package pool provides fixed-capacity arenas with intrusive freelists.
//
// Two arenas are available:
//   - Pool[T]: typed slots (tensor headers, graph nodes)
//   - ChunkPool: fixed-size, 64-byte aligned byte chunks (element buffers)
//
// Both hand out slots in O(1) and take them back in O(1). Reuse is LIFO:
// the most recently released slot is the next one issued. Capacity is fixed
// at construction; an empty freelist is reported as ErrExhausted and the
// arena never grows.
//
// Arenas are not safe for concurrent use.
package pool

import (
	"fmt"
	"math"
	"unsafe"
)

// nilSlot terminates a freelist.
const nilSlot int32 = -1

// Stats is a point-in-time view of an arena's occupancy.
type Stats struct {
	Name     string
	Capacity int
	InUse    int
	Peak     int    // Highest InUse observed since construction.
	Failures uint64 // Allocations refused because the arena was empty.
}

// Available returns the number of free slots.
func (s Stats) Available() int {
	return s.Capacity - s.InUse
}

type slot[T any] struct {
	value T
	next  int32
	live  bool
}

// Pool is a fixed-capacity arena of T values.
//
// Issued values are addressed either by pointer (Get/Put) or by index
// (GetIndex/PutIndex/At). Pointers stay valid until the slot is released:
// the backing slice is allocated once and never reallocated.
type Pool[T any] struct {
	name  string
	slots []slot[T]
	head  int32

	inUse    int
	peak     int
	failures uint64
}

// New creates a pool holding capacity slots of T, all free.
func New[T any](name string, capacity int) (*Pool[T], error) {
	if capacity <= 0 || capacity > math.MaxInt32 {
		return nil, fmt.Errorf("pool %s: %w: %d", name, ErrInvalidCapacity, capacity)
	}

	p := &Pool[T]{
		name:  name,
		slots: make([]slot[T], capacity),
	}
	for i := range p.slots {
		p.slots[i].next = int32(i + 1)
	}
	p.slots[capacity-1].next = nilSlot
	p.head = 0

	return p, nil
}

// Name returns the pool's name.
func (p *Pool[T]) Name() string {
	return p.name
}

// Cap returns the number of slots the pool was built with.
func (p *Pool[T]) Cap() int {
	return len(p.slots)
}

// Len returns the number of issued slots.
func (p *Pool[T]) Len() int {
	return p.inUse
}

// Get pops the head of the freelist.
func (p *Pool[T]) Get() (*T, error) {
	_, v, err := p.GetIndex()
	return v, err
}

// GetIndex pops the head of the freelist and returns its index with it.
// The value is zeroed.
func (p *Pool[T]) GetIndex() (int, *T, error) {
	if p.slots == nil {
		return -1, nil, fmt.Errorf("pool %s: %w", p.name, ErrClosed)
	}
	if p.head == nilSlot {
		p.failures++
		return -1, nil, fmt.Errorf("pool %s: %w (capacity %d)", p.name, ErrExhausted, len(p.slots))
	}

	i := p.head
	s := &p.slots[i]
	p.head = s.next
	s.next = nilSlot
	s.live = true

	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	return int(i), &s.value, nil
}

// Put returns the slot holding v to the head of the freelist.
// The slot is found from v's address relative to the start of the arena.
func (p *Pool[T]) Put(v *T) error {
	if p.slots == nil {
		return fmt.Errorf("pool %s: %w", p.name, ErrClosed)
	}
	i, ok := p.indexOf(v)
	if !ok {
		return fmt.Errorf("pool %s: %w", p.name, ErrForeignSlot)
	}
	return p.PutIndex(i)
}

// PutIndex returns slot i to the head of the freelist.
func (p *Pool[T]) PutIndex(i int) error {
	if p.slots == nil {
		return fmt.Errorf("pool %s: %w", p.name, ErrClosed)
	}
	if i < 0 || i >= len(p.slots) {
		return fmt.Errorf("pool %s: %w: index %d", p.name, ErrForeignSlot, i)
	}

	s := &p.slots[i]
	if !s.live {
		return fmt.Errorf("pool %s: %w: index %d", p.name, ErrDoubleFree, i)
	}

	var zero T
	s.value = zero
	s.live = false
	s.next = p.head
	p.head = int32(i)
	p.inUse--
	return nil
}

// At returns the issued value at index i, or nil if i is free or out of range.
func (p *Pool[T]) At(i int) *T {
	if i < 0 || i >= len(p.slots) || !p.slots[i].live {
		return nil
	}
	return &p.slots[i].value
}

// IndexOf reports the slot index of an issued value.
func (p *Pool[T]) IndexOf(v *T) (int, bool) {
	i, ok := p.indexOf(v)
	if !ok || !p.slots[i].live {
		return -1, false
	}
	return i, true
}

func (p *Pool[T]) indexOf(v *T) (int, bool) {
	if v == nil || len(p.slots) == 0 {
		return -1, false
	}

	// The slot slice is allocated once and never moves.
	base := uintptr(unsafe.Pointer(&p.slots[0].value))
	addr := uintptr(unsafe.Pointer(v))
	size := unsafe.Sizeof(p.slots[0])
	if addr < base {
		return -1, false
	}

	off := addr - base
	if off%size != 0 || off/size >= uintptr(len(p.slots)) {
		return -1, false
	}
	return int(off / size), true
}

// Stats returns the pool's occupancy counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:     p.name,
		Capacity: len(p.slots),
		InUse:    p.inUse,
		Peak:     p.peak,
		Failures: p.failures,
	}
}

// Close drops the slot storage. Pointers previously handed out must not be
// used afterwards.
func (p *Pool[T]) Close() {
	p.slots = nil
	p.head = nilSlot
	p.inUse = 0
}
