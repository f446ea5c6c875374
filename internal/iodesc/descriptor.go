// Package iodesc provides stable, cross-thread-safe handles to I/O objects.
//
// A Descriptor never carries a raw pointer. It is a (slot, generation) pair;
// the generation distinguishes a reused slot from the handle that used to
// occupy it, so a stale Descriptor read off the wire is detected rather than
// silently resolved to the wrong object.
package iodesc

import (
	"sync"
	"sync/atomic"
)

// Kind identifies what sort of I/O object a slot holds.
type Kind uint8

const (
	KindListener Kind = iota
	KindConnection
	KindClientChannel
	KindTimer
)

// Descriptor is a stable, comparable handle to an I/O object.
type Descriptor struct {
	Slot       uint32
	Generation uint32
}

// Zero reports whether d is the zero-value descriptor (never a valid handle).
func (d Descriptor) Zero() bool {
	return d.Slot == 0 && d.Generation == 0
}

type slot struct {
	mu         sync.Mutex
	generation uint32
	kind       Kind
	object     any
	live       bool
}

// Registry is the slab of descriptor slots, allocated once and reused.
//
// Lookup is safe to call concurrently with Allocate/Release: the generation
// check is the synchronization point. Mutating the object a Descriptor
// resolves to is the caller's (the owning reactor's) responsibility.
type Registry struct {
	mu        sync.Mutex
	slots     []*slot
	freeList  []uint32
	nextSlot  uint32
	allocated int64 // atomic counter, for diagnostics only
}

// NewRegistry creates an empty registry. Slots are created lazily as
// Allocate needs them.
func NewRegistry() *Registry {
	return &Registry{}
}

// Allocate installs obj under a fresh (slot, generation) and returns its
// Descriptor. Generation strictly increases per slot for the life of the
// process; a generation wrap is fatal: Allocate panics rather than reissue
// an earlier (slot, generation) pair.
func (r *Registry) Allocate(kind Kind, obj any) Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s *slot
	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		s = r.slots[idx]
	} else {
		idx = r.nextSlot
		r.nextSlot++
		s = &slot{}
		r.slots = append(r.slots, s)
	}

	s.mu.Lock()
	s.generation++
	if s.generation == 0 {
		s.mu.Unlock()
		panic("iodesc: descriptor generation wrapped")
	}
	s.kind = kind
	s.object = obj
	s.live = true
	gen := s.generation
	s.mu.Unlock()

	atomic.AddInt64(&r.allocated, 1)
	return Descriptor{Slot: idx, Generation: gen}
}

// Release invalidates the slot behind d. The object is not retained; a
// future Lookup with the released (or any earlier) generation reports gone.
func (r *Registry) Release(d Descriptor) {
	r.mu.Lock()
	if int(d.Slot) >= len(r.slots) {
		r.mu.Unlock()
		return
	}
	s := r.slots[d.Slot]
	r.mu.Unlock()

	s.mu.Lock()
	if s.live && s.generation == d.Generation {
		s.live = false
		s.object = nil
		r.mu.Lock()
		r.freeList = append(r.freeList, d.Slot)
		r.mu.Unlock()
		atomic.AddInt64(&r.allocated, -1)
	}
	s.mu.Unlock()
}

// Lookup resolves d to its object. ok is false if d has been released or
// never allocated (the handle is simply gone).
func (r *Registry) Lookup(d Descriptor) (obj any, kind Kind, ok bool) {
	r.mu.Lock()
	if int(d.Slot) >= len(r.slots) {
		r.mu.Unlock()
		return nil, 0, false
	}
	s := r.slots[d.Slot]
	r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live || s.generation != d.Generation {
		return nil, 0, false
	}
	return s.object, s.kind, true
}

// Len returns the number of currently-live descriptors. Best-effort, like
// Sequencer.Size — not a synchronization point.
func (r *Registry) Len() int {
	return int(atomic.LoadInt64(&r.allocated))
}
