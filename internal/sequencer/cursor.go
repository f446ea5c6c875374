package sequencer

import "code.hybscloud.com/atomix"

// cursor is the producer- or consumer-side position of a Sequencer. The
// three implementations mirror the original C++ sequencer.hpp: a plain
// cursor for the single-owner-thread case, and two CAS-backed cursors for
// the multi-writer case, kept distinct because VolatileCursor documents an
// optimistic single-attempt CAS while CASCursor documents the
// retry-until-success Inc() used for cursor advancement elsewhere. In this
// port both compile to the same compare-and-swap primitive; see DESIGN.md.
type cursor interface {
	load() uint64
	// trySet attempts to advance the cursor from expected to next and
	// reports whether it won the race.
	trySet(expected, next uint64) bool
}

// plainCursor is written by exactly one thread. Other goroutines may still
// read it (e.g. Size()), so storage is atomic even though advancement never
// contends.
type plainCursor struct {
	v atomix.Uint64
}

func newPlainCursor() *plainCursor { return &plainCursor{} }

func (c *plainCursor) load() uint64 { return c.v.LoadAcquire() }

func (c *plainCursor) trySet(_, next uint64) bool {
	c.v.StoreRelease(next)
	return true
}

// volatileCursor is the optimistic multi-writer cursor: a single
// compare-and-swap attempt per call, relying on the caller's retry loop.
type volatileCursor struct {
	v atomix.Uint64
}

func newVolatileCursor() *volatileCursor { return &volatileCursor{} }

func (c *volatileCursor) load() uint64 { return c.v.LoadAcquire() }

func (c *volatileCursor) trySet(expected, next uint64) bool {
	return c.v.CompareAndSwapAcqRel(expected, next)
}

// casCursor is the guaranteed-progress multi-writer cursor: functionally
// identical to volatileCursor here (Go gives us no cheaper primitive), kept
// as a distinct type so Config can request it explicitly for MPMC/MPSC
// geometries per the original source's naming.
type casCursor struct {
	v atomix.Uint64
}

func newCASCursor() *casCursor { return &casCursor{} }

func (c *casCursor) load() uint64 { return c.v.LoadAcquire() }

func (c *casCursor) trySet(expected, next uint64) bool {
	return c.v.CompareAndSwapAcqRel(expected, next)
}
