package cheapthreads

// Handle is an opaque reference to a [Thread], valid only as long as the
// slot it names has not been reused by a later thread. It is cheap to
// copy and safe to store for the lifetime of the program; validity must
// be re-checked at the point of use, since the thread it names may have
// been destructed at any point after the handle was obtained.
type Handle struct {
	slot        int32
	incarnation uint32
}

// IsZero reports whether h is the zero Handle, which never names a
// thread.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// handleRegistry is a generational-index arena mapping Handle to
// *Thread. Slots are reused on destruction; the incarnation counter
// advances on reuse so stale handles fail validation instead of
// silently resolving to the wrong thread (spec invariant: reused slot
// incarnation differs from all previously issued handles for that
// slot).
type handleRegistry struct {
	slots []*Thread // index == slot; nil entries are free or never allocated
	incs  []uint32  // current incarnation per slot, parallel to slots
	free  []int32   // stack of reusable slot indices, cached without bound

	reclaimed []*Thread // reclaimed *Thread objects, cached without bound per §4.3

	active    int // number of slots currently occupied
	maxActive int // cap on active, 0 disables the cap (§6 WithMaxThreads default)
}

// newHandleRegistry returns an empty registry with slot 0 pre-reserved
// and permanently unoccupied, so a real allocation's first-ever
// (slot, incarnation) pair can never collide with the zero Handle that
// [Handle.IsZero] and [handleRegistry.resolve] treat as "no handle".
// maxActive bounds the number of simultaneously live threads; 0 leaves
// it unbounded.
func newHandleRegistry(maxActive int) *handleRegistry {
	return &handleRegistry{
		slots:     []*Thread{nil},
		incs:      []uint32{0},
		maxActive: maxActive,
	}
}

// allocate reserves a slot for t and returns the Handle naming it, and
// whether a slot was available. t.handle is set as a side effect only
// when ok is true; the registry is never mutated when exhausted. This
// is the only allocator in the tree capable of signalling resource
// exhaustion (§7 kind 2): the message node, event, subscription, and
// subscription-type-head pools fall back to the host allocator instead
// of ever failing, per §4.3, but the set of live threads is bounded by
// the host's declared capacity.
func (r *handleRegistry) allocate(t *Thread) (h Handle, ok bool) {
	if r.maxActive > 0 && r.active >= r.maxActive {
		return Handle{}, false
	}
	var slot int32
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		slot = int32(len(r.slots))
		r.slots = append(r.slots, nil)
		r.incs = append(r.incs, 0)
	}
	r.slots[slot] = t
	r.active++
	h = Handle{slot: slot, incarnation: r.incs[slot]}
	t.handle = h
	return h, true
}

// release returns slot to the free-slot stack and advances its
// incarnation, so every handle issued for it up to now becomes stale.
// The released *Thread itself is cached on an unbounded reclaim stack,
// per §4.3: thread slots are never physically freed while the
// scheduler is alive.
func (r *handleRegistry) release(h Handle, t *Thread) {
	if int(h.slot) >= len(r.slots) {
		return
	}
	r.slots[h.slot] = nil
	r.incs[h.slot]++
	r.free = append(r.free, h.slot)
	r.reclaimed = append(r.reclaimed, t)
	r.active--
}

// getThread draws a reclaimed *Thread object from the cache, or
// allocates a fresh one if none is cached.
func (r *handleRegistry) getThread() *Thread {
	if n := len(r.reclaimed); n > 0 {
		t := r.reclaimed[n-1]
		r.reclaimed[n-1] = nil
		r.reclaimed = r.reclaimed[:n-1]
		*t = Thread{}
		return t
	}
	return new(Thread)
}

// releaseThread returns an unused *Thread (one drawn via getThread but
// never allocated a slot) to the reclaim cache, so a failed allocate
// doesn't leak it.
func (r *handleRegistry) releaseThread(t *Thread) {
	r.reclaimed = append(r.reclaimed, t)
}

// drain empties the reclaim cache of *Thread objects; the free-slot
// stack is left as it is.
func (r *handleRegistry) drain() {
	r.reclaimed = nil
}

// resolve returns the live Thread named by h, and whether h is still
// valid. A Handle is valid iff its slot holds a non-nil thread whose
// current incarnation matches h's.
func (r *handleRegistry) resolve(h Handle) (*Thread, bool) {
	if h.IsZero() || int(h.slot) >= len(r.slots) {
		return nil, false
	}
	t := r.slots[h.slot]
	if t == nil || r.incs[h.slot] != h.incarnation {
		return nil, false
	}
	return t, true
}
