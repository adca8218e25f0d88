package cheapthreads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleZeroValueNeverResolves(t *testing.T) {
	r := newHandleRegistry(0)
	assert.True(t, Handle{}.IsZero())
	_, ok := r.resolve(Handle{})
	assert.False(t, ok)
}

// TestHandleRegistryFirstAllocationNeverCollidesWithZeroHandle grounds
// the fix for slot 0 colliding with the zero Handle: the very first
// thread ever created in a registry must resolve to something other
// than Handle{}.
func TestHandleRegistryFirstAllocationNeverCollidesWithZeroHandle(t *testing.T) {
	r := newHandleRegistry(0)
	th := &Thread{}
	h, ok := r.allocate(th)
	require.True(t, ok)
	assert.False(t, h.IsZero(), "the first-ever allocation must not equal the zero Handle")

	got, resolved := r.resolve(h)
	require.True(t, resolved)
	assert.Same(t, th, got)
}

func TestHandleRegistryAllocateAndResolve(t *testing.T) {
	r := newHandleRegistry(0)
	th := &Thread{}
	h, ok := r.allocate(th)
	require.True(t, ok)
	assert.False(t, h.IsZero())

	got, resolved := r.resolve(h)
	require.True(t, resolved)
	assert.Same(t, th, got)
}

// TestHandleIncarnationAdvancesOnReuse grounds §8 invariant Q6 /
// scenario 4: a released slot's incarnation advances so a handle issued
// before release never resolves again, even after the slot is reused.
func TestHandleIncarnationAdvancesOnReuse(t *testing.T) {
	r := newHandleRegistry(0)
	first, ok := r.allocate(r.getThread())
	require.True(t, ok)
	r.release(first, r.slots[first.slot])

	second, ok := r.allocate(r.getThread())
	require.True(t, ok)
	assert.Equal(t, first.slot, second.slot, "freed slots are reused")
	assert.NotEqual(t, first.incarnation, second.incarnation)

	_, resolved := r.resolve(first)
	assert.False(t, resolved, "stale handle must not resolve to the new occupant")
	_, resolved = r.resolve(second)
	assert.True(t, resolved)
}

// TestHandleRegistryReclaimsThreadObjects grounds §4.3's distinct
// thread-object cache (unbounded, separate from the bounded pools).
func TestHandleRegistryReclaimsThreadObjects(t *testing.T) {
	r := newHandleRegistry(0)
	th := r.getThread()
	th.priority = 7
	h, ok := r.allocate(th)
	require.True(t, ok)
	r.release(h, th)

	reused := r.getThread()
	assert.Same(t, th, reused)
	assert.Equal(t, 0, reused.priority, "reclaimed thread objects are zeroed before reuse")
}

func TestHandleRegistryDrainEmptiesReclaimCache(t *testing.T) {
	r := newHandleRegistry(0)
	h, ok := r.allocate(r.getThread())
	require.True(t, ok)
	r.release(h, r.slots[h.slot])
	require.Equal(t, 1, len(r.reclaimed))

	r.drain()
	assert.Equal(t, 0, len(r.reclaimed))
}

// TestHandleRegistryMaxActiveRejectsBeyondCap grounds the bounded
// thread-capacity mode wired to ErrPoolExhausted (§7 kind 2): once
// maxActive live threads are allocated, a further allocate reports
// failure without mutating the registry.
func TestHandleRegistryMaxActiveRejectsBeyondCap(t *testing.T) {
	r := newHandleRegistry(1)
	first, ok := r.allocate(r.getThread())
	require.True(t, ok)

	_, ok = r.allocate(r.getThread())
	assert.False(t, ok, "a second allocation must fail once the cap of 1 is reached")

	r.release(first, r.slots[first.slot])
	_, ok = r.allocate(r.getThread())
	assert.True(t, ok, "releasing a slot frees capacity for a new allocation")
}
