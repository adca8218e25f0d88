package cheapthreads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeBeforeWithinSameEra(t *testing.T) {
	assert.True(t, (Time{Tick: 1}).Before(Time{Tick: 2}))
	assert.False(t, (Time{Tick: 2}).Before(Time{Tick: 1}))
	assert.False(t, (Time{Tick: 1}).Before(Time{Tick: 1}))
}

// TestTimeBeforeAcrossRollover grounds the two-word saturating clock's
// purpose: a tick that has wrapped into a later era is always "after" a
// tick from an earlier era, regardless of the raw tick values.
func TestTimeBeforeAcrossRollover(t *testing.T) {
	earlyEra := Time{Tick: 0xfffffff0, Era: 0}
	lateEra := Time{Tick: 5, Era: 1}
	assert.True(t, earlyEra.Before(lateEra))
	assert.False(t, lateEra.Before(earlyEra))
	assert.True(t, lateEra.After(earlyEra))
}

func TestTimeAddWrapsIntoNextEra(t *testing.T) {
	t1 := Time{Tick: 0xfffffffe, Era: 3}
	t2 := t1.Add(5)
	assert.Equal(t, uint32(4), t2.Era)
	assert.Equal(t, uint32(3), t2.Tick)
}

func TestTimeAddWithinEra(t *testing.T) {
	t1 := Time{Tick: 10, Era: 2}
	t2 := t1.Add(5)
	assert.Equal(t, Time{Tick: 15, Era: 2}, t2)
}

func TestWallClockDefaultsUnitWhenNonPositive(t *testing.T) {
	clock := WallClock(0)
	first := clock()
	time.Sleep(2 * time.Millisecond)
	second := clock()
	assert.True(t, first.Before(second) || first == second)
}
