package cheapthreads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInvariantQ1StatusMatchesContainingList grounds §8 Q1: a live
// thread's status always matches the list it currently occupies.
func TestInvariantQ1StatusMatchesContainingList(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var self *Thread
	h, err := sched.CreateThread(3, nil, func(s *Scheduler) StepResult {
		self, _ = s.handles.resolve(s.Self())
		require.NoError(t, s.Wait())
		return StepOK
	}, nil)
	require.NoError(t, err)

	th, ok := sched.handles.resolve(h)
	require.True(t, ok)
	assert.Equal(t, StatusActive, th.status)
	assert.Same(t, &sched.priQueues[3], th.queue)

	require.NoError(t, sched.Schedule())

	assert.Equal(t, StatusAsleep, self.status)
	assert.Same(t, &sched.sleepers, self.queue)
}

// TestInvariantQ2RefcountMatchesInboxReferences grounds §8 Q2: an
// event's refcount equals the number of msgQ entries referencing it,
// across every thread it was delivered to.
func TestInvariantQ2RefcountMatchesInboxReferences(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var a, b Handle
	// A thread with a pending message is never left asleep, so the first
	// recipient to see the broadcast halts the loop before anything is
	// dequeued.
	step := func(s *Scheduler) StepResult {
		if _, _, ok := s.QueryMsg(); ok {
			s.Halt()
		}
		s.Wait()
		return StepOK
	}
	a, err = sched.CreateThread(0, nil, step, nil)
	require.NoError(t, err)
	b, err = sched.CreateThread(0, nil, step, nil)
	require.NoError(t, err)

	w, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult {
		require.NoError(t, s.BroadcastMsg(7, []byte("x")))
		s.Exit()
		return StepOK
	}, nil)
	require.NoError(t, err)
	_ = w

	require.NoError(t, sched.Schedule())

	ta, _ := sched.handles.resolve(a)
	tb, _ := sched.handles.resolve(b)
	require.Equal(t, 1, ta.msgQ.Len())
	require.Equal(t, 1, tb.msgQ.Len())

	evA := ta.msgQ.Front().Value.(*messageNode).ev
	evB := tb.msgQ.Front().Value.(*messageNode).ev
	assert.Same(t, evA, evB, "a broadcast message is one shared event")
	assert.Equal(t, 2, evA.refcount, "refcount equals the total count of msgQ references across all recipients")
}

// TestInvariantQ3OneHeadPerSubscribedTypeSortedAscending grounds §8 Q3.
func TestInvariantQ3OneHeadPerSubscribedTypeSortedAscending(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	h, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult { return StepOK }, nil)
	require.NoError(t, err)

	for _, typ := range []uint32{50, 10, 30} {
		require.NoError(t, sched.Subscribe(typ, h))
	}

	var seen []uint32
	for e := sched.subs.heads.Front(); e != nil; e = e.Next() {
		seen = append(seen, e.Value.(*subHead).msgType)
	}
	assert.Equal(t, []uint32{10, 30, 50}, seen)
	assert.Equal(t, 3, sched.subs.heads.Len(), "exactly one head per subscribed type")
}

// TestInvariantQ4NoThreadInTwoQueuesSimultaneously grounds §8 Q4: moving
// a thread between lists always detaches it from its previous one
// first.
func TestInvariantQ4NoThreadInTwoQueuesSimultaneously(t *testing.T) {
	sched, err := New(WithClock(func() Time { return Time{} }))
	require.NoError(t, err)

	h, err := sched.CreateThread(2, nil, func(s *Scheduler) StepResult {
		require.NoError(t, s.WaitOnTimeout(1))
		return StepOK
	}, nil)
	require.NoError(t, err)
	th, _ := sched.handles.resolve(h)
	originalQueue := th.queue
	assert.Same(t, &sched.priQueues[2], originalQueue)

	th.unlink()
	sched.currThread = th
	th.status = StatusActive
	result := th.step(sched)
	require.Equal(t, StepOK, result)
	sched.reclassify(th)
	sched.currThread = nil

	assert.Nil(t, originalQueue.Front(), "the thread's former queue no longer references it")
	assert.Same(t, &sched.sleepers, th.queue, "a thread occupies exactly one list membership at a time")
	assert.Equal(t, StatusTimeout, th.status)
}

// TestInvariantQ5ScrunchDrainsToZeroInOneCycle grounds §8 Q5: once N
// scrunches have run with no new threads added, every remaining
// runnable thread sits in priority queue 0.
func TestInvariantQ5ScrunchDrainsToZeroInOneCycle(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	for _, pri := range []int{1, 3, 5} {
		_, err := sched.CreateThread(pri, nil, func(s *Scheduler) StepResult { return StepOK }, nil)
		require.NoError(t, err)
	}

	sched.scrunch()

	for i := 1; i <= 5; i++ {
		assert.Equal(t, 0, sched.priQueues[i].Len(), "queue %d must be empty after one scrunch", i)
	}
	assert.Equal(t, 3, sched.priQueues[0].Len())
}

// TestInvariantQ6MessageDeliveryExactlyOnceOrZero grounds §8 Q6.
func TestInvariantQ6MessageDeliveryExactlyOnceOrZero(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	received := 0
	target, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult {
		if _, _, ok := s.QueryMsg(); ok {
			var buf [16]byte
			s.DequeueMsg(buf[:])
			received++
		}
		s.Wait()
		return StepOK
	}, nil)
	require.NoError(t, err)

	// an invalid handle: released before the sender ever runs
	stale, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult { s.Exit(); return StepOK }, nil)
	require.NoError(t, err)

	_, err = sched.CreateThread(0, nil, func(s *Scheduler) StepResult {
		require.NoError(t, s.SendMsg(9, []byte("hi"), target))
		require.NoError(t, s.SendMsg(9, []byte("stale"), stale))
		s.Exit()
		return StepOK
	}, nil)
	require.NoError(t, err)

	sched.cfg.defaultCountdown = 1000
	require.NoError(t, sched.Schedule())

	assert.Equal(t, 1, received, "a message sent to a valid handle is observed exactly once")
}

// TestInvariantQ7SubscribeIsIdempotent grounds §8 Q7.
func TestInvariantQ7SubscribeIsIdempotent(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)
	h, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult { return StepOK }, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Subscribe(5, h))
	require.NoError(t, sched.Subscribe(5, h))
	require.NoError(t, sched.Subscribe(5, h))

	th, _ := sched.handles.resolve(h)
	assert.Equal(t, 1, th.subs.Len())
	head := sched.subs.find(5)
	require.NotNil(t, head)
	assert.Equal(t, 1, head.subs.Len())
}

// TestInvariantQ8ClearEmptiesEveryFreeListAndOutstandingBlock grounds
// §8 Q8: after Clear, every free list is empty and no allocator block
// remains outstanding.
func TestInvariantQ8ClearEmptiesEveryFreeListAndOutstandingBlock(t *testing.T) {
	sched, err := New(WithDefaultCountdown(1))
	require.NoError(t, err)

	steps := 0
	h, err := sched.CreateThread(0, nil, func(s *Scheduler) StepResult {
		steps++
		if steps == 1 {
			require.NoError(t, s.BroadcastMsg(3, []byte("x")))
			return StepOK
		}
		if _, _, ok := s.QueryMsg(); ok {
			var buf [16]byte
			s.DequeueMsg(buf[:])
		}
		s.Exit()
		return StepOK
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sched.Subscribe(3, h))

	require.NoError(t, sched.Schedule())

	require.NoError(t, sched.Clear())

	assert.Equal(t, 0, sched.eventPool.len())
	assert.Equal(t, 0, sched.msgNodePool.len())
	assert.Equal(t, 0, sched.subs.subs.len())
	assert.Equal(t, 0, sched.subs.subHeads.len())
	assert.Equal(t, 0, len(sched.handles.reclaimed))
	for i := range sched.priQueues {
		assert.Equal(t, 0, sched.priQueues[i].Len())
	}
	assert.Equal(t, 0, sched.sleepers.Len())
	assert.Equal(t, 0, sched.events.Len())
}
