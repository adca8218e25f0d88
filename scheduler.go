// Copyright 2026 The CheapThreads Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cheapthreads

import (
	"container/list"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Scheduler is the cooperative dispatch loop (C6): priority queues, the
// sleeper list, the pending event queue, and the step() state machine
// that ties them together. A Scheduler is not safe for concurrent use;
// see the package documentation's Thread safety section.
type Scheduler struct {
	cfg *config

	priQueues []list.List // index 0..cfg.priorityMax, each a FIFO of *Thread
	sleepers  list.List   // timeout-sorted segment, then plain-asleep segment, of *Thread

	events      list.List // FIFO of *event, pending dispatch
	eventPool   *pool[event]
	msgNodePool *pool[messageNode]

	handles *handleRegistry
	subs    *subscriptionDispatcher

	// currThread names the thread whose step most recently ran. It is
	// set when a step begins and deliberately left set across the
	// event-queue drain of the *next* loop iteration, so that a message
	// a thread sent to itself during its own step can be recognized as
	// such when it is drained (§4.1b's self_msg rule) — it is cleared
	// only once Schedule's loop exits, so Self and friends correctly
	// report "no current thread" to anything called from outside a step.
	currThread *Thread
	priPenalty int
	countdown  int
	selfMsg    bool

	halted     bool
	fatalError bool
	inLoop     bool // recursion guard; Schedule forbids re-entry

	stepErr error // sticky; set by a StepError return, surfaced once Schedule returns

	diagLimiter *catrate.Limiter // nil when WithDiagnosticRateLimit was not supplied

	metrics      *Metrics             // nil unless WithMetrics(true)
	dispatchRate *dispatchRateCounter // nil unless WithMetrics(true)
}

// New constructs a Scheduler with the given options applied over the
// §6 defaults.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	handles := newHandleRegistry(cfg.maxThreads)
	s := &Scheduler{
		cfg:         cfg,
		priQueues:   make([]list.List, cfg.priorityMax+1),
		handles:     handles,
		subs:        newSubscriptionDispatcher(handles, cfg.maxFreeSub, cfg.maxFreeHead),
		eventPool:   newPool[event](cfg.maxFreeEvent),
		msgNodePool: newPool[messageNode](cfg.maxFreeMsgNode),
		countdown:   cfg.defaultCountdown,
	}
	if len(cfg.diagnosticRates) > 0 {
		s.diagLimiter = catrate.NewLimiter(cfg.diagnosticRates)
	}
	if cfg.metricsEnabled {
		s.metrics = &Metrics{}
		s.dispatchRate = newDispatchRateCounter(10*time.Second, 100*time.Millisecond)
	}
	return s, nil
}

// Metrics returns the scheduler's runtime statistics, or nil if
// [WithMetrics] was not supplied to [New].
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// CreateThread creates a thread at the given priority, runnable
// immediately. priority must be in [0, PriorityMax].
func (s *Scheduler) CreateThread(priority int, data any, step StepFunc, destruct DestructFunc) (Handle, error) {
	return s.createThread(priority, data, step, destruct, false)
}

// CreateSleepingThread creates a thread at the given priority, starting
// in StatusAsleep rather than runnable; it must be woken by a message
// or explicit enqueue before it ever steps.
func (s *Scheduler) CreateSleepingThread(priority int, data any, step StepFunc, destruct DestructFunc) (Handle, error) {
	return s.createThread(priority, data, step, destruct, true)
}

func (s *Scheduler) createThread(priority int, data any, step StepFunc, destruct DestructFunc, sleeping bool) (Handle, error) {
	if priority < 0 || priority > s.cfg.priorityMax {
		return Handle{}, s.fail(ErrInvalidHandle, "create_thread: priority %d out of range [0,%d]", priority, s.cfg.priorityMax)
	}
	t := s.handles.getThread()
	t.priority = priority
	t.data = data
	t.step = step
	t.destruct = destruct
	t.msgQ.Init()
	t.subs.Init()
	h, ok := s.handles.allocate(t)
	if !ok {
		s.handles.releaseThread(t)
		return Handle{}, s.fail(ErrPoolExhausted, "create_thread: thread capacity exhausted (max %d)", s.cfg.maxThreads)
	}
	if sleeping {
		t.status = StatusAsleep
		t.linkTo(&s.sleepers)
	} else {
		t.status = StatusActive
		t.linkTo(&s.priQueues[priority])
	}
	return h, nil
}

// Self returns a handle to the currently running thread, or the zero
// Handle if called outside a step.
func (s *Scheduler) Self() Handle {
	if s.currThread == nil {
		return Handle{}
	}
	return s.currThread.handle
}

// SelfData returns the opaque data of the currently running thread, or
// nil outside a step.
func (s *Scheduler) SelfData() any {
	if s.currThread == nil {
		return nil
	}
	return s.currThread.data
}

// Exit marks the currently running thread DEFUNCT; destruction is
// deferred to the end of the current step.
func (s *Scheduler) Exit() error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	s.currThread.status = StatusDefunct
	return nil
}

// Wait marks the currently running thread ASLEEP.
func (s *Scheduler) Wait() error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	s.currThread.status = StatusAsleep
	return nil
}

// WaitOnTimeout marks the currently running thread TIMEOUT, due after
// interval ticks of the configured [Clock]. It requires [WithClock] to
// have been supplied to [New].
func (s *Scheduler) WaitOnTimeout(interval uint32) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	if s.cfg.clock == nil {
		return s.fail(ErrFatal, "wait_on_timeout: no clock installed")
	}
	s.currThread.status = StatusTimeout
	s.currThread.deadline = s.cfg.clock().Add(interval)
	return nil
}

// Penalize accumulates a non-negative priority penalty applied once,
// to this thread's re-insertion after the current step; it saturates
// at PriorityMax.
func (s *Scheduler) Penalize(n int) {
	if n < 0 {
		n = 0
	}
	s.priPenalty += n
	if s.priPenalty > s.cfg.priorityMax {
		s.priPenalty = s.cfg.priorityMax
	}
}

// Halt requests that the main loop exit at its next iteration boundary.
func (s *Scheduler) Halt() {
	s.halted = true
}

// FatalError escalates the scheduler to a halted, fatal state; Schedule
// returns ErrFatal once cleanup completes.
func (s *Scheduler) FatalError() {
	s.fatalError = true
	s.halted = true
}

// Clear tears down all scheduler state, including residual sleepers,
// and clears the fatal-error flag. It is only permissible outside the
// dispatch loop.
func (s *Scheduler) Clear() error {
	if s.inLoop {
		return ErrNotOutsideLoop
	}
	s.priQueues = make([]list.List, s.cfg.priorityMax+1)
	s.sleepers.Init()
	s.events.Init()
	s.handles = newHandleRegistry(s.cfg.maxThreads)
	s.subs = newSubscriptionDispatcher(s.handles, s.cfg.maxFreeSub, s.cfg.maxFreeHead)
	s.eventPool = newPool[event](s.cfg.maxFreeEvent)
	s.msgNodePool = newPool[messageNode](s.cfg.maxFreeMsgNode)
	s.currThread = nil
	s.priPenalty = 0
	s.countdown = s.cfg.defaultCountdown
	s.selfMsg = false
	s.halted = false
	s.fatalError = false
	s.stepErr = nil
	if s.cfg.metricsEnabled {
		s.metrics = &Metrics{}
		s.dispatchRate = newDispatchRateCounter(10*time.Second, 100*time.Millisecond)
	}
	return nil
}

// SetCountdown overrides the dispatches-between-scrunches interval.
func (s *Scheduler) SetCountdown(n int) {
	if n <= 0 {
		n = 1
	}
	s.cfg.defaultCountdown = n
	s.countdown = n
}

// fail reports a programmer-misuse or resource-exhaustion error
// through the installed [Logger], throttled per [WithDiagnosticRateLimit],
// and escalates the scheduler to fatal, per §7 kinds 1-2.
func (s *Scheduler) fail(sentinel error, format string, args ...any) error {
	if s.diagLimiter == nil {
		s.cfg.logger.Errorf(format, args...)
	} else if _, ok := s.diagLimiter.Allow(sentinel.Error()); ok {
		s.cfg.logger.Errorf(format, args...)
	}
	s.FatalError()
	return sentinel
}

// Schedule runs the dispatch loop to completion. See the package
// documentation's Execution model section for the loop's phases.
func (s *Scheduler) Schedule() error {
	if s.inLoop {
		return ErrReentrantSchedule
	}
	s.inLoop = true
	defer func() {
		s.inLoop = false
		s.currThread = nil
	}()

	idleBackoff := time.Millisecond
	for {
		if s.halted {
			break
		}

		if s.events.Len() > 0 {
			s.drainEvents()
		}

		if s.cfg.timeoutsEnabled {
			if s.checkTimeouts() {
				s.drainEvents()
			}
		}

		if s.metrics != nil {
			s.metrics.Pools.update(s.msgNodePool.len(), s.eventPool.len(), s.subs.subs.len(), s.subs.subHeads.len())
			s.metrics.mu.Lock()
			s.metrics.DispatchRate = s.dispatchRate.Rate()
			s.metrics.mu.Unlock()
		}

		idx := s.pickRunnable()
		if idx < 0 {
			if s.sleepers.Len() == 0 {
				break
			}
			if s.sleepers.Front().Value.(*Thread).status != StatusTimeout {
				break
			}
			time.Sleep(idleBackoff)
			if idleBackoff < 16*time.Millisecond {
				idleBackoff *= 2
			}
			continue
		}
		idleBackoff = time.Millisecond

		t := s.priQueues[idx].Front().Value.(*Thread)
		t.unlink()
		s.currThread = t
		s.runStep(t)

		s.countdown--
		if s.countdown <= 0 {
			s.scrunch()
			s.countdown = s.cfg.defaultCountdown
			if s.metrics != nil {
				s.metrics.mu.Lock()
				s.metrics.ScrunchCount++
				s.metrics.mu.Unlock()
			}
		}
	}

	if s.fatalError {
		return ErrFatal
	}
	if s.stepErr != nil {
		err := s.stepErr
		s.stepErr = nil
		return err
	}
	return nil
}

// pickRunnable returns the index of the lowest-numbered non-empty
// priority queue, or -1 if every queue is empty.
func (s *Scheduler) pickRunnable() int {
	for i := range s.priQueues {
		if s.priQueues[i].Len() > 0 {
			return i
		}
	}
	return -1
}

// runStep runs the single-step procedure (§4.1a) on t, which must
// already be detached from its queue and installed as s.currThread.
func (s *Scheduler) runStep(t *Thread) {
	if s.metrics != nil {
		s.dispatchRate.Increment()
	}

	if s.cfg.preHook != nil {
		if s.cfg.preHook(s) != StepOK {
			s.stepErr = ErrStepFailed
			s.reclassify(t)
			return
		}
	}

	var start time.Time
	if s.metrics != nil {
		start = time.Now()
	}

	result := t.step(s)

	if s.metrics != nil {
		s.metrics.Step.Record(time.Since(start))
	}

	if result == StepOK && s.cfg.postHook != nil {
		if s.cfg.postHook(s) != StepOK {
			result = StepError
		}
	}
	if result != StepOK {
		s.stepErr = ErrStepFailed
	}

	if t.status == StatusAsleep && t.msgQ.Len() > 0 {
		t.status = StatusActive // auto-promote, invariant 7
	}

	s.reclassify(t)
}

// reclassify re-inserts t according to its final status (§4.1a).
func (s *Scheduler) reclassify(t *Thread) {
	switch t.status {
	case StatusActive, StatusAwakened:
		target := t.priority + s.priPenalty
		if target > s.cfg.priorityMax {
			target = s.cfg.priorityMax
		}
		if t.msgQ.Len() > 0 {
			target = 0
		}
		s.priPenalty = 0
		t.status = StatusActive
		t.linkTo(&s.priQueues[target])
	case StatusAsleep:
		t.linkTo(&s.sleepers)
	case StatusTimeout:
		s.insertTimeoutSorted(t)
	case StatusDefunct:
		s.destructThread(t)
	default:
		s.fail(ErrFatal, "step: thread left in invalid status %v", t.status)
	}
}

// insertTimeoutSorted inserts t into the sleeper list's timeout-sorted
// prefix, before the first entry with a later deadline; that segment
// always precedes any plain-sleeping entries.
func (s *Scheduler) insertTimeoutSorted(t *Thread) {
	for e := s.sleepers.Front(); e != nil; e = e.Next() {
		other := e.Value.(*Thread)
		if other.status != StatusTimeout || other.deadline.After(t.deadline) {
			t.linkBefore(&s.sleepers, e)
			return
		}
	}
	t.linkTo(&s.sleepers)
}

// checkTimeouts walks the timeout-sorted prefix of the sleeper list and
// enqueues a TimeoutMsgType event for every entry whose deadline has
// passed. It returns whether any were enqueued.
func (s *Scheduler) checkTimeouts() bool {
	now := s.cfg.clock()
	fired := false
	for e := s.sleepers.Front(); e != nil; {
		t := e.Value.(*Thread)
		if t.status != StatusTimeout || now.Before(t.deadline) {
			break
		}
		next := e.Next()
		t.unlink()
		s.pushEvent(&event{
			msgType:      TimeoutMsgType,
			evType:       evMsg,
			dispatchType: dispatchAddressee,
			addressee:    t.handle,
		})
		fired = true
		e = next
	}
	return fired
}

// scrunch splices every non-zero priority queue onto the tail of the
// queue below it, bounding starvation (§4.1c). Queues are processed
// from the highest index down to 1, so a thread sitting at any priority
// falls all the way to queue 0 within a single scrunch call rather than
// descending one level per call — the starvation bound is one scrunch
// cycle, not one per priority level.
func (s *Scheduler) scrunch() {
	for i := len(s.priQueues) - 1; i >= 1; i-- {
		src := &s.priQueues[i]
		dst := &s.priQueues[i-1]
		for e := src.Front(); e != nil; {
			t := e.Value.(*Thread)
			next := e.Next()
			t.unlink()
			t.linkTo(dst)
			e = next
		}
	}
}

// pushEvent appends ev to the pending event queue.
func (s *Scheduler) pushEvent(ev *event) {
	ev.elem = s.events.PushBack(ev)
}

// drainEvents pops every pending event in FIFO order and dispatches
// each by its dispatch type (§4.1b).
func (s *Scheduler) drainEvents() {
	s.selfMsg = false
	for s.events.Len() > 0 {
		front := s.events.Front()
		ev := front.Value.(*event)
		s.events.Remove(front)
		ev.elem = nil

		switch ev.dispatchType {
		case dispatchAddressee:
			if t, ok := s.handles.resolve(ev.addressee); ok {
				s.deliverTo(t, ev)
			}
		case dispatchSubscriber:
			s.subs.dispatchSubscription(ev, func(t *Thread) { s.deliverTo(t, ev) })
		case dispatchAll:
			for _, t := range s.allThreads() {
				s.deliverTo(t, ev)
			}
		default:
			s.fail(ErrFatal, "dispatch_event_queue: illegal dispatch type %v", ev.dispatchType)
		}

		if ev.evType == evEnq {
			// No inbox retains an ENQ event; destruct it now rather
			// than relying on reference counting.
			s.destructEvent(ev)
		}
	}

	// If the thread that ran last step sent an event to itself, it was
	// deliberately not moved during delivery above so that a
	// self-message can never pre-empt the rest of this step's fanout.
	// Enqueue it now, at priority 0, unconditionally (this bypasses the
	// ordinary "already AWAKENED" short-circuit of enqueueForEvent,
	// since the thread may currently sit anywhere reclassify placed it).
	if s.selfMsg {
		s.selfMsg = false
		if t := s.currThread; t != nil && t.status != StatusDefunct {
			t.unlink()
			t.status = StatusAwakened
			t.linkTo(&s.priQueues[0])
		}
	}
}

// deliverTo carries out delivery to a single resolved target thread.
func (s *Scheduler) deliverTo(t *Thread, ev *event) {
	if ev.evType == evMsg {
		node := s.msgNodePool.get()
		node.ev = ev
		ev.refcount++
		node.elem = t.msgQ.PushBack(node)
	}
	if t == s.currThread {
		s.selfMsg = true
		return
	}
	s.enqueueForEvent(t)
}

// enqueueForEvent applies the §4.1d enqueue-for-event rule to target.
func (s *Scheduler) enqueueForEvent(target *Thread) {
	if target.status == StatusAwakened {
		return
	}
	target.unlink()
	target.status = StatusAwakened
	target.linkTo(&s.priQueues[0])
}

// allThreads snapshots every live thread across the priority queues and
// the sleeper list, for dispatchAll delivery. A snapshot is required
// because delivery can move a thread between lists as we go.
func (s *Scheduler) allThreads() []*Thread {
	var all []*Thread
	for i := range s.priQueues {
		for e := s.priQueues[i].Front(); e != nil; e = e.Next() {
			all = append(all, e.Value.(*Thread))
		}
	}
	for e := s.sleepers.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*Thread))
	}
	return all
}

// destructEvent releases ev's owned payload buffer (if any) and returns
// it to the event pool.
func (s *Scheduler) destructEvent(ev *event) {
	ev.reset()
	s.eventPool.put(ev)
}

// destructThread cascades the destruction of a DEFUNCT thread:
// draining its inbox (decrementing and possibly destructing each
// referenced event), unsubscribing it from everything, invoking its
// destruct callback, and returning its slot to the handle registry.
func (s *Scheduler) destructThread(t *Thread) {
	for e := t.msgQ.Front(); e != nil; {
		node := e.Value.(*messageNode)
		next := e.Next()
		t.msgQ.Remove(e)
		node.ev.refcount--
		if node.ev.refcount == 0 {
			s.destructEvent(node.ev)
		}
		node.reset()
		s.msgNodePool.put(node)
		e = next
	}

	s.subs.unsubscribeAll(t)

	if t.destruct != nil {
		t.destruct(t.data)
	}

	h := t.handle
	s.handles.release(h, t)
}
