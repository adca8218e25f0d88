package cheapthreads

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds distinguished by the scheduler.
//
// Errors raised through the scheduler's escalation path (thread-capacity
// exhaustion, an out-of-range priority at thread creation, WaitOnTimeout
// without a clock, an invalid thread status or dispatch type) are
// reported through the installed [Logger]'s Errorf and escalate the
// scheduler to a halted, fatal state. The other misuse errors
// (ErrInvalidHandle and ErrReservedMsgType from Subscribe and the send
// calls, ErrNoCurrentThread, ErrReentrantSchedule, ErrNotOutsideLoop)
// are only returned to the caller: they are not reported and do not
// halt the scheduler. A step-returned failure is captured without
// halting the loop early, surfacing only once [Scheduler.Schedule]
// returns. Benign invalidity (stale handles, redundant unsubscribe) is
// never an error at all and has no sentinel here.
var (
	// ErrInvalidHandle is returned, wrapped in a [HandleError], when
	// Subscribe is given a handle that fails validation; that case is not
	// escalated. CreateThread and CreateSleepingThread escalate with it
	// when the requested priority is out of range. Delivery-time staleness
	// (the addressee of a message) and UnsubscribeAll on an invalid handle
	// are benign and do not produce this error.
	ErrInvalidHandle = errors.New("cheapthreads: invalid thread handle")

	// ErrReservedMsgType is returned when a caller attempts to subscribe
	// to, or otherwise treat as an ordinary type, the reserved message
	// type 0 or TimeoutMsgType.
	ErrReservedMsgType = errors.New("cheapthreads: message type is reserved")

	// ErrNoCurrentThread is returned when an operation that requires a
	// currently-running thread (Exit, Wait, WaitOnTimeout, and the send,
	// enqueue, distribute and broadcast calls) is invoked outside of a
	// step. Self and SelfData instead return zero values.
	ErrNoCurrentThread = errors.New("cheapthreads: no thread is currently running")

	// ErrReentrantSchedule is returned by Schedule when it is invoked
	// from within a step, directly or indirectly. The main loop forbids
	// recursion.
	ErrReentrantSchedule = errors.New("cheapthreads: schedule called re-entrantly")

	// ErrPoolExhausted is escalated by [Scheduler.CreateThread] and
	// [Scheduler.CreateSleepingThread] when the configured [WithMaxThreads]
	// cap is reached. The message-node, event, subscription, and
	// subscription-type-head free lists (§4.3) never produce this error:
	// they fall back to the host allocator instead of failing. A live
	// thread is the one structure in this package whose capacity a host
	// may legitimately want to bound, since it holds resources (its inbox,
	// its subscriptions) for as long as it exists.
	ErrPoolExhausted = errors.New("cheapthreads: pool allocator exhausted")

	// ErrFatal is the error Schedule returns once cleanup completes after
	// the scheduler was escalated to a halted, fatal state. It does not
	// wrap the error that caused the escalation; that error is returned
	// to the caller of the failing operation instead.
	ErrFatal = errors.New("cheapthreads: fatal error, scheduler halted")

	// ErrNotOutsideLoop is returned by Clear when it is called while
	// Schedule is on the call stack.
	ErrNotOutsideLoop = errors.New("cheapthreads: operation only valid outside the dispatch loop")

	// ErrStepFailed is the error Schedule returns when a step function
	// (or a post-step hook) returned StepError; it never halts the loop
	// early, it only marks the eventual Schedule return as failed.
	ErrStepFailed = errors.New("cheapthreads: a thread step returned an error")
)

// HandleError annotates ErrInvalidHandle with the handle that failed
// validation, for hosts that want to log or compare it.
type HandleError struct {
	Handle Handle
	Err    error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("%s: %+v", e.Err, e.Handle)
}

func (e *HandleError) Unwrap() error {
	return e.Err
}

func invalidHandleError(h Handle) error {
	return &HandleError{Handle: h, Err: ErrInvalidHandle}
}
