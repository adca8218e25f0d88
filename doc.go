// Package cheapthreads implements a cooperative, user-space thread
// scheduler for constrained environments where a full preemptive OS is
// absent or unwelcome.
//
// # Architecture
//
// A single [Scheduler] drives many lightweight [Thread] values. Each
// thread advances by one bounded step per dispatch, yields voluntarily by
// returning from its step function, and communicates with other threads
// by asynchronous message passing ([Scheduler.SendMsg],
// [Scheduler.DistributeMsg], [Scheduler.BroadcastMsg]) or publish/
// subscribe fanout ([Scheduler.Subscribe] plus [Scheduler.DistributeMsg]).
//
// There is no preemption, no per-thread stack, and no dynamic OS
// dependency beyond a heap allocator (the Go runtime's) and, optionally,
// a monotonic clock ([Clock]) for timeouts.
//
// # Execution model
//
// [Scheduler.Schedule] runs the dispatch loop to completion: it drains
// the event queue, promotes timed-out sleepers, picks the
// highest-priority runnable thread, invokes its step, and re-classifies
// it by the status the step left behind. It returns when no thread is
// runnable and no thread is waiting on a timeout (threads asleep without
// a timeout may remain), or when the loop is halted. Calling
// [Scheduler.Schedule] re-entrantly (from within a step) is a programmer
// error and is reported as such.
//
// # Priority and starvation
//
// Threads run at one of PriorityMax+1 priority levels (0 highest). Every
// countdown dispatches, the scheduler "scrunches" every non-zero priority
// queue onto the queue below it, guaranteeing that any runnable thread
// eventually reaches priority 0 and is dispatched — this is the
// scheduler's only fairness guarantee; it is not a general fairness
// policy.
//
// # Thread safety
//
// A Scheduler is not safe for concurrent use. Exactly one goroutine may
// call into it at a time, and a step function must never call back into
// the Scheduler from a goroutine other than the one currently executing
// that step. This mirrors the single-threaded cooperative model the
// scheduler implements, not an incidental limitation of the
// implementation.
//
// # Usage
//
//	sched, err := cheapthreads.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var count int
//	_, err = sched.CreateThread(0, nil, func(s *cheapthreads.Scheduler) cheapthreads.StepResult {
//	    count++
//	    if count == 5 {
//	        s.Exit()
//	    }
//	    return cheapthreads.StepOK
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sched.Schedule(); err != nil {
//	    log.Fatal(err)
//	}
package cheapthreads
