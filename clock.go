package cheapthreads

import "time"

// Time is a two-word saturating timestamp: Tick advances with each unit
// of elapsed time and Era counts how many times Tick has wrapped. The
// pair lets a timeout comparison remain correct across a single Tick
// rollover, which a bare counter cannot do.
type Time struct {
	Tick uint32
	Era  uint32
}

// Before reports whether t occurred strictly before u, accounting for
// at most one Era rollover between the two samples.
func (t Time) Before(u Time) bool {
	if t.Era != u.Era {
		return t.Era < u.Era
	}
	return t.Tick < u.Tick
}

// After reports whether t occurred strictly after u.
func (t Time) After(u Time) bool {
	return u.Before(t)
}

// Add returns t advanced by delta ticks, wrapping Tick into Era as
// needed.
func (t Time) Add(delta uint32) Time {
	sum := uint64(t.Tick) + uint64(delta)
	if sum > 0xffffffff {
		return Time{Tick: uint32(sum), Era: t.Era + 1}
	}
	return Time{Tick: uint32(sum), Era: t.Era}
}

// Clock supplies the current [Time] to a [Scheduler]. It is called once
// per loop iteration by the timeout check and once per
// [Scheduler.WaitOnTimeout] call, always from the goroutine running
// [Scheduler.Schedule], so an implementation need not be concurrency-safe.
//
// A Scheduler constructed without [WithClock] has no clock: timeout
// operations are simply unavailable to step functions, matching a
// deployment with no monotonic source.
type Clock func() Time

// WallClock returns a [Clock] backed by [time.Now], scaled so one Tick
// equals unit of wall-clock time. Tick alone covers about 49.7 days at
// millisecond resolution, after which Era advances; the Era field is
// computed from the elapsed count rather than pinned to zero. Tests
// exercising rollover behavior can construct [Time] values directly
// instead of waiting out real wall-clock time.
func WallClock(unit time.Duration) Clock {
	if unit <= 0 {
		unit = time.Millisecond
	}
	epoch := time.Now()
	return func() Time {
		elapsed := uint64(time.Since(epoch) / unit)
		return Time{Tick: uint32(elapsed), Era: uint32(elapsed >> 32)}
	}
}
