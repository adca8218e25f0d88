// Copyright 2026 The CheapThreads Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cheapthreads

import (
	"fmt"
	"time"
)

// config holds the build/configure-time knobs of spec §6, resolved once
// by New.
type config struct {
	priorityMax      int
	defaultCountdown int
	msgBufLen        int
	maxFreeMsgNode   int
	maxFreeEvent     int
	maxFreeSub       int
	maxFreeHead      int
	maxThreads       int // 0 disables the cap
	preHook          StepHook
	postHook         StepHook
	clock            Clock
	timeoutsEnabled  bool
	logger           Logger
	diagnosticRates  map[time.Duration]int // passed to catrate.NewLimiter, nil disables throttling
	metricsEnabled   bool
}

// StepHook is the signature of the pre-step and post-step hooks
// installed via [WithPreStepHook] and [WithPostStepHook]. It receives
// the scheduler so it may call [Scheduler.Self] or [Scheduler.SelfData];
// a non-OK return from the pre-hook aborts the step before it runs, and
// a non-OK return from either hook surfaces as ERROR from the step, per
// §4.1a.
type StepHook func(*Scheduler) StepResult

// Option configures a Scheduler at construction time via [New]. Option
// uses an unexported-method interface rather than a bare function type
// so that invalid configuration can be reported as a construction error
// instead of silently ignored.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithPriorityMax overrides the default priority ceiling (15). Threads
// may be created with any priority in [0, max].
func WithPriorityMax(max int) Option {
	return optionFunc(func(c *config) error {
		if max < 0 {
			return fmt.Errorf("cheapthreads: priority max must be non-negative, got %d", max)
		}
		c.priorityMax = max
		return nil
	})
}

// WithDefaultCountdown overrides the number of dispatches between
// scrunches (default 8).
func WithDefaultCountdown(n int) Option {
	return optionFunc(func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("cheapthreads: countdown must be positive, got %d", n)
		}
		c.defaultCountdown = n
		return nil
	})
}

// WithMsgBufLen overrides the inline message payload capacity (default
// 16 bytes); longer payloads are copied into an owned buffer.
func WithMsgBufLen(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 0 {
			return fmt.Errorf("cheapthreads: msg buf len must be non-negative, got %d", n)
		}
		c.msgBufLen = n
		return nil
	})
}

// WithPoolCaps overrides the bounded free-list caps for message nodes,
// events, subscriptions, and subscription-type heads (§4.3 defaults: 15,
// 6, 10, 3). A cap of 0 disables caching for that structure.
func WithPoolCaps(msgNode, event, sub, head int) Option {
	return optionFunc(func(c *config) error {
		if msgNode < 0 || event < 0 || sub < 0 || head < 0 {
			return fmt.Errorf("cheapthreads: pool caps must be non-negative")
		}
		c.maxFreeMsgNode = msgNode
		c.maxFreeEvent = event
		c.maxFreeSub = sub
		c.maxFreeHead = head
		return nil
	})
}

// WithMaxThreads bounds the number of simultaneously live threads a
// Scheduler will create. [Scheduler.CreateThread] and
// [Scheduler.CreateSleepingThread] fail with [ErrPoolExhausted] once the
// cap is reached, escalating per §7 kind 2. The default of 0 leaves
// thread creation unbounded, matching the rest of the package's
// allocators (§4.3), which fall back to the host allocator rather than
// ever failing; a cap is the one allocator in this package that can
// genuinely run out, since a live thread holds resources (its inbox,
// its subscriptions) for as long as it exists.
func WithMaxThreads(n int) Option {
	return optionFunc(func(c *config) error {
		if n < 0 {
			return fmt.Errorf("cheapthreads: max threads must be non-negative, got %d", n)
		}
		c.maxThreads = n
		return nil
	})
}

// WithPreStepHook installs a hook invoked immediately before a thread's
// step function, with that thread as the current thread. A non-OK
// result aborts the step.
func WithPreStepHook(hook StepHook) Option {
	return optionFunc(func(c *config) error {
		c.preHook = hook
		return nil
	})
}

// WithPostStepHook installs a hook invoked after a thread's step
// function returns OK (it is skipped if the step itself returned
// ERROR). A non-OK result surfaces as ERROR from the step.
func WithPostStepHook(hook StepHook) Option {
	return optionFunc(func(c *config) error {
		c.postHook = hook
		return nil
	})
}

// WithClock installs a pluggable clock and enables timeout support
// ([Scheduler.WaitOnTimeout] and the loop's per-iteration timeout
// check). Without this option, timeouts are disabled: the loop never
// checks deadlines, and a step calling WaitOnTimeout escalates the
// scheduler to a fatal state and gets [ErrFatal].
func WithClock(clock Clock) Option {
	return optionFunc(func(c *config) error {
		c.clock = clock
		c.timeoutsEnabled = clock != nil
		return nil
	})
}

// WithLogger installs a structured [Logger] for the scheduler's
// diagnostics. The scheduler writes only escalated diagnostics, through
// the Logger's Errorf; it does not log dispatch decisions, scrunches or
// timeout injection. There is no separate error-reporter callback.
func WithLogger(logger Logger) Option {
	return optionFunc(func(c *config) error {
		c.logger = logger
		return nil
	})
}

// WithDiagnosticRateLimit installs a github.com/joeycumines/go-catrate
// sliding-window limiter over escalated diagnostics (programmer-misuse
// and resource-exhaustion errors, §7 kinds 1-2). rates follows catrate's
// own convention: a map of window duration to the maximum count of
// diagnostics of one sentinel kind ("invalid handle", "pool exhausted",
// etc., each tracked as its own category) allowed in that window.
// Without this option diagnostics are unthrottled. This exists so a
// sustained burst of the same misuse (a host hammering a stale handle
// in a tight loop, say) collapses to one reporter call per window
// instead of flooding it.
func WithDiagnosticRateLimit(rates map[time.Duration]int) Option {
	return optionFunc(func(c *config) error {
		for d, n := range rates {
			if d <= 0 || n <= 0 {
				return fmt.Errorf("cheapthreads: diagnostic rate limit entries must be positive, got %v: %d", d, n)
			}
		}
		c.diagnosticRates = rates
		return nil
	})
}

// WithMetrics enables step-latency and pool-occupancy tracking
// (see [Metrics] and [Scheduler.Metrics]). Disabled by default: a
// Scheduler built without this option pays no metrics overhead.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(c *config) error {
		c.metricsEnabled = enabled
		return nil
	})
}

// resolveConfig applies Option values over the §6 defaults.
func resolveConfig(opts []Option) (*config, error) {
	c := &config{
		priorityMax:      DefaultPriorityMax,
		defaultCountdown: DefaultCountdown,
		msgBufLen:        DefaultMsgBufLen,
		maxFreeMsgNode:   DefaultMaxFreeMsgNode,
		maxFreeEvent:     DefaultMaxFreeEvent,
		maxFreeSub:       DefaultMaxFreeSub,
		maxFreeHead:      DefaultMaxFreeHead,
		logger:           NewNoOpLogger(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
