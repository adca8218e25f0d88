package cheapthreads

import "github.com/embeddedgo/cheapthreads/internal/assert"

// Defaults for the build/configure-time knobs of §6, overridable via
// the corresponding With* [Option].
const (
	DefaultPriorityMax    = 15
	DefaultCountdown      = 8
	DefaultMsgBufLen      = 16
	DefaultMaxFreeMsgNode = 15
	DefaultMaxFreeEvent   = 6
	DefaultMaxFreeSub     = 10
	DefaultMaxFreeHead    = 3
)

// TimeoutMsgType is the reserved message type delivered by the
// scheduler's timeout check when a thread's deadline passes. It is
// conventionally the maximum value of the type field and cannot be
// subscribed to: it is only ever delivered directly to its addressee.
const TimeoutMsgType uint32 = 0xffffffff

func assertf(cond bool, format string, args ...any) {
	assert.Assertf(cond, format, args...)
}
