package cheapthreads

import "container/list"

// evType distinguishes the two reasons an event exists: a message bound
// for one or more inboxes, versus a fire-and-forget notification no
// inbox retains.
type evType int

const (
	evMsg evType = iota
	evEnq
)

// dispatchType selects how an event's targets are chosen.
type dispatchType int

const (
	dispatchAddressee dispatchType = iota
	dispatchSubscriber
	dispatchAll
)

// event is the tagged variant the design notes call for in place of
// the source's single struct with mutually-exclusive fields: evType
// and dispatchType together determine which of the remaining fields is
// meaningful.
type event struct {
	msgType      uint32
	evType       evType
	dispatchType dispatchType
	addressee    Handle // meaningful only when dispatchType == dispatchAddressee

	inline   []byte // reused backing array, capacity fixed at msgBufLen
	owned    []byte // allocated fresh when the payload exceeds msgBufLen
	refcount int

	elem *list.Element // this event's node in the pending event-queue FIFO
}

// payload returns the event's message bytes, whichever buffer holds
// them.
func (e *event) payload() []byte {
	if e.owned != nil {
		return e.owned
	}
	return e.inline
}

// setPayload copies src into the inline buffer if it fits within cap,
// otherwise allocates an owned buffer. inlineCap is the configured
// MsgBufLen.
func (e *event) setPayload(src []byte, inlineCap int) {
	e.owned = nil
	if len(src) <= inlineCap {
		if cap(e.inline) < inlineCap {
			e.inline = make([]byte, inlineCap)
		}
		e.inline = e.inline[:len(src)]
		copy(e.inline, src)
		return
	}
	e.owned = make([]byte, len(src))
	copy(e.owned, src)
}

// reset clears e for reuse from the event pool, keeping the inline
// buffer's backing array to avoid re-allocating it.
func (e *event) reset() {
	e.msgType = 0
	e.evType = evMsg
	e.dispatchType = dispatchAddressee
	e.addressee = Handle{}
	e.inline = e.inline[:0]
	e.owned = nil
	e.refcount = 0
	e.elem = nil
}

// messageNode is an inbox entry: a thread's reference-counted claim on
// an event.
type messageNode struct {
	ev   *event
	elem *list.Element // this node's position in the owning thread's msgQ
}

func (n *messageNode) reset() {
	n.ev = nil
	n.elem = nil
}
