package cheapthreads

// Message Transport (C5): builds events from a step's send/enqueue/
// distribute/broadcast calls and pushes them to the pending event
// queue for dispatch on the next loop iteration.

// SendMsg sends a message of the given type to a single addressee.
// Delivery silently drops if dest is stale or invalid by the time the
// event is dispatched (§7 kind 4); type 0 and [TimeoutMsgType] are
// reserved.
func (s *Scheduler) SendMsg(msgType uint32, data []byte, dest Handle) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	if msgType == 0 || msgType == TimeoutMsgType {
		return ErrReservedMsgType
	}
	s.pushEvent(s.newMsgEvent(msgType, data, dispatchAddressee, dest))
	return nil
}

// Enqueue wakes dest without delivering a message, as if an event it
// cared about occurred. It has no payload and is destructed as soon as
// it is dispatched.
func (s *Scheduler) Enqueue(dest Handle) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	s.pushEvent(s.newEnqEvent(dispatchAddressee, dest))
	return nil
}

// DistributeMsg sends a message of the given type to every current
// subscriber of that type.
func (s *Scheduler) DistributeMsg(msgType uint32, data []byte) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	if msgType == 0 || msgType == TimeoutMsgType {
		return ErrReservedMsgType
	}
	s.pushEvent(s.newMsgEvent(msgType, data, dispatchSubscriber, Handle{}))
	return nil
}

// DistributeEnq wakes every current subscriber of msgType, without a
// payload.
func (s *Scheduler) DistributeEnq(msgType uint32) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	if msgType == 0 || msgType == TimeoutMsgType {
		return ErrReservedMsgType
	}
	ev := s.newEnqEvent(dispatchSubscriber, Handle{})
	ev.msgType = msgType
	s.pushEvent(ev)
	return nil
}

// BroadcastMsg sends a message of the given type to every thread in the
// scheduler, subscribed or not.
func (s *Scheduler) BroadcastMsg(msgType uint32, data []byte) error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	if msgType == 0 || msgType == TimeoutMsgType {
		return ErrReservedMsgType
	}
	s.pushEvent(s.newMsgEvent(msgType, data, dispatchAll, Handle{}))
	return nil
}

// BroadcastEnq wakes every thread in the scheduler, without a payload.
func (s *Scheduler) BroadcastEnq() error {
	if s.currThread == nil {
		return ErrNoCurrentThread
	}
	s.pushEvent(s.newEnqEvent(dispatchAll, Handle{}))
	return nil
}

func (s *Scheduler) newMsgEvent(msgType uint32, data []byte, dt dispatchType, addressee Handle) *event {
	ev := s.eventPool.get()
	ev.msgType = msgType
	ev.evType = evMsg
	ev.dispatchType = dt
	ev.addressee = addressee
	ev.setPayload(data, s.cfg.msgBufLen)
	return ev
}

func (s *Scheduler) newEnqEvent(dt dispatchType, addressee Handle) *event {
	ev := s.eventPool.get()
	ev.msgType = 0
	ev.evType = evEnq
	ev.dispatchType = dt
	ev.addressee = addressee
	return ev
}

// Subscribe registers the given handle as a subscriber of msgType. It
// is idempotent.
func (s *Scheduler) Subscribe(msgType uint32, h Handle) error {
	return s.subs.subscribe(msgType, h)
}

// Unsubscribe removes the (msgType, h) subscription if present; benign
// if absent.
func (s *Scheduler) Unsubscribe(msgType uint32, h Handle) {
	s.subs.unsubscribe(msgType, h)
}

// UnsubscribeAll removes every subscription held by h; benign if h is
// invalid or holds none.
func (s *Scheduler) UnsubscribeAll(h Handle) {
	if t, ok := s.handles.resolve(h); ok {
		s.subs.unsubscribeAll(t)
	}
}

// QueryMsg reports the message type and payload length of the current
// thread's next pending inbox message, without dequeuing it. The
// second return is false if the inbox is empty.
func (s *Scheduler) QueryMsg() (msgType uint32, length int, ok bool) {
	if s.currThread == nil {
		return 0, 0, false
	}
	front := s.currThread.msgQ.Front()
	if front == nil {
		return 0, 0, false
	}
	ev := front.Value.(*messageNode).ev
	return ev.msgType, len(ev.payload()), true
}

// DequeueMsg copies the current thread's next pending inbox message
// into buf and removes it from the inbox, releasing the underlying
// event's reference. It reports the number of bytes copied and whether
// a message was present; if buf is shorter than the payload, the copy
// is truncated to len(buf).
func (s *Scheduler) DequeueMsg(buf []byte) (n int, ok bool) {
	if s.currThread == nil {
		return 0, false
	}
	front := s.currThread.msgQ.Front()
	if front == nil {
		return 0, false
	}
	node := front.Value.(*messageNode)
	n = copy(buf, node.ev.payload())
	s.releaseMsgNode(node)
	return n, true
}

// DiscardMsg dequeues and discards the current thread's next pending
// inbox message, if any.
func (s *Scheduler) DiscardMsg() {
	if s.currThread == nil {
		return
	}
	front := s.currThread.msgQ.Front()
	if front == nil {
		return
	}
	s.releaseMsgNode(front.Value.(*messageNode))
}

func (s *Scheduler) releaseMsgNode(node *messageNode) {
	s.currThread.msgQ.Remove(node.elem)
	node.ev.refcount--
	if node.ev.refcount == 0 {
		s.destructEvent(node.ev)
	}
	node.reset()
	s.msgNodePool.put(node)
}
