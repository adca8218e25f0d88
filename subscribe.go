package cheapthreads

import "container/list"

// subscription is a (type, handle) pair that belongs simultaneously to
// the subscribing thread's subscription list and to the circular list
// of every subscriber to type — modeled here as two independent
// container/list memberships sharing one backing struct, since Go's
// list.Element already gives O(1) unlink without a hand-rolled
// doubly-linked cross-link.
type subscription struct {
	msgType uint32
	handle  Handle

	threadElem *list.Element // this subscription's node in its thread's subs list
	typeElem   *list.Element // this subscription's node in its subHead's subs list
	head       *subHead      // owning subHead, for typeElem's list identity
}

func (s *subscription) reset() {
	s.msgType = 0
	s.handle = Handle{}
	s.threadElem = nil
	s.typeElem = nil
	s.head = nil
}

// subHead anchors the list of every subscriber to one message type. All
// live heads are kept in the dispatcher's outer list, strictly ordered
// ascending by msgType (invariant 6).
type subHead struct {
	msgType uint32
	subs    list.List // of *subscription

	outerElem *list.Element // this head's node in the dispatcher's outer list
}

func (h *subHead) reset() {
	h.msgType = 0
	h.subs.Init()
	h.outerElem = nil
}

// subscriptionDispatcher is the publish/subscribe registry (C4): a
// sorted outer list of per-type heads, each anchoring the set of
// threads subscribed to that type.
type subscriptionDispatcher struct {
	heads    list.List // of *subHead, sorted ascending by msgType
	subs     *pool[subscription]
	subHeads *pool[subHead]
	handles  *handleRegistry
}

func newSubscriptionDispatcher(handles *handleRegistry, subCap, headCap int) *subscriptionDispatcher {
	return &subscriptionDispatcher{
		subs:     newPool[subscription](subCap),
		subHeads: newPool[subHead](headCap),
		handles:  handles,
	}
}

// seek returns the outer-list element of the first head with
// msgType >= target, or nil if every head's type is smaller.
func (d *subscriptionDispatcher) seek(target uint32) *list.Element {
	for e := d.heads.Front(); e != nil; e = e.Next() {
		if e.Value.(*subHead).msgType >= target {
			return e
		}
	}
	return nil
}

// findOrCreate returns the head for msgType, creating and correctly
// positioning a new one if none exists.
func (d *subscriptionDispatcher) findOrCreate(msgType uint32) *subHead {
	mark := d.seek(msgType)
	if mark != nil {
		if h := mark.Value.(*subHead); h.msgType == msgType {
			return h
		}
	}
	h := d.subHeads.get()
	h.msgType = msgType
	if mark == nil {
		h.outerElem = d.heads.PushBack(h)
	} else {
		h.outerElem = d.heads.InsertBefore(h, mark)
	}
	return h
}

// find returns the existing head for msgType, or nil.
func (d *subscriptionDispatcher) find(msgType uint32) *subHead {
	mark := d.seek(msgType)
	if mark == nil {
		return nil
	}
	if h := mark.Value.(*subHead); h.msgType == msgType {
		return h
	}
	return nil
}

// discard removes an emptied head from the outer list and returns it
// to the pool.
func (d *subscriptionDispatcher) discard(h *subHead) {
	d.heads.Remove(h.outerElem)
	h.reset()
	d.subHeads.put(h)
}

// subscribe registers thread as a subscriber of msgType. It is
// idempotent: a thread already subscribed to msgType is left alone.
// msgType 0 and TimeoutMsgType are reserved, per §9's resolution that
// timeouts are delivered only by direct addressee, never fanned out.
func (d *subscriptionDispatcher) subscribe(msgType uint32, h Handle) error {
	if msgType == 0 || msgType == TimeoutMsgType {
		return ErrReservedMsgType
	}
	t, ok := d.handles.resolve(h)
	if !ok {
		return invalidHandleError(h)
	}
	for e := t.subs.Front(); e != nil; e = e.Next() {
		if e.Value.(*subscription).msgType == msgType {
			return nil
		}
	}
	head := d.findOrCreate(msgType)
	s := d.subs.get()
	s.msgType = msgType
	s.handle = h
	s.head = head
	s.threadElem = t.subs.PushFront(s)
	s.typeElem = head.subs.PushFront(s)
	return nil
}

// unsubscribe removes the (msgType, h) subscription if present. An
// invalid handle, or a handle not subscribed to msgType, is silently
// ignored (benign invalidity, per §7 kind 4).
func (d *subscriptionDispatcher) unsubscribe(msgType uint32, h Handle) {
	t, ok := d.handles.resolve(h)
	if !ok {
		return
	}
	for e := t.subs.Front(); e != nil; e = e.Next() {
		s := e.Value.(*subscription)
		if s.msgType != msgType {
			continue
		}
		d.unlinkOne(t, s)
		return
	}
}

// unsubscribeAll destructs the thread's entire subscription list.
func (d *subscriptionDispatcher) unsubscribeAll(t *Thread) {
	for e := t.subs.Front(); e != nil; {
		s := e.Value.(*subscription)
		next := e.Next() // captured before unlinking, per §9 resolution
		assertf(s.threadElem != nil && s.typeElem != nil, "unsubscribeAll: subscription with nil list membership")
		d.unlinkOne(t, s)
		e = next
	}
}

// unlinkOne removes s from both its owning lists and discards its head
// if that empties the type's subscriber list (invariant 5).
func (d *subscriptionDispatcher) unlinkOne(t *Thread, s *subscription) {
	t.subs.Remove(s.threadElem)
	head := s.head
	head.subs.Remove(s.typeElem)
	if head.subs.Len() == 0 {
		d.discard(head)
	}
	s.reset()
	d.subs.put(s)
}

// dispatchSubscription delivers ev to every current subscriber of
// ev.msgType, via deliver. Iteration order within one type's subscriber
// list is unspecified but stable for a fixed subscription set.
func (d *subscriptionDispatcher) dispatchSubscription(ev *event, deliver func(*Thread)) {
	head := d.find(ev.msgType)
	if head == nil {
		return
	}
	for e := head.subs.Front(); e != nil; e = e.Next() {
		s := e.Value.(*subscription)
		if t, ok := d.handles.resolve(s.handle); ok {
			deliver(t)
		}
	}
}
