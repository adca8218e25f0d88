package cheapthreads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSetPayloadUsesInlineBufferWithinCap(t *testing.T) {
	var e event
	e.setPayload([]byte("hi"), 8)
	assert.Nil(t, e.owned)
	assert.Equal(t, []byte("hi"), e.payload())
}

func TestEventSetPayloadOwnsBufferBeyondCap(t *testing.T) {
	var e event
	big := make([]byte, 16)
	for i := range big {
		big[i] = byte(i)
	}
	e.setPayload(big, 8)
	assert.NotNil(t, e.owned)
	assert.Equal(t, big, e.payload())
}

func TestEventResetClearsFieldsButKeepsInlineBacking(t *testing.T) {
	var e event
	e.setPayload([]byte("hi"), 8)
	e.msgType = 42
	e.evType = evEnq
	e.dispatchType = dispatchAll
	e.addressee = Handle{}
	e.refcount = 3
	backing := e.inline[:cap(e.inline)]

	e.reset()

	assert.Equal(t, uint32(0), e.msgType)
	assert.Equal(t, evMsg, e.evType)
	assert.Equal(t, dispatchAddressee, e.dispatchType)
	assert.Equal(t, 0, e.refcount)
	assert.Nil(t, e.owned)
	assert.Equal(t, 0, len(e.inline))
	assert.Equal(t, cap(backing), cap(e.inline), "the inline backing array is retained across reset, not reallocated")
}

func TestMessageNodeResetClearsReferences(t *testing.T) {
	n := messageNode{ev: &event{}}
	n.reset()
	assert.Nil(t, n.ev)
	assert.Nil(t, n.elem)
}
