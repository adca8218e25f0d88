package cheapthreads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type poolProbe struct {
	n int
}

func TestPoolGetAllocatesWhenEmpty(t *testing.T) {
	p := newPool[poolProbe](2)
	assert.Equal(t, 0, p.len())
	v := p.get()
	assert.NotNil(t, v)
	assert.Equal(t, 0, v.n)
}

func TestPoolPutAndGetReuses(t *testing.T) {
	p := newPool[poolProbe](2)
	v := p.get()
	v.n = 42
	p.put(v)
	assert.Equal(t, 1, p.len())

	got := p.get()
	assert.Same(t, v, got)
	assert.Equal(t, 0, p.len())
}

// TestPoolPutDropsBeyondCap grounds §4.3's bounded free-list discipline:
// a value returned beyond the configured cap is simply dropped rather
// than retained.
func TestPoolPutDropsBeyondCap(t *testing.T) {
	p := newPool[poolProbe](1)
	p.put(&poolProbe{n: 1})
	p.put(&poolProbe{n: 2})
	assert.Equal(t, 1, p.len())
}

func TestPoolPutIgnoresNil(t *testing.T) {
	p := newPool[poolProbe](2)
	p.put(nil)
	assert.Equal(t, 0, p.len())
}

func TestNewPoolClampsNegativeCap(t *testing.T) {
	p := newPool[poolProbe](-5)
	p.put(&poolProbe{n: 1})
	assert.Equal(t, 0, p.len(), "a negative cap clamps to zero, caching nothing")
}
