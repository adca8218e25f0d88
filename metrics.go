package cheapthreads

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for a Scheduler. It is entirely
// optional: a Scheduler built without [WithMetrics] leaves this nil and
// pays no overhead for it. Where a [Thread]'s step functions run on a
// single goroutine (per the package's thread-safety contract), Metrics
// is written from that goroutine and read from whichever goroutine the
// host's monitoring code lives on, so its accessors stay synchronized.
//
// Example:
//
//	sched, _ := cheapthreads.New(cheapthreads.WithMetrics(true))
//	// ... run sched.Schedule() on its own goroutine ...
//	stats := sched.Metrics()
//	fmt.Printf("dispatch rate: %.1f/s, P99 step: %v\n", stats.DispatchRate, stats.Step.P99)
type Metrics struct {
	// Step tracks the wall-clock duration of each thread step.
	Step StepLatencyMetrics

	// Pools tracks occupancy of the bounded free-list allocators (§4.3).
	Pools PoolMetrics

	mu sync.Mutex

	// DispatchRate is the current steps-per-second rate, over a rolling
	// window (see [dispatchRateCounter]).
	DispatchRate float64

	// ScrunchCount counts completed §4.1c scrunch cycles.
	ScrunchCount int64
}

// StepLatencyMetrics tracks step-duration distribution with
// percentiles, using the P-Square algorithm for O(1) streaming
// percentile estimation.
type StepLatencyMetrics struct {
	psquare *pSquareMultiQuantile

	mu sync.RWMutex

	// sample buffer retained for exact percentiles while the sample
	// count is still small enough for P-Square's asymptotic estimate
	// to be unreliable.
	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	// Computed percentiles (cached after Sample() call).
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// sampleSize is the maximum number of step-duration samples retained
// for the exact-percentile fallback.
const sampleSize = 1000

// Record records a step's duration. Called internally by
// [Scheduler.runStep] after every step, when metrics are enabled.
func (l *StepLatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)
	}
	l.psquare.Update(float64(duration))

	if l.sampleCount >= sampleSize {
		old := l.samples[l.sampleIdx]
		l.Sum -= old
	}
	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentiles from the samples collected
// so far and returns the number of samples used.
func (l *StepLatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P95 = sorted[percentileIndex(count, 95)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P95 = time.Duration(l.psquare.Quantile(2))
	l.P99 = time.Duration(l.psquare.Quantile(3))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// PoolMetrics tracks occupancy of the four bounded free-list
// allocators of §4.3 (message nodes, events, subscriptions,
// subscription-type heads). Current is the live free-list length;
// Max is the highest Current has ever reached; Avg is an exponential
// moving average (alpha=0.1), warm-started to the first sample.
type PoolMetrics struct {
	mu sync.RWMutex

	MsgNodeCurrent, EventCurrent, SubCurrent, HeadCurrent int
	MsgNodeMax, EventMax, SubMax, HeadMax                 int
	MsgNodeAvg, EventAvg, SubAvg, HeadAvg                 float64

	msgNodeEMAInit, eventEMAInit, subEMAInit, headEMAInit bool
}

func updateEMA(current float64, depth int, initialized *bool) float64 {
	if !*initialized {
		*initialized = true
		return float64(depth)
	}
	return 0.9*current + 0.1*float64(depth)
}

// update records one occupancy sample for each of the four pools.
func (q *PoolMetrics) update(msgNode, event, sub, head int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.MsgNodeCurrent = msgNode
	if msgNode > q.MsgNodeMax {
		q.MsgNodeMax = msgNode
	}
	q.MsgNodeAvg = updateEMA(q.MsgNodeAvg, msgNode, &q.msgNodeEMAInit)

	q.EventCurrent = event
	if event > q.EventMax {
		q.EventMax = event
	}
	q.EventAvg = updateEMA(q.EventAvg, event, &q.eventEMAInit)

	q.SubCurrent = sub
	if sub > q.SubMax {
		q.SubMax = sub
	}
	q.SubAvg = updateEMA(q.SubAvg, sub, &q.subEMAInit)

	q.HeadCurrent = head
	if head > q.HeadMax {
		q.HeadMax = head
	}
	q.HeadAvg = updateEMA(q.HeadAvg, head, &q.headEMAInit)
}

// dispatchRateCounter tracks dispatched steps per second with a rolling
// window of fixed-duration buckets.
type dispatchRateCounter struct {
	lastRotation atomic.Value // time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// newDispatchRateCounter creates a counter with the given rolling
// window and bucket granularity; both must be positive and bucketSize
// must not exceed windowSize.
func newDispatchRateCounter(windowSize, bucketSize time.Duration) *dispatchRateCounter {
	if windowSize <= 0 {
		panic("cheapthreads: windowSize must be positive")
	}
	if bucketSize <= 0 {
		panic("cheapthreads: bucketSize must be positive")
	}
	if bucketSize > windowSize {
		panic("cheapthreads: bucketSize cannot exceed windowSize")
	}

	bucketCount := int(windowSize / bucketSize)
	c := &dispatchRateCounter{
		buckets:    make([]int64, bucketCount),
		bucketSize: bucketSize,
		windowSize: windowSize,
	}
	c.lastRotation.Store(time.Now())
	return c
}

// Increment records one dispatched step.
func (c *dispatchRateCounter) Increment() {
	c.rotate()
	c.mu.Lock()
	c.buckets[len(c.buckets)-1]++
	c.mu.Unlock()
}

func (c *dispatchRateCounter) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	lastRotation := c.lastRotation.Load().(time.Time)
	elapsed := now.Sub(lastRotation)

	advance := int64(elapsed) / int64(c.bucketSize)
	if advance < 0 || advance > int64(len(c.buckets)) {
		advance = int64(len(c.buckets))
	}

	if int(advance) >= len(c.buckets) {
		for i := range c.buckets {
			c.buckets[i] = 0
		}
		c.lastRotation.Store(now)
		return
	}
	if advance <= 0 {
		return
	}

	copy(c.buckets, c.buckets[advance:])
	for i := len(c.buckets) - int(advance); i < len(c.buckets); i++ {
		c.buckets[i] = 0
	}
	c.lastRotation.Store(lastRotation.Add(time.Duration(advance) * c.bucketSize))
}

// Rate returns the current dispatches-per-second rate.
func (c *dispatchRateCounter) Rate() float64 {
	c.rotate()

	c.mu.Lock()
	defer c.mu.Unlock()

	var sum int64
	for _, count := range c.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}
	monitored := float64(len(c.buckets)) * c.bucketSize.Seconds()
	return float64(sum) / monitored
}
