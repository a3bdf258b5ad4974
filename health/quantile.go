package health

import (
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/bytedance/sonic"
)

// QuantileTracker keeps a DDSketch of observed latencies (seconds) so the
// selection policy and the healthcheck endpoint can read tail latencies
// without retaining raw samples.
type QuantileTracker struct {
	mu     sync.RWMutex
	sketch *ddsketch.DDSketch
}

func NewQuantileTracker() *QuantileTracker {
	// 1% relative accuracy
	sketch, _ := ddsketch.NewDefaultDDSketch(0.01)
	return &QuantileTracker{
		sketch: sketch,
	}
}

func (q *QuantileTracker) Add(value float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sketch.Add(value)
}

func (q *QuantileTracker) P90() float64 {
	return q.GetQuantile(0.90)
}

func (q *QuantileTracker) P99() float64 {
	return q.GetQuantile(0.99)
}

func (q *QuantileTracker) GetQuantile(qtile float64) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	val, err := q.sketch.GetValueAtQuantile(qtile)
	if err != nil {
		// No data yet
		return 0
	}
	return val
}

func (q *QuantileTracker) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sketch, _ = ddsketch.NewDefaultDDSketch(0.01)
}

func (q *QuantileTracker) MarshalJSON() ([]byte, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	p90, _ := q.sketch.GetValueAtQuantile(0.90)
	p99, _ := q.sketch.GetValueAtQuantile(0.99)

	return sonic.Marshal(struct {
		P90 float64 `json:"p90"`
		P99 float64 `json:"p99"`
	}{
		P90: p90,
		P99: p99,
	})
}
