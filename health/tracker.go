package health

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rs/zerolog"
)

// NodeMetrics is the live mutable state of one node. Counters are atomics so
// readers never block the dispatch path; health transitions take the small
// per-node mutex because they span multiple fields.
type NodeMetrics struct {
	LatencyQuantiles *QuantileTracker

	latencyEMABits       atomic.Uint64 // float64 seconds
	consecutiveFailures  atomic.Int64
	consecutiveSuccesses atomic.Int64
	state                atomic.Int32
	lastKnownHeight      atomic.Int64
	inFlight             atomic.Int64
	lastUnhealthyAt      atomic.Int64 // unix nanos, 0 = never

	requestsTotal atomic.Int64
	errorsTotal   atomic.Int64

	transitionMu sync.Mutex
}

func (m *NodeMetrics) Health() common.NodeHealth {
	return common.NodeHealth(m.state.Load())
}

func (m *NodeMetrics) LatencyEMA() time.Duration {
	secs := math.Float64frombits(m.latencyEMABits.Load())
	return time.Duration(secs * float64(time.Second))
}

func (m *NodeMetrics) ConsecutiveFailures() int64 {
	return m.consecutiveFailures.Load()
}

func (m *NodeMetrics) InFlight() int64 {
	return m.inFlight.Load()
}

func (m *NodeMetrics) LastKnownHeight() int64 {
	return m.lastKnownHeight.Load()
}

func (m *NodeMetrics) LastUnhealthyAt() time.Time {
	ns := m.lastUnhealthyAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *NodeMetrics) ErrorRate() float64 {
	reqs := m.requestsTotal.Load()
	if reqs == 0 {
		return 0
	}
	return float64(m.errorsTotal.Load()) / float64(reqs)
}

func (m *NodeMetrics) MarshalJSON() ([]byte, error) {
	return common.SonicCfg.Marshal(map[string]interface{}{
		"health":               m.Health().String(),
		"latencyEmaMs":         m.LatencyEMA().Milliseconds(),
		"latencyQuantiles":     m.LatencyQuantiles,
		"consecutiveFailures":  m.consecutiveFailures.Load(),
		"lastKnownHeight":      m.lastKnownHeight.Load(),
		"inFlight":             m.inFlight.Load(),
		"requestsTotal":        m.requestsTotal.Load(),
		"errorsTotal":          m.errorsTotal.Load(),
	})
}

// Tracker owns the health/latency/height state of all nodes. It is fed by
// both passive dispatch outcomes and active probe results; both go through
// the same transition logic so the thresholds apply uniformly.
type Tracker struct {
	logger            *zerolog.Logger
	failureThreshold  int64
	recoveryThreshold int64
	alpha             float64

	mu    sync.RWMutex
	nodes map[string]*NodeMetrics

	bestHeight atomic.Int64
}

func NewTracker(logger *zerolog.Logger, failureThreshold, recoveryThreshold int, alpha float64) *Tracker {
	return &Tracker{
		logger:            logger,
		failureThreshold:  int64(failureThreshold),
		recoveryThreshold: int64(recoveryThreshold),
		alpha:             alpha,
		nodes:             make(map[string]*NodeMetrics),
	}
}

// Register creates the metrics slot for a node. The node set is fixed per
// configuration load, so this is only called during bootstrap.
func (t *Tracker) Register(nodeId string) *NodeMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.nodes[nodeId]; ok {
		return m
	}
	m := &NodeMetrics{
		LatencyQuantiles: NewQuantileTracker(),
	}
	t.nodes[nodeId] = m
	MetricNodeHealth.WithLabelValues(nodeId).Set(float64(common.NodeHealthy))
	return m
}

func (t *Tracker) getNode(nodeId string) *NodeMetrics {
	t.mu.RLock()
	m := t.nodes[nodeId]
	t.mu.RUnlock()
	return m
}

// RecordSuccess resets the failure streak, applies the latency EMA and runs
// the recovery side of the transition table.
func (t *Tracker) RecordSuccess(nodeId string, latency time.Duration) {
	m := t.getNode(nodeId)
	if m == nil {
		return
	}

	m.requestsTotal.Add(1)
	t.observeLatency(m, nodeId, latency)

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.consecutiveFailures.Store(0)
	successes := m.consecutiveSuccesses.Add(1)

	switch common.NodeHealth(m.state.Load()) {
	case common.NodeDegraded:
		t.setState(m, nodeId, common.NodeHealthy)
	case common.NodeUnhealthy:
		if successes >= t.recoveryThreshold {
			t.setState(m, nodeId, common.NodeHealthy)
		}
	}
}

// RecordFailure counts a transport-level failure or timeout. A latency of 0
// means no meaningful sample (e.g. connection refused).
func (t *Tracker) RecordFailure(nodeId string, latency time.Duration) {
	m := t.getNode(nodeId)
	if m == nil {
		return
	}

	m.requestsTotal.Add(1)
	m.errorsTotal.Add(1)
	if latency > 0 {
		t.observeLatency(m, nodeId, latency)
	}

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	m.consecutiveSuccesses.Store(0)
	failures := m.consecutiveFailures.Add(1)

	switch common.NodeHealth(m.state.Load()) {
	case common.NodeHealthy:
		if failures >= t.failureThreshold {
			t.setState(m, nodeId, common.NodeUnhealthy)
		} else {
			t.setState(m, nodeId, common.NodeDegraded)
		}
	case common.NodeDegraded:
		if failures >= t.failureThreshold {
			t.setState(m, nodeId, common.NodeUnhealthy)
		}
	}
}

func (t *Tracker) setState(m *NodeMetrics, nodeId string, next common.NodeHealth) {
	prev := common.NodeHealth(m.state.Swap(int32(next)))
	if prev == next {
		return
	}
	if next == common.NodeUnhealthy {
		m.lastUnhealthyAt.Store(time.Now().UnixNano())
	}
	MetricNodeHealth.WithLabelValues(nodeId).Set(float64(next))
	t.logger.Info().
		Str("nodeId", nodeId).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("node health transition")
}

func (t *Tracker) observeLatency(m *NodeMetrics, nodeId string, latency time.Duration) {
	secs := latency.Seconds()
	m.LatencyQuantiles.Add(secs)

	// EMA via CAS so concurrent samples never lose each other entirely.
	for {
		oldBits := m.latencyEMABits.Load()
		old := math.Float64frombits(oldBits)
		var next float64
		if old == 0 {
			next = secs
		} else {
			next = t.alpha*secs + (1-t.alpha)*old
		}
		if m.latencyEMABits.CompareAndSwap(oldBits, math.Float64bits(next)) {
			break
		}
	}
	MetricNodeRequestDuration.WithLabelValues(nodeId).Observe(secs)
}

// ObserveHeight records a block height reported by a node. Heights are
// monotonic per node within a session; stale reads never regress state.
func (t *Tracker) ObserveHeight(nodeId string, height int64) {
	if height <= 0 {
		return
	}
	m := t.getNode(nodeId)
	if m == nil {
		return
	}

	for {
		old := m.lastKnownHeight.Load()
		if height <= old {
			break
		}
		if m.lastKnownHeight.CompareAndSwap(old, height) {
			MetricNodeLatestHeight.WithLabelValues(nodeId).Set(float64(height))
			break
		}
	}

	for {
		old := t.bestHeight.Load()
		if height <= old {
			break
		}
		if t.bestHeight.CompareAndSwap(old, height) {
			break
		}
	}

	MetricNodeHeadLag.WithLabelValues(nodeId).Set(float64(t.bestHeight.Load() - m.lastKnownHeight.Load()))
}

// BestHeight is the highest block number observed across all nodes.
func (t *Tracker) BestHeight() int64 {
	return t.bestHeight.Load()
}

func (t *Tracker) InFlightStart(nodeId string) {
	if m := t.getNode(nodeId); m != nil {
		MetricNodeInFlight.WithLabelValues(nodeId).Set(float64(m.inFlight.Add(1)))
	}
}

func (t *Tracker) InFlightDone(nodeId string) {
	if m := t.getNode(nodeId); m != nil {
		MetricNodeInFlight.WithLabelValues(nodeId).Set(float64(m.inFlight.Add(-1)))
	}
}

// GetNodeMetrics returns the live metrics handle of a node (nil if unknown).
func (t *Tracker) GetNodeMetrics(nodeId string) *NodeMetrics {
	return t.getNode(nodeId)
}

// AllNodeMetrics returns a copy of the node => metrics map for reporting.
func (t *Tracker) AllNodeMetrics() map[string]*NodeMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*NodeMetrics, len(t.nodes))
	for id, m := range t.nodes {
		out[id] = m
	}
	return out
}
