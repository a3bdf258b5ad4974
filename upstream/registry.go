package upstream

import (
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/health"
	"github.com/rs/zerolog"
)

// Registry holds the fixed set of configured nodes and mediates all state
// updates from dispatch outcomes and probe results. The node set never
// changes during the process lifetime.
type Registry struct {
	logger  *zerolog.Logger
	tracker *health.Tracker

	nodes []*Node // config order
	byId  map[string]*Node
}

func NewRegistry(logger *zerolog.Logger, cfgs []*common.NodeConfig, tracker *health.Tracker) (*Registry, error) {
	r := &Registry{
		logger:  logger,
		tracker: tracker,
		byId:    make(map[string]*Node, len(cfgs)),
	}

	for _, cfg := range cfgs {
		node, err := NewNode(logger, cfg, tracker)
		if err != nil {
			return nil, err
		}
		r.nodes = append(r.nodes, node)
		r.byId[cfg.Id] = node
	}

	return r, nil
}

// ListCandidates returns point-in-time snapshots of every node, in config
// order. Callers filter and order them; the registry stays policy-free.
func (r *Registry) ListCandidates() []NodeSnapshot {
	snapshots := make([]NodeSnapshot, len(r.nodes))
	for i, n := range r.nodes {
		snapshots[i] = n.Snapshot()
	}
	return snapshots
}

func (r *Registry) GetNode(nodeId string) (*Node, bool) {
	n, ok := r.byId[nodeId]
	return n, ok
}

// RecordOutcome feeds a live dispatch result into the health state. A
// non-positive observedHeight means the response carried no height signal.
func (r *Registry) RecordOutcome(nodeId string, success bool, latency time.Duration, observedHeight int64) {
	if success {
		r.tracker.RecordSuccess(nodeId, latency)
	} else {
		r.tracker.RecordFailure(nodeId, latency)
	}
	if observedHeight > 0 {
		r.tracker.ObserveHeight(nodeId, observedHeight)
	}
}

// MarkProbeResult feeds an active probe result into the same transition
// logic as live traffic, so thresholds apply uniformly.
func (r *Registry) MarkProbeResult(nodeId string, success bool, latency time.Duration, observedHeight int64) {
	r.RecordOutcome(nodeId, success, latency, observedHeight)
	outcome := "failure"
	if success {
		outcome = "success"
	}
	health.MetricProbeTotal.WithLabelValues(nodeId, outcome).Inc()
}

// BestHeight is the highest block number observed across all nodes.
func (r *Registry) BestHeight() int64 {
	return r.tracker.BestHeight()
}

// LeastRecentlyUnhealthy picks the fallback node for best-effort degrade
// when every node is unhealthy: the one whose last transition to unhealthy
// is oldest (it has had the longest time to recover).
func (r *Registry) LeastRecentlyUnhealthy() (NodeSnapshot, bool) {
	var best NodeSnapshot
	found := false
	for _, n := range r.nodes {
		s := n.Snapshot()
		if !found || s.LastUnhealthyAt.Before(best.LastUnhealthyAt) {
			best = s
			found = true
		}
	}
	return best, found
}

func (r *Registry) Tracker() *health.Tracker {
	return r.tracker
}

// LogHealthSnapshot emits a periodic summary of all node states.
func (r *Registry) LogHealthSnapshot() {
	for _, n := range r.nodes {
		s := n.Snapshot()
		r.logger.Info().Object("node", s).Msg("node health snapshot")
	}
}
