package upstream

import (
	"sort"
	"sync/atomic"

	"github.com/rpcmux/rpcmux/common"
)

// SelectionPolicy orders candidate nodes by preference for one dispatch
// attempt. The dispatcher walks the result and retries down the list, so the
// policy never needs to know about attempt counts or exclusions.
type SelectionPolicy interface {
	Order(candidates []NodeSnapshot) []NodeSnapshot
}

// WeightedRoundRobin prefers healthier, lower-latency, less-loaded nodes,
// scaled by configured weight. Nodes that are indistinguishable by score are
// rotated round-robin so cold starts spread load evenly.
type WeightedRoundRobin struct {
	counter atomic.Uint64
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{}
}

func (w *WeightedRoundRobin) Order(candidates []NodeSnapshot) []NodeSnapshot {
	if len(candidates) <= 1 {
		return candidates
	}

	ordered := make([]NodeSnapshot, len(candidates))
	copy(ordered, candidates)

	scores := make(map[string]float64, len(ordered))
	for _, s := range ordered {
		scores[s.Id] = nodeScore(s)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Health != b.Health {
			// Healthy < Degraded < Unhealthy by enum value
			return a.Health < b.Health
		}
		sa, sb := scores[a.Id], scores[b.Id]
		if sa != sb {
			return sa > sb
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.Id < b.Id
	})

	// Rotate the leading group of equally scored nodes so ties do not pin
	// all traffic on the lexicographically first node.
	group := 1
	for group < len(ordered) &&
		ordered[group].Health == ordered[0].Health &&
		scores[ordered[group].Id] == scores[ordered[0].Id] &&
		ordered[group].Weight == ordered[0].Weight {
		group++
	}
	if group > 1 {
		offset := int(w.counter.Add(1)-1) % group
		rotated := make([]NodeSnapshot, 0, len(ordered))
		rotated = append(rotated, ordered[offset:group]...)
		rotated = append(rotated, ordered[:offset]...)
		ordered = append(rotated, ordered[group:]...)
	}

	return ordered
}

// nodeScore is a monotonic combination of weight, latency and load: higher
// weight raises it, higher observed latency or in-flight count lowers it.
// The exact curve is a tuning choice, not a contract.
func nodeScore(s NodeSnapshot) float64 {
	latencySecs := s.LatencyEMA.Seconds()
	return float64(s.Weight) / ((1 + latencySecs) * (1 + float64(s.InFlight)))
}

// FilterRoutable drops unhealthy nodes from a candidate set.
func FilterRoutable(candidates []NodeSnapshot) []NodeSnapshot {
	routable := make([]NodeSnapshot, 0, len(candidates))
	for _, s := range candidates {
		if s.Health != common.NodeUnhealthy {
			routable = append(routable, s)
		}
	}
	return routable
}

// PreferHigherHeight reorders candidates so nodes at or above the target
// height come first, preserving relative order within each group. Used on
// retries of height-sensitive requests with a strict tolerance.
func PreferHigherHeight(candidates []NodeSnapshot, minHeight int64) []NodeSnapshot {
	if minHeight <= 0 {
		return candidates
	}
	ahead := make([]NodeSnapshot, 0, len(candidates))
	behind := make([]NodeSnapshot, 0, len(candidates))
	for _, s := range candidates {
		if s.LastKnownHeight >= minHeight {
			ahead = append(ahead, s)
		} else {
			behind = append(behind, s)
		}
	}
	return append(ahead, behind...)
}
