package upstream

import (
	"testing"
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotIds(snapshots []NodeSnapshot) []string {
	ids := make([]string, len(snapshots))
	for i, s := range snapshots {
		ids[i] = s.Id
	}
	return ids
}

func TestWeightedRoundRobin_Order(t *testing.T) {
	t.Run("HealthierNodesComeFirst", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		ordered := policy.Order([]NodeSnapshot{
			{Id: "degraded", Health: common.NodeDegraded, Weight: 10},
			{Id: "healthy", Health: common.NodeHealthy, Weight: 1},
		})
		assert.Equal(t, []string{"healthy", "degraded"}, snapshotIds(ordered))
	})

	t.Run("LowerLatencyPreferred", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		ordered := policy.Order([]NodeSnapshot{
			{Id: "slow", Health: common.NodeHealthy, Weight: 1, LatencyEMA: 800 * time.Millisecond},
			{Id: "fast", Health: common.NodeHealthy, Weight: 1, LatencyEMA: 20 * time.Millisecond},
		})
		assert.Equal(t, "fast", ordered[0].Id)
	})

	t.Run("LessLoadedPreferred", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		ordered := policy.Order([]NodeSnapshot{
			{Id: "busy", Health: common.NodeHealthy, Weight: 1, InFlight: 50},
			{Id: "idle", Health: common.NodeHealthy, Weight: 1, InFlight: 0},
		})
		assert.Equal(t, "idle", ordered[0].Id)
	})

	t.Run("HigherWeightOffsetsLatency", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		ordered := policy.Order([]NodeSnapshot{
			{Id: "light", Health: common.NodeHealthy, Weight: 1, LatencyEMA: 100 * time.Millisecond},
			{Id: "heavy", Health: common.NodeHealthy, Weight: 10, LatencyEMA: 300 * time.Millisecond},
		})
		assert.Equal(t, "heavy", ordered[0].Id)
	})

	t.Run("EqualNodesRotate", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		candidates := []NodeSnapshot{
			{Id: "a", Health: common.NodeHealthy, Weight: 1},
			{Id: "b", Health: common.NodeHealthy, Weight: 1},
		}

		heads := map[string]int{}
		for i := 0; i < 10; i++ {
			heads[policy.Order(candidates)[0].Id]++
		}

		// Ties must not pin all traffic on one node.
		assert.Equal(t, 5, heads["a"])
		assert.Equal(t, 5, heads["b"])
	})

	t.Run("InputIsNotMutated", func(t *testing.T) {
		policy := NewWeightedRoundRobin()
		candidates := []NodeSnapshot{
			{Id: "slow", Health: common.NodeHealthy, Weight: 1, LatencyEMA: 800 * time.Millisecond},
			{Id: "fast", Health: common.NodeHealthy, Weight: 1, LatencyEMA: 20 * time.Millisecond},
		}
		_ = policy.Order(candidates)
		assert.Equal(t, "slow", candidates[0].Id)
	})
}

func TestFilterRoutable(t *testing.T) {
	routable := FilterRoutable([]NodeSnapshot{
		{Id: "healthy", Health: common.NodeHealthy},
		{Id: "degraded", Health: common.NodeDegraded},
		{Id: "unhealthy", Health: common.NodeUnhealthy},
	})

	require.Len(t, routable, 2)
	assert.Equal(t, []string{"healthy", "degraded"}, snapshotIds(routable))
}

func TestPreferHigherHeight(t *testing.T) {
	candidates := []NodeSnapshot{
		{Id: "behind-1", LastKnownHeight: 90},
		{Id: "ahead-1", LastKnownHeight: 150},
		{Id: "behind-2", LastKnownHeight: 100},
		{Id: "ahead-2", LastKnownHeight: 160},
	}

	reordered := PreferHigherHeight(candidates, 146)
	assert.Equal(t, []string{"ahead-1", "ahead-2", "behind-1", "behind-2"}, snapshotIds(reordered))

	// Without a target the order is untouched.
	same := PreferHigherHeight(candidates, 0)
	assert.Equal(t, snapshotIds(candidates), snapshotIds(same))
}
