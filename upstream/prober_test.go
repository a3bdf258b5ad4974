package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/health"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProbeFixture(t *testing.T, method string) (*Prober, *Registry, *health.Tracker) {
	t.Helper()
	logger := zerolog.Nop()
	tracker := health.NewTracker(&logger, 3, 2, 0.2)

	registry, err := NewRegistry(&logger, []*common.NodeConfig{
		{Id: "node-a", Endpoint: "http://rpc1.localhost:8545", Weight: 1},
	}, tracker)
	require.NoError(t, err)

	prober := NewProber(&logger, registry, &common.ProbeConfig{
		Interval: common.Duration(time.Minute),
		Timeout:  common.Duration(time.Second),
		Method:   method,
	})
	return prober, registry, tracker
}

func TestProber_ProbeNode(t *testing.T) {
	t.Run("SuccessfulProbeFeedsHeight", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			Reply(200).
			JSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x64"})

		prober, registry, tracker := newProbeFixture(t, "eth_blockNumber")
		node, _ := registry.GetNode("node-a")
		prober.probeNode(context.Background(), node)

		m := tracker.GetNodeMetrics("node-a")
		assert.Equal(t, common.NodeHealthy, m.Health())
		assert.Equal(t, int64(100), m.LastKnownHeight())
		assert.Equal(t, int64(100), registry.BestHeight())
	})

	t.Run("BlockObjectProbeFeedsHeight", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			Reply(200).
			JSON(map[string]interface{}{
				"jsonrpc": "2.0", "id": 1,
				"result": map[string]interface{}{"number": "0x96", "hash": "0xdeadbeef"},
			})

		prober, registry, tracker := newProbeFixture(t, "eth_getBlockByNumber")
		node, _ := registry.GetNode("node-a")
		prober.probeNode(context.Background(), node)

		assert.Equal(t, int64(150), tracker.GetNodeMetrics("node-a").LastKnownHeight())
	})

	t.Run("TransportFailureIsAHealthSignal", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			ReplyError(assert.AnError)

		prober, registry, tracker := newProbeFixture(t, "eth_blockNumber")
		node, _ := registry.GetNode("node-a")
		prober.probeNode(context.Background(), node)

		m := tracker.GetNodeMetrics("node-a")
		assert.Equal(t, common.NodeDegraded, m.Health())
		assert.Equal(t, int64(1), m.ConsecutiveFailures())
	})

	t.Run("JsonRpcErrorIsAHealthSignal", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			Reply(200).
			JSON(map[string]interface{}{
				"jsonrpc": "2.0", "id": 1,
				"error": map[string]interface{}{"code": -32000, "message": "node is not ready"},
			})

		prober, registry, tracker := newProbeFixture(t, "eth_blockNumber")
		node, _ := registry.GetNode("node-a")
		prober.probeNode(context.Background(), node)

		assert.Equal(t, common.NodeDegraded, tracker.GetNodeMetrics("node-a").Health())
	})

	t.Run("UnparsableHeightStillCountsAsSuccess", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			Reply(200).
			JSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "not-a-quantity"})

		prober, registry, tracker := newProbeFixture(t, "eth_blockNumber")
		node, _ := registry.GetNode("node-a")
		prober.probeNode(context.Background(), node)

		m := tracker.GetNodeMetrics("node-a")
		assert.Equal(t, common.NodeHealthy, m.Health())
		assert.Equal(t, int64(0), m.LastKnownHeight())
	})

	t.Run("RepeatedFailuresMarkUnhealthy", func(t *testing.T) {
		defer gock.Off()

		gock.New("http://rpc1.localhost:8545").
			Post("/").
			Times(3).
			ReplyError(assert.AnError)

		prober, registry, tracker := newProbeFixture(t, "eth_blockNumber")
		node, _ := registry.GetNode("node-a")
		for i := 0; i < 3; i++ {
			prober.probeNode(context.Background(), node)
		}

		assert.Equal(t, common.NodeUnhealthy, tracker.GetNodeMetrics("node-a").Health())
	})
}

func TestRegistry_LeastRecentlyUnhealthy(t *testing.T) {
	logger := zerolog.Nop()
	tracker := health.NewTracker(&logger, 1, 2, 0.2)

	registry, err := NewRegistry(&logger, []*common.NodeConfig{
		{Id: "node-a", Endpoint: "http://rpc1.localhost:8545", Weight: 1},
		{Id: "node-b", Endpoint: "http://rpc2.localhost:8545", Weight: 1},
	}, tracker)
	require.NoError(t, err)

	tracker.RecordFailure("node-a", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	tracker.RecordFailure("node-b", time.Millisecond)

	fallback, ok := registry.LeastRecentlyUnhealthy()
	require.True(t, ok)
	assert.Equal(t, "node-a", fallback.Id)
}
