package upstream

import (
	"context"
	"math/rand"
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rs/zerolog"
)

// Prober keeps node state fresh independently of client traffic: every node
// gets its own periodic lightweight chain-height call. A probe that times
// out counts as a failure; probe errors never surface to callers.
type Prober struct {
	logger   *zerolog.Logger
	registry *Registry
	cfg      *common.ProbeConfig
}

func NewProber(logger *zerolog.Logger, registry *Registry, cfg *common.ProbeConfig) *Prober {
	lg := logger.With().Str("component", "prober").Logger()
	return &Prober{
		logger:   &lg,
		registry: registry,
		cfg:      cfg,
	}
}

// Start launches one polling goroutine per node. Probes of different nodes
// never block each other.
func (p *Prober) Start(ctx context.Context) {
	for _, node := range p.registry.nodes {
		go p.pollLoop(ctx, node)
	}
}

func (p *Prober) pollLoop(ctx context.Context, node *Node) {
	ticker := time.NewTicker(p.cfg.Interval.Duration())
	defer ticker.Stop()

	p.probeNode(ctx, node)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Str("nodeId", node.Id()).Msg("shutting down prober loop")
			return
		case <-ticker.C:
			p.probeNode(ctx, node)
		}
	}
}

func (p *Prober) probeNode(ctx context.Context, node *Node) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout.Duration())
	defer cancel()

	req := &common.JsonRpcRequest{
		JSONRPC: "2.0",
		ID:      rand.Intn(10_000_000), //nolint:gosec
		Method:  p.cfg.Method,
		Params:  []interface{}{},
	}

	start := time.Now()
	resp, err := node.Client().SendRequest(probeCtx, req)
	latency := time.Since(start)

	if err != nil {
		p.logger.Debug().Err(err).Str("nodeId", node.Id()).Msg("probe failed")
		p.registry.MarkProbeResult(node.Id(), false, latency, 0)
		return
	}
	if resp.Error != nil {
		p.logger.Debug().Err(resp.Error).Str("nodeId", node.Id()).Msg("probe returned json-rpc error")
		p.registry.MarkProbeResult(node.Id(), false, latency, 0)
		return
	}

	height, err := parseHeight(resp)
	if err != nil {
		p.logger.Debug().Err(err).Str("nodeId", node.Id()).Msg("probe response has no parsable height")
		// The node answered; only the height signal is missing.
		p.registry.MarkProbeResult(node.Id(), true, latency, 0)
		return
	}

	p.logger.Trace().Str("nodeId", node.Id()).Int64("height", height).Dur("latency", latency).Msg("probe succeeded")
	p.registry.MarkProbeResult(node.Id(), true, latency, height)
}

// parseHeight understands both eth_blockNumber (hex quantity) and
// eth_getBlockByNumber (block object with a "number" field) probe results.
func parseHeight(resp *common.JsonRpcResponse) (int64, error) {
	var asString string
	if err := common.SonicCfg.Unmarshal(resp.Result, &asString); err == nil {
		return common.HexToInt64(asString)
	}

	var asBlock struct {
		Number string `json:"number"`
	}
	if err := common.SonicCfg.Unmarshal(resp.Result, &asBlock); err != nil {
		return 0, err
	}
	return common.HexToInt64(asBlock.Number)
}
