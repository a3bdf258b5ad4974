package rpcmux

import (
	"context"
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/data"
	"github.com/rpcmux/rpcmux/health"
	"github.com/rpcmux/rpcmux/upstream"
	"github.com/rs/zerolog"
)

// Dispatcher orchestrates a single request end to end: admission, cache
// lookup, candidate selection, forwarding and outcome bookkeeping, with
// bounded failover across nodes.
type Dispatcher struct {
	logger    *zerolog.Logger
	cfg       *common.Config
	registry  *upstream.Registry
	cache     *data.Cache
	admission *Admission
	policy    upstream.SelectionPolicy
}

func NewDispatcher(
	logger *zerolog.Logger,
	cfg *common.Config,
	registry *upstream.Registry,
	cache *data.Cache,
	admission *Admission,
	policy upstream.SelectionPolicy,
) *Dispatcher {
	lg := logger.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		logger:    &lg,
		cfg:       cfg,
		registry:  registry,
		cache:     cache,
		admission: admission,
		policy:    policy,
	}
}

func (d *Dispatcher) Forward(ctx context.Context, req *common.NormalizedRequest) (*common.JsonRpcResponse, error) {
	permit, err := d.admission.TryAcquire()
	if err != nil {
		health.MetricRequestTotal.WithLabelValues("n/a", "admission_rejected").Inc()
		return nil, err
	}
	defer permit.Release()

	jrr, err := req.JsonRpcRequest()
	if err != nil {
		return nil, err
	}
	method := jrr.Method

	policy := data.PolicyFor(method, jrr.Params, d.cfg.Cache.ImmutableTTL.Duration())
	cacheable := policy.Mode != data.ValidityNone

	var cacheKey string
	if cacheable {
		key, err := jrr.CacheHash()
		if err != nil {
			d.logger.Debug().Err(err).Str("method", method).Msg("could not derive cache key")
		} else {
			cacheKey = key
			if !req.SkipCacheRead() {
				if val, ok := d.cache.Get(key); ok {
					health.MetricCacheHitTotal.WithLabelValues(method).Inc()
					health.MetricRequestTotal.WithLabelValues(method, "cache_hit").Inc()
					d.logger.Debug().Str("method", method).Bool("cacheHit", true).Msg("request served from cache")
					return &common.JsonRpcResponse{
						JSONRPC: "2.0",
						ID:      jrr.ID,
						Result:  val,
					}, nil
				}
				health.MetricCacheMissTotal.WithLabelValues(method).Inc()
			}
		}
	}

	heightSensitive := common.IsHeightSensitive(method, jrr.Params)
	tolerance := d.cfg.Routing.HeightLagTolerance

	candidates := upstream.FilterRoutable(d.registry.ListCandidates())
	if len(candidates) == 0 {
		if d.cfg.DegradeFallback() {
			if fb, ok := d.registry.LeastRecentlyUnhealthy(); ok {
				d.logger.Warn().Str("nodeId", fb.Id).Msg("no routable node available, degrading to least-recently-unhealthy node")
				candidates = []upstream.NodeSnapshot{fb}
			}
		}
		if len(candidates) == 0 {
			health.MetricRequestTotal.WithLabelValues(method, "no_healthy_nodes").Inc()
			return nil, common.NewErrNoHealthyNodes()
		}
	}

	excluded := make(map[string]bool, len(candidates))
	var lastErr error
	var laggedResp *common.JsonRpcResponse
	var laggedHeight int64
	var minHeight int64
	attempts := 0

	for attempts < d.cfg.Routing.MaxAttempts {
		remaining := candidates[:0:0]
		for _, s := range candidates {
			if !excluded[s.Id] {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			break
		}

		ordered := d.policy.Order(remaining)
		if heightSensitive && minHeight > 0 {
			ordered = upstream.PreferHigherHeight(ordered, minHeight)
		}
		snap := ordered[0]

		node, ok := d.registry.GetNode(snap.Id)
		if !ok {
			excluded[snap.Id] = true
			continue
		}

		nodePermit, ok := d.admission.TryAcquireNode(snap.Id)
		if !ok {
			// Per-node backpressure only removes this node from the current
			// request; it is not a dispatch attempt and not a health signal.
			excluded[snap.Id] = true
			continue
		}

		attempts++
		resp, latency, err := d.attempt(ctx, node, jrr)
		nodePermit.Release()

		if err != nil {
			d.registry.RecordOutcome(snap.Id, false, latency, 0)
			health.MetricNodeErrorTotal.WithLabelValues(snap.Id, method, errorCode(err)).Inc()
			d.emitOutcome(snap.Id, method, latency, false)
			lastErr = err
			excluded[snap.Id] = true
			continue
		}

		// The node answered at the protocol level.
		observedHeight := extractResponseHeight(method, resp)
		d.registry.RecordOutcome(snap.Id, true, latency, observedHeight)
		d.cache.ObserveHeight(d.registry.BestHeight())
		d.emitOutcome(snap.Id, method, latency, true)

		if resp.Error != nil {
			// Application-level error: the node answered that the request
			// itself is invalid. Passed through verbatim, never retried,
			// never a health signal against the node.
			health.MetricRequestTotal.WithLabelValues(method, "app_error").Inc()
			return resp, nil
		}

		if heightSensitive {
			nodeHeight := observedHeight
			if nm := d.registry.Tracker().GetNodeMetrics(snap.Id); nm != nil && nm.LastKnownHeight() > nodeHeight {
				nodeHeight = nm.LastKnownHeight()
			}
			best := d.registry.BestHeight()
			if best-nodeHeight > tolerance {
				// Soft failure: the answer is from a lagging view of the
				// chain. Do not cache it; retry preferring fresher nodes.
				d.logger.Debug().
					Str("nodeId", snap.Id).
					Int64("nodeHeight", nodeHeight).
					Int64("bestHeight", best).
					Msg("node materially behind best head for height-sensitive request")
				lastErr = common.NewErrUpstreamHeightLag(snap.Id, nodeHeight, best)
				if nodeHeight >= laggedHeight {
					laggedResp = resp
					laggedHeight = nodeHeight
				}
				excluded[snap.Id] = true
				minHeight = best - tolerance
				continue
			}
		}

		if cacheable && cacheKey != "" {
			d.cache.Set(cacheKey, resp.Result, policy)
		}
		health.MetricRequestTotal.WithLabelValues(method, "success").Inc()
		return resp, nil
	}

	if laggedResp != nil {
		// Every candidate lagged behind the best head; serve the freshest
		// answer we got rather than failing the request outright.
		health.MetricRequestTotal.WithLabelValues(method, "stale_success").Inc()
		return laggedResp, nil
	}

	health.MetricRequestTotal.WithLabelValues(method, "exhausted").Inc()
	if lastErr == nil {
		return nil, common.NewErrNoHealthyNodes()
	}
	return nil, common.NewErrAllNodesExhausted(attempts, lastErr)
}

// attempt forwards to one node with the per-call timeout. The in-flight
// counter is incremented and decremented around the call on every exit path.
func (d *Dispatcher) attempt(ctx context.Context, node *upstream.Node, jrr *common.JsonRpcRequest) (*common.JsonRpcResponse, time.Duration, error) {
	health.MetricNodeRequestTotal.WithLabelValues(node.Id(), jrr.Method).Inc()

	tracker := d.registry.Tracker()
	tracker.InFlightStart(node.Id())
	defer tracker.InFlightDone(node.Id())

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Routing.CallTimeout.Duration())
	defer cancel()

	start := time.Now()
	resp, err := node.Client().SendRequest(callCtx, jrr)
	return resp, time.Since(start), err
}

func (d *Dispatcher) emitOutcome(nodeId, method string, latency time.Duration, success bool) {
	d.logger.Debug().
		Str("nodeId", nodeId).
		Str("method", method).
		Dur("latency", latency).
		Bool("success", success).
		Bool("cacheHit", false).
		Msg("dispatch outcome")
}

// extractResponseHeight pulls a chain height out of responses that carry one,
// so live traffic feeds the same height signal as active probes.
func extractResponseHeight(method string, resp *common.JsonRpcResponse) int64 {
	if resp == nil || resp.Error != nil || len(resp.Result) == 0 {
		return 0
	}
	switch method {
	case "eth_blockNumber":
		var hex string
		if err := common.SonicCfg.Unmarshal(resp.Result, &hex); err != nil {
			return 0
		}
		if h, err := common.HexToInt64(hex); err == nil {
			return h
		}
	case "eth_getBlockByNumber", "eth_getBlockByHash":
		var block struct {
			Number string `json:"number"`
		}
		if err := common.SonicCfg.Unmarshal(resp.Result, &block); err != nil {
			return 0
		}
		if h, err := common.HexToInt64(block.Number); err == nil {
			return h
		}
	}
	return 0
}

func errorCode(err error) string {
	if be, ok := err.(interface{ CodeChain() string }); ok {
		return be.CodeChain()
	}
	return "ErrUnknown"
}
