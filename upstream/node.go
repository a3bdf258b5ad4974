package upstream

import (
	"time"

	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/health"
	"github.com/rs/zerolog"
)

// Node is one configured backend endpoint plus handles to its live state.
// Nodes are never removed at runtime; unavailability is modeled purely via
// health state.
type Node struct {
	cfg     *common.NodeConfig
	client  *HttpJsonRpcClient
	metrics *health.NodeMetrics
	logger  *zerolog.Logger
}

func NewNode(logger *zerolog.Logger, cfg *common.NodeConfig, tracker *health.Tracker) (*Node, error) {
	lg := logger.With().Str("nodeId", cfg.Id).Logger()

	client, err := NewHttpJsonRpcClient(&lg, cfg.Id, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	return &Node{
		cfg:     cfg,
		client:  client,
		metrics: tracker.Register(cfg.Id),
		logger:  &lg,
	}, nil
}

func (n *Node) Id() string {
	return n.cfg.Id
}

func (n *Node) Config() *common.NodeConfig {
	return n.cfg
}

func (n *Node) Client() *HttpJsonRpcClient {
	return n.client
}

func (n *Node) Metrics() *health.NodeMetrics {
	return n.metrics
}

// NodeSnapshot is a point-in-time copy of a node's state; selection decisions
// are made against these so concurrent updates cannot skew one decision.
type NodeSnapshot struct {
	Id              string
	Endpoint        string
	WsEndpoint      string
	Weight          int
	Health          common.NodeHealth
	LatencyEMA      time.Duration
	InFlight        int64
	LastKnownHeight int64
	LastUnhealthyAt time.Time
}

func (n *Node) Snapshot() NodeSnapshot {
	m := n.metrics
	return NodeSnapshot{
		Id:              n.cfg.Id,
		Endpoint:        n.cfg.Endpoint,
		WsEndpoint:      n.cfg.WsEndpoint,
		Weight:          n.cfg.Weight,
		Health:          m.Health(),
		LatencyEMA:      m.LatencyEMA(),
		InFlight:        m.InFlight(),
		LastKnownHeight: m.LastKnownHeight(),
		LastUnhealthyAt: m.LastUnhealthyAt(),
	}
}

func (s NodeSnapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Str("nodeId", s.Id).
		Str("health", s.Health.String()).
		Dur("latencyEma", s.LatencyEMA).
		Int64("inFlight", s.InFlight).
		Int64("height", s.LastKnownHeight)
}
