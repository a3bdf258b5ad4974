package common

// NodeHealth is the routing-facing health state of a node. Unhealthy nodes are
// excluded from candidate selection; Degraded nodes are still routable but
// deprioritized by the selection policy.
type NodeHealth int32

const (
	NodeHealthy NodeHealth = iota
	NodeDegraded
	NodeUnhealthy
)

func (h NodeHealth) String() string {
	switch h {
	case NodeHealthy:
		return "healthy"
	case NodeDegraded:
		return "degraded"
	case NodeUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}
