package rpcmux

import (
	"sync"

	"github.com/failsafe-go/failsafe-go/ratelimiter"
	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/health"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Permit is a single admission slot. Release is idempotent so every
// completion path can call it without double-counting.
type Permit struct {
	release func()
	once    sync.Once
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

var noopPermit = &Permit{release: func() {}}

// Admission bounds concurrent in-flight requests before they reach the
// router. Refusal is immediate (backpressure), never queued.
type Admission struct {
	logger *zerolog.Logger

	global  *semaphore.Weighted
	perNode map[string]*semaphore.Weighted

	rateLimiter ratelimiter.RateLimiter[any]
}

func NewAdmission(logger *zerolog.Logger, cfg *common.AdmissionConfig, nodeIds []string) *Admission {
	lg := logger.With().Str("component", "admission").Logger()
	a := &Admission{
		logger: &lg,
		global: semaphore.NewWeighted(cfg.MaxInFlight),
	}

	if cfg.MaxInFlightPerNode > 0 {
		a.perNode = make(map[string]*semaphore.Weighted, len(nodeIds))
		for _, id := range nodeIds {
			a.perNode[id] = semaphore.NewWeighted(cfg.MaxInFlightPerNode)
		}
	}

	if cfg.RateLimit != nil && cfg.RateLimit.MaxCount > 0 {
		a.rateLimiter = ratelimiter.
			BurstyBuilder[any](cfg.RateLimit.MaxCount, cfg.RateLimit.Period.Duration()).
			Build()
	}

	return a
}

// TryAcquire claims a global admission slot, or fails immediately with
// ErrAdmissionRejected. No node state is touched on rejection.
func (a *Admission) TryAcquire() (*Permit, error) {
	if a.rateLimiter != nil && !a.rateLimiter.TryAcquirePermit() {
		health.MetricAdmissionRejectedTotal.WithLabelValues("rate").Inc()
		return nil, common.NewErrAdmissionRejected("rate")
	}
	if !a.global.TryAcquire(1) {
		health.MetricAdmissionRejectedTotal.WithLabelValues("global").Inc()
		return nil, common.NewErrAdmissionRejected("global")
	}
	return &Permit{release: func() { a.global.Release(1) }}, nil
}

// TryAcquireNode claims the per-node slot when a per-node bound is
// configured. Refusal here only removes the node from the current attempt.
func (a *Admission) TryAcquireNode(nodeId string) (*Permit, bool) {
	if a.perNode == nil {
		return noopPermit, true
	}
	sem, ok := a.perNode[nodeId]
	if !ok {
		return noopPermit, true
	}
	if !sem.TryAcquire(1) {
		health.MetricAdmissionRejectedTotal.WithLabelValues("node").Inc()
		return nil, false
	}
	return &Permit{release: func() { sem.Release(1) }}, true
}
