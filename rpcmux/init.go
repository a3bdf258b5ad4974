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

// App wires the dispatch engine together: registry, tracker, prober, cache,
// admission and dispatcher. The transport layer (server package) sits on top.
type App struct {
	Logger     *zerolog.Logger
	Config     *common.Config
	Tracker    *health.Tracker
	Registry   *upstream.Registry
	Cache      *data.Cache
	Admission  *Admission
	Policy     upstream.SelectionPolicy
	Dispatcher *Dispatcher
	Prober     *upstream.Prober
}

func NewApp(logger *zerolog.Logger, cfg *common.Config) (*App, error) {
	tracker := health.NewTracker(
		logger,
		cfg.Routing.FailureThreshold,
		cfg.Routing.RecoveryThreshold,
		cfg.Routing.LatencyAlpha,
	)

	registry, err := upstream.NewRegistry(logger, cfg.Nodes, tracker)
	if err != nil {
		return nil, err
	}

	cache := data.NewCache(logger, cfg.Cache.Capacity)

	nodeIds := make([]string, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		nodeIds[i] = n.Id
	}
	admission := NewAdmission(logger, cfg.Admission, nodeIds)

	policy := upstream.NewWeightedRoundRobin()
	dispatcher := NewDispatcher(logger, cfg, registry, cache, admission, policy)
	prober := upstream.NewProber(logger, registry, cfg.Probe)

	return &App{
		Logger:     logger,
		Config:     cfg,
		Tracker:    tracker,
		Registry:   registry,
		Cache:      cache,
		Admission:  admission,
		Policy:     policy,
		Dispatcher: dispatcher,
		Prober:     prober,
	}, nil
}

// Start launches the background loops: active probing and periodic health
// snapshot logging. It returns immediately.
func (a *App) Start(ctx context.Context) {
	a.Prober.Start(ctx)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Registry.LogHealthSnapshot()
			}
		}
	}()
}
