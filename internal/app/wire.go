// Package app wires the request layer together from a validated Config.
package app

import (
	"fmt"
	"time"

	"github.com/bft-labs/mpcwatch/internal/config"
	"github.com/bft-labs/mpcwatch/pkg/dashboard"
	"github.com/bft-labs/mpcwatch/pkg/discovery"
	"github.com/bft-labs/mpcwatch/pkg/endpoint"
	"github.com/bft-labs/mpcwatch/pkg/failover"
	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/transport"
)

// App holds the long-lived components built from one Config.
type App struct {
	Config   config.Config
	Resolver *discovery.Resolver
	Cache    *endpoint.Cache
	Prober   *failover.Prober
	Service  *dashboard.Service
	Logger   log.Logger
}

// New builds an App. cfg must already be validated.
func New(cfg config.Config, logger log.Logger) (*App, error) {
	logger = log.OrNoop(logger)

	resolver := discovery.NewResolver(cfg.Sources(), logger)
	cache := endpoint.NewCache(resolver,
		endpoint.WithScheme(cfg.Scheme),
		endpoint.WithHost(cfg.Host),
		endpoint.WithLogger(logger))

	prober := failover.New(
		failover.WithCandidates(cfg.CandidatePorts),
		failover.WithHealthPath(cfg.HealthPath),
		failover.WithTimeout(cfg.ProbeTimeout),
		failover.WithLogger(logger))

	coordinatorEP, err := endpoint.Parse(cfg.CoordinatorURL)
	if err != nil {
		return nil, fmt.Errorf("coordinator url: %w", err)
	}
	trainingEP, err := endpoint.Parse(cfg.TrainingURL)
	if err != nil {
		return nil, fmt.Errorf("training url: %w", err)
	}

	bounds := func(name string, timeout time.Duration) []transport.Option {
		return []transport.Option{
			transport.WithName(name),
			transport.WithTimeout(timeout),
			transport.WithMaxBodyBytes(cfg.MaxBodyBytes),
			transport.WithMaxHeaderBytes(cfg.MaxHeaderBytes),
			transport.WithLogger(logger),
		}
	}
	backend := transport.New(cache, append(bounds("backend", cfg.Timeout),
		transport.WithFailover(prober, cache))...)
	coordinator := transport.New(endpoint.NewFixed(coordinatorEP), bounds("coordinator", cfg.Timeout)...)
	training := transport.New(endpoint.NewFixed(trainingEP), bounds("training", cfg.TrainingTimeout)...)

	self := resolver.Participant()
	svc := dashboard.NewService(dashboard.Clients{
		Backend:     backend,
		Coordinator: coordinator,
		Training:    training,
	}, self, logger)

	logger.Info("dashboard configured",
		log.Int("participant", self.ID),
		log.Port("backend_port", resolver.BackendPort()),
		log.String("coordinator", coordinatorEP.String()),
		log.String("training", trainingEP.String()),
		log.Int64("max_body_bytes", cfg.MaxBodyBytes),
		log.Bool("debug", cfg.Debug))

	return &App{
		Config:   cfg,
		Resolver: resolver,
		Cache:    cache,
		Prober:   prober,
		Service:  svc,
		Logger:   logger,
	}, nil
}
