package dashboard

import (
	"context"
	"time"

	"github.com/bft-labs/mpcwatch/pkg/log"
)

// Poller takes a Snapshot immediately and then once per interval.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   log.Logger
}

// NewPoller creates a poller. A non-positive interval defaults to 5s.
func NewPoller(s *Service, interval time.Duration, logger log.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{service: s, interval: interval, logger: log.OrNoop(logger)}
}

// Run delivers snapshots to fn until ctx is cancelled. A refresh does not
// start before the previous one has been delivered.
func (p *Poller) Run(ctx context.Context, fn func(Snapshot)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("dashboard polling started", log.Duration("interval", p.interval))
	for {
		snap, err := p.service.Snapshot(ctx)
		if err != nil {
			p.logger.Info("dashboard polling stopped")
			return err
		}
		fn(snap)

		select {
		case <-ctx.Done():
			p.logger.Info("dashboard polling stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
