// Package failover finds a reachable participant backend after a
// connectivity failure.
//
// The prober walks a fixed, ordered list of candidate ports and issues a
// short liveness GET against each. Probing is strictly sequential and stops
// at the first backend that answers 2xx, so the outcome is deterministic for
// a given set of reachable ports. There is one pass per failure: no retry
// loop and no backoff.
package failover

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"slices"
	"time"

	"github.com/bft-labs/mpcwatch/pkg/endpoint"
	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/participant"
)

const (
	DefaultHealthPath   = "/health"
	DefaultProbeTimeout = 3 * time.Second
)

// SparePorts are probed after the participant backends.
var SparePorts = []int{8080, 8085}

// DefaultCandidates returns the participant backend ports followed by the
// spares: 8083, 8082, 8081, 8080, 8085.
func DefaultCandidates() []int {
	return append(participant.BackendPorts(), SparePorts...)
}

// HTTPClient executes probe requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober checks candidate ports for a live backend.
type Prober struct {
	candidates []int
	healthPath string
	timeout    time.Duration
	client     HTTPClient
	logger     log.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithCandidates replaces the candidate list. Order is preserved.
func WithCandidates(ports []int) Option {
	return func(p *Prober) {
		if len(ports) > 0 {
			p.candidates = slices.Clone(ports)
		}
	}
}

// WithHealthPath sets the liveness path (default "/health").
func WithHealthPath(path string) Option {
	return func(p *Prober) {
		if path != "" {
			p.healthPath = path
		}
	}
}

// WithTimeout sets the per-probe timeout. Values above DefaultProbeTimeout
// are clamped to it.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = min(d, DefaultProbeTimeout)
		}
	}
}

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c HTTPClient) Option {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Prober) {
		p.logger = log.OrNoop(l)
	}
}

// New creates a prober with the default candidates, path and timeout.
func New(opts ...Option) *Prober {
	p := &Prober{
		candidates: DefaultCandidates(),
		healthPath: DefaultHealthPath,
		timeout:    DefaultProbeTimeout,
		client:     &http.Client{},
		logger:     log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Candidates yields the candidate ports in probe order. Each range over the
// returned sequence starts from the first candidate again.
func (p *Prober) Candidates() iter.Seq[int] {
	return slices.Values(p.candidates)
}

// Probes lazily probes each candidate on base's scheme and host, yielding
// the port and the probe result. Nothing is probed past the point where the
// consumer stops ranging.
func (p *Prober) Probes(ctx context.Context, base *endpoint.Endpoint) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for port := range p.Candidates() {
			if ctx.Err() != nil {
				return
			}
			if !yield(port, p.probe(ctx, base, port)) {
				return
			}
		}
	}
}

// Find returns the first candidate whose liveness probe succeeds.
func (p *Prober) Find(ctx context.Context, base *endpoint.Endpoint) (int, bool) {
	start := time.Now()
	for port, err := range p.Probes(ctx, base) {
		if err != nil {
			p.logger.Debug("probe failed", log.Port("port", port), log.Err(err))
			continue
		}
		p.logger.Info("reachable backend found",
			log.Port("port", port),
			log.Duration("elapsed", time.Since(start)))
		return port, true
	}
	p.logger.Warn("no reachable backend among candidates",
		log.Any("candidates", p.candidates),
		log.Duration("elapsed", time.Since(start)))
	return 0, false
}

func (p *Prober) probe(ctx context.Context, base *endpoint.Endpoint, port int) error {
	target, err := base.WithPort(port)
	if err != nil {
		return err
	}
	u, err := target.Join(p.healthPath, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}
