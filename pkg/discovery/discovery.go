// Package discovery infers which port a participant backend is listening on.
//
// There is no service registry. The port is derived from configuration in
// strict precedence order:
//
//  1. an explicit backend port override
//  2. the backendPort query parameter of the dashboard page URL
//  3. the participant table, keyed by the dashboard's own serving port
//  4. DefaultBackendPort
//
// The first non-empty source wins. A value that is not an integer in
// [MinPort, MaxPort] is replaced by DefaultBackendPort and logged.
package discovery

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/participant"
)

const (
	MinPort = 1
	MaxPort = 65535

	DefaultBackendPort  = 8083
	DefaultFrontendPort = 8030

	// QueryParam is the page URL query parameter carrying a backend port.
	QueryParam = "backendPort"
)

// ErrInvalidPort is wrapped by ParsePort for unusable port values.
var ErrInvalidPort = errors.New("invalid port")

// Sources are the configuration inputs port inference reads.
// Empty strings mean "not set".
type Sources struct {
	// BackendPort is the explicit override (flag, env or config file).
	BackendPort string
	// FrontendPort is the explicit override for the dashboard's own port.
	FrontendPort string
	// PageURL is the URL the dashboard is served from, e.g.
	// "http://localhost:8031/?backendPort=8082".
	PageURL string
}

// ValidPort reports whether p is a usable TCP port.
func ValidPort(p int) bool {
	return p >= MinPort && p <= MaxPort
}

// ParsePort parses s as a port in [MinPort, MaxPort].
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w %q: not a number", ErrInvalidPort, s)
	}
	if !ValidPort(p) {
		return 0, fmt.Errorf("%w %d: out of range [%d, %d]", ErrInvalidPort, p, MinPort, MaxPort)
	}
	return p, nil
}

// Resolver applies the precedence rules to a fixed set of Sources.
// It holds no state besides its inputs, so repeated calls agree.
type Resolver struct {
	sources Sources
	logger  log.Logger
}

// NewResolver creates a resolver over src. A nil logger discards output.
func NewResolver(src Sources, logger log.Logger) *Resolver {
	return &Resolver{sources: src, logger: log.OrNoop(logger)}
}

// Sources returns the inputs the resolver was built with.
func (r *Resolver) Sources() Sources {
	return r.sources
}

// BackendPort returns the inferred backend port. It always returns a valid
// port.
func (r *Resolver) BackendPort() int {
	raw, source := r.pick()
	p, err := ParsePort(raw)
	if err != nil {
		r.logger.Warn("invalid backend port, using default",
			log.String("value", raw),
			log.String("source", source),
			log.Port("default", DefaultBackendPort),
			log.Err(err))
		return DefaultBackendPort
	}
	r.logger.Debug("backend port resolved", log.Port("port", p), log.String("source", source))
	return p
}

// pick returns the first non-empty candidate value and where it came from.
func (r *Resolver) pick() (string, string) {
	if v := strings.TrimSpace(r.sources.BackendPort); v != "" {
		return v, "override"
	}
	if v := r.queryPort(); v != "" {
		return v, "query"
	}
	if d, ok := participant.ByFrontendPort(r.FrontendPort()); ok {
		return strconv.Itoa(d.BackendPort), "participant-table"
	}
	return strconv.Itoa(DefaultBackendPort), "default"
}

func (r *Resolver) queryPort() string {
	u := r.pageURL()
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get(QueryParam))
}

// FrontendPort returns the port the dashboard itself is served on: the
// explicit override, else the page URL's port, else DefaultFrontendPort.
func (r *Resolver) FrontendPort() int {
	raw := strings.TrimSpace(r.sources.FrontendPort)
	if raw == "" {
		if u := r.pageURL(); u != nil {
			raw = u.Port()
		}
	}
	if raw == "" {
		return DefaultFrontendPort
	}
	p, err := ParsePort(raw)
	if err != nil {
		r.logger.Warn("invalid frontend port, using default",
			log.String("value", raw),
			log.Port("default", DefaultFrontendPort),
			log.Err(err))
		return DefaultFrontendPort
	}
	return p
}

// Participant returns the participant this dashboard belongs to.
func (r *Resolver) Participant() participant.Descriptor {
	return participant.Current(r.FrontendPort())
}

func (r *Resolver) pageURL() *url.URL {
	if r.sources.PageURL == "" {
		return nil
	}
	u, err := url.Parse(r.sources.PageURL)
	if err != nil {
		r.logger.Debug("ignoring unparseable page url", log.String("url", r.sources.PageURL), log.Err(err))
		return nil
	}
	return u
}
