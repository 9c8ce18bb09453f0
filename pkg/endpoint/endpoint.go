// Package endpoint builds and caches the base connection target of a
// participant backend.
//
// A Cache computes its Endpoint lazily from a PortResolver on first use and
// keeps it until Set replaces it. The failover prober and the config watcher
// are the only writers. Every value the cache hands out is a well-formed
// scheme://host:port address; construction failures fall back to the previous
// value or to Default.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/bft-labs/mpcwatch/pkg/discovery"
)

const (
	DefaultScheme = "http"
	DefaultHost   = "localhost"
)

// ErrMalformed is wrapped by Build and Parse when an address cannot be formed.
var ErrMalformed = errors.New("malformed endpoint")

// Endpoint is an immutable scheme+host+port target.
type Endpoint struct {
	scheme string
	host   string
	port   int
	base   *url.URL
}

// Build constructs an Endpoint and verifies the result parses back to the
// same scheme, host and port.
func Build(scheme, host string, port int) (*Endpoint, error) {
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformed, scheme)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrMalformed)
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return nil, fmt.Errorf("%w: host %q contains a port or is not an IPv6 literal", ErrMalformed, host)
	}
	if !discovery.ValidPort(port) {
		return nil, fmt.Errorf("%w: port %d out of range", ErrMalformed, port)
	}

	raw := scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Hostname() != host || u.Port() != strconv.Itoa(port) {
		return nil, fmt.Errorf("%w: %q does not round-trip", ErrMalformed, raw)
	}
	return &Endpoint{scheme: scheme, host: host, port: port, base: u}, nil
}

// Parse builds an Endpoint from a base URL such as "http://localhost:8060".
// A missing port defaults from the scheme. Paths other than "/" are rejected.
func Parse(raw string) (*Endpoint, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Path != "" || u.RawQuery != "" {
		return nil, fmt.Errorf("%w: %q must not carry a path or query", ErrMalformed, raw)
	}
	port := 0
	switch {
	case u.Port() != "":
		p, err := discovery.ParsePort(u.Port())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		port = p
	case u.Scheme == "https":
		port = 443
	default:
		port = 80
	}
	return Build(u.Scheme, u.Hostname(), port)
}

// Default returns http://localhost:8083.
func Default() *Endpoint {
	ep, err := Build(DefaultScheme, DefaultHost, discovery.DefaultBackendPort)
	if err != nil {
		panic(err)
	}
	return ep
}

func (e *Endpoint) Scheme() string { return e.scheme }
func (e *Endpoint) Host() string   { return e.host }
func (e *Endpoint) Port() int      { return e.port }

// String returns the base address, e.g. "http://localhost:8082".
func (e *Endpoint) String() string {
	return e.base.String()
}

// URL returns a copy of the base URL.
func (e *Endpoint) URL() *url.URL {
	u := *e.base
	return &u
}

// Equal reports whether two endpoints address the same target.
func (e *Endpoint) Equal(o *Endpoint) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.scheme == o.scheme && e.host == o.host && e.port == o.port
}

// WithPort returns an endpoint on the same scheme and host with another port.
func (e *Endpoint) WithPort(port int) (*Endpoint, error) {
	return Build(e.scheme, e.host, port)
}

// Join resolves path and query against the endpoint. path must be absolute.
func (e *Endpoint) Join(path string, query url.Values) (*url.URL, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: path %q is not absolute", ErrMalformed, path)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: path %q: %v", ErrMalformed, path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("%w: path %q must not name a host", ErrMalformed, path)
	}
	u := e.base.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// Fixed is a Source that always returns the same endpoint. It is used for
// services at well-known addresses that are never discovered.
type Fixed struct {
	ep *Endpoint
}

// NewFixed wraps ep.
func NewFixed(ep *Endpoint) *Fixed {
	return &Fixed{ep: ep}
}

// Get returns the wrapped endpoint.
func (f *Fixed) Get() *Endpoint {
	return f.ep
}
