package endpoint

import (
	"sync"

	"github.com/bft-labs/mpcwatch/pkg/discovery"
	"github.com/bft-labs/mpcwatch/pkg/log"
)

// PortResolver supplies the initial backend port. *discovery.Resolver
// satisfies it.
type PortResolver interface {
	BackendPort() int
}

// Cache memoizes the resolved backend endpoint for the life of the process.
// Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	resolver PortResolver
	scheme   string
	host     string
	current  *Endpoint
	logger   log.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithScheme sets the scheme used for endpoints (default "http").
func WithScheme(scheme string) Option {
	return func(c *Cache) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithHost sets the backend host (default "localhost").
func WithHost(host string) Option {
	return func(c *Cache) {
		if host != "" {
			c.host = host
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Cache) {
		c.logger = log.OrNoop(l)
	}
}

// NewCache creates an empty cache. Nothing is resolved until the first Get.
func NewCache(resolver PortResolver, opts ...Option) *Cache {
	c := &Cache{
		resolver: resolver,
		scheme:   DefaultScheme,
		host:     DefaultHost,
		logger:   log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached endpoint, resolving it on the first call.
func (c *Cache) Get() *Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

// Port returns the port of the cached endpoint.
func (c *Cache) Port() int {
	return c.Get().Port()
}

// Set points the cache at port on the configured host. It reports whether
// the cached endpoint was replaced. Setting the current port, an invalid
// port or a port that yields a malformed address leaves the cache untouched.
func (c *Cache) Set(port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.loadLocked()
	if prev.Port() == port {
		return false
	}
	if !discovery.ValidPort(port) {
		c.logger.Warn("ignoring invalid endpoint port", log.Port("port", port), log.String("current", prev.String()))
		return false
	}
	next, err := Build(c.scheme, c.host, port)
	if err != nil {
		c.logger.Error("endpoint construction failed, keeping previous",
			log.Port("port", port),
			log.String("current", prev.String()),
			log.Err(err))
		return false
	}
	c.current = next
	c.logger.Info("backend endpoint updated", log.String("from", prev.String()), log.String("to", next.String()))
	return true
}

func (c *Cache) loadLocked() *Endpoint {
	if c.current != nil {
		return c.current
	}
	port := discovery.DefaultBackendPort
	if c.resolver != nil {
		port = c.resolver.BackendPort()
	}
	ep, err := Build(c.scheme, c.host, port)
	if err != nil {
		c.logger.Error("endpoint construction failed, using default",
			log.String("scheme", c.scheme),
			log.String("host", c.host),
			log.Port("port", port),
			log.Err(err))
		ep = Default()
	}
	c.current = ep
	c.logger.Debug("backend endpoint resolved", log.String("endpoint", ep.String()))
	return ep
}
