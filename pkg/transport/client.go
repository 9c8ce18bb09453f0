package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/mpcwatch/pkg/endpoint"
	"github.com/bft-labs/mpcwatch/pkg/log"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxBodyBytes   = 50 << 20 // 50MB
	DefaultMaxHeaderBytes = 8 << 10  // 8KB
)

// HTTPClient abstracts HTTP request execution for testing and custom
// transports. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source supplies the current destination. *endpoint.Cache and
// *endpoint.Fixed satisfy it.
type Source interface {
	Get() *endpoint.Endpoint
}

// Finder locates a reachable backend port. *failover.Prober satisfies it.
type Finder interface {
	Find(ctx context.Context, base *endpoint.Endpoint) (int, bool)
}

// PortSetter adopts a recovered port. *endpoint.Cache satisfies it.
type PortSetter interface {
	Set(port int) bool
}

// Request describes one backend call.
type Request struct {
	Method string // defaults to GET
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) backend answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Endpoint is the destination that produced the response.
	Endpoint *endpoint.Endpoint
	// Recovered is true when the response came from the failover replay.
	Recovered bool
}

// JSON returns the body after checking it is well-formed JSON.
func (r *Response) JSON() (json.RawMessage, error) {
	if !json.Valid(r.Body) {
		return nil, fmt.Errorf("%w: malformed JSON from %s", ErrValidation, r.Endpoint)
	}
	return json.RawMessage(r.Body), nil
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decode response from %s: %v", ErrValidation, r.Endpoint, err)
	}
	return nil
}

// Client sends requests to the endpoint its Source currently names.
type Client struct {
	name      string
	source    Source
	initOnce  sync.Once
	initial   *endpoint.Endpoint
	client    HTTPClient
	timeout   time.Duration
	maxBody   int64
	maxHeader int
	finder    Finder
	setter    PortSetter
	logger    log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithName labels the client in log lines (e.g. "backend", "coordinator").
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-attempt timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodyBytes bounds request and response bodies (default 50MB).
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithMaxHeaderBytes bounds request and response headers (default 8KB).
func WithMaxHeaderBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxHeader = n
		}
	}
}

// WithFailover enables recovery from connectivity failures: finder locates
// a live port and setter adopts it before the single replay.
func WithFailover(finder Finder, setter PortSetter) Option {
	return func(c *Client) {
		c.finder = finder
		c.setter = setter
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.logger = log.OrNoop(l) }
}

// New creates a client bound to src. src is not read until the first call;
// every call re-reads it.
func New(src Source, opts ...Option) *Client {
	c := &Client{
		name:      "backend",
		source:    src,
		timeout:   DefaultTimeout,
		maxBody:   DefaultMaxBodyBytes,
		maxHeader: DefaultMaxHeaderBytes,
		logger:    log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{
			Transport: &http.Transport{
				MaxResponseHeaderBytes: int64(c.maxHeader),
				IdleConnTimeout:        90 * time.Second,
			},
		}
	}
	return c
}

// Endpoint returns the destination the next call would use.
func (c *Client) Endpoint() *endpoint.Endpoint {
	return c.source.Get()
}

// URL returns the full URL req would be sent to.
func (c *Client) URL(req Request) (*url.URL, error) {
	u, err := c.source.Get().Join(req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return u, nil
}

// Do sends req. On a connectivity failure with failover configured it makes
// exactly one recovery pass; if no backend is found the original error is
// returned.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	callID := uuid.NewString()
	ep := c.refresh(callID)

	resp, err := c.send(ctx, ep, req, callID)
	if err == nil {
		return resp, nil
	}
	if Classify(err) != KindConnectivity || c.finder == nil || c.setter == nil {
		return nil, err
	}
	return c.failover(ctx, req, ep, err, callID)
}

// Get is shorthand for a GET of path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// PostJSON marshals body and POSTs it to path.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	var payload []byte
	switch v := body.(type) {
	case nil:
		payload = []byte("{}")
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: request body is not valid JSON", ErrValidation)
		}
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request body: %v", ErrValidation, err)
		}
		payload = b
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Header: h, Body: payload})
}

// refresh reads the current destination. The first read is kept as the
// configured one so later drift can be logged.
func (c *Client) refresh(callID string) *endpoint.Endpoint {
	ep := c.source.Get()
	c.initOnce.Do(func() { c.initial = ep })
	if !ep.Equal(c.initial) {
		c.logger.Debug("destination refreshed",
			log.String("client", c.name),
			log.String("call_id", callID),
			log.String("configured", c.initial.String()),
			log.String("current", ep.String()))
	}
	return ep
}

func (c *Client) failover(ctx context.Context, req Request, failed *endpoint.Endpoint, cause error, callID string) (*Response, error) {
	c.logger.Warn("backend unreachable, probing candidates",
		log.String("client", c.name),
		log.String("call_id", callID),
		log.String("endpoint", failed.String()),
		log.Err(cause))

	port, ok := c.finder.Find(ctx, failed)
	if !ok {
		return nil, cause
	}
	c.setter.Set(port)

	next := c.refresh(callID)
	if next.Port() != port {
		c.logger.Error("recovered port was not adopted",
			log.String("client", c.name),
			log.Port("port", port),
			log.String("endpoint", next.String()))
		return nil, cause
	}

	resp, err := c.send(ctx, next, req, callID)
	if err != nil {
		return nil, err
	}
	resp.Recovered = true
	c.logger.Info("request replayed on recovered backend",
		log.String("client", c.name),
		log.String("call_id", callID),
		log.String("endpoint", next.String()))
	return resp, nil
}

func (c *Client) send(ctx context.Context, ep *endpoint.Endpoint, req Request, callID string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if int64(len(req.Body)) > c.maxBody {
		return nil, fmt.Errorf("%w: request body %d bytes exceeds %d", ErrValidation, len(req.Body), c.maxBody)
	}
	u, err := ep.Join(req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	header := SanitizeHeader(req.Header)
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if len(req.Body) > 0 && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	if n := headerSize(header); n > c.maxHeader {
		return nil, fmt.Errorf("%w: request headers %d bytes exceed %d", ErrValidation, n, c.maxHeader)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrValidation, err)
	}
	httpReq.Header = header

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if isConnectivity(err) {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrConnectivity, method, u, err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, u, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", ErrValidation, u, c.maxBody)
	}

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Method: method, URL: u.String(), StatusCode: resp.StatusCode, Body: data}
	}

	c.logger.Debug("request ok",
		log.String("client", c.name),
		log.String("call_id", callID),
		log.String("method", method),
		log.String("url", u.String()),
		log.Int("status", resp.StatusCode),
		log.Int64("bytes", int64(len(data))),
		log.Duration("elapsed", time.Since(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Endpoint:   ep,
	}, nil
}
