package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrConnectivity marks failures to reach the backend at all.
	ErrConnectivity = errors.New("backend unreachable")

	// ErrValidation marks requests or responses rejected by local policy.
	ErrValidation = errors.New("validation failed")
)

// StatusError is a non-2xx response from a reachable backend. The body is
// passed through unchanged.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	const max = 256
	body := e.Body
	if len(body) > max {
		body = body[:max]
	}
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.URL, e.StatusCode, string(body))
}

// Kind classifies the outcome of a call.
type Kind int

const (
	KindOK Kind = iota
	KindConnectivity
	KindApplication
	KindValidation
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindConnectivity:
		return "connectivity"
	case KindApplication:
		return "application"
	case KindValidation:
		return "validation"
	default:
		return "other"
	}
}

// Classify returns the Kind of err.
func Classify(err error) Kind {
	var se *StatusError
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrConnectivity):
		return KindConnectivity
	case errors.As(err, &se):
		return KindApplication
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindOther
	}
}

// isConnectivity reports whether a transport error means the backend could
// not be reached, as opposed to a failure mid-exchange.
func isConnectivity(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
