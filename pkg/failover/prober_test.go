package failover

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mpcwatch/pkg/endpoint"
)

// closedPort returns a port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

type probeLog struct {
	mu    sync.Mutex
	ports []string
}

func (l *probeLog) record(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ports = append(l.ports, r.URL.Port())
}

type recordingClient struct {
	log  *probeLog
	next *http.Client
}

func (c recordingClient) Do(r *http.Request) (*http.Response, error) {
	c.log.record(r)
	return c.next.Do(r)
}

func base(t *testing.T) *endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Build("http", "127.0.0.1", 1)
	require.NoError(t, err)
	return ep
}

func TestDefaultCandidates(t *testing.T) {
	require.Equal(t, []int{8083, 8082, 8081, 8080, 8085}, DefaultCandidates())
}

func TestCandidates_Restartable(t *testing.T) {
	p := New(WithCandidates([]int{3, 2, 1}))
	for i := 0; i < 2; i++ {
		var got []int
		for port := range p.Candidates() {
			got = append(got, port)
		}
		require.Equal(t, []int{3, 2, 1}, got)
	}
}

func TestFind_FirstReachableWins(t *testing.T) {
	healthy := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultHealthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	first := httptest.NewServer(http.HandlerFunc(healthy))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(healthy))
	defer second.Close()

	dead := closedPort(t)
	firstPort, secondPort := serverPort(t, first), serverPort(t, second)

	probes := &probeLog{}
	p := New(
		WithCandidates([]int{dead, firstPort, secondPort}),
		WithHTTPClient(recordingClient{log: probes, next: http.DefaultClient}),
	)

	port, ok := p.Find(context.Background(), base(t))
	require.True(t, ok)
	require.Equal(t, firstPort, port)
	require.Equal(t, []string{strconv.Itoa(dead), strconv.Itoa(firstPort)}, probes.ports, "probing must stop at first success")
}

func TestFind_Non2xxIsNotAlive(t *testing.T) {
	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sick.Close()

	p := New(WithCandidates([]int{serverPort(t, sick), closedPort(t)}))
	_, ok := p.Find(context.Background(), base(t))
	require.False(t, ok)
}

func TestFind_ProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	p := New(WithCandidates([]int{serverPort(t, slow)}), WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, ok := p.Find(context.Background(), base(t))
	require.False(t, ok)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWithTimeout_ClampedToDefault(t *testing.T) {
	require.Equal(t, DefaultProbeTimeout, New(WithTimeout(time.Minute)).timeout)
	require.Equal(t, 50*time.Millisecond, New(WithTimeout(50*time.Millisecond)).timeout)
	require.Equal(t, DefaultProbeTimeout, New(WithTimeout(0)).timeout)
}

func TestFind_CustomHealthPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p := New(WithCandidates([]int{serverPort(t, ts)}), WithHealthPath("/api/health"))
	port, ok := p.Find(context.Background(), base(t))
	require.True(t, ok)
	require.Equal(t, serverPort(t, ts), port)
}

func TestProbes_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probes := &probeLog{}
	p := New(WithCandidates([]int{1, 2}), WithHTTPClient(recordingClient{log: probes, next: http.DefaultClient}))
	_, ok := p.Find(ctx, base(t))
	require.False(t, ok)
	require.Empty(t, probes.ports)
}
