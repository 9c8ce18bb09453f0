package server

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mpcwatch/pkg/dashboard"
	"github.com/bft-labs/mpcwatch/pkg/discovery"
	"github.com/bft-labs/mpcwatch/pkg/endpoint"
	"github.com/bft-labs/mpcwatch/pkg/failover"
	"github.com/bft-labs/mpcwatch/pkg/participant"
	"github.com/bft-labs/mpcwatch/pkg/transport"
)

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return p
}

func fixed(t *testing.T, port int) *transport.Client {
	t.Helper()
	ep, err := endpoint.Build("http", "127.0.0.1", port)
	require.NoError(t, err)
	return transport.New(endpoint.NewFixed(ep), transport.WithTimeout(2*time.Second))
}

// newRelay serves a relay whose backend, coordinator and training clients
// all point at the given ports.
func newRelay(t *testing.T, backendPort, coordinatorPort, trainingPort int) *httptest.Server {
	t.Helper()
	r := discovery.NewResolver(discovery.Sources{BackendPort: strconv.Itoa(backendPort)}, nil)
	cache := endpoint.NewCache(r, endpoint.WithHost("127.0.0.1"))
	prober := failover.New(failover.WithCandidates([]int{backendPort}), failover.WithTimeout(time.Second))
	svc := dashboard.NewService(dashboard.Clients{
		Backend:     transport.New(cache, transport.WithFailover(prober, cache), transport.WithTimeout(2*time.Second)),
		Coordinator: fixed(t, coordinatorPort),
		Training:    fixed(t, trainingPort),
	}, participant.Current(8030), nil)

	ts := httptest.NewServer(New(svc, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func fetch(t *testing.T, method, rawURL, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, string(b)
}

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case failover.DefaultHealthPath:
			w.WriteHeader(http.StatusOK)
		case dashboard.StatusPath:
			w.Write([]byte(`{"round":1}`))
		case dashboard.BackendOutputPath:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"busy"}`))
		case dashboard.DecryptPath:
			b, _ := io.ReadAll(r.Body)
			w.Write(b)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newRelay(t, closedPort(t), closedPort(t), closedPort(t))
	code, body := fetch(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status":"ok"}`, body)
}

func TestSelfAndParticipants(t *testing.T) {
	ts := newRelay(t, closedPort(t), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/self", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"id":1`)

	code, body = fetch(t, http.MethodGet, ts.URL+"/api/participants", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 3, strings.Count(body, `"backendPort"`))
}

func TestStatusRelayed(t *testing.T) {
	b := backend(t)
	ts := newRelay(t, portOf(t, b.URL), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"round":1}`, body)

	code, body = fetch(t, http.MethodGet, ts.URL+"/api/endpoint", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, b.URL)
}

func TestApplicationErrorPassesThrough(t *testing.T) {
	b := backend(t)
	ts := newRelay(t, portOf(t, b.URL), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/backend-output", "")
	require.Equal(t, http.StatusConflict, code)
	require.JSONEq(t, `{"error":"busy"}`, body)
}

func TestUnreachableBackendIsBadGateway(t *testing.T) {
	ts := newRelay(t, closedPort(t), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/status", "")
	require.Equal(t, http.StatusBadGateway, code)
	require.Contains(t, body, `"offline":true`)
}

func TestCoordinatorStatusNeverFails(t *testing.T) {
	ts := newRelay(t, closedPort(t), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/coordinator/status", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"status":"not_initialized"`)
}

func TestCollaborativeDecrypt(t *testing.T) {
	b := backend(t)
	ts := newRelay(t, portOf(t, b.URL), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodPost, ts.URL+"/api/collaborative/decrypt", `{"ciphertext":"00"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"ciphertext":"00"}`, body)

	code, _ = fetch(t, http.MethodPost, ts.URL+"/api/collaborative/decrypt", `{nope`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSnapshot(t *testing.T) {
	b := backend(t)
	ts := newRelay(t, portOf(t, b.URL), closedPort(t), closedPort(t))

	code, body := fetch(t, http.MethodGet, ts.URL+"/api/snapshot", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"round":1`)
}
