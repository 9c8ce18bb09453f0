package endpoint

import (
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/bft-labs/mpcwatch/pkg/discovery"
)

type countingResolver struct {
	port  int
	calls int
}

func (r *countingResolver) BackendPort() int {
	r.calls++
	return r.port
}

func TestCache_GetResolvesOnce(t *testing.T) {
	r := &countingResolver{port: 8082}
	c := NewCache(r)

	first := c.Get()
	second := c.Get()
	if r.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", r.calls)
	}
	if first != second {
		t.Fatal("Get returned different instances")
	}
	if first.String() != "http://localhost:8082" {
		t.Fatalf("endpoint = %s", first)
	}
}

func TestCache_SetThenGet(t *testing.T) {
	c := NewCache(&countingResolver{port: 8083})
	for _, p := range []int{1, 8081, 8082, 65535} {
		c.Set(p)
		if got := c.Get().Port(); got != p {
			t.Fatalf("after Set(%d) port = %d", p, got)
		}
	}
}

func TestCache_SetSamePortKeepsIdentity(t *testing.T) {
	c := NewCache(&countingResolver{port: 8083})
	before := c.Get()
	if c.Set(8083) {
		t.Fatal("Set with the current port reported a change")
	}
	if c.Get() != before {
		t.Fatal("Set with the current port replaced the endpoint")
	}
}

func TestCache_SetBeforeGet(t *testing.T) {
	r := &countingResolver{port: 8083}
	c := NewCache(r)
	if !c.Set(8081) {
		t.Fatal("Set(8081) should replace the resolved endpoint")
	}
	if c.Port() != 8081 {
		t.Fatalf("port = %d", c.Port())
	}
	if r.calls != 1 {
		t.Fatalf("resolver called %d times", r.calls)
	}
}

func TestCache_SetInvalidPortIgnored(t *testing.T) {
	c := NewCache(&countingResolver{port: 8082})
	before := c.Get()
	for _, p := range []int{0, -5, 65536} {
		if c.Set(p) {
			t.Fatalf("Set(%d) reported a change", p)
		}
		if c.Get() != before {
			t.Fatalf("Set(%d) replaced the endpoint", p)
		}
	}
}

func TestCache_MalformedHostFallsBack(t *testing.T) {
	c := NewCache(&countingResolver{port: 8082}, WithHost("bad host"))
	got := c.Get()
	if !got.Equal(Default()) {
		t.Fatalf("Get() = %s, want default", got)
	}
	if c.Set(8081) {
		t.Fatal("Set should fail to build an endpoint for a malformed host")
	}
	if c.Get() != got {
		t.Fatal("failed Set replaced the endpoint")
	}
}

func TestCache_CustomHostAndScheme(t *testing.T) {
	c := NewCache(&countingResolver{port: 9443}, WithHost("10.0.0.7"), WithScheme("https"))
	if got := c.Get().String(); got != "https://10.0.0.7:9443" {
		t.Fatalf("endpoint = %s", got)
	}
}

func TestCache_ConcurrentSet(t *testing.T) {
	c := NewCache(&countingResolver{port: 8083})
	var wg sync.WaitGroup
	for _, p := range []int{8081, 8082, 8081, 8082} {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			c.Set(p)
			_ = c.Get()
		}(p)
	}
	wg.Wait()
	if p := c.Port(); p != 8081 && p != 8082 {
		t.Fatalf("port = %d", p)
	}
}

func TestCache_Participant2Scenario(t *testing.T) {
	r := discovery.NewResolver(discovery.Sources{FrontendPort: "8031"}, nil)
	c := NewCache(r, WithHost("localhost"))
	if got := c.Get().String(); got != "http://localhost:8082" {
		t.Fatalf("endpoint = %s", got)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		scheme, host string
		port         int
		want         string
		wantErr      bool
	}{
		{"http", "localhost", 8081, "http://localhost:8081", false},
		{"http", "::1", 8081, "http://[::1]:8081", false},
		{"https", "example.org", 443, "https://example.org:443", false},
		{"ftp", "localhost", 21, "", true},
		{"http", "", 8081, "", true},
		{"http", "localhost:9", 8081, "", true},
		{"http", "bad host", 8081, "", true},
		{"http", "localhost", 0, "", true},
	}
	for _, tt := range tests {
		ep, err := Build(tt.scheme, tt.host, tt.port)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Build(%s, %s, %d) err = %v, want ErrMalformed", tt.scheme, tt.host, tt.port, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Build(%s, %s, %d) unexpected error: %v", tt.scheme, tt.host, tt.port, err)
			continue
		}
		if ep.String() != tt.want {
			t.Errorf("Build(%s, %s, %d) = %s, want %s", tt.scheme, tt.host, tt.port, ep, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	ep, err := Parse("http://localhost:8060/")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Port() != 8060 || ep.Host() != "localhost" {
		t.Fatalf("Parse = %s", ep)
	}
	ep, err = Parse("https://coord.example")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Port() != 443 {
		t.Fatalf("default https port = %d", ep.Port())
	}
	for _, bad := range []string{"http://localhost:8060/api", "localhost:8060", "http://localhost:0", "://x"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestJoin(t *testing.T) {
	ep, _ := Build("http", "localhost", 8082)
	u, err := ep.Join("/api/participant/status", url.Values{"verbose": {"1"}})
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != "http://localhost:8082/api/participant/status?verbose=1" {
		t.Fatalf("Join = %s", u)
	}
	for _, bad := range []string{"api/status", "//evil.example/x", "/%zz"} {
		if _, err := ep.Join(bad, nil); !errors.Is(err, ErrMalformed) {
			t.Errorf("Join(%q) err = %v, want ErrMalformed", bad, err)
		}
	}
}
