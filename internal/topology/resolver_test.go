package topology

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir-public/haproxy-collector/internal/dataplane"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// fakeFetcher serves canned Data Plane API responses and records which
// operations were called per proxy
type fakeFetcher struct {
	mu        sync.Mutex
	backends  []dataplane.Backend
	frontends []dataplane.Frontend
	servers   map[string][]dataplane.Server
	rules     map[string][]dataplane.HTTPRequestRule
	acls      map[string][]dataplane.ACL
	switching map[string][]dataplane.BackendSwitchingRule

	failOn string // operation name that returns an error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		servers:   make(map[string][]dataplane.Server),
		rules:     make(map[string][]dataplane.HTTPRequestRule),
		acls:      make(map[string][]dataplane.ACL),
		switching: make(map[string][]dataplane.BackendSwitchingRule),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failOn == op {
		return errors.New("fetch failed: " + op)
	}
	return nil
}

func (f *fakeFetcher) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeFetcher) Backends(ctx context.Context) ([]dataplane.Backend, error) {
	if err := f.record("backends"); err != nil {
		return nil, err
	}
	return f.backends, nil
}

func (f *fakeFetcher) BackendServers(ctx context.Context, backend string) ([]dataplane.Server, error) {
	if err := f.record("servers/" + backend); err != nil {
		return nil, err
	}
	return f.servers[backend], nil
}

func (f *fakeFetcher) BackendHTTPRequestRules(ctx context.Context, backend string) ([]dataplane.HTTPRequestRule, error) {
	if err := f.record("rules/" + backend); err != nil {
		return nil, err
	}
	return f.rules[backend], nil
}

func (f *fakeFetcher) Frontends(ctx context.Context) ([]dataplane.Frontend, error) {
	if err := f.record("frontends"); err != nil {
		return nil, err
	}
	return f.frontends, nil
}

func (f *fakeFetcher) FrontendACLs(ctx context.Context, frontend string) ([]dataplane.ACL, error) {
	if err := f.record("acls/" + frontend); err != nil {
		return nil, err
	}
	return f.acls[frontend], nil
}

func (f *fakeFetcher) FrontendSwitchingRules(ctx context.Context, frontend string) ([]dataplane.BackendSwitchingRule, error) {
	if err := f.record("switching/" + frontend); err != nil {
		return nil, err
	}
	return f.switching[frontend], nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestResolver(t *testing.T, f *fakeFetcher) *Resolver {
	t.Helper()
	return NewResolver(f, Config{}, testLogger(t))
}

func TestResolveManagedBackendRawServers(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("svc.dwellir.com")}}
	f.servers["svc.dwellir.com"] = []dataplane.Server{
		{Address: str("10.0.0.1:80")},
		{Address: str("10.0.0.2:80")},
	}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Domain: "svc.dwellir.com", Server: "10.0.0.1:80"},
		{Domain: "svc.dwellir.com", Server: "10.0.0.2:80"},
	}, entries)
}

func TestResolveOverrideWins(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("api_pool")}}
	f.frontends = []dataplane.Frontend{{Name: str("https-in")}}
	f.acls["https-in"] = []dataplane.ACL{
		{ACLName: str("is_shop"), Value: str("-i -m dom shop.example.com || shop2.example.com")},
	}
	f.switching["https-in"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("is_shop"), Name: str("api_pool")},
	}
	f.rules["api_pool"] = []dataplane.HTTPRequestRule{
		{HdrName: str("X-Destination-Backend"), HdrFormat: str("10.1.1.5:443")},
	}
	f.servers["api_pool"] = []dataplane.Server{{Address: str("10.1.1.9:443")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Domain: "shop.example.com", Server: "10.1.1.5"},
		{Domain: "shop2.example.com", Server: "10.1.1.5"},
	}, entries)

	// The raw server list must not even be fetched when the override applies.
	assert.Zero(t, f.callCount("servers/api_pool"))
}

func TestResolveSkipsUnrelatedBackends(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{
		{Name: str("svc.dwellir.com")},
		{Name: str("unrelated_pool")},
	}
	f.servers["svc.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}
	f.servers["unrelated_pool"] = []dataplane.Server{{Address: str("192.168.0.1:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Domain: "svc.dwellir.com", Server: "10.0.0.1:80"}}, entries)

	// Skipped backends cause no per-backend fetches at all.
	assert.Zero(t, f.callCount("rules/unrelated_pool"))
	assert.Zero(t, f.callCount("servers/unrelated_pool"))
}

func TestResolveNoFrontends(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{
		{Name: str("a.dwellir.com")},
		{Name: str("other")},
	}
	f.servers["a.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)

	// Only the suffix match survives, with its own name as the domain.
	assert.Equal(t, []Entry{{Domain: "a.dwellir.com", Server: "10.0.0.1:80"}}, entries)
}

func TestResolveCrossProduct(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("pool")}}
	f.frontends = []dataplane.Frontend{{Name: str("fe")}}
	f.acls["fe"] = []dataplane.ACL{
		{ACLName: str("sites"), Value: str("-i -m dom a.example.com || b.example.com || c.example.com")},
	}
	f.switching["fe"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("sites"), Name: str("pool")},
	}
	f.servers["pool"] = []dataplane.Server{
		{Address: str("10.0.0.1:80")},
		{Address: str("10.0.0.2:80")},
	}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 6) // 3 domains x 2 servers

	assert.Equal(t, []Entry{
		{Domain: "a.example.com", Server: "10.0.0.1:80"},
		{Domain: "a.example.com", Server: "10.0.0.2:80"},
		{Domain: "b.example.com", Server: "10.0.0.1:80"},
		{Domain: "b.example.com", Server: "10.0.0.2:80"},
		{Domain: "c.example.com", Server: "10.0.0.1:80"},
		{Domain: "c.example.com", Server: "10.0.0.2:80"},
	}, entries)
}

func TestResolveIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{
		{Name: str("a.dwellir.com")},
		{Name: str("pool")},
	}
	f.frontends = []dataplane.Frontend{{Name: str("fe")}}
	f.acls["fe"] = []dataplane.ACL{
		{ACLName: str("sites"), Value: str("-i -m dom x.example.com || y.example.com")},
	}
	f.switching["fe"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("sites"), Name: str("pool")},
	}
	f.servers["a.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}
	f.servers["pool"] = []dataplane.Server{{Address: str("10.0.0.2:80")}}

	r := newTestResolver(t, f)
	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	second, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolveFetchErrorAbortsPass(t *testing.T) {
	operations := []string{"backends", "frontends", "acls/fe", "switching/fe", "rules/a.dwellir.com", "servers/a.dwellir.com"}

	for _, op := range operations {
		t.Run(op, func(t *testing.T) {
			f := newFakeFetcher()
			f.backends = []dataplane.Backend{{Name: str("a.dwellir.com")}}
			f.frontends = []dataplane.Frontend{{Name: str("fe")}}
			f.acls["fe"] = []dataplane.ACL{
				{ACLName: str("sites"), Value: str("-i -m dom x.example.com")},
			}
			f.switching["fe"] = []dataplane.BackendSwitchingRule{
				{CondTest: str("sites"), Name: str("pool")},
			}
			f.servers["a.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}
			f.failOn = op

			entries, err := newTestResolver(t, f).Resolve(context.Background())
			require.Error(t, err)
			assert.Nil(t, entries)
		})
	}
}

func TestResolveACLNameFallback(t *testing.T) {
	// The switching rule's condition test references no known ACL, so the
	// ACL name itself becomes the backend key.
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("shop.dwellir.com")}}
	f.frontends = []dataplane.Frontend{{Name: str("fe")}}
	f.acls["fe"] = []dataplane.ACL{
		{ACLName: str("shop.dwellir.com"), Value: str("-i -m dom shop.example.com")},
	}
	f.switching["fe"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("something_else"), Name: str("other_pool")},
	}
	f.servers["shop.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Domain: "shop.example.com", Server: "10.0.0.1:80"}}, entries)
}

func TestResolveFrontendWithoutACLsContributesNothing(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("pool")}}
	f.frontends = []dataplane.Frontend{{Name: str("fe")}}
	// fe has switching rules but no domain ACLs
	f.switching["fe"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("sites"), Name: str("pool")},
	}
	f.servers["pool"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)

	// "pool" neither matches the suffix nor appears in the switch map.
	assert.Empty(t, entries)
}

func TestResolveLaterFrontendWins(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("pool")}}
	f.frontends = []dataplane.Frontend{{Name: str("fe1")}, {Name: str("fe2")}}
	f.acls["fe1"] = []dataplane.ACL{
		{ACLName: str("old"), Value: str("-i -m dom old.example.com")},
	}
	f.switching["fe1"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("old"), Name: str("pool")},
	}
	f.acls["fe2"] = []dataplane.ACL{
		{ACLName: str("new"), Value: str("-i -m dom new.example.com")},
	}
	f.switching["fe2"] = []dataplane.BackendSwitchingRule{
		{CondTest: str("new"), Name: str("pool")},
	}
	f.servers["pool"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Domain: "new.example.com", Server: "10.0.0.1:80"}}, entries)
}

func TestResolveOverrideWithoutAddressesFallsBack(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{{Name: str("svc.dwellir.com")}}
	f.rules["svc.dwellir.com"] = []dataplane.HTTPRequestRule{
		{HdrName: str("X-Destination-Backend"), HdrFormat: str("not-an-address")},
	}
	f.servers["svc.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.9:80")}}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Domain: "svc.dwellir.com", Server: "10.0.0.9:80"}}, entries)
}

func TestResolveBackendOrderPreserved(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{
		{Name: str("b.dwellir.com")},
		{Name: str("a.dwellir.com")},
		{Name: str("c.dwellir.com")},
	}
	for _, b := range []string{"a.dwellir.com", "b.dwellir.com", "c.dwellir.com"} {
		f.servers[b] = []dataplane.Server{{Address: str("10.0.0.1:80")}}
	}

	entries, err := newTestResolver(t, f).Resolve(context.Background())
	require.NoError(t, err)

	domains := make([]string, len(entries))
	for i, e := range entries {
		domains[i] = e.Domain
	}
	assert.Equal(t, []string{"b.dwellir.com", "a.dwellir.com", "c.dwellir.com"}, domains)
}

func TestResolveCustomSuffix(t *testing.T) {
	f := newFakeFetcher()
	f.backends = []dataplane.Backend{
		{Name: str("svc.internal")},
		{Name: str("svc.dwellir.com")},
	}
	f.servers["svc.internal"] = []dataplane.Server{{Address: str("10.0.0.1:80")}}
	f.servers["svc.dwellir.com"] = []dataplane.Server{{Address: str("10.0.0.2:80")}}

	r := NewResolver(f, Config{ManagedSuffix: ".internal"}, testLogger(t))
	entries, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Domain: "svc.internal", Server: "10.0.0.1:80"}}, entries)
}
