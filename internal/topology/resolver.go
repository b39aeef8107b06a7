package topology

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dwellir-public/haproxy-collector/internal/dataplane"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// ConfigFetcher exposes the read operations the resolver needs from the
// Data Plane API. It must be safe for concurrent use.
type ConfigFetcher interface {
	Backends(ctx context.Context) ([]dataplane.Backend, error)
	BackendServers(ctx context.Context, backend string) ([]dataplane.Server, error)
	BackendHTTPRequestRules(ctx context.Context, backend string) ([]dataplane.HTTPRequestRule, error)
	Frontends(ctx context.Context) ([]dataplane.Frontend, error)
	FrontendACLs(ctx context.Context, frontend string) ([]dataplane.ACL, error)
	FrontendSwitchingRules(ctx context.Context, frontend string) ([]dataplane.BackendSwitchingRule, error)
}

// Entry is one resolved (domain, server) route. The same pair may appear
// more than once when produced by different backends.
type Entry struct {
	Domain string `json:"domain"`
	Server string `json:"server"`
}

// Config holds topology resolver configuration
type Config struct {
	// ManagedSuffix selects backends by name when no switching information
	// references them.
	ManagedSuffix string

	// MaxConcurrentFetches caps in-flight per-frontend and per-backend
	// fetches within one pass.
	MaxConcurrentFetches int
}

// Resolver reconstructs the effective domain-to-server routing table from a
// load balancer's live configuration. Each pass rebuilds all intermediate
// state, so an unchanged remote configuration always yields an identical
// result sequence.
type Resolver struct {
	fetcher       ConfigFetcher
	managedSuffix string
	maxConcurrent int
	logger        *logger.Logger
}

// NewResolver creates a new topology resolver
func NewResolver(fetcher ConfigFetcher, cfg Config, log *logger.Logger) *Resolver {
	suffix := cfg.ManagedSuffix
	if suffix == "" {
		suffix = ".dwellir.com"
	}
	maxConcurrent := cfg.MaxConcurrentFetches
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	return &Resolver{
		fetcher:       fetcher,
		managedSuffix: suffix,
		maxConcurrent: maxConcurrent,
		logger:        log,
	}
}

// Resolve produces the ordered (domain, server) sequence for every route
// currently configured. Any fetch error aborts the whole pass; no partial
// result is returned.
func (r *Resolver) Resolve(ctx context.Context) ([]Entry, error) {
	backendsRaw, err := r.fetcher.Backends(ctx)
	if err != nil {
		return nil, err
	}
	backends := BackendNames(backendsRaw)

	switches, err := r.backendSwitches(ctx)
	if err != nil {
		return nil, err
	}

	// A backend is relevant only if switching rules route domains to it or
	// its name marks it as one of ours.
	var selected []string
	for _, backend := range backends {
		if _, ok := switches[backend]; ok || strings.HasSuffix(backend, r.managedSuffix) {
			selected = append(selected, backend)
		}
	}

	// Per-backend fetches are independent; results are merged in backend
	// order so concurrency never changes the output sequence.
	perBackend := make([][]Entry, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i, backend := range selected {
		i, backend := i, backend
		g.Go(func() error {
			entries, err := r.resolveBackend(gctx, backend, switches)
			if err != nil {
				return err
			}
			perBackend[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []Entry
	for _, backendEntries := range perBackend {
		entries = append(entries, backendEntries...)
	}

	r.logger.ResolverLogger().WithFields(map[string]interface{}{
		"backends_total":    len(backends),
		"backends_selected": len(selected),
		"entries":           len(entries),
	}).Debug("Resolved topology")

	return entries, nil
}

// resolveBackend emits the domain × server cross product for one backend.
// An unconditional X-Destination-Backend rewrite takes exclusive precedence
// over the backend's raw server list.
func (r *Resolver) resolveBackend(ctx context.Context, backend string, switches map[string][]string) ([]Entry, error) {
	rules, err := r.fetcher.BackendHTTPRequestRules(ctx, backend)
	if err != nil {
		return nil, err
	}

	servers := DestinationServers(rules)
	if servers == nil {
		raw, err := r.fetcher.BackendServers(ctx, backend)
		if err != nil {
			return nil, err
		}
		servers = ServerAddresses(raw)
	}

	// Without switching information the backend name doubles as its domain.
	domains, ok := switches[backend]
	if !ok {
		domains = []string{backend}
	}

	entries := make([]Entry, 0, len(domains)*len(servers))
	for _, domain := range domains {
		for _, server := range servers {
			entries = append(entries, Entry{Domain: domain, Server: server})
		}
	}
	return entries, nil
}

// backendSwitches builds the backend-to-domains map for one pass by joining
// every frontend's domain ACLs with its switching rules. Frontends are
// fetched concurrently but merged in input order, later frontends winning
// on backend-name collision.
func (r *Resolver) backendSwitches(ctx context.Context) (map[string][]string, error) {
	frontendsRaw, err := r.fetcher.Frontends(ctx)
	if err != nil {
		return nil, err
	}
	frontends := FrontendNames(frontendsRaw)

	switches := make(map[string][]string)
	if len(frontends) == 0 {
		return switches, nil
	}

	contributions := make([]map[string][]string, len(frontends))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for i, frontend := range frontends {
		i, frontend := i, frontend
		g.Go(func() error {
			contribution, err := r.frontendSwitches(gctx, frontend)
			if err != nil {
				return err
			}
			contributions[i] = contribution
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, contribution := range contributions {
		for backend, domains := range contribution {
			switches[backend] = domains
		}
	}
	return switches, nil
}

// frontendSwitches resolves one frontend's contribution. A frontend with no
// domain ACLs or no usable switching rules contributes nothing; that is an
// absence of override information, not an error. A condition test that
// matches no switching rule falls back to the ACL name as the backend key.
func (r *Resolver) frontendSwitches(ctx context.Context, frontend string) (map[string][]string, error) {
	acls, err := r.fetcher.FrontendACLs(ctx, frontend)
	if err != nil {
		return nil, err
	}
	domainSets := DomainACLs(acls)
	if len(domainSets) == 0 {
		return nil, nil
	}

	rules, err := r.fetcher.FrontendSwitchingRules(ctx, frontend)
	if err != nil {
		return nil, err
	}
	targets := SwitchingTargets(rules)
	if len(targets) == 0 {
		return nil, nil
	}

	contribution := make(map[string][]string, len(domainSets))
	for _, set := range domainSets {
		backend, ok := targets[set.ACL]
		if !ok {
			backend = set.ACL
		}
		contribution[backend] = set.Domains
	}
	return contribution, nil
}
