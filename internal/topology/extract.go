package topology

import (
	"regexp"
	"strings"

	"github.com/dwellir-public/haproxy-collector/internal/dataplane"
)

const (
	// destinationHeader marks an HTTP request rule as a destination
	// override: its hdr_format carries the real upstream addresses.
	destinationHeader = "X-Destination-Backend"

	// domainACLPrefix identifies ACL values that match on domains, e.g.
	// "-i -m dom shop.example.com || shop2.example.com".
	domainACLPrefix = "-i -m dom "

	domainSeparator = " || "
)

// destServerPattern matches "a.b.c.d:port"; the capture group is the address
var destServerPattern = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+):\d+`)

// ACLDomains is one domain ACL with its parsed domain set, in input order.
type ACLDomains struct {
	ACL     string
	Domains []string
}

// BackendNames returns the names of all backends that carry one,
// in input order.
func BackendNames(backends []dataplane.Backend) []string {
	var names []string
	for _, b := range backends {
		if b.Name != nil {
			names = append(names, *b.Name)
		}
	}
	return names
}

// FrontendNames returns the names of all frontends that carry one,
// in input order.
func FrontendNames(frontends []dataplane.Frontend) []string {
	var names []string
	for _, f := range frontends {
		if f.Name != nil {
			names = append(names, *f.Name)
		}
	}
	return names
}

// ServerAddresses returns the addresses of all servers that carry one,
// in input order.
func ServerAddresses(servers []dataplane.Server) []string {
	var addrs []string
	for _, s := range servers {
		if s.Address != nil {
			addrs = append(addrs, *s.Address)
		}
	}
	return addrs
}

// DestinationServers extracts the destination override addresses from a
// backend's HTTP request rules. Only the first unconditional rule setting
// X-Destination-Backend is eligible; every IPv4:port occurrence in its
// hdr_format contributes its address part, duplicates preserved. A nil
// result means no override is present, including the case where the rule
// exists but yields no addresses.
func DestinationServers(rules []dataplane.HTTPRequestRule) []string {
	var format string
	for _, r := range rules {
		if r.HdrName != nil && *r.HdrName == destinationHeader && r.Cond == nil {
			if r.HdrFormat != nil {
				format = *r.HdrFormat
			}
			break
		}
	}
	if format == "" {
		return nil
	}

	var addrs []string
	for _, m := range destServerPattern.FindAllStringSubmatch(format, -1) {
		addrs = append(addrs, m[1])
	}
	return addrs
}

// DomainACLs parses the domain ACLs out of a frontend's ACL records.
// Only values starting with the "-i -m dom " prefix qualify; the remainder
// splits on " || " into the domain list. Input order is preserved so that
// duplicate ACL names resolve last-wins downstream.
func DomainACLs(acls []dataplane.ACL) []ACLDomains {
	var out []ACLDomains
	for _, acl := range acls {
		if acl.ACLName == nil || acl.Value == nil {
			continue
		}
		if !strings.HasPrefix(*acl.Value, domainACLPrefix) {
			continue
		}
		domains := strings.Split(strings.TrimPrefix(*acl.Value, domainACLPrefix), domainSeparator)
		out = append(out, ACLDomains{ACL: *acl.ACLName, Domains: domains})
	}
	return out
}

// SwitchingTargets maps each switching rule's condition test to its target
// backend. Rules missing either field are discarded; on duplicate condition
// tests the last rule wins.
func SwitchingTargets(rules []dataplane.BackendSwitchingRule) map[string]string {
	targets := make(map[string]string)
	for _, r := range rules {
		if r.Name == nil || r.CondTest == nil {
			continue
		}
		targets[*r.CondTest] = *r.Name
	}
	return targets
}
