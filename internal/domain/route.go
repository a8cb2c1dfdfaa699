package domain

import (
	"fmt"
	"sort"
)

// IssuerRoute maps a BIN prefix to an issuing bank's authorization
// endpoint
type IssuerRoute struct {
	BINPrefix string
	Issuer    string
	URL       string
}

// RouteTable is the immutable BIN routing configuration. It is built
// once at startup and passed into the switch; lookups are read-only and
// safe for concurrent use.
type RouteTable struct {
	routes []IssuerRoute
}

// NewRouteTable builds a route table from the configured routes. Routes
// are ordered longest-prefix-first so the most specific BIN range wins.
func NewRouteTable(routes []IssuerRoute) (*RouteTable, error) {
	for _, r := range routes {
		if r.BINPrefix == "" || r.URL == "" {
			return nil, fmt.Errorf("issuer route %q: bin prefix and url are required", r.Issuer)
		}
		for _, c := range r.BINPrefix {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("issuer route %q: bin prefix must be numeric, got %q", r.Issuer, r.BINPrefix)
			}
		}
	}
	sorted := make([]IssuerRoute, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].BINPrefix) > len(sorted[j].BINPrefix)
	})
	return &RouteTable{routes: sorted}, nil
}

// Match resolves the issuer route for a PAN. A PAN outside every
// configured BIN range is a routing failure, not a retryable error.
func (t *RouteTable) Match(pan string) (IssuerRoute, bool) {
	for _, r := range t.routes {
		if len(pan) >= len(r.BINPrefix) && pan[:len(r.BINPrefix)] == r.BINPrefix {
			return r, true
		}
	}
	return IssuerRoute{}, false
}

// Len returns the number of configured routes
func (t *RouteTable) Len() int {
	return len(t.routes)
}
