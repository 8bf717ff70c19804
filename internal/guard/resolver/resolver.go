// Package resolver is the thin DNS adapter the validator depends on.
package resolver

import (
	"context"
	"fmt"
	"net"
)

// Resolver resolves a hostname to every address a lookup yields.
// Timeout and cancellation come from the caller's context; implementations
// must not swallow context errors, because the validator fails closed on them.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

// netResolver adapts net.Resolver to the Resolver interface
type netResolver struct {
	r *net.Resolver
}

// NewNetResolver returns a Resolver backed by the system resolver
func NewNetResolver() Resolver {
	return &netResolver{r: net.DefaultResolver}
}

// LookupIP returns all A and AAAA records for the host. A lookup that
// succeeds with zero addresses is reported as an error: an attacker
// controlling DNS must not be able to produce an "empty but fine" answer.
func (n *netResolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := n.r.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses returned", host)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}
