package probe

import (
	"context"
	"net"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// classifyConnectivity resolves the host's A and AAAA records and classifies
// the address families it serves. Resolver failures for one family simply
// count as "no records"; a host resolving neither is Unknown.
func classifyConnectivity(ctx context.Context, resolver *net.Resolver, host string) domain.Connectivity {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	v4, _ := resolver.LookupIP(ctx, "ip4", host)
	v6, _ := resolver.LookupIP(ctx, "ip6", host)
	switch {
	case len(v4) > 0 && len(v6) > 0:
		return domain.ConnDual
	case len(v4) > 0:
		return domain.ConnIPv4
	case len(v6) > 0:
		return domain.ConnIPv6
	default:
		return domain.ConnUnknown
	}
}
