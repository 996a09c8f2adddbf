package dns

import (
	"context"
	"net"
	"sort"
	"strings"
)

// Resolver looks up mail exchangers through the system resolver
type Resolver struct {
	resolver *net.Resolver
}

// NewResolver creates a new MX resolver
func NewResolver() *Resolver {
	return &Resolver{resolver: net.DefaultResolver}
}

// LookupMX returns the domain's mail exchanger hosts ordered by preference.
// A domain with no usable MX records returns an error.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	hosts := make([]string, 0, len(records))
	for _, record := range records {
		host := strings.TrimSuffix(record.Host, ".")
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}

	if len(hosts) == 0 {
		return nil, &net.DNSError{Err: "no mail exchanger records", Name: domain, IsNotFound: true}
	}
	return hosts, nil
}
