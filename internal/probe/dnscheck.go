package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNSStatus classifies what the resolver knows about an unreachable host, so
// an operator can tell "camera offline" from "name no longer resolves".
type DNSStatus struct {
	Host          string   `json:"host"`
	IPs           []string `json:"ips,omitempty"`
	CNAME         string   `json:"cname,omitempty"`
	Class         string   `json:"class"` // "ADDRESS" | "RESOLVES" | "NXDOMAIN" | "SERVFAIL_or_TIMEOUT" | "INVALID_NAME"
	ResolverError string   `json:"resolver_error,omitempty"`
}

var dnsTimeout = 3 * time.Second

// Diagnose resolves host with the OS resolver. Literal IP addresses are
// reported as ADDRESS without a lookup.
func Diagnose(ctx context.Context, host string) DNSStatus {
	return diagnose(ctx, net.DefaultResolver, host)
}

func diagnose(ctx context.Context, r *net.Resolver, host string) DNSStatus {
	s := DNSStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") || strings.ContainsAny(s.Host, " /") {
		s.Class = "INVALID_NAME"
		return s
	}
	if ip := net.ParseIP(s.Host); ip != nil {
		s.Class = "ADDRESS"
		s.IPs = []string{ip.String()}
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Host)
	switch {
	case err == nil && len(ips) > 0:
		s.Class = "RESOLVES"
		for _, ip := range ips {
			s.IPs = append(s.IPs, ip.String())
		}
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			s.Class = "NXDOMAIN"
		} else {
			s.Class = "SERVFAIL_or_TIMEOUT"
		}
	default:
		s.Class = "NXDOMAIN"
	}

	if cname, err := r.LookupCNAME(ctx, s.Host); err == nil && !strings.EqualFold(cname, s.Host+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}
	return s
}
