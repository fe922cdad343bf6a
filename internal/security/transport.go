// Package security guards outbound webhook delivery against SSRF.
//
// SafeTransport resolves every destination before dialing and refuses to
// connect when any resolved address falls inside a blocked range (loopback,
// private networks, link-local metadata endpoints).
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	// ErrSSRFBlocked is returned when a destination resolves to a blocked range.
	ErrSSRFBlocked = errors.New("ssrf: request to blocked IP range")
	// ErrSSRFDNSTimeout is returned when DNS resolution exceeds dnsTimeout.
	ErrSSRFDNSTimeout = errors.New("ssrf: DNS resolution timeout")
	// ErrSSRFDNSFailed is returned when DNS resolution fails entirely.
	ErrSSRFDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrSSRFTooManyRedirects is returned when the redirect limit is exceeded.
	ErrSSRFTooManyRedirects = errors.New("ssrf: too many redirects")
)

// BlockedCIDRs lists the ranges webhook delivery may never reach.
var BlockedCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedNets = mustParseCIDRs(BlockedCIDRs)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("ssrf: bad CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// IsBlockedIP reports whether ip falls within any blocked range.
func IsBlockedIP(ip net.IP) bool {
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard resolves hosts and checks them against the blocklist.
type Guard struct {
	Resolver Resolver
}

func (g *Guard) resolver() Resolver {
	if g.Resolver != nil {
		return g.Resolver
	}
	return net.DefaultResolver
}

// CheckHost resolves host (unless it is an IP literal) and returns the first
// address to dial. Every resolved address must be allowed, which defeats
// rebinding tricks that mix a public and a private answer.
func (g *Guard) CheckHost(ctx context.Context, host string) (net.IP, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrSSRFBlocked)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, ip)
		}
		return ip, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := g.resolver().LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrSSRFDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrSSRFDNSFailed, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrSSRFDNSFailed, host)
	}
	for _, a := range addrs {
		if IsBlockedIP(a.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrSSRFBlocked, a.IP, host)
		}
	}
	return addrs[0].IP, nil
}

// SafeTransport is an http.RoundTripper whose dialer only connects to
// addresses the Guard allows.
type SafeTransport struct {
	Guard *Guard
	Base  *http.Transport
}

// NewSafeTransport wraps base (or a default transport) with guarded dialing.
func NewSafeTransport(base *http.Transport, guard *Guard) *SafeTransport {
	if base == nil {
		base = &http.Transport{}
	}
	if guard == nil {
		guard = &Guard{}
	}
	st := &SafeTransport{Guard: guard, Base: base}
	base.DialContext = st.dialContext
	return st
}

// RoundTrip implements http.RoundTripper.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

func (st *SafeTransport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}
	ip, err := st.Guard.CheckHost(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
}

// CheckRedirect validates every redirect hop against the guard and caps the
// number of hops.
func CheckRedirect(maxRedirects int, guard *Guard) func(req *http.Request, via []*http.Request) error {
	if guard == nil {
		guard = &Guard{}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrSSRFTooManyRedirects, maxRedirects)
		}
		_, err := guard.CheckHost(req.Context(), req.URL.Hostname())
		return err
	}
}

// NewSafeHTTPClient returns a client for webhook delivery with guarded
// dialing and redirect checking.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	guard := &Guard{}
	return &http.Client{
		Transport:     NewSafeTransport(nil, guard),
		Timeout:       timeout,
		CheckRedirect: CheckRedirect(maxRedirects, guard),
	}
}
