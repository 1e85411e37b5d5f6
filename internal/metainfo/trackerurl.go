package metainfo

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/coreswarm/gorent/internal/bterror"
)

// Endpoint is a resolved tracker address: one IPv4 A record for a UDP
// tracker URL's host, paired with the URL's port.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

// Resolver resolves a hostname to its IPv4 addresses. DNS resolution is a
// collaborator outside this package's scope (spec.md §1's out-of-scope
// list); production callers pass net.DefaultResolver-backed
// implementations, tests pass a fake. Modeled on uber-kraken's pattern of
// depending on narrow interfaces at package boundaries rather than *net.Resolver
// directly.
type Resolver interface {
	LookupIPv4(host string) ([]net.IP, error)
}

// NetResolver is the production Resolver backed by the standard library.
type NetResolver struct{}

// LookupIPv4 resolves host via net.LookupIP and returns only its IPv4
// addresses.
func (NetResolver) LookupIPv4(host string) ([]net.IP, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	return ips, nil
}

// udpTrackerURL matches udp://HOST:PORT/announce with a case-sensitive
// scheme, a non-empty host, and a decimal port. Port range (1..=65535) is
// checked after the match since \d+ alone would also accept 0 or
// arbitrarily large numbers.
var udpTrackerURL = regexp.MustCompile(`^udp://([^:/]+):(\d+)/announce$`)

// candidateURLs returns the ordered list of tracker URLs this Torrent
// advertises: announce first, then the first entry of each announce-list
// tier, per spec.md §4.1's tracker URL extraction rule.
func (t *Torrent) candidateURLs() []string {
	urls := make([]string, 0, 1+len(t.AnnounceList))
	if t.Announce != "" {
		urls = append(urls, t.Announce)
	}
	for _, tier := range t.AnnounceList {
		if len(tier) > 0 {
			urls = append(urls, tier[0])
		}
	}
	return urls
}

// ParseUDPTrackerURL reports whether rawurl matches udp://HOST:PORT/announce
// and, if so, returns its host and port.
func ParseUDPTrackerURL(rawurl string) (host string, port uint16, ok bool) {
	m := udpTrackerURL.FindStringSubmatch(rawurl)
	if m == nil {
		return "", 0, false
	}
	p, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil || p == 0 || p > 65535 {
		return "", 0, false
	}
	return m[1], uint16(p), true
}

// ResolveTrackerEndpoints scans t's announce and announce-list tiers in
// order for the first UDP tracker URL whose host resolves via r to at
// least one IPv4 address, and returns one Endpoint per resolved A record
// of that host; a URL whose lookup fails or yields no address is skipped. Non-UDP URLs (http, https, or anything
// else) are skipped, per spec.md's "ignore non-UDP URLs in this core".
func (t *Torrent) ResolveTrackerEndpoints(r Resolver) ([]Endpoint, error) {
	const op = "metainfo.ResolveTrackerEndpoints"

	var lastErr error
	for _, raw := range t.candidateURLs() {
		host, port, ok := ParseUDPTrackerURL(raw)
		if !ok {
			continue
		}
		ips, err := r.LookupIPv4(host)
		if err != nil {
			lastErr = err
			continue
		}
		if len(ips) == 0 {
			continue
		}
		endpoints := make([]Endpoint, len(ips))
		for i, ip := range ips {
			endpoints[i] = Endpoint{IP: ip, Port: port}
		}
		return endpoints, nil
	}
	if lastErr != nil {
		return nil, bterror.New(op, bterror.TrackerUnreachable, fmt.Errorf("resolve tracker host: %w", lastErr))
	}
	return nil, bterror.New(op, bterror.TrackerUnreachable, fmt.Errorf("no usable udp tracker url in announce/announce-list"))
}
