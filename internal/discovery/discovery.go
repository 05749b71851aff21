// Package discovery finds GateLink hubs on the local network. Hubs
// advertise an mDNS service; the scanner browses for it, filters entries
// by the hub hostname pattern, and reports each hub's address and TXT
// metadata.
package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type hubs advertise.
	ServiceType = "_glhub._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a full network scan.
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the hub's TCP protocol port when the advertisement
	// does not carry one.
	DefaultPort = 4196
)

// serialPattern matches hub hostnames, e.g. "GL-90F1A2.local.".
var serialPattern = regexp.MustCompile(`^GL-([0-9A-Fa-f]+)\.local\.?$`)

// Hub is one discovered hub.
type Hub struct {
	// Serial is the hub's serial number from its hostname.
	Serial string

	// Hostname is the advertised mDNS hostname.
	Hostname string

	// Addr is the hub's protocol endpoint as host:port, ready for a
	// session config.
	Addr string

	// Metadata holds the advertisement's TXT records.
	Metadata map[string]string

	// DiscoveredAt is when the advertisement was seen.
	DiscoveredAt time.Time
}

// Scanner browses mDNS for hub advertisements.
type Scanner struct {
	// Timeout bounds one scan.
	Timeout time.Duration
}

// NewScanner returns a scanner with the default timeout.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan discovers every hub reachable on the local network, browsing
// until the timeout elapses or ctx is canceled.
func (s *Scanner) Scan(ctx context.Context) ([]*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	collected := make(chan []*Hub, 1)
	go func() {
		var hubs []*Hub
		for entry := range entries {
			if hub := parseServiceEntry(entry); hub != nil {
				hubs = append(hubs, hub)
			}
		}
		collected <- hubs
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse mDNS: %w", err)
	}
	<-ctx.Done()
	return <-collected, nil
}

// Find waits for one hub by serial number, returning as soon as its
// advertisement is seen.
func (s *Scanner) Find(ctx context.Context, serial string) (*Hub, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Hub, 1)
	go func() {
		for entry := range entries {
			if hub := parseServiceEntry(entry); hub != nil &&
				strings.EqualFold(hub.Serial, serial) {
				select {
				case found <- hub:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse mDNS: %w", err)
	}

	select {
	case hub := <-found:
		return hub, nil
	case <-ctx.Done():
		select {
		case hub := <-found:
			return hub, nil
		default:
			return nil, fmt.Errorf("discovery: hub %s not found before timeout", serial)
		}
	}
}

// parseServiceEntry converts a zeroconf entry to a Hub, or nil when the
// entry is not a GateLink hub.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Hub {
	matches := serialPattern.FindStringSubmatch(entry.HostName)
	if len(matches) < 2 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Hub{
		Serial:       strings.ToUpper(matches[1]),
		Hostname:     entry.HostName,
		Addr:         fmt.Sprintf("%s:%d", ip, port),
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
