// Package discovery advertises the recorder API on the local network over
// mDNS and finds other instances.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service advertised by screenflowr.
const ServiceType = "_screenflowr._tcp"

// Instance is one advertised recorder found on the network.
type Instance struct {
	Name string            `json:"name"`
	Host string            `json:"host"`
	Addr string            `json:"addr"`
	Port int               `json:"port"`
	Info map[string]string `json:"info,omitempty"`
}

// Advertiser publishes the service until Shutdown.
type Advertiser struct {
	server *mdns.Server
	logger *slog.Logger
}

// Advertise announces instance on port. info is published as key=value
// TXT records. An empty instance uses the host name.
func Advertise(instance string, port int, info map[string]string, logger *slog.Logger) (*Advertiser, error) {
	service, err := newService(instance, port, info)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mDNS server: %w", err)
	}
	logger.Info("discovery: advertising",
		slog.String("instance", service.Instance),
		slog.String("service", ServiceType),
		slog.Int("port", port),
	)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	if err := a.server.Shutdown(); err != nil {
		return fmt.Errorf("discovery: shutdown: %w", err)
	}
	a.logger.Info("discovery: stopped advertising")
	return nil
}

func newService(instance string, port int, info map[string]string) (*mdns.MDNSService, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", port)
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: hostname: %w", err)
		}
		instance = host
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, localIPs(), txtRecords(info))
	if err != nil {
		return nil, fmt.Errorf("discovery: create mDNS service: %w", err)
	}
	return service, nil
}

// localIPs returns the IPv4 addresses of every up, non-loopback interface,
// falling back to loopback so the zone always has an address record.
func localIPs() []net.IP {
	var out []net.IP
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				out = append(out, ipnet.IP.To4())
			}
		}
	}
	if len(out) == 0 {
		out = append(out, net.IPv4(127, 0, 0, 1))
	}
	return out
}

// txtRecords renders info as sorted key=value strings.
func txtRecords(info map[string]string) []string {
	out := make([]string, 0, len(info))
	for k, v := range info {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func parseTXT(fields []string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, _ := strings.Cut(f, "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// Browse queries the network for recorders, collecting answers until
// timeout or ctx ends.
func Browse(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(map[string]Instance)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if inst, ok := toInstance(e); ok {
				found[inst.Name] = inst
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() { errCh <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
		// Query returns at its own timeout; wait so entries is not closed
		// while it may still send.
		<-errCh
	}
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}

	out := make([]Instance, 0, len(found))
	for _, inst := range found {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func toInstance(e *mdns.ServiceEntry) (Instance, bool) {
	if e == nil || e.Port == 0 {
		return Instance{}, false
	}
	var addr net.IP
	switch {
	case e.AddrV4 != nil:
		addr = e.AddrV4
	case e.AddrV6 != nil:
		addr = e.AddrV6
	default:
		return Instance{}, false
	}
	name := strings.TrimSuffix(e.Name, "."+ServiceType+".local.")
	return Instance{
		Name: name,
		Host: e.Host,
		Addr: net.JoinHostPort(addr.String(), fmt.Sprint(e.Port)),
		Port: e.Port,
		Info: parseTXT(e.InfoFields),
	}, true
}
