// Package discovery advertises the meter's HTTP service over mDNS.
package discovery

import (
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"
	"github.com/sirupsen/logrus"

	"github.com/ztkent/color-meter/internal/tools"
)

const (
	ServiceType = "_colormeter._tcp"
	Domain      = "local."
	// Matches the "service_name" served on /id.
	ServiceName = "Color Meter"
)

type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the service on port until Shutdown is called.
func Advertise(cfg tools.DiscoveryConfig, port int, ssl bool) (*Advertiser, error) {
	ifaces, err := interfaces(cfg.Interface)
	if err != nil {
		return nil, err
	}
	server, err := zeroconf.Register(
		cfg.Instance,
		ServiceType,
		Domain,
		port,
		txtRecords(ssl),
		ifaces,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mdns service: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"instance": cfg.Instance,
		"service":  ServiceType,
		"port":     port,
	}).Info("Advertising service over mDNS")
	return &Advertiser{server: server}, nil
}

// nil means all interfaces.
func interfaces(name string) ([]net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("mdns interface %q: %w", name, err)
	}
	return []net.Interface{*iface}, nil
}

func txtRecords(ssl bool) []string {
	scheme := "http"
	if ssl {
		scheme = "https"
	}
	return []string{
		"id=" + ServiceName,
		"scheme=" + scheme,
		"api=/api/v1",
	}
}

func (a *Advertiser) Shutdown() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
