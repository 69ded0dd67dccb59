package tserver

import (
	"fmt"
	"net"
	"os"
	"strconv"

	api "stratadb/pkg/api"
)

// AdvertiseAddress turns a listen address into the address registered with
// the master. Wildcard hosts are unreachable for peers and the master rejects
// them, so they resolve to this machine's hostname before registration.
func AdvertiseAddress(addr string) (api.HostPort, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return api.HostPort{}, fmt.Errorf("advertise address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return api.HostPort{}, fmt.Errorf("advertise address %q: %w", addr, err)
	}
	if isWildcardHost(host) {
		hostname, err := os.Hostname()
		if err != nil {
			return api.HostPort{}, fmt.Errorf("resolve hostname for wildcard %q: %w", addr, err)
		}
		host = hostname
	}
	return api.HostPort{Host: host, Port: port}, nil
}

func isWildcardHost(host string) bool {
	if host == "" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsUnspecified()
	}
	return false
}
