// Package netutil holds small network helpers for the console banner.
package netutil

import "net"

// LanIP returns the first non-loopback IPv4 address of this host, falling
// back to the loopback address when none is found.
func LanIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}

	return "127.0.0.1"
}
