package ident

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
)

// DetectIP returns the first non-loopback IPv4 address of an interface that
// is up, ordered by interface index. It returns "" when none is found.
func DetectIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		slog.With("err", err).Warn("failed to list network interfaces")
		return ""
	}
	sort.Slice(interfaces, func(i, j int) bool {
		return interfaces[i].Index < interfaces[j].Index
	})

	for _, intf := range interfaces {
		if intf.Flags&net.FlagUp == 0 || intf.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := intf.Addrs()
		if err != nil {
			continue
		}
		if ip := FirstIPv4(addrs); ip != "" {
			slog.Debug(fmt.Sprintf("detected ip %s on %s", ip, intf.Name))
			return ip
		}
	}
	return ""
}

// FirstIPv4 picks the first usable IPv4 address from addrs.
func FirstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip = ip.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String()
	}
	return ""
}
