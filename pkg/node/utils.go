package node

import (
	"net"
	"strings"
)

// NormalizeHostPort cuts the tcp:// http:// https:// prefixes from the input
// address and adds a default port
func NormalizeHostPort(addr, defPort string) string {
	addr = strings.TrimSpace(addr)
	for _, scheme := range []string{"tcp://", "http://", "https://"} {
		if rest, ok := strings.CutPrefix(addr, scheme); ok {
			addr = rest
			break
		}
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return net.JoinHostPort(addr, defPort)
}

// HostIP returns the address of the interface that routes to the internet,
// or 127.0.0.1 when there is none. UDP "dialing" sends no packets.
func HostIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if a, ok := conn.LocalAddr().(*net.UDPAddr); ok && !a.IP.IsUnspecified() {
		return a.IP.String()
	}
	return "127.0.0.1"
}
