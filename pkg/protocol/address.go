package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address identifies a mesh participant by the host and port of its P2P
// listener. It is comparable and used as a map key.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) IsZero() bool { return a == Address{} }

// Less orders addresses by their string form.
func (a Address) Less(b Address) bool { return a.String() < b.String() }

// ParseAddress accepts "host:port".
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("parse address %q: invalid port", s)
	}
	if host == "" {
		return Address{}, fmt.Errorf("parse address %q: missing host", s)
	}
	return Address{Host: host, Port: port}, nil
}
