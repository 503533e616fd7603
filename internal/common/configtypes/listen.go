package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ListenAddress is a parsed "host:port" listen string. An empty host binds all interfaces.
type ListenAddress struct {
	Host string
	Port int
}

// ParseListenAddress accepts ":8080", "8080", "localhost:8080" or "[::1]:8080"
func ParseListenAddress(listen string) (ListenAddress, error) {
	if listen == "" {
		return ListenAddress{}, fmt.Errorf("listen address is empty")
	}

	host, portStr := "", listen
	if strings.Contains(listen, ":") {
		var err error
		host, portStr, err = net.SplitHostPort(listen)
		if err != nil {
			return ListenAddress{}, fmt.Errorf("invalid listen address %q: %w", listen, err)
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ListenAddress{}, fmt.Errorf("invalid port in listen address %q", listen)
	}
	if port < 1 || port > 65535 {
		return ListenAddress{}, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return ListenAddress{Host: host, Port: port}, nil
}

// ValidateListenAddress checks format and port range
func ValidateListenAddress(listen string) error {
	_, err := ParseListenAddress(listen)
	return err
}

// String returns the address in the form net.Listen expects
func (a ListenAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// SamePort reports whether two listen strings would collide on the same port.
// Unparseable input never collides; validation reports it separately.
func SamePort(a, b string) bool {
	pa, errA := ParseListenAddress(a)
	pb, errB := ParseListenAddress(b)
	if errA != nil || errB != nil {
		return false
	}
	return pa.Port == pb.Port
}
