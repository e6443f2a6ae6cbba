package port

import (
	"net"
	"strconv"
	"time"
)

// CheckConfig carries the occupancy-check booleans resolved from
// configuration. Field names intentionally diverge from the config
// schema's skip_ip4/skip_ip6 (see config.OccupancyConfig): the runtime
// check works in terms of IPv4/IPv6, while the configuration surface
// uses the shorter historical names. CheckAllInterfaces is accepted
// but not yet consumed — see (SystemChecker).IsOccupied.
type CheckConfig struct {
	Skip              bool
	SkipIPv4          bool
	SkipIPv6          bool
	SkipTCP           bool
	SkipUDP           bool
	CheckAllInterfaces bool
}

// Checker is the capability the allocator consults to find out whether
// a port is bound at the OS level. SystemChecker probes loopback
// sockets; MockChecker (in occupancy_mock.go) is a deterministic fake
// for tests.
type Checker interface {
	IsOccupied(p Port, cfg CheckConfig) (bool, error)
	FindOccupied(r Range, cfg CheckConfig) ([]Port, error)
}

// SystemChecker probes actual OS sockets by attempting to bind them.
type SystemChecker struct {
	// DialTimeout is not consulted: the probes bind local sockets
	// rather than dial, and a bind attempt does not wait.
	DialTimeout time.Duration
}

// IsOccupied reports whether port p appears bound. If cfg.Skip is set,
// or both TCP and UDP checks are skipped, or both IPv4 and IPv6 checks
// are skipped, the probe is skipped entirely and false is returned
// without touching the network. Otherwise it attempts to bind a
// listener; failure to bind is treated as "occupied".
func (s SystemChecker) IsOccupied(p Port, cfg CheckConfig) (bool, error) {
	if cfg.Skip {
		return false, nil
	}
	if cfg.SkipTCP && cfg.SkipUDP {
		return false, nil
	}
	if cfg.SkipIPv4 && cfg.SkipIPv6 {
		return false, nil
	}

	if !cfg.SkipTCP {
		if !portFreeTCP(p, cfg) {
			return true, nil
		}
	}
	if !cfg.SkipUDP {
		if !portFreeUDP(p, cfg) {
			return true, nil
		}
	}
	return false, nil
}

// FindOccupied is the range-scanning default derived from IsOccupied.
func (s SystemChecker) FindOccupied(r Range, cfg CheckConfig) ([]Port, error) {
	var out []Port
	for p := r.Min; ; p++ {
		occ, err := s.IsOccupied(p, cfg)
		if err != nil {
			return nil, err
		}
		if occ {
			out = append(out, p)
		}
		if p == r.Max {
			break
		}
	}
	return out, nil
}

func portFreeTCP(p Port, cfg CheckConfig) bool {
	free := true
	if !cfg.SkipIPv4 {
		free = free && tcpBind("127.0.0.1", p)
	}
	if !cfg.SkipIPv6 {
		free = free && tcpBind("::1", p)
	}
	return free
}

func portFreeUDP(p Port, cfg CheckConfig) bool {
	free := true
	if !cfg.SkipIPv4 {
		free = free && udpBind("127.0.0.1", p)
	}
	if !cfg.SkipIPv6 {
		free = free && udpBind("::1", p)
	}
	return free
}

func tcpBind(host string, p Port) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(int(p)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func udpBind(host string, p Port) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(int(p)))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
