package session

import (
	"context"
	"net"
	"time"
)

// TCPProbe reports the channel host reachable when a TCP connection can be
// opened to it within Timeout.
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

// Reachable implements internal.Reachability
func (p TCPProbe) Reachable(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
