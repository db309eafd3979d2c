package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker reports whether a TCP address accepts connections.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker constructs a TCPChecker with a 5s default timeout.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

// Check dials the address and reports the outcome.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	dialer := &net.Dialer{Timeout: t.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("connection failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	defer conn.Close()

	return Result{Healthy: true, Message: fmt.Sprintf("tcp connection to %s successful", t.Address), CheckedAt: start, Duration: time.Since(start)}
}

// Type identifies this checker's mechanism.
func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }

// WithTimeout overrides the connection timeout.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
