// Package tunnel carries tcplink sessions through an SSH gateway using
// golang.org/x/crypto/ssh direct-tcpip channels.  The plain-text wire
// format is unchanged; SSH only transports it.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// can be forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool
}
