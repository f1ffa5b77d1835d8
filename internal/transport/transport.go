// Package transport provides abstractions for network connection
// establishment.  Transports handle the "how" of reaching the server
// (plain TCP, or TCP carried through an SSH gateway) independent of
// what the session does with the connection.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  Every returned conn
// supports read and write deadlines; the session relies on them for
// its polling receive.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
