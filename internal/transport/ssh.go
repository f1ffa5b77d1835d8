package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"tcplink/tunnel"
	"tcplink/util"
)

// SSHDialer routes connections through an SSH tunnel.  The tunnel is
// connected lazily on the first Dial, reconnected on a later Dial if the
// gateway went away, and torn down on Close.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	target string // gateway, for log lines
	logger *util.Logger
	mu     sync.Mutex
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH gateway.  Nothing is dialled until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return newSSHDialer(tunnel.NewSSHTunnel(cfg, logger),
		fmt.Sprintf("%s@%s:%d", cfg.User, cfg.Host, cfg.Port), logger)
}

func newSSHDialer(t tunnel.Tunnel, target string, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tunnel: t, target: target, logger: logger.Named("transport")}
}

// connect establishes the SSH tunnel if it is not up.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel via %s", d.target)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	return nil
}

// Dial connects to address through the SSH tunnel.  The SSH channel is
// bridged so the returned conn supports deadlines.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	conn, err := d.tunnel.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return bridge(conn), nil
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
