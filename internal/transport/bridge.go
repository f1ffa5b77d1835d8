package transport

import (
	"io"
	"net"
	"sync"
)

// bridgeConn gives a deadline-less conn (an SSH channel) real read and
// write deadlines.  Two pump goroutines copy between the remote conn
// and one end of a net.Pipe; the caller uses the other end, which
// honours SetReadDeadline/SetWriteDeadline.
type bridgeConn struct {
	net.Conn // local pipe end

	remote    net.Conn
	closeOnce sync.Once
	pumps     sync.WaitGroup
}

// bridge wraps remote.  Closing the bridge closes remote; remote EOF
// surfaces as io.EOF on the bridge's Read.
func bridge(remote net.Conn) net.Conn {
	local, inner := net.Pipe()
	b := &bridgeConn{Conn: local, remote: remote}

	b.pumps.Add(2)
	go func() {
		defer b.pumps.Done()
		io.Copy(inner, remote) //nolint:errcheck
		// Remote finished sending: let the local reader see EOF.
		inner.Close()
	}()
	go func() {
		defer b.pumps.Done()
		io.Copy(remote, inner) //nolint:errcheck
		// Local side closed: there is nothing more to forward.
		remote.Close()
	}()
	return b
}

// Close closes both ends and waits for the pumps to exit.
func (b *bridgeConn) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.Conn.Close()
		b.remote.Close() //nolint:errcheck // may already be closed by a pump
		b.pumps.Wait()
	})
	return err
}

func (b *bridgeConn) LocalAddr() net.Addr  { return b.remote.LocalAddr() }
func (b *bridgeConn) RemoteAddr() net.Addr { return b.remote.RemoteAddr() }
