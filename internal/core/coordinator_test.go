package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ncerr "tcplink/internal/errors"
	"tcplink/internal/metrics"
	"tcplink/internal/session"
	"tcplink/internal/transport"
	"tcplink/util"
)

// ── test helpers ─────────────────────────────────────────────────────

// testServer accepts connections on loopback.  With echo set, every
// line read is written back.
type testServer struct {
	host  string
	port  int
	conns chan net.Conn
	lines chan string
}

func startTestServer(t *testing.T, echo bool) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &testServer{
		host:  "127.0.0.1",
		port:  ln.Addr().(*net.TCPAddr).Port,
		conns: make(chan net.Conn, 16),
		lines: make(chan string, 64),
	}

	var (
		mu       sync.Mutex
		accepted []net.Conn
	)
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range accepted {
			c.Close()
		}
	})

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
			s.conns <- c
			go func() {
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					s.lines <- strings.TrimRight(line, "\n")
					if echo {
						c.Write([]byte(line)) //nolint:errcheck
					}
				}
			}()
		}
	}()
	return s
}

func (s *testServer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func (s *testServer) nextLine(t *testing.T) string {
	t.Helper()
	select {
	case l := <-s.lines:
		return l
	case <-time.After(3 * time.Second):
		t.Fatal("server received nothing")
		return ""
	}
}

func newTestCoordinator(t *testing.T, d transport.Dialer) (*Coordinator, *metrics.Collector) {
	t.Helper()
	return newTunedCoordinator(t, d, session.Options{})
}

func newTunedCoordinator(t *testing.T, d transport.Dialer, so session.Options) (*Coordinator, *metrics.Collector) {
	t.Helper()
	if d == nil {
		d = &transport.TCPDialer{Timeout: 2 * time.Second}
	}
	m := metrics.New()
	c := NewCoordinator(d, CoordinatorOptions{
		PollInterval: 10 * time.Millisecond,
		Session:      so,
		Logger:       util.NewLogger(0),
		Metrics:      m,
	})
	t.Cleanup(c.Release)
	return c, m
}

// startStalledServer accepts connections but never reads from them,
// so a large enough send blocks.
func startStalledServer(t *testing.T) (host string, port int, conns <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ch := make(chan net.Conn, 4)
	t.Cleanup(func() {
		ln.Close()
		for {
			select {
			case c := <-ch:
				c.Close()
			default:
				return
			}
		}
	})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			ch <- c
		}
	}()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port, ch
}

// oversized does not fit in loopback socket buffers.
var oversized = strings.Repeat("x", 32<<20)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func syncOrFail(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

// blockingDialer parks every Dial until ctx ends.
type blockingDialer struct {
	dials  atomic.Int32
	closed atomic.Bool
}

func (d *blockingDialer) Dial(ctx context.Context, _, _ string) (net.Conn, error) {
	d.dials.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *blockingDialer) Close() error {
	d.closed.Store(true)
	return nil
}

// ── scenarios ────────────────────────────────────────────────────────

// TestCoordinator_Echo sends a message to an echo server and expects
// it in both logs.
func TestCoordinator_Echo(t *testing.T) {
	srv := startTestServer(t, true)
	c, m := newTestCoordinator(t, nil)
	view := c.State()

	if err := c.Connect(srv.host, srv.port); err != nil {
		t.Fatal(err)
	}
	syncOrFail(t, c)

	snap := view.Snapshot()
	if !snap.Connected || snap.ServerAddress != srv.host || snap.ServerPort != srv.port {
		t.Fatalf("after connect: %+v", snap)
	}
	if want := fmt.Sprintf("connected to %s:%d", srv.host, srv.port); snap.StatusMessage != want {
		t.Errorf("status = %q, want %q", snap.StatusMessage, want)
	}

	if err := c.Send("hello"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "echo", func() bool {
		return len(view.ReceivedMessages().Get()) == 1
	})

	snap = view.Snapshot()
	if snap.ReceivedMessages[0] != "hello" {
		t.Errorf("received %q, want trailing newline trimmed", snap.ReceivedMessages[0])
	}
	if len(snap.SentMessages) != 1 || snap.SentMessages[0] != "hello" {
		t.Errorf("sent = %v", snap.SentMessages)
	}
	// The echo can race the worker's "message sent".
	if snap.StatusMessage != statusReceived && snap.StatusMessage != statusSent {
		t.Errorf("status = %q", snap.StatusMessage)
	}
	if m.MessagesSent() != 1 || m.MessagesReceived() != 1 {
		t.Errorf("metrics sent=%d received=%d", m.MessagesSent(), m.MessagesReceived())
	}
}

// TestCoordinator_RefusedPort verifies a failed connect leaves the
// state disconnected with a descriptive status.
func TestCoordinator_RefusedPort(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	c, m := newTestCoordinator(t, nil)

	c.Connect("127.0.0.1", port) //nolint:errcheck
	syncOrFail(t, c)

	snap := c.State().Snapshot()
	if snap.Connected {
		t.Error("should not be connected")
	}
	prefix := fmt.Sprintf("connection to 127.0.0.1:%d failed: ", port)
	if !strings.HasPrefix(snap.StatusMessage, prefix) {
		t.Errorf("status = %q, want prefix %q", snap.StatusMessage, prefix)
	}
	if m.ConnectFailures() != 1 {
		t.Errorf("ConnectFailures = %d", m.ConnectFailures())
	}
	if m.ReceiversStarted() != 0 {
		t.Error("no receive loop should start after a failed connect")
	}
}

// TestCoordinator_PeerClose verifies the receive loop notices the
// server going away and cleans up.
func TestCoordinator_PeerClose(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	syncOrFail(t, c)
	srv.accept(t).Close()

	waitFor(t, "peer close", func() bool {
		return c.State().StatusMessage().Get() == statusPeerClosed
	})
	if c.State().Connected().Get() {
		t.Error("connected should be false")
	}
	waitFor(t, "receive loop exit", func() bool { return m.ActiveReceivers() == 0 })
	if m.PeerDrops() != 1 {
		t.Errorf("PeerDrops = %d", m.PeerDrops())
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions = %d", m.ActiveSessions())
	}
}

// TestCoordinator_SingleReceiveLoop reconnects repeatedly and checks
// that two loops never ran at once.
func TestCoordinator_SingleReceiveLoop(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	for i := 0; i < 5; i++ {
		c.Connect(srv.host, srv.port) //nolint:errcheck
	}
	syncOrFail(t, c)

	if got := m.PeakReceivers(); got != 1 {
		t.Errorf("PeakReceivers = %d, want 1", got)
	}
	if got := m.ReceiversStarted(); got != 5 {
		t.Errorf("ReceiversStarted = %d, want 5", got)
	}
	if got := m.ActiveReceivers(); got != 1 {
		t.Errorf("ActiveReceivers = %d, want 1", got)
	}
}

// TestCoordinator_ReconnectSingleSession verifies a reconnect closes
// the previous connection.
func TestCoordinator_ReconnectSingleSession(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	syncOrFail(t, c)
	first := srv.accept(t)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	syncOrFail(t, c)
	srv.accept(t)

	if m.ActiveSessions() != 1 || m.TotalSessions() != 2 {
		t.Errorf("sessions active=%d total=%d", m.ActiveSessions(), m.TotalSessions())
	}
	first.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := first.Read(make([]byte, 1)); err == nil {
		t.Error("first connection should be closed")
	}
	if !c.State().Connected().Get() {
		t.Error("should be connected to the second session")
	}
}

// TestCoordinator_DisconnectIdempotent verifies repeated disconnects.
func TestCoordinator_DisconnectIdempotent(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	c.Disconnect()                //nolint:errcheck
	c.Connect(srv.host, srv.port) //nolint:errcheck
	for i := 0; i < 3; i++ {
		if err := c.Disconnect(); err != nil {
			t.Fatal(err)
		}
	}
	syncOrFail(t, c)

	snap := c.State().Snapshot()
	if snap.Connected || snap.StatusMessage != "disconnected" {
		t.Errorf("after disconnect: %+v", snap)
	}
	if m.ActiveReceivers() != 0 || m.ActiveSessions() != 0 {
		t.Errorf("receivers=%d sessions=%d", m.ActiveReceivers(), m.ActiveSessions())
	}
}

// TestCoordinator_BlankSendsDropped verifies whitespace-only messages
// never reach the socket.
func TestCoordinator_BlankSendsDropped(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	for _, msg := range []string{"", "   ", "\t\n", "real"} {
		if err := c.Send(msg); err != nil {
			t.Fatal(err)
		}
	}
	syncOrFail(t, c)

	if got := srv.nextLine(t); got != "real" {
		t.Errorf("server got %q first, want %q", got, "real")
	}
	if m.MessagesSent() != 1 {
		t.Errorf("MessagesSent = %d", m.MessagesSent())
	}
	if sent := c.State().SentMessages().Get(); len(sent) != 1 {
		t.Errorf("sent log = %q", sent)
	}
}

// TestCoordinator_SendWhileDisconnected verifies the failure status and
// that nothing is logged as sent.
func TestCoordinator_SendWhileDisconnected(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	c.Send("orphan") //nolint:errcheck
	syncOrFail(t, c)

	snap := c.State().Snapshot()
	if want := "message send failed: not connected"; snap.StatusMessage != want {
		t.Errorf("status = %q, want %q", snap.StatusMessage, want)
	}
	if len(snap.SentMessages) != 0 || snap.Connected {
		t.Errorf("state changed: %+v", snap)
	}
}

// TestCoordinator_SendFailureKeepsConnection verifies a timed-out
// write only changes the status: the connection stays up, nothing is
// logged as sent and a later send goes through.
func TestCoordinator_SendFailureKeepsConnection(t *testing.T) {
	host, port, conns := startStalledServer(t)
	c, _ := newTunedCoordinator(t, nil, session.Options{SendTimeout: 200 * time.Millisecond})

	c.Connect(host, port) //nolint:errcheck
	syncOrFail(t, c)
	var peer net.Conn
	select {
	case peer = <-conns:
		defer peer.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
	}

	c.Send(oversized) //nolint:errcheck
	syncOrFail(t, c)

	snap := c.State().Snapshot()
	if !snap.Connected {
		t.Error("a failed send must not drop the connection")
	}
	if len(snap.SentMessages) != 0 {
		t.Errorf("sent log = %d entries, want 0", len(snap.SentMessages))
	}
	if !strings.HasPrefix(snap.StatusMessage, "message send failed:") {
		t.Errorf("status = %q", snap.StatusMessage)
	}

	go io.Copy(io.Discard, peer) //nolint:errcheck
	c.Send("after")              //nolint:errcheck
	syncOrFail(t, c)

	snap = c.State().Snapshot()
	if !snap.Connected || snap.StatusMessage != statusSent {
		t.Errorf("after recovery: connected=%v status=%q", snap.Connected, snap.StatusMessage)
	}
	if len(snap.SentMessages) != 1 || snap.SentMessages[0] != "after" {
		t.Errorf("sent log = %q, want [after]", snap.SentMessages)
	}
}

// TestCoordinator_ReleaseDuringSend verifies Release interrupts a
// blocked write instead of waiting out the send timeout.
func TestCoordinator_ReleaseDuringSend(t *testing.T) {
	host, port, _ := startStalledServer(t)
	c, _ := newTunedCoordinator(t, nil, session.Options{SendTimeout: 30 * time.Second})

	c.Connect(host, port) //nolint:errcheck
	syncOrFail(t, c)
	if !c.State().Connected().Get() {
		t.Fatal("not connected")
	}

	c.Send(oversized) //nolint:errcheck
	waitFor(t, "send to start", func() bool {
		return c.State().StatusMessage().Get() == statusSending
	})
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	c.Release()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Release took %v during a blocked send", elapsed)
	}
	if c.State().Connected().Get() {
		t.Error("connected should be false after Release")
	}
}

// TestCoordinator_ClearKeepsConnection verifies ClearMessages leaves
// the connection fields alone.
func TestCoordinator_ClearKeepsConnection(t *testing.T) {
	srv := startTestServer(t, true)
	c, _ := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	c.Send("one")                 //nolint:errcheck
	waitFor(t, "echo", func() bool { return len(c.State().ReceivedMessages().Get()) == 1 })

	c.ClearMessages() //nolint:errcheck
	syncOrFail(t, c)

	snap := c.State().Snapshot()
	if len(snap.SentMessages) != 0 || len(snap.ReceivedMessages) != 0 {
		t.Errorf("logs not cleared: %+v", snap)
	}
	if !snap.Connected || snap.ServerAddress != srv.host || snap.ServerPort != srv.port {
		t.Errorf("connection fields changed: %+v", snap)
	}
}

// TestCoordinator_ConnectingStatus verifies Connect reports progress
// before the dial runs.
func TestCoordinator_ConnectingStatus(t *testing.T) {
	d := &blockingDialer{}
	c, _ := newTestCoordinator(t, d)

	if err := c.Connect("gateway.local", 4000); err != nil {
		t.Fatal(err)
	}
	snap := c.State().Snapshot()
	if snap.StatusMessage != "connecting to gateway.local:4000..." {
		t.Errorf("status = %q", snap.StatusMessage)
	}
	if snap.ServerAddress != "gateway.local" || snap.ServerPort != 4000 {
		t.Errorf("server info = %s:%d", snap.ServerAddress, snap.ServerPort)
	}
}

// TestCoordinator_QueuedConnectsKeepServerInfo verifies the worker
// does not rewrite the endpoint Connect already recorded, so observers
// never see an earlier target come back.
func TestCoordinator_QueuedConnectsKeepServerInfo(t *testing.T) {
	srv := startTestServer(t, false)
	refused, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	c, _ := newTestCoordinator(t, nil)
	addr := c.State().ServerAddress()

	c.Connect("localhost", refused) //nolint:errcheck
	c.Connect(srv.host, srv.port)   //nolint:errcheck
	before := addr.Version()
	syncOrFail(t, c)

	if got := addr.Version(); got != before {
		t.Errorf("server address rewritten %d time(s) by the worker", got-before)
	}
	snap := c.State().Snapshot()
	if !snap.Connected || snap.ServerAddress != srv.host || snap.ServerPort != srv.port {
		t.Errorf("final state = %+v", snap)
	}
}

// ── release ──────────────────────────────────────────────────────────

// TestCoordinator_ReleaseWhileReceiving verifies Release stops the
// loop, closes the connection and rejects further commands.
func TestCoordinator_ReleaseWhileReceiving(t *testing.T) {
	srv := startTestServer(t, false)
	c, m := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	syncOrFail(t, c)
	peer := srv.accept(t)
	waitFor(t, "receive loop", func() bool { return m.ActiveReceivers() == 1 })

	done := make(chan struct{})
	go func() {
		c.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Release did not return")
	}

	if m.ActiveReceivers() != 0 || m.ActiveSessions() != 0 {
		t.Errorf("receivers=%d sessions=%d", m.ActiveReceivers(), m.ActiveSessions())
	}
	if c.State().Connected().Get() {
		t.Error("connected after Release")
	}
	peer.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := peer.Read(make([]byte, 1)); err == nil {
		t.Error("peer should see the close")
	}

	for name, call := range map[string]func() error{
		"connect":    func() error { return c.Connect(srv.host, srv.port) },
		"disconnect": c.Disconnect,
		"send":       func() error { return c.Send("late") },
		"blank send": func() error { return c.Send(" ") },
		"clear":      c.ClearMessages,
		"sync":       func() error { return c.Sync(context.Background()) },
	} {
		if err := call(); !ncerr.Is(err, ncerr.ErrReleased) {
			t.Errorf("%s after Release: err = %v, want ErrReleased", name, err)
		}
	}

	c.Release() // second call is a no-op
}

// TestCoordinator_ReleaseAbortsDial verifies Release cancels an
// in-flight dial, drops queued commands and closes the dialer.
func TestCoordinator_ReleaseAbortsDial(t *testing.T) {
	d := &blockingDialer{}
	c, m := newTestCoordinator(t, d)

	c.Connect("10.255.255.1", 9) //nolint:errcheck
	waitFor(t, "dial to start", func() bool { return d.dials.Load() == 1 })
	c.Connect("10.255.255.1", 10) //nolint:errcheck
	c.Send("queued")              //nolint:errcheck
	if c.queue.pending() != 2 {
		t.Fatalf("pending = %d, want 2", c.queue.pending())
	}

	start := time.Now()
	c.Release()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Release took %v", elapsed)
	}

	if got := d.dials.Load(); got != 1 {
		t.Errorf("dials = %d, queued connect should have been dropped", got)
	}
	if !d.closed.Load() {
		t.Error("dialer should be closed")
	}
	if m.MessagesSent() != 0 || m.SendFailures() != 0 {
		t.Error("queued send should never run")
	}
	if c.State().Connected().Get() {
		t.Error("connected after Release")
	}
}

// TestCoordinator_SyncOrdering verifies commands apply in submission
// order.
func TestCoordinator_SyncOrdering(t *testing.T) {
	srv := startTestServer(t, false)
	c, _ := newTestCoordinator(t, nil)

	c.Connect(srv.host, srv.port) //nolint:errcheck
	for i := 0; i < 10; i++ {
		c.Send(fmt.Sprintf("m%d", i)) //nolint:errcheck
	}
	syncOrFail(t, c)

	for i := 0; i < 10; i++ {
		if got, want := srv.nextLine(t), fmt.Sprintf("m%d", i); got != want {
			t.Fatalf("line %d = %q, want %q", i, got, want)
		}
	}
	sent := c.State().SentMessages().Get()
	if len(sent) != 10 || sent[0] != "m0" || sent[9] != "m9" {
		t.Errorf("sent log = %v", sent)
	}
}

func TestCommandQueue(t *testing.T) {
	q := newCommandQueue()
	var order []string
	for _, n := range []string{"a", "b", "c"} {
		n := n
		if !q.push(command{name: n, run: func(context.Context) { order = append(order, n) }}) {
			t.Fatal("push rejected on open queue")
		}
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		cmd, ok := q.pop(ctx)
		if !ok {
			t.Fatal("pop failed")
		}
		cmd.run(ctx)
	}
	if strings.Join(order, "") != "ab" {
		t.Errorf("order = %v", order)
	}

	if dropped := q.close(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if q.push(command{name: "late"}) {
		t.Error("push accepted after close")
	}
	if _, ok := q.pop(ctx); ok {
		t.Error("pop should fail on a closed queue")
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := newCommandQueue().pop(cctx); ok {
		t.Error("pop should give up when ctx is done")
	}
}
