package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds the TCP/SSH connect handshake.  A
	// timeout is reported as an ordinary connect failure.
	DefaultConnTimeout = 10 * time.Second

	// DefaultSendTimeout is the write deadline for one message.
	DefaultSendTimeout = 5 * time.Second

	// DefaultPollInterval is the pause between two receive polls.  It
	// is also the upper bound on how long disconnect waits for the
	// receive loop to notice cancellation.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultPollWait is how long a single receive poll waits for bytes
	// before reporting "nothing available".
	DefaultPollWait = time.Millisecond

	// DefaultChunkSize is the maximum number of bytes one receive
	// returns.  Larger bursts arrive as several messages.
	DefaultChunkSize = 1024

	// MaxChunkSize caps --chunk-size.
	MaxChunkSize = 64 * 1024

	// DefaultLinger is how long batch mode waits for replies after the
	// last message was sent.
	DefaultLinger = 2 * time.Second

	// DefaultVerbosity prints warnings and errors only.
	DefaultVerbosity = 1

	// EnvPrefix prefixes every environment variable tcplink reads.
	EnvPrefix = "TCPLINK_"
)
