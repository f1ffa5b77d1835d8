// Package config defines the runtime configuration for tcplink and
// provides helpers for parsing tunnel specifications and ports.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "tcplink/internal/errors"
)

// Config holds every tuneable for a single tcplink process.
type Config struct {
	// ── Target ───────────────────────────────────────────────────────
	Host string // optional: connect on startup when set
	Port int

	// ── Session tuning ───────────────────────────────────────────────
	ConnectTimeout time.Duration // bounded dial; timeout counts as failure
	SendTimeout    time.Duration // write deadline per message
	PollInterval   time.Duration // pause between receive polls
	PollWait       time.Duration // how long one receive poll may wait for bytes
	ChunkSize      int           // max bytes returned by one receive

	// ── Batch mode ───────────────────────────────────────────────────
	Messages []string      // -s: messages to send, in order
	Pickup   string        // --pickup: 4-digit code sent as PICKUP:<code>
	Linger   time.Duration // how long batch mode waits for replies

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	ConfigFile string
}

// Defaults returns a Config populated from defaults.go.
func Defaults() *Config {
	return &Config{
		ConnectTimeout: DefaultConnTimeout,
		SendTimeout:    DefaultSendTimeout,
		PollInterval:   DefaultPollInterval,
		PollWait:       DefaultPollWait,
		ChunkSize:      DefaultChunkSize,
		Linger:         DefaultLinger,
		Verbose:        DefaultVerbosity,
	}
}

// Batch reports whether the command line queued messages to send
// non-interactively.
func (c *Config) Batch() bool {
	return len(c.Messages) > 0 || c.Pickup != ""
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(spec))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec (if set) into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "use -T user@gateway[:port]",
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// pickupRe matches exactly four ASCII digits.
var pickupRe = regexp.MustCompile(`^[0-9]{4}$`)

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port != 0 && (c.Port < 1 || c.Port > 65535) {
		return &ncerr.ConfigError{
			Field: "port", Value: c.Port,
			Message: "out of range 1-65535",
			Hint:    "use a port between 1 and 65535",
		}
	}
	if c.Host != "" && c.Port == 0 {
		return &ncerr.ConfigError{
			Field:   "port",
			Message: "required when a host is given",
			Hint:    "tcplink <host> <port>",
		}
	}
	if c.Host == "" && c.Port != 0 {
		return &ncerr.ConfigError{
			Field:   "host",
			Message: "required when a port is given",
			Hint:    "tcplink <host> <port>",
		}
	}

	if c.Batch() && c.Host == "" {
		return &ncerr.ConfigError{
			Field:   "send",
			Message: "batch sending needs a target",
			Hint:    "tcplink -s hello <host> <port>",
		}
	}
	if c.Pickup != "" && !pickupRe.MatchString(c.Pickup) {
		return &ncerr.ConfigError{
			Field: "pickup", Value: c.Pickup,
			Message: "pickup code must be exactly 4 digits",
		}
	}

	if c.ConnectTimeout <= 0 {
		return &ncerr.ConfigError{
			Field: "timeout", Value: c.ConnectTimeout,
			Message: "must be positive",
			Hint:    "an unbounded connect could block forever; try -w 10s",
		}
	}
	if c.SendTimeout < 0 {
		return &ncerr.ConfigError{Field: "send-timeout", Value: c.SendTimeout, Message: "must not be negative"}
	}
	if c.PollInterval <= 0 {
		return &ncerr.ConfigError{
			Field: "poll-interval", Value: c.PollInterval,
			Message: "must be positive",
			Hint:    "the default is 50ms",
		}
	}
	if c.PollWait <= 0 || c.PollWait > c.PollInterval {
		return &ncerr.ConfigError{
			Field: "poll-wait", Value: c.PollWait,
			Message: "must be positive and no longer than --poll-interval",
		}
	}
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return &ncerr.ConfigError{
			Field: "chunk-size", Value: c.ChunkSize,
			Message: fmt.Sprintf("out of range 1-%d", MaxChunkSize),
		}
	}
	if c.Linger < 0 {
		return &ncerr.ConfigError{Field: "linger", Value: c.Linger, Message: "must not be negative"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Message: "SSH authentication options given without a tunnel",
			Hint:    "add -T user@gateway",
		}
	}

	return nil
}
