// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"tcplink/config"
	"tcplink/internal/core"
	"tcplink/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tcplink/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// invocation is the result of parsing the command line.
type invocation struct {
	cfg         *config.Config
	fs          *flag.FlagSet
	dryRun      bool
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs the appropriate tcplink mode.
func Execute(ctx context.Context, args []string) error {
	inv, err := parse(args)
	if err != nil {
		return err
	}

	if inv.showHelp {
		printUsage(inv.fs)
		return nil
	}
	if inv.showVersion {
		fmt.Printf("tcplink %s\n", version)
		return nil
	}

	cfg := inv.cfg
	logger := util.NewLogger(cfg.Verbose)

	if inv.dryRun {
		describe(logger, cfg)
		return nil
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// parse builds the Config.  Precedence, lowest first: defaults, the
// YAML config file, TCPLINK_* environment variables, flags.
func parse(args []string) (*invocation, error) {
	cfg := config.Defaults()

	// ── config file and environment ──────────────────────────────
	path := configPath(args)
	if path == "" {
		path = config.ConfigPathFromEnv()
	}
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	inv := &invocation{cfg: cfg}
	fs := flag.NewFlagSet("tcplink", flag.ContinueOnError)
	inv.fs = fs

	// ── session tuning ───────────────────────────────────────────
	fs.DurationVarP(&cfg.ConnectTimeout, "timeout", "w", cfg.ConnectTimeout, "Connect timeout")
	fs.DurationVar(&cfg.SendTimeout, "send-timeout", cfg.SendTimeout, "Write timeout per message")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Pause between receive polls")
	fs.DurationVar(&cfg.PollWait, "poll-wait", cfg.PollWait, "How long one receive poll waits for data")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Maximum bytes per received message")

	// ── batch ────────────────────────────────────────────────────
	fs.StringArrayVarP(&cfg.Messages, "send", "s", nil, "Send a message and exit (repeatable)")
	fs.StringVar(&cfg.Pickup, "pickup", "", "Send PICKUP:<code> for a 4-digit code and exit")
	fs.DurationVar(&cfg.Linger, "linger", cfg.Linger, "How long to wait for replies in batch mode")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var configFile string
	var verbosity int
	var quiet bool
	fs.StringVarP(&configFile, "config", "c", path, "YAML config file (also $TCPLINK_CONFIG)")
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")

	fs.BoolVar(&inv.dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&inv.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&inv.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if inv.showHelp || inv.showVersion {
		return inv, nil
	}

	switch {
	case quiet:
		cfg.Verbose = int(util.LogQuiet)
	case fs.Changed("verbose"):
		cfg.Verbose = config.DefaultVerbosity + verbosity
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return nil, err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return nil, err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// configPath finds -c/--config before the real parse, so the file can
// supply defaults that flags then override.
func configPath(args []string) string {
	pre := flag.NewFlagSet("tcplink", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}

	var path string
	pre.StringVarP(&path, "config", "c", "", "")
	_ = pre.Parse(args) // errors are reported by the real parse
	return path
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0: // interactive without a target, or host/port from file/env
		return nil
	case 1:
		return fmt.Errorf("port required (use --help for usage)")
	case 2:
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Host, cfg.Port = remaining[0], port
		return nil
	default:
		return fmt.Errorf("too many arguments: expected <host> <port>")
	}
}

// describe prints the effective configuration for --dry-run.
func describe(logger *util.Logger, cfg *config.Config) {
	mode := "interactive"
	if cfg.Batch() {
		mode = fmt.Sprintf("batch (%d message(s))", len(cfg.Messages))
		if cfg.Pickup != "" {
			mode += ", pickup " + cfg.Pickup
		}
	}
	target := "none"
	if cfg.Host != "" {
		target = util.FormatAddr(cfg.Host, cfg.Port)
	}
	via := "direct"
	if cfg.TunnelEnabled {
		via = fmt.Sprintf("ssh %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}

	logger.Info("configuration OK")
	logger.Info("  mode:     %s", mode)
	logger.Info("  target:   %s (%s)", target, via)
	logger.Info("  timeouts: connect %s, send %s", cfg.ConnectTimeout, cfg.SendTimeout)
	logger.Info("  polling:  every %s, wait %s, chunk %d bytes", cfg.PollInterval, cfg.PollWait, cfg.ChunkSize)
	if cfg.ConfigFile != "" {
		logger.Info("  config:   %s", cfg.ConfigFile)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tcplink – line-oriented TCP client v%s

Opens one TCP connection, sends text lines and shows what comes back.

Usage:
  tcplink [options] [<host> <port>]            Interactive console
  tcplink -s <msg> [-s <msg>...] <host> <port> Send and print replies
  tcplink --pickup <code> <host> <port>        Send PICKUP:<code>
  tcplink -T user@gateway <host> <port>        Through an SSH gateway

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  tcplink 192.168.1.50 9000                    Console, connected on start
  tcplink -s hello -s bye example.com 7        Two messages to an echo server
  tcplink --pickup 0420 kiosk.local 5000       Pickup code
  tcplink -T admin@bastion db-internal 9000    SSH tunnel
`)
}
