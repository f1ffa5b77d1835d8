package core

import (
	"os"

	"golang.org/x/term"

	"tcplink/config"
	"tcplink/internal/console"
	"tcplink/internal/metrics"
	"tcplink/internal/session"
	"tcplink/internal/transport"
	"tcplink/tunnel"
	"tcplink/util"
)

// Build constructs the appropriate Mode from the given configuration:
// BatchMode when messages were queued on the command line,
// InteractiveMode otherwise.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Batch() {
		return buildBatch(cfg, logger)
	}
	return buildInteractive(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildBatch(cfg *config.Config, logger *util.Logger) (Mode, error) {
	messages := append([]string(nil), cfg.Messages...)
	if cfg.Pickup != "" {
		msg, err := console.PickupMessage(cfg.Pickup)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return &BatchMode{
		Coordinator: buildCoordinator(cfg, logger),
		Host:        cfg.Host,
		Port:        cfg.Port,
		Messages:    messages,
		Linger:      cfg.Linger,
		Logger:      logger,
	}, nil
}

func buildInteractive(cfg *config.Config, logger *util.Logger) Mode {
	return &InteractiveMode{
		Coordinator: buildCoordinator(cfg, logger),
		Host:        cfg.Host,
		Port:        cfg.Port,
		Banner:      term.IsTerminal(int(os.Stdin.Fd())),
		Logger:      logger,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

func buildCoordinator(cfg *config.Config, logger *util.Logger) *Coordinator {
	return NewCoordinator(buildDialer(cfg, logger), CoordinatorOptions{
		PollInterval: cfg.PollInterval,
		Session: session.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			SendTimeout:    cfg.SendTimeout,
			PollWait:       cfg.PollWait,
			ChunkSize:      cfg.ChunkSize,
		},
		Logger:  logger,
		Metrics: metrics.New(),
	})
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnectTimeout,
		}, logger)
	}

	return &transport.TCPDialer{Timeout: cfg.ConnectTimeout}
}
