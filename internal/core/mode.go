// Package core is the orchestration layer.  The Coordinator serialises
// connection commands and runs the receive loop; the modes wrap it in
// a complete program run; the builder selects a mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  core (coordinator)  →  console / modes  →  cmd (CLI)
package core

import "context"

// Mode represents a complete run of tcplink (interactive console or
// one-shot batch).  Each mode owns its coordinator from the first
// connect to Release.
type Mode interface {
	Run(ctx context.Context) error
}
