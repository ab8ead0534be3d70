// Package daemon is the seam for detached-daemon mode (the "-d" CLI flag).
// Working-directory change, stdio redirection, and process detach are a
// host concern, not the server's; Detach exists only so cmd/aesdsocket has
// a single named call site for a host process to hook one in — the core
// server never calls it.
package daemon

import "fmt"

// Detach is unimplemented by design: this module's core consumes only the
// effect of daemonization (a process already running detached), not the
// mechanism. A real deployment wires in its own fork/setsid/redirect here.
func Detach() error {
	return fmt.Errorf("daemon: detach is not implemented by the core server; wire a host-specific daemonizer here")
}
