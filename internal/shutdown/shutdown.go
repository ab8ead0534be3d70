// Package shutdown converts SIGINT/SIGTERM into a single monotonic "stop"
// signal observed by the acceptor. It generalizes
// coordinator/cmd/coordinator/main.go's WaitInterrupted into a reusable
// context, since this module has no gRPC server to GracefulStop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context that is canceled the first time SIGINT or
// SIGTERM is received, and a stop function that releases the signal
// notification. The flag is write-once in spirit: once the context is
// canceled it never becomes live again.
func WithSignals(parent context.Context) (ctx context.Context, stop func()) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
