// Command aesdsocket runs a TCP server that appends newline-terminated
// packets to a bounded command ring (or an append-only file) and streams
// the sink's full contents back after every packet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aesdsocket/ringsink/internal/config"
	"github.com/aesdsocket/ringsink/internal/server"
	"github.com/aesdsocket/ringsink/internal/shutdown"
	"github.com/aesdsocket/ringsink/internal/sink"
	"github.com/aesdsocket/ringsink/internal/timestamp"
)

// cmd holds the command line flags, mirroring the Cmd struct in
// coordinator/cmd/coordinator/main.go.
type cmd struct {
	ConfigPath string
	Port       int
	Backend    string
	Daemonize  bool
}

var flags cmd

var rootCmd = &cobra.Command{
	Use:   "aesdsocket",
	Short: "Append-log TCP sink with a bounded command ring",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(flags)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flags.ConfigPath, "config", "c", "", "Path to an optional YAML configuration file")
	rootCmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "TCP listen port (overrides config; 0 means use config/default)")
	rootCmd.Flags().StringVarP(&flags.Backend, "backend", "b", "", `Sink backend: "ring" or "file" (overrides config)`)
	rootCmd.Flags().BoolVarP(&flags.Daemonize, "d", "d", false, "Run detached as a daemon (external collaborator; see internal/daemon)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(flags cmd) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Development = false
	zapCfg.Level.SetLevel(zap.InfoLevel)

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg := config.DefaultConfig()
	if flags.ConfigPath != "" {
		cfg, err = config.LoadConfig(flags.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if flags.Port != 0 {
		cfg.Listen.Port = flags.Port
	}
	if flags.Backend != "" {
		cfg.Backend.Kind = flags.Backend
	}

	if flags.Daemonize {
		log.Warn("daemonize requested but not implemented by the core; see internal/daemon.Detach")
	}

	s, cleanup, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize sink: %w", err)
	}
	defer cleanup()

	srv := server.New(server.Config{
		Port:               cfg.Listen.Port,
		Backlog:            cfg.Listen.Backlog,
		AssemblerBlockSize: int(cfg.Assembler.BlockSize.Bytes()),
		AssemblerMaxSize:   int(cfg.Assembler.MaxSize.Bytes()),
	}, s, log)

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return srv.Run(ctx)
	})

	if cfg.Backend.Kind == "file" {
		interval := cfg.Backend.TimestampInterval.AsDuration()
		task := timestamp.New(s, interval, log)
		wg.Go(func() error {
			return task.Run(ctx)
		})
	}

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildSink constructs the configured backend and a cleanup function that
// tears it down: delete the backing file in file-backed mode on clean
// shutdown, nothing to do for the ring.
func buildSink(cfg *config.Config) (sink.Sink, func(), error) {
	switch cfg.Backend.Kind {
	case "", "ring":
		return sink.NewRingSink(cfg.Backend.RingCapacity), func() {}, nil
	case "file":
		fs := sink.NewFileSink(cfg.Backend.FilePath)
		return fs, func() {
			if err := fs.Remove(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove backing file: %v\n", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}
