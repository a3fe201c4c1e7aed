package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/devnet"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/remote"
)

// DevnetOptions holds flags for the devnet command.
type DevnetOptions struct {
	*RootOptions
	Listen        string
	BlockInterval time.Duration
}

// NewDevnetCommand creates the devnet command.
func NewDevnetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevnetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Run an in-memory ledger node",
		Long: `Run an in-memory ledger node serving the ledger gRPC service.

The node validates and queues submitted transactions and commits the queue as
one block every block interval. State is lost when the node stops.

Example:
  notekeeper devnet
  notekeeper devnet --listen 127.0.0.1:57291 --block-interval 500ms --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevnet(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default: configured endpoint)")
	cmd.Flags().DurationVar(&opts.BlockInterval, "block-interval", 0, "block production interval (default: configured block interval)")

	return cmd
}

func runDevnet(opts *DevnetOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := newLogger(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions)
	if err != nil {
		return f.Fail("invalid configuration", err)
	}
	addr := opts.Listen
	if addr == "" {
		addr = cfg.Endpoint
	}
	interval := opts.BlockInterval
	if interval <= 0 {
		interval = cfg.BlockInterval()
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return f.Fail("failed to listen", ledger.Wrap(ledger.ErrCodeInitialization, err, addr))
	}

	node := devnet.New(devnet.WithLogger(logger))
	gs := remote.NewGRPCServer(node).NewServer()

	ctx, cancel := commandContext(cmd, logger)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gs.Serve(lis)
	}()
	blocksDone := make(chan error, 1)
	go func() {
		blocksDone <- node.Run(ctx, interval)
	}()

	logger.Info("devnet starting", "addr", lis.Addr().String(), "block_interval", interval)
	fmt.Fprintf(cmd.OutOrStdout(), "Devnet listening on %s (block every %s).\n", lis.Addr(), interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		<-serveErr
	case err = <-serveErr:
		cancel()
	}
	<-blocksDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return f.Fail("devnet stopped", ledger.Wrap(ledger.ErrCodeInitialization, err, "serve"))
	}
	logger.Info("devnet stopped", "block", node.Tip())
	fmt.Fprintf(cmd.OutOrStdout(), "Devnet stopped at block %d.\n", node.Tip())
	return nil
}
