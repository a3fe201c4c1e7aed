package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/config"
	"github.com/roach88/notekeeper/internal/engine"
	"github.com/roach88/notekeeper/internal/keystore"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/remote"
	"github.com/roach88/notekeeper/internal/store"
)

// DefaultConfigFile is read from the working directory when --config is not
// given and the file exists.
const DefaultConfigFile = "notekeeper.cue"

// resolveConfig loads the configuration and applies flag overrides.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "stat "+DefaultConfigFile)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(&cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, opts *RootOptions) {
	if opts.Endpoint != "" {
		cfg.Endpoint = opts.Endpoint
	}
	if opts.Timeout > 0 {
		cfg.TimeoutMs = int(opts.Timeout.Milliseconds())
	}
	if opts.StorePath != "" {
		cfg.StorePath = opts.StorePath
	}
}

// newLogger returns a text logger on the command's stderr, at Debug level
// under --verbose.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

// commandContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context is done.
func commandContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// session is one CLI invocation's client: the engine restored from the store,
// the keystore it signs with and the connection to the node.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	keys   *keystore.Store
	client *remote.Client
	eng    *engine.Engine
}

// openSession resolves the configuration and restores the engine from the
// store. The caller must call close, which persists the engine state.
func openSession(ctx context.Context, opts *RootOptions, logger *slog.Logger) (*session, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("opening store", "path", cfg.StorePath)
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, store: st}

	if s.keys, err = keystore.Open(cfg.KeystorePath); err != nil {
		s.closeStore()
		return nil, err
	}
	if s.client, err = remote.Dial(cfg.Endpoint); err != nil {
		s.closeStore()
		return nil, err
	}

	s.eng = engine.New(s.client, s.keys,
		engine.WithLogger(logger),
		engine.WithRPCTimeout(cfg.Timeout()),
		engine.WithReclaimAfter(cfg.ReclaimAfterRounds),
	)

	snap, found, err := st.LoadSnapshot(ctx)
	if err != nil {
		s.closeStore()
		_ = s.client.Close()
		return nil, ledger.Wrap(ledger.ErrCodeInitialization, err, "load client state")
	}
	if found {
		s.eng.Restore(snap)
	}
	logger.Debug("session ready", "endpoint", cfg.Endpoint, "block", s.eng.LastBlock())
	return s, nil
}

// close saves the engine state and releases the store and connection. State
// is saved even when ctx was cancelled, so claims taken by an interrupted
// submission survive.
func (s *session) close(ctx context.Context) error {
	saveErr := s.store.SaveSnapshot(context.WithoutCancel(ctx), s.eng.Snapshot())
	if saveErr != nil {
		s.logger.Error("failed to save client state", "error", saveErr)
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("error closing connection", "error", err)
	}
	s.closeStore()
	if saveErr != nil {
		return fmt.Errorf("save client state: %w", saveErr)
	}
	return nil
}

func (s *session) closeStore() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
}

// withSession runs fn against an open session and persists the state
// afterwards. Errors from fn are reported through the formatter.
func withSession(cmd *cobra.Command, opts *RootOptions, action string, fn func(ctx context.Context, s *session, f *OutputFormatter) error) error {
	f := opts.formatter(cmd)
	logger := newLogger(opts, cmd)
	ctx, cancel := commandContext(cmd, logger)
	defer cancel()

	s, err := openSession(ctx, opts, logger)
	if err != nil {
		return f.Fail("failed to open client", err)
	}

	runErr := fn(ctx, s, f)
	closeErr := s.close(ctx)
	switch {
	case runErr != nil:
		var exitErr *ExitError
		if errors.As(runErr, &exitErr) {
			return runErr
		}
		return f.Fail(action+" failed", runErr)
	case closeErr != nil:
		return f.Fail(action+" failed", closeErr)
	}
	return nil
}

// accountArg parses an account id flag and checks the account is tracked.
func accountArg(eng *engine.Engine, flag, value string) (ledger.Account, error) {
	id, err := ledger.ParseAccountID(value)
	if err != nil {
		return ledger.Account{}, ledger.Wrap(ledger.ErrCodeInvalidAccount, err, "--"+flag)
	}
	return eng.Account(id)
}
