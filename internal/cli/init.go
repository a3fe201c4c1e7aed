package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/notekeeper/internal/config"
	"github.com/roach88/notekeeper/internal/keystore"
	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Dir   string
	Force bool
}

// InitResult describes the files init created.
type InitResult struct {
	ConfigPath   string `json:"config_path"`
	StorePath    string `json:"store_path"`
	KeystorePath string `json:"keystore_path"`
	Endpoint     string `json:"endpoint"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Initialized client\n  config:   %s\n  store:    %s\n  keystore: %s\n  endpoint: %s",
		r.ConfigPath, r.StorePath, r.KeystorePath, r.Endpoint)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file and create the local store",
		Long: `Write a config file and create the local store and keystore.

The config file starts from the built-in defaults with --endpoint, --timeout
and --store applied. With --dir the store and keystore are placed in that
directory.

Example:
  notekeeper init
  notekeeper init --dir ./client --config ./client/notekeeper.cue --endpoint node:57291`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory for the store and keystore")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing config file")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg := config.Default()
	if opts.Dir != "" {
		cfg.StorePath = filepath.Join(opts.Dir, "store.sqlite3")
		cfg.KeystorePath = filepath.Join(opts.Dir, "keystore")
	}
	applyFlags(&cfg, opts.RootOptions)
	if err := config.Validate(cfg); err != nil {
		return f.Fail("invalid configuration", err)
	}

	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return f.Fail("config file exists", ledger.Errorf(ledger.ErrCodeInitialization, "%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return f.Fail("config file not accessible", ledger.Wrap(ledger.ErrCodeInitialization, err, path))
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		return f.Fail("failed to render config", ledger.Wrap(ledger.ErrCodeInitialization, err, "marshal config"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return f.Fail("failed to create config directory", ledger.Wrap(ledger.ErrCodeInitialization, err, path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return f.Fail("failed to write config", ledger.Wrap(ledger.ErrCodeInitialization, err, path))
	}
	f.VerboseLog("Wrote %s", path)

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		return f.Fail("failed to create store directory", ledger.Wrap(ledger.ErrCodeInitialization, err, cfg.StorePath))
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return f.Fail("failed to create store", err)
	}
	if err := st.Close(); err != nil {
		return f.Fail("failed to create store", ledger.Wrap(ledger.ErrCodeInitialization, err, "close store"))
	}
	if _, err := keystore.Open(cfg.KeystorePath); err != nil {
		return f.Fail("failed to create keystore", err)
	}

	return f.Success(InitResult{
		ConfigPath:   path,
		StorePath:    cfg.StorePath,
		KeystorePath: cfg.KeystorePath,
		Endpoint:     cfg.Endpoint,
	})
}
