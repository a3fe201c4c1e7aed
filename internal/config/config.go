// Package config loads notekeeper client configuration.
//
// Precedence, lowest first: schema defaults, the CUE config file, a .env
// file, NOTEKEEPER_* environment variables. Command-line flags are applied
// on top by the CLI. The final value is validated against the schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/format"
	"github.com/joho/godotenv"

	"github.com/roach88/notekeeper/internal/ledger"
	"github.com/roach88/notekeeper/internal/poll"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOTEKEEPER_"

// Config is the resolved client configuration.
type Config struct {
	Endpoint           string     `json:"endpoint"`
	TimeoutMs          int        `json:"timeout_ms"`
	StorePath          string     `json:"store_path"`
	KeystorePath       string     `json:"keystore_path"`
	Poll               PollConfig `json:"poll"`
	ReclaimAfterRounds int        `json:"reclaim_after_rounds"`
	BlockIntervalMs    int        `json:"block_interval_ms"`
}

// PollConfig bounds the poll-for-visibility loop.
type PollConfig struct {
	IntervalMs  int `json:"interval_ms"`
	MaxAttempts int `json:"max_attempts"`
}

// Timeout returns the per-call network timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// BlockInterval returns the devnet block production interval.
func (c Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMs) * time.Millisecond
}

// PollPolicy returns the configured poll policy.
func (c Config) PollPolicy() poll.Policy {
	return poll.Policy{
		Interval:    time.Duration(c.Poll.IntervalMs) * time.Millisecond,
		MaxAttempts: c.Poll.MaxAttempts,
	}
}

// Source names the inputs of a load. Empty paths are skipped; a missing .env
// file is not an error, a missing config file is.
type Source struct {
	ConfigFile string
	EnvFile    string
	LookupEnv  func(string) (string, bool) // defaults to os.LookupEnv
}

// Load resolves the configuration from path (optional) and the .env file in
// the working directory.
func Load(path string) (Config, error) {
	return LoadFrom(Source{ConfigFile: path, EnvFile: ".env"})
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := LoadFrom(Source{LookupEnv: func(string) (string, bool) { return "", false }})
	if err != nil {
		// Unreachable: the embedded schema is concrete.
		panic(err)
	}
	return cfg
}

// LoadFrom resolves the configuration from src. Errors are INITIALIZATION
// errors.
func LoadFrom(src Source) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "compile config schema")
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if src.ConfigFile != "" {
		data, err := os.ReadFile(src.ConfigFile)
		if err != nil {
			return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "read config file")
		}
		file := ctx.CompileBytes(data, cue.Filename(src.ConfigFile))
		if err := file.Err(); err != nil {
			return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "parse config file")
		}
		value = def.Unify(file)
	}

	var cfg Config
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "invalid config")
	}
	if err := value.Decode(&cfg); err != nil {
		return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "decode config")
	}

	lookup := src.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if src.EnvFile != "" {
		dotenv, err := godotenv.Read(src.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, ledger.Wrap(ledger.ErrCodeInitialization, err, "read env file")
		}
		// Process environment wins over the file, as with godotenv.Load.
		base := lookup
		lookup = func(key string) (string, bool) {
			if v, ok := base(key); ok {
				return v, true
			}
			v, ok := dotenv[key]
			return v, ok
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := validate(ctx, def, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the schema. The CLI calls it after applying
// flag overrides.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	return validate(ctx, schema.LookupPath(cue.ParsePath("#Config")), cfg)
}

func validate(ctx *cue.Context, def cue.Value, cfg Config) error {
	v := def.Unify(ctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return ledger.Wrap(ledger.ErrCodeInitialization, err, "invalid config")
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"ENDPOINT", &cfg.Endpoint},
		{"STORE_PATH", &cfg.StorePath},
		{"KEYSTORE_PATH", &cfg.KeystorePath},
	}
	for _, s := range strs {
		if v, ok := lookup(EnvPrefix + s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TIMEOUT_MS", &cfg.TimeoutMs},
		{"POLL_INTERVAL_MS", &cfg.Poll.IntervalMs},
		{"POLL_MAX_ATTEMPTS", &cfg.Poll.MaxAttempts},
		{"RECLAIM_AFTER_ROUNDS", &cfg.ReclaimAfterRounds},
		{"BLOCK_INTERVAL_MS", &cfg.BlockIntervalMs},
	}
	for _, i := range ints {
		v, ok := lookup(EnvPrefix + i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Wrap(ledger.ErrCodeInitialization, err, fmt.Sprintf("%s%s must be an integer", EnvPrefix, i.key))
		}
		*i.dst = n
	}
	return nil
}

// Marshal renders cfg as a CUE config file.
func Marshal(cfg Config) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.Encode(cfg)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	out, err := format.Node(v.Syntax(cue.Concrete(true)))
	if err != nil {
		return nil, fmt.Errorf("format config: %w", err)
	}
	return out, nil
}
