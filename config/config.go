// Package config defines the on-disk and CLI-facing configuration for
// the mutator-set archival store and CLI server, in the shape of
// node/config.go: a JSON-tagged struct, a DefaultConfig constructor,
// and a validator.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"accumulator.dev/mutatorset/indexderive"
	"accumulator.dev/mutatorset/internal/xhash"
)

// HashBackend selects which internal/xhash.Hasher implementation the
// store and CLI construct.
type HashBackend string

const (
	HashBackendSHA3    HashBackend = "sha3"
	HashBackendBlake2b HashBackend = "blake2b"
)

// Config bundles everything a mutatorset-cli invocation needs: where the
// archival store lives, the accumulator's window/chunk/batch/trials
// parameters (shrinkable below production defaults for test
// configurations, per SPEC_FULL.md §1), the hash backend, the log
// level, and the metrics server's bind address.
type Config struct {
	DataDir     string      `json:"data_dir"`
	HashBackend HashBackend `json:"hash_backend"`
	LogLevel    string      `json:"log_level"`
	BindAddr    string      `json:"bind_addr"`

	WindowSize uint64 `json:"window_size"`
	ChunkSize  uint64 `json:"chunk_size"`
	BatchSize  uint64 `json:"batch_size"`
	NumTrials  int    `json:"num_trials"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors node/config.go's DefaultDataDir, scoped to this
// module's own dotfile.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".mutatorset"
	}
	return filepath.Join(home, ".mutatorset")
}

// DefaultConfig returns production-sized parameters: a 2^20-bit active
// window split into 2^10-bit chunks, sliding every 2^6 additions, with
// 45 index-derivation trials (matching original_source/set_commitment.rs's
// NUM_TRIALS constant).
func DefaultConfig() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		HashBackend: HashBackendSHA3,
		LogLevel:    "info",
		BindAddr:    "127.0.0.1:9411",
		WindowSize:  1 << 20,
		ChunkSize:   1 << 10,
		BatchSize:   1 << 6,
		NumTrials:   45,
	}
}

// Params projects the accumulator-shaped fields into indexderive.Params.
func (c Config) Params() indexderive.Params {
	return indexderive.Params{
		WindowSize: c.WindowSize,
		ChunkSize:  c.ChunkSize,
		BatchSize:  c.BatchSize,
		NumTrials:  c.NumTrials,
	}
}

// Hasher constructs the Hasher backend the config names.
func (c Config) Hasher() xhash.Hasher {
	if c.HashBackend == HashBackendBlake2b {
		return xhash.Blake2b{}
	}
	return xhash.SHA3{}
}

// Validate checks the fields ValidateConfig in node/config.go checks for
// its own Config, plus the accumulator-parameter invariant spec.md §3
// states explicitly: WindowSize must be an exact multiple of ChunkSize.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	switch cfg.HashBackend {
	case HashBackendSHA3, HashBackendBlake2b:
	default:
		return fmt.Errorf("invalid hash_backend %q", cfg.HashBackend)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	if cfg.ChunkSize == 0 || cfg.WindowSize == 0 {
		return errors.New("window_size and chunk_size must be > 0")
	}
	if cfg.WindowSize%cfg.ChunkSize != 0 {
		return errors.New("window_size must be an exact multiple of chunk_size")
	}
	if cfg.BatchSize == 0 {
		return errors.New("batch_size must be > 0")
	}
	if cfg.NumTrials <= 0 {
		return errors.New("num_trials must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
