// Command mutatorset-cli is a thin demonstration harness for the
// archival mutator set (spec.md's Non-goals: "the CLI is a thin
// demonstration harness only, not a node"), mirroring
// cmd/rubin-node/main.go's subcommand shape but built on
// github.com/spf13/cobra per SPEC_FULL.md §1.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"accumulator.dev/mutatorset/archival"
	"accumulator.dev/mutatorset/archival/store"
	"accumulator.dev/mutatorset/config"
	"accumulator.dev/mutatorset/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "mutatorset-cli",
		Short: "Demonstration harness for the mutator-set accumulator",
	}
	root.PersistentFlags().StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "archival store directory")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	root.PersistentFlags().Var(hashBackendFlag{&cfg.HashBackend}, "hash-backend", "hash backend: sha3|blake2b")

	root.AddCommand(
		newInitCmd(&cfg),
		newAddCmd(&cfg),
		newRemoveCmd(&cfg),
		newVerifyCmd(&cfg),
		newServeCmd(&cfg),
	)
	return root
}

type hashBackendFlag struct{ target *config.HashBackend }

func (f hashBackendFlag) String() string { return string(*f.target) }
func (f hashBackendFlag) Type() string   { return "string" }
func (f hashBackendFlag) Set(s string) error {
	switch config.HashBackend(s) {
	case config.HashBackendSHA3, config.HashBackendBlake2b:
		*f.target = config.HashBackend(s)
		return nil
	default:
		return fmt.Errorf("unknown hash backend %q", s)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return zcfg.Build()
}

func storePath(cfg config.Config) string { return filepath.Join(cfg.DataDir, "mutatorset.db") }

func newInitCmd(cfg *config.Config) *cobra.Command {
	var windowSize, chunkSize, batchSize uint64
	var numTrials int

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new empty archival mutator set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if windowSize != 0 {
				cfg.WindowSize = windowSize
			}
			if chunkSize != 0 {
				cfg.ChunkSize = chunkSize
			}
			if batchSize != 0 {
				cfg.BatchSize = batchSize
			}
			if numTrials != 0 {
				cfg.NumTrials = numTrials
			}
			if err := config.Validate(*cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
				return fmt.Errorf("create datadir: %w", err)
			}

			log, err := newLogger(*cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a := archival.New(cfg.Params(), cfg.Hasher(), log)
			st, err := store.Open(storePath(*cfg), log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Persist(a, cfg.Params()); err != nil {
				return err
			}

			cfgPath := filepath.Join(cfg.DataDir, "config.json")
			b, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, b, 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized mutator set at %s\n", cfg.DataDir)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&windowSize, "window-size", 0, "active window width in bits (default: production default)")
	cmd.Flags().Uint64Var(&chunkSize, "chunk-size", 0, "chunk width in bits")
	cmd.Flags().Uint64Var(&batchSize, "batch-size", 0, "additions per slide")
	cmd.Flags().IntVar(&numTrials, "num-trials", 0, "index-derivation trial count")
	return cmd
}

func loadConfig(cfg *config.Config) error {
	b, err := os.ReadFile(filepath.Join(cfg.DataDir, "config.json"))
	if err != nil {
		return fmt.Errorf("read config (did you run init?): %w", err)
	}
	return json.Unmarshal(b, cfg)
}

func openArchival(cfg config.Config, log *zap.Logger) (*archival.ArchivalMutatorSet, error) {
	a, _, err := store.Load(storePath(cfg), cfg.Hasher(), log)
	return a, err
}

func newAddCmd(cfg *config.Config) *cobra.Command {
	var itemHex, randomnessHex, proofOut string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Commit and add an item, writing its membership proof to --proof-out",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			item, err := decodeDigest(itemHex)
			if err != nil {
				return fmt.Errorf("--item: %w", err)
			}
			randomness, err := decodeDigest(randomnessHex)
			if err != nil {
				return fmt.Errorf("--randomness: %w", err)
			}

			log, err := newLogger(*cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := openArchival(*cfg, log)
			if err != nil {
				return err
			}
			proof := a.Core.ProveSimple(item, randomness, true)
			rec := a.Core.CommitSimple(item, randomness)
			if _, err := a.ApplyAdd(rec); err != nil {
				return fmt.Errorf("add: %w", err)
			}

			st, err := store.Open(storePath(*cfg), log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Persist(a, cfg.Params()); err != nil {
				return err
			}

			b, err := json.MarshalIndent(encodeProof(proof), "", "  ")
			if err != nil {
				return err
			}
			if proofOut == "" {
				_, err = cmd.OutOrStdout().Write(append(b, '\n'))
				return err
			}
			return os.WriteFile(proofOut, b, 0o600)
		},
	}
	cmd.Flags().StringVar(&itemHex, "item", "", "item digest, hex (32 bytes)")
	cmd.Flags().StringVar(&randomnessHex, "randomness", "", "sender randomness digest, hex (32 bytes)")
	cmd.Flags().StringVar(&proofOut, "proof-out", "", "path to write the membership proof JSON (default: stdout)")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("randomness")
	return cmd
}

func newRemoveCmd(cfg *config.Config) *cobra.Command {
	var itemHex, randomnessHex, proofIn string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Drop and remove an item given its membership proof file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			item, err := decodeDigest(itemHex)
			if err != nil {
				return fmt.Errorf("--item: %w", err)
			}
			_ = randomnessHex // retained for symmetry with add; the proof file already carries sender_randomness

			b, err := os.ReadFile(proofIn)
			if err != nil {
				return fmt.Errorf("read proof file: %w", err)
			}
			var pf proofFile
			if err := json.Unmarshal(b, &pf); err != nil {
				return fmt.Errorf("decode proof file: %w", err)
			}
			proof, err := decodeProof(pf)
			if err != nil {
				return err
			}

			log, err := newLogger(*cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := openArchival(*cfg, log)
			if err != nil {
				return err
			}
			if !a.Core.Verify(item, proof) {
				return fmt.Errorf("proof does not verify against current state")
			}
			rr := a.Core.Drop(item, proof)
			if _, err := a.ApplyRemove(rr); err != nil {
				return fmt.Errorf("remove: %w", err)
			}

			st, err := store.Open(storePath(*cfg), log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Persist(a, cfg.Params()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	}
	cmd.Flags().StringVar(&itemHex, "item", "", "item digest, hex (32 bytes)")
	cmd.Flags().StringVar(&randomnessHex, "randomness", "", "unused, kept for parity with add")
	cmd.Flags().StringVar(&proofIn, "proof-file", "", "path to the membership proof JSON written by add")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("proof-file")
	return cmd
}

func newVerifyCmd(cfg *config.Config) *cobra.Command {
	var itemHex, proofIn string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a membership proof against the current commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			item, err := decodeDigest(itemHex)
			if err != nil {
				return fmt.Errorf("--item: %w", err)
			}
			b, err := os.ReadFile(proofIn)
			if err != nil {
				return fmt.Errorf("read proof file: %w", err)
			}
			var pf proofFile
			if err := json.Unmarshal(b, &pf); err != nil {
				return fmt.Errorf("decode proof file: %w", err)
			}
			proof, err := decodeProof(pf)
			if err != nil {
				return err
			}

			log, err := newLogger(*cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := openArchival(*cfg, log)
			if err != nil {
				return err
			}
			if a.Core.Verify(item, proof) {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "invalid")
			return fmt.Errorf("proof does not verify")
		},
	}
	cmd.Flags().StringVar(&itemHex, "item", "", "item digest, hex (32 bytes)")
	cmd.Flags().StringVar(&proofIn, "proof-file", "", "path to the membership proof JSON")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("proof-file")
	return cmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a /metrics endpoint for the current archival mutator set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}
			log, err := newLogger(*cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := openArchival(*cfg, log)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics.NewCollector(a, cfg.Params(), reg)

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			log.Info("serving metrics", zap.String("bind_addr", cfg.BindAddr))
			return http.ListenAndServe(cfg.BindAddr, mux) // #nosec G114 -- demonstration harness only, not a production server.
		},
	}
	return cmd
}
