// Package main is the codex-engine CLI: a thin driver over the Builder
// and the Manifest & Integrity Gate. It does not expose normalize,
// get_descendants, translate_code, or check_relationship over any
// transport — those are consumed by embedding the core packages
// directly, per the Non-goals on this repo's outer surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CoReason-AI/codex-engine/internal/builder"
	"github.com/CoReason-AI/codex-engine/internal/codexerr"
	"github.com/CoReason-AI/codex-engine/internal/config"
	"github.com/CoReason-AI/codex-engine/internal/embedding"
	"github.com/CoReason-AI/codex-engine/internal/logging"
	"github.com/CoReason-AI/codex-engine/internal/manifest"
)

var (
	verbose    bool
	configPath string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codex",
	Short: "codex-engine builds and verifies OMOP terminology Codex Packs",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg = zap.NewDevelopmentConfig()
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logging.Init(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var buildCmd = &cobra.Command{
	Use:   "build <source_dir> <output_dir>",
	Short: "Build a Codex Pack from raw OMOP CSVs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		version, _ := cmd.Flags().GetString("version")
		sourceDate, _ := cmd.Flags().GetString("source-date")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		embedder, err := embedding.New(embedding.Config(cfg.Embedding))
		if err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}

		opts := builder.Options{
			SourceDir:  args[0],
			OutputDir:  args[1],
			Version:    version,
			SourceDate: sourceDate,
			BatchSize:  batchSize,
		}
		if err := builder.Build(opts, embedder); err != nil {
			return fmt.Errorf("build failed [%s]: %w", codexerr.KindOf(err), err)
		}

		fmt.Printf("built pack at %s\n", args[1])
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <pack_dir>",
	Short: "Verify a Codex Pack's manifest and checksums",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		packDir := args[0]

		m, err := manifest.Load(packDir)
		if err != nil {
			return fmt.Errorf("load manifest [%s]: %w", codexerr.KindOf(err), err)
		}
		if err := manifest.VerifyIntegrity(packDir, m); err != nil {
			return fmt.Errorf("verify failed [%s]: %w", codexerr.KindOf(err), err)
		}

		fmt.Printf("pack %s (version %s, source %s) verified OK\n", packDir, m.Version, m.SourceDate)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	buildCmd.Flags().String("version", "v1.0", "Pack version string")
	buildCmd.Flags().String("source-date", "", "Source vocabulary pull date")
	buildCmd.Flags().Int("batch-size", 0, "Embedding batch size (0 uses the default)")

	rootCmd.AddCommand(buildCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
