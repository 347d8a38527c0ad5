package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pagetree/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pagetree",
	Short: "Build page-range trees for PDFs and answer questions from them",
	Long: `pagetree reads a PDF, asks a language model for its section headings and
builds a tree of page ranges with a summary on every node. Questions are
answered by letting the model navigate those trees.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides PAGETREE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the optional YAML file and the environment, and
// checks that a language model is configured.
func loadConfig() (config.Config, error) {
	_ = godotenv.Load()
	if configPath != "" {
		os.Setenv("PAGETREE_CONFIG", configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.ValidateLLM()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
