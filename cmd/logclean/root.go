package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/davidvella/logclean"
	"github.com/davidvella/logclean/config"
	"github.com/davidvella/logclean/internal/logctx"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logclean",
	Short: "Sort and deduplicate key/value logs larger than memory",
	Long: `logclean reads a log of "<key> <value>" lines, where key is an unsigned
64-bit timestamp, and writes every distinct line once, ordered by key and
then by value, using a bounded amount of memory.`,
	SilenceUsage: true,
}

func init() {
	defaults := config.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "configuration file (default ./logclean.yaml when present)")
	flags.String("output", "", "path of the cleaned log")
	flags.String("work-dir", "", "directory for intermediate files (default: hidden directory next to the output)")
	flags.Int("partition-size", defaults.PartitionSize, "maximum number of records sorted in memory at once per worker")
	flags.Int("max-concurrency", defaults.MaxConcurrency, "maximum number of partitions sorted at once")
	flags.String("memory-budget", "", "memory for sorting, such as 512M or 2G (default 80% of the memory limit)")
	flags.Bool("dedup-partitions", false, "also remove duplicates while sorting each partition")
	flags.Bool("keep-intermediates", false, "keep partition files after a successful run")
	flags.String("log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	flags.String("log-format", defaults.LogFormat, "log format: text or json")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration of cmd and sets up logging.
func loadConfig(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	return logctx.WithLogger(cmd.Context(), logger), cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newPipeline builds a pipeline from cfg.
func newPipeline(cfg *config.Config) (*logclean.Pipeline, error) {
	budget, err := cfg.MemoryBudgetBytes()
	if err != nil {
		return nil, err
	}

	opts := []logclean.Option{
		logclean.WithSource(cfg.Source),
		logclean.WithOutput(cfg.Output),
		logclean.WithWorkDir(cfg.WorkDir),
		logclean.WithPartitionSize(cfg.PartitionSize),
		logclean.WithPartitionWindow(cfg.PartitionWindow),
		logclean.WithMemoryBudget(budget),
		logclean.WithSkipMalformed(cfg.SkipMalformed),
		logclean.WithDedupPartitions(cfg.DedupPartitions),
		logclean.WithKeepIntermediates(cfg.KeepIntermediates),
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, logclean.WithMaxConcurrency(cfg.MaxConcurrency))
	}

	return logclean.New(opts...)
}
