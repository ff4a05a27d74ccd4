package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean a log from the start",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			stats, err := p.Run(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(c.OutOrStdout(), "%d lines read, %d skipped, %d written, %d duplicates removed\n",
				stats.Lines, stats.Skipped, stats.Written, stats.Duplicates)
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "path of the raw log")
	flags.Duration("partition-window", 0, "close a partition once its keys span more than this duration (0 disables)")
	flags.Bool("skip-malformed", false, "skip malformed lines instead of failing")

	rootCmd.AddCommand(cmd)
}
