package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidvella/logclean"
)

func init() {
	var from string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Restart a failed run from its sort or merge stage",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			stage, err := logclean.ParseStage(from)
			if err != nil {
				return err
			}

			ctx, cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}

			stats, err := p.Resume(ctx, stage)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(c.OutOrStdout(), "%d written, %d duplicates removed\n", stats.Written, stats.Duplicates)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "merge", "stage to restart from: sort or merge")

	rootCmd.AddCommand(cmd)
}
