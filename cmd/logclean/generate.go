package main

import (
	"github.com/spf13/cobra"

	"github.com/davidvella/logclean/generate"
)

func init() {
	opts := generate.DefaultOptions()
	var path string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a mock log for testing",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return generate.GenerateFile(c.Context(), path, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&path, "out", "raw_query.log", "path of the mock log")
	flags.IntVar(&opts.Lines, "lines", opts.Lines, "number of lines")
	flags.IntVar(&opts.MinLength, "min-length", opts.MinLength, "shortest value")
	flags.IntVar(&opts.MaxLength, "max-length", opts.MaxLength, "longest value")
	flags.StringVar(&opts.Charset, "charset", opts.Charset, "characters values are drawn from")
	flags.Uint64Var(&opts.Base, "base", 0, "center of the key range as a Unix timestamp (default now)")
	flags.Uint64Var(&opts.Delta, "delta", opts.Delta, "largest distance in seconds between a key and the base")
	flags.Uint64Var(&opts.Seed, "seed", 0, "random seed (default random)")

	rootCmd.AddCommand(cmd)
}
