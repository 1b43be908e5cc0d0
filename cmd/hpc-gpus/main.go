// Command hpc-gpus prints how many GPUs of each model are free per Slurm partition.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"sitecopy/downloader"
	"sitecopy/gpus"
	"sitecopy/logger"
)

type options struct {
	gpu    string
	json   bool
	input  string
	format string
}

func newRootCmd(fs afero.Fs, runner gpus.Runner, out io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "hpc-gpus",
		Short:         "Show free and total GPUs per model and partition",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.New(logger.Config{Format: opts.format})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var nodes []gpus.Node
			if opts.input != "" {
				data, err := afero.ReadFile(fs, opts.input)
				if err != nil {
					return err
				}
				nodes, err = gpus.Parse(data)
				if err != nil {
					return err
				}
			} else {
				nodes, err = gpus.Collect(cmd.Context(), runner)
				if err != nil {
					return err
				}
			}
			log.Debug("nodes loaded", logger.Int("count", len(nodes)))

			stats := gpus.Aggregate(nodes)
			if opts.gpu != "" {
				if stats, err = stats.Only(opts.gpu); err != nil {
					return err
				}
			}
			if opts.json {
				return gpus.WriteJSON(out, stats)
			}
			gpus.Render(out, stats)
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.Flags().StringVar(&opts.gpu, "gpu", "", "only show this GPU model")
	cmd.Flags().BoolVar(&opts.json, "json", false, "dump the per partition counts and node lists as JSON")
	cmd.Flags().StringVar(&opts.input, "input", "", "read scontrol JSON from this file instead of running scontrol")
	cmd.Flags().StringVar(&opts.format, "log-format", logger.DefaultFormat, "log format: console or json")
	return cmd
}

func main() {
	cmd := newRootCmd(afero.NewOsFs(), downloader.ExecRunner{}, os.Stdout)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
