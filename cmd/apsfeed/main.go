package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/apsFeed/config"
	"github.com/Noofbiz/apsFeed/pipeline"
	"github.com/Noofbiz/apsFeed/records"
)

const version = "0.1.0"

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apsfeed",
		Short: "Batched reader for APS fixed-length binary image files",
		Long: `apsfeed reads APS binary image files (512-byte label block followed by
height*width*depth bytes of uint8 pixels per record), normalizes each
image, and assembles fixed-shape batches.

The inspect command validates a file list and reports record counts; the
sample command runs the full pipeline and optionally plots batch
statistics.`,
	}

	cmd.AddCommand(newInspectCmd(), newSampleCmd())
	return cmd
}

func newInspectCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate input files and report record counts",
		Example: `  # Count records in the configured file list
  apsfeed inspect --config configs/feed.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			shape := records.ImageShape{Height: cfg.Height, Width: cfg.Width, Depth: cfg.Depth}
			counts, err := records.CountRecords(cfg.Files, shape)
			if err != nil {
				return err
			}

			total := 0
			for _, fc := range counts {
				total += fc.Records
				fmt.Fprintf(cmd.OutOrStdout(), "%s\trecords=%d", fc.Path, fc.Records)
				if fc.Residue > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\tresidue_bytes=%d", fc.Residue)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total\trecords=%d\trecord_bytes=%d\n", total, shape.RecordBytes())
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "configs/feed.yaml", "path to YAML config")
	return cmd
}

func newSampleCmd() *cobra.Command {
	var (
		cfgPath    string
		numBatches int
		plotDir    string
		batchSize  int
		workers    int
		seed       int64
		logEvery   int
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run the pipeline and consume a number of batches",
		Example: `  # Pull 10 shuffled batches and plot their statistics
  apsfeed sample --config configs/feed.yaml --batches 10 --plot-dir plots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg.ApplyOverrides(config.Overrides{
				BatchSize: batchSize,
				Workers:   workers,
				Seed:      seed,
				LogEvery:  logEvery,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}

			p, err := pipeline.New(cfg.Pipeline())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			batches, errs := p.Run(ctx)
			collected := make([]*pipeline.Batch, 0, numBatches)
		collect:
			for len(collected) < numBatches {
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						return err
					}
					errs = nil
				case b, ok := <-batches:
					if !ok {
						if errs != nil {
							if err, eok := <-errs; eok && err != nil {
								return err
							}
						}
						slog.Info("input exhausted", "batches", len(collected))
						break collect
					}
					mean, stddev := meanStddev(b.Images)
					slog.Info("batch",
						"index", len(collected),
						"size", b.Len(),
						"pixel_mean", fmt.Sprintf("%.4f", mean),
						"pixel_stddev", fmt.Sprintf("%.4f", stddev))
					collected = append(collected, b)
				}
			}
			cancel()

			if len(collected) == 0 {
				return fmt.Errorf("no batches produced")
			}
			if plotDir != "" {
				if err := plotImageStats(plotDir, collected); err != nil {
					return fmt.Errorf("plot image stats: %w", err)
				}
				if err := plotPixelHistogram(plotDir, collected[0]); err != nil {
					return fmt.Errorf("plot pixel histogram: %w", err)
				}
				slog.Info("plots written", "dir", plotDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "configs/feed.yaml", "path to YAML config")
	cmd.Flags().IntVar(&numBatches, "batches", 10, "number of batches to consume")
	cmd.Flags().StringVar(&plotDir, "plot-dir", "", "write statistics plots to this directory")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override batch size")
	cmd.Flags().IntVar(&workers, "workers", 0, "override worker count")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override shuffle seed")
	cmd.Flags().IntVar(&logEvery, "log-every", 0, "override batch log interval")
	return cmd
}
