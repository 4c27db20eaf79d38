package main

import (
	"bytes"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/nvr-ai/visiondrop/benchmark"
	"github.com/nvr-ai/visiondrop/images"
	"github.com/nvr-ai/visiondrop/inference"
	"github.com/nvr-ai/visiondrop/models"
	"github.com/nvr-ai/visiondrop/util"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newBenchCmd(flags *rootFlags) *cobra.Command {
	var (
		iterations int
		warmup     int
		output     string
		only       []string
	)

	c := &cobra.Command{
		Use:   "bench DIR",
		Short: "Measure classification speed of each model over a directory of images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *flags)
			if err != nil {
				return err
			}
			closeLog, err := configureLogging(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			files, err := util.ListImageFiles(args[0])
			if err != nil {
				return err
			}
			paths := make([]string, len(files))
			for i, f := range files {
				paths[i] = f.Path
			}

			rt, err := inference.NewORTRuntime(cfg.ONNXRuntime, log.WithField("component", "onnxruntime"))
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			classifier, err := inference.NewClassifier(rt, inference.Config{
				ModelsDir:  cfg.ModelsDir,
				LabelsFile: cfg.LabelsFile,
				TopK:       cfg.TopK,
			}, log.WithField("component", "classifier"), nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = classifier.Close()
			}()

			pipeline, err := images.NewPipeline(cfg.ThumbnailSize)
			if err != nil {
				return err
			}

			suite, err := benchmark.NewSuite(classifier, pipeline, paths, log.WithField("component", "benchmark"))
			if err != nil {
				return err
			}

			scenarios := benchmark.DefaultScenarios(iterations, warmup)
			if len(only) > 0 {
				scenarios = scenarios[:0]
				for _, name := range only {
					v, err := models.Lookup(name)
					if err != nil {
						return err
					}
					scenarios = append(scenarios, benchmark.Scenario{
						Name: string(v.Name), Model: v.Name, Iterations: iterations, WarmupRuns: warmup,
					})
				}
			}

			results := suite.RunAll(cmd.Context(), scenarios)
			fmt.Fprint(cmd.OutOrStdout(), resultsTable(results))

			if output != "" {
				if err := suite.SaveResults(output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Results saved to %s\n", output)
			}
			return nil
		},
	}

	c.Flags().IntVarP(&iterations, "iterations", "n", 5, "Passes over the image directory per model")
	c.Flags().IntVar(&warmup, "warmup", 1, "Unmeasured classifications before each model's run")
	c.Flags().StringVarP(&output, "output", "o", "", "Write the results as JSON to this file")
	c.Flags().StringSliceVar(&only, "models", nil, "Models to benchmark (default all)")
	return c
}

func resultsTable(results []benchmark.PerformanceMetrics) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)

	table.SetHeader([]string{"MODEL", "LOAD", "PREPROCESS", "INFERENCE", "IMAGES/S", "ERRORS", "ALLOCATED"})

	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range results {
		table.Append([]string{
			r.Scenario.Name,
			r.LoadDuration.Truncate(time.Millisecond).String(),
			r.PreprocessDuration.Truncate(time.Microsecond).String(),
			r.InferenceDuration.Truncate(time.Microsecond).String(),
			fmt.Sprintf("%.2f", r.ImagesPerSecond),
			fmt.Sprintf("%.0f%%", r.ErrorRate*100),
			units.HumanSize(float64(r.MemoryStats.TotalAllocBytes)),
		})
	}

	table.Render()
	return buf.String()
}
