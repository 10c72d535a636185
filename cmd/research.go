package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deepscribe/config"
	"deepscribe/internal/engine"
	"deepscribe/internal/report"
)

func researchCMD() *cobra.Command {
	var (
		cfgPath       string
		query         string
		topicModel    string
		summaryModel  string
		detail        string
		breadth       int
		maxExpansions int
		maxWorkers    int
		provider      string
		outputDir     string
		legend        bool
		verbose       bool
	)

	var research = &cobra.Command{
		Use:   "research",
		Short: "Run one research pass and write the report to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if !verbose && !cfg.General.Debug {
				log.SetOutput(io.Discard)
			}

			eng, tel, err := buildEngine(cfg, provider, topicModel, summaryModel, maxWorkers)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cfg.General.DefaultTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.General.DefaultTimeout)
				defer cancel()
			}

			opts := engine.RunOptions{
				Query:         query,
				Detail:        engine.DetailLevel(detail),
				Breadth:       breadth,
				MaxExpansions: maxExpansions,
				MaxWorkers:    maxWorkersOrDefault(maxWorkers, cfg),
				Legend:        legend,
			}
			if detail == "" {
				opts.Detail = engine.DetailLevel(cfg.Research.Detail)
			}

			res, err := eng.Run(ctx, opts)
			if err != nil {
				return err
			}

			dir := outputDir
			if dir == "" {
				dir = cfg.General.ReportDir
			}
			path, err := report.Save(engine.Report{
				Title:    res.Title,
				Document: res.Report,
				Filename: res.Filename,
			}, dir)
			if err != nil {
				return err
			}

			logger := log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags)
			st := openStore(ctx, cfg, logger)
			if st != nil {
				defer st.Close()
				if err := st.SaveReport(ctx, res); err != nil {
					logger.Printf("persisting report: %v", err)
				}
			}

			fmt.Printf("Report saved to: %s\n", path)
			if cfg.Telemetry.CostTracking {
				fmt.Printf("Total LLM cost: $%.4f\n", tel.TotalCost())
			}
			return nil
		},
	}

	research.Flags().StringVarP(&query, "query", "q", "", "research query (required)")
	research.Flags().StringVar(&topicModel, "topic-model", "", "model for planning calls")
	research.Flags().StringVar(&summaryModel, "summary-model", "", "model for synthesis and report calls")
	research.Flags().StringVar(&detail, "detail", "", "detail level: low, medium or high")
	research.Flags().IntVar(&breadth, "breadth", 1, "search iterations (1-10)")
	research.Flags().IntVar(&maxExpansions, "max-expansions", 1, "per-topic expansion rounds")
	research.Flags().IntVar(&maxWorkers, "max-workers", 0, "parallel topic workers (1-10)")
	research.Flags().StringVar(&provider, "search-provider", "", "search provider: exa or tavily")
	research.Flags().StringVar(&outputDir, "output-dir", "", "directory for the report file (overrides config)")
	research.Flags().BoolVar(&legend, "legend", false, "include a table of contents")
	research.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	research.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = research.MarkFlagRequired("query")

	return research
}

func maxWorkersOrDefault(n int, cfg *config.Config) int {
	if n >= 1 {
		return n
	}
	if cfg.Research.MaxWorkers >= 1 {
		return cfg.Research.MaxWorkers
	}
	return 4
}
