package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/citation-weaver/internal/config"
	"github.com/alvmarrod/citation-weaver/internal/crawler"
	"github.com/alvmarrod/citation-weaver/internal/fetcher"
	"github.com/alvmarrod/citation-weaver/internal/memory"
	"github.com/alvmarrod/citation-weaver/internal/metrics"
	"github.com/alvmarrod/citation-weaver/internal/storage"
	"github.com/alvmarrod/citation-weaver/internal/topk"
	"github.com/alvmarrod/citation-weaver/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newFetcher builds the document fetcher; tests replace it with a stub server
var newFetcher = func(cfg *config.Config) crawler.Fetcher {
	return fetcher.New(fetcher.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})
}

// progressInterval is how often the progress line is logged
var progressInterval = 10 * time.Second

// NewRootCmd creates the crawler command
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Keyword-ranked citation graph crawler",
		Long: `crawler walks the reference and citation graph of a seed publication,
scores every publication it visits against a keyword list and keeps the
best scoring ones in a text file, one URL per line.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = runCrawl(ctx, cfg)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the JSON configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

// Execute runs the root command
func Execute() {
	// Configure logging
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.Errorf("Crawler failed: %v", err)
		os.Exit(1)
	}
}

// runCrawl wires storage, metrics and the engine, runs the crawl and writes
// every output artifact. A rate limit ends the run with an error after the
// outputs are written.
func runCrawl(ctx context.Context, cfg *config.Config) (crawler.Result, error) {
	logrus.Infof("Citation Weaver v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: seed=%s, keywords=%v, threshold=%d, top_k=%d, max_iterations=%d",
		cfg.SeedURL, cfg.Keywords, cfg.Threshold(), cfg.Capacity(), cfg.IterationLimit())

	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	persister := topk.NewFilePersister(cfg.OutputPath)
	tracker, err := topk.New(cfg.Capacity(), persister)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("failed to create top-k tracker: %w", err)
	}

	stats := metrics.NewTracker()
	graph := memory.NewCitationGraph()

	engine, err := crawler.New(cfg, newFetcher(cfg), tracker,
		crawler.WithObserver(stats),
		crawler.WithRecorder(graph),
	)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("failed to create crawl engine: %w", err)
	}

	// Start progress logger
	var wg sync.WaitGroup
	stopProgress := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Infof("%s | Frontier: %d", stats.LogProgress(), engine.Frontier().Size())
			case <-stopProgress:
				return
			}
		}
	}()

	result, runErr := engine.Run(ctx)

	close(stopProgress)
	wg.Wait()

	logrus.Info("Step 1/3: Writing top-k set...")
	if err := tracker.Flush(); err != nil {
		logrus.Errorf("Failed to write top-k set: %v", err)
	} else {
		logrus.Infof("Top %d written to %s", tracker.Len(), persister.Path())
	}

	logrus.Info("Step 2/3: Flushing citation graph to database...")
	if err := graph.Flush(store); err != nil {
		logrus.Errorf("Failed to flush citation graph: %v", err)
	}

	logrus.Info("Step 3/3: Writing final metrics...")
	logrus.Info("Final stats: " + stats.LogProgress())
	if err := stats.WriteToFile(cfg.MetricsPath, result.State.String()); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	var rateLimited *crawler.RateLimitError
	if errors.As(runErr, &rateLimited) {
		logrus.Errorf("Too many requests. Please wait %s before crawling again", rateLimited.RetryAfter)
	}

	return result, runErr
}
