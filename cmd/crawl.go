package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pricewatch-io/pricewatch/internal/metrics"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
	"github.com/pricewatch-io/pricewatch/internal/worker"
)

var crawlKind string

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a single crawl batch and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCrawl(cmd.Context())
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlKind, "kind", "all", "work kind: all, retry or pending")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(parent context.Context) error {
	kind := tracker.WorkKind(crawlKind)
	switch kind {
	case tracker.WorkAll, tracker.WorkRetry, tracker.WorkPending:
	default:
		return fmt.Errorf("unknown work kind %q", crawlKind)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	extractor, closeExtractor := buildExtractor(cfg, logger)
	defer closeExtractor()

	client := worker.NewClient(cfg.Worker.ServerURL, cfg.Auth.APIKey, cfg.URLTimeout())
	scheduler := worker.NewScheduler(client, extractor, cfg.URLTimeout(), logger)
	scheduler.RunBatch(ctx, kind)
	return nil
}
