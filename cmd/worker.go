package cmd

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/config"
	"github.com/pricewatch-io/pricewatch/internal/extract"
	"github.com/pricewatch-io/pricewatch/internal/metrics"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
	"github.com/pricewatch-io/pricewatch/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduled crawl worker",
	Long: `worker crawls tracked URLs on the configured daily schedule and
reports results to the API server. It also reads operator commands from
stdin: crawl-all, crawl-retry, crawl-pending, exit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorker(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(parent context.Context) error {
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
	if err := scheduler.Start(ctx, cfg.Schedule.Times); err != nil {
		return err
	}
	defer scheduler.Stop()

	logger.Info("worker started",
		zap.Strings("schedule", cfg.Schedule.Times),
		zap.String("server", cfg.Worker.ServerURL),
	)

	commands := readCommands(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return nil
		case cmd, ok := <-commands:
			if !ok {
				<-ctx.Done()
				logger.Info("worker stopping")
				return nil
			}
			switch cmd {
			case "crawl-all":
				go scheduler.RunBatch(ctx, tracker.WorkAll, tracker.WorkPending)
			case "crawl-retry":
				go scheduler.RunBatch(ctx, tracker.WorkRetry, tracker.WorkPending)
			case "crawl-pending":
				go scheduler.RunBatch(ctx, tracker.WorkPending)
			case "exit":
				logger.Info("worker stopping")
				return nil
			default:
				logger.Warn("unknown command", zap.String("command", cmd))
			}
		}
	}
}

// buildExtractor assembles the static pass, plus the headless browser pass
// when enabled. The browser session is warmed up once before the first batch.
func buildExtractor(cfg config.Config, logger *zap.Logger) (extract.Extractor, func()) {
	static := extract.NewStatic(extract.StaticConfig{
		UserAgent: cfg.Extractor.UserAgent,
		Timeout:   cfg.URLTimeout(),
	})

	if !cfg.Extractor.HeadlessEnabled {
		return extract.NewPageExtractor(static, nil, logger), func() {}
	}

	browser := extract.NewBrowser(extract.BrowserConfig{
		UserAgent:         cfg.Extractor.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
	}, logger)
	browser.Warmup(cfg.Extractor.WarmupURL)
	return extract.NewPageExtractor(static, browser, logger), browser.Close
}

// readCommands streams trimmed stdin lines. The channel closes on EOF.
func readCommands(ctx context.Context, logger *zap.Logger) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("stdin closed", zap.Error(err))
		}
	}()
	return out
}
