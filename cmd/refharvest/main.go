package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/refharvest/refharvest/pkg/cache"
	"github.com/refharvest/refharvest/pkg/collector"
	"github.com/refharvest/refharvest/pkg/config"
	"github.com/refharvest/refharvest/pkg/logging"
	"github.com/refharvest/refharvest/pkg/report"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		pretty      bool
	)

	root := &cobra.Command{
		Use:   "refharvest",
		Short: "Adaptive reference-data collector",
		Long: "refharvest collects paginated reference data from a REST API,\n" +
			"adapting its request pacing and page size to the observed success rate.",
		SilenceUsage: true,
	}

	collect := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass against the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(configPath, metricsAddr, pretty)
		},
	}
	collect.Flags().StringVarP(&configPath, "config", "c", "", "path to the JSON config file (defaults apply when omitted)")
	collect.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for Prometheus metrics, e.g. :9090 (disabled when empty)")
	collect.Flags().BoolVar(&pretty, "pretty", false, "human-readable console logs instead of JSON")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("refharvest", version)
		},
	}

	root.AddCommand(collect, versionCmd)
	return root
}

func runCollect(configPath, metricsAddr string, pretty bool) error {
	// A local .env may carry the API key. Absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog := logging.Setup(logging.Config{
		Level:    logging.LogLevel(cfg.LogLevel),
		Pretty:   pretty,
		FilePath: cfg.Output.LogPath,
	})
	defer closeLog()

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := collector.New(cfg, logger)

	if cfg.Cache.Enabled {
		if manager := connectCache(ctx, cfg, logger); manager != nil {
			c.SetPageCache(manager)
		}
	}

	qualityReport := c.Run(ctx)

	stats := c.Stats()
	summary := report.BuildSummary(cfg, stats, c.Store().Len(), c.Multiplier())
	metadata := report.BuildMetadata(cfg, c.Store().Len(), stats.StartTime)

	writer := report.NewWriter(cfg, logger)
	if err := writer.WriteRecords(c.Store().Records()); err != nil {
		return err
	}
	if err := writer.WriteSummary(summary); err != nil {
		return err
	}
	if err := writer.WriteMetadata(metadata); err != nil {
		return err
	}
	if err := writer.WriteQuality(qualityReport); err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.RenderSummary(summary))
	fmt.Println()
	fmt.Print(report.RenderQuality(qualityReport))

	return nil
}

// connectCache dials Redis for the optional page cache. A cache that cannot
// be reached downgrades to uncached operation instead of failing the run.
func connectCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *cache.Manager {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisAddr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().
			Err(err).
			Str("addr", cfg.Cache.RedisAddr).
			Msg("Redis unreachable, running without page cache")
		client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Page cache connected")
	return cache.NewManager(client, cfg.Cache.TTL)
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}
