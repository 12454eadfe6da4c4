// Command ai-worker drains the LM task stream and posts one-shot chat
// completions back to the results stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modsentry/modsentry/internal/bus"
	"github.com/modsentry/modsentry/internal/config"
	"github.com/modsentry/modsentry/internal/health"
	"github.com/modsentry/modsentry/internal/llm"
	"github.com/modsentry/modsentry/internal/tracing"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ai-worker",
	Short: "LM one-shot chat worker pool",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $MODSENTRY_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("MODSENTRY_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), "ai-worker", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	b, err := bus.New(cfg.Redis.URL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	timeout := time.Duration(cfg.LLM.TimeoutS) * time.Second
	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, timeout)

	pool := &llm.Pool{
		Bus:           b,
		Client:        client,
		TasksStream:   cfg.Redis.TasksStream,
		ResultsStream: cfg.Redis.ResultsStream,
		Group:         cfg.Redis.ConsumerGroup,
		Workers:       cfg.LLM.Workers,
		ReadCount:     cfg.LLM.XReadCount,
		BlockFor:      time.Second,
		ResultsMaxLen: cfg.LLM.ResultsMaxLen,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	health.Serve(ctx, cfg.LLM.HealthPort, "ai-worker")

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(ctx)
	}()

	slog.Info("ai-worker running", "workers", cfg.LLM.Workers, "model", cfg.LLM.Model)

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			slog.Error("ai-worker exited", "error", err)
			os.Exit(1)
		}
	}
}
