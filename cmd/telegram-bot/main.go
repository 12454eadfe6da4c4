// Command telegram-bot runs the Telegram long-polling channel and the
// moderation engine that drains its intake queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"github.com/modsentry/modsentry/internal/bus"
	"github.com/modsentry/modsentry/internal/config"
	"github.com/modsentry/modsentry/internal/health"
	"github.com/modsentry/modsentry/internal/moderation"
	"github.com/modsentry/modsentry/internal/policycache"
	"github.com/modsentry/modsentry/internal/store/pg"
	"github.com/modsentry/modsentry/internal/telegram"
	"github.com/modsentry/modsentry/internal/telemetry"
	"github.com/modsentry/modsentry/internal/tracing"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "telegram-bot",
	Short: "Telegram long-polling moderation bot",
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

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if err := config.WatchAndReload(cfgPath, cfg, stopWatch); err != nil {
		slog.Debug("config hot-reload disabled", "path", cfgPath, "error", err)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), "telegram-bot", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	db, err := pg.Open(cfg.Database.PostgresDSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	dao := pg.New(db)

	b, err := bus.New(cfg.Redis.URL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	cache := policycache.New(dao, 0)

	bot, err := telego.NewBot(cfg.Telegram.Token)
	if err != nil {
		slog.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	engineCfg := moderation.Config{
		Workers:              cfg.Telegram.GroupWorkers,
		QueueCapacity:        cfg.Telegram.IntakeQueueCapacity,
		TasksStream:          cfg.Redis.TasksStream,
		DeletionStreamPrefix: cfg.Redis.DeletionStreamPrefix,
	}

	channel := telegram.New(cfg.Telegram, bot, dao, nil)
	engine := moderation.NewEngine(engineCfg, cache, dao, b, channel)
	channel.SetEngine(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sinkDone chan struct{}
	if cfg.Telemetry.IngestURL != "" {
		sink := telemetry.NewSink(cfg.Telemetry.ChannelCapacity, cfg.Telemetry.IngestURL, cfg.Telemetry.BatchSize,
			time.Duration(cfg.Telemetry.FlushIntervalMS)*time.Millisecond, 0)
		engine.SetTelemetry(sink)
		sinkDone = make(chan struct{})
		go func() {
			sink.Run(ctx)
			close(sinkDone)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	health.Serve(ctx, cfg.Telegram.Port, "telegram-bot")

	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()

	if err := channel.Start(ctx); err != nil {
		slog.Error("failed to start telegram channel", "error", err)
		os.Exit(1)
	}

	slog.Info(fmt.Sprintf("telegram-bot running, workers=%d", engineCfg.Workers))

	<-sigCh
	slog.Info("shutdown signal received")
	cancel()
	channel.Stop(context.Background())

	// Workers finish their in-flight items before Run returns; bound the wait
	// so a wedged side-effect cannot hang shutdown.
	select {
	case <-engineDone:
	case <-time.After(15 * time.Second):
		slog.Warn("moderation workers did not drain within grace period")
	}

	// The shipper flushes and exits on its first tick after cancellation.
	if sinkDone != nil {
		select {
		case <-sinkDone:
		case <-time.After(5 * time.Second):
			slog.Warn("telemetry shipper did not finish within grace period")
		}
	}
}
