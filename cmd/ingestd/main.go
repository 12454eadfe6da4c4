// Command ingestd exposes the telemetry ingest gateway: it receives shipped
// log batches and bulk-indexes them into OpenSearch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modsentry/modsentry/internal/alert"
	"github.com/modsentry/modsentry/internal/config"
	"github.com/modsentry/modsentry/internal/telemetry"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "Telemetry ingest gateway",
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

	index, err := telemetry.NewIndexClient(cfg.Telemetry.OpenSearchURL)
	if err != nil {
		slog.Error("failed to build opensearch client", "error", err)
		os.Exit(1)
	}

	sinks := []alert.Notifier{alert.StdoutNotifier{}}
	if email := alert.NewEmailNotifier(cfg.Alert.SMTP); email != nil {
		sinks = append(sinks, email)
	}
	notifier := alert.NewMultiNotifier(sinks...)

	gateway := telemetry.NewGateway(index, notifier)

	port := cfg.Telemetry.GatewayPort
	if port == 0 {
		port = 8081
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: gateway.Handler(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("ingestd listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ingestd server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("ingestd shutdown error", "error", err)
	}
}
