package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/modsentry/modsentry/internal/config"
)

// Daemon runs the disk/readonly/log-anomaly checks on a fixed interval until
// its context is cancelled.
type Daemon struct {
	cfg      config.AlertConfig
	os       *osClient
	notifier Notifier
}

// NewDaemon dials OpenSearch and wires a MultiNotifier of StdoutNotifier plus
// an EmailNotifier when SMTP config is complete.
func NewDaemon(cfg config.AlertConfig) (*Daemon, error) {
	os, err := newOSClient(cfg.OpenSearchURL)
	if err != nil {
		return nil, err
	}

	sinks := []Notifier{StdoutNotifier{}}
	if email := NewEmailNotifier(cfg.SMTP); email != nil {
		slog.Info("email notifications enabled", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		sinks = append(sinks, email)
	}

	return &Daemon{
		cfg:      cfg,
		os:       os,
		notifier: NewMultiNotifier(sinks...),
	}, nil
}

// Run executes one round of checks immediately, then every cfg.IntervalSeconds
// until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	interval := time.Duration(d.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	slog.Info("alertd started", "interval_seconds", int(interval.Seconds()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("alertd stopping")
			return
		case <-ticker.C:
			d.runChecks(ctx)
		}
	}
}

func (d *Daemon) runChecks(ctx context.Context) {
	checkDisk(ctx, d.cfg, d.os, d.notifier)
	checkReadonly(ctx, d.cfg, d.os, d.notifier)
	checkLogWarningsErrors(ctx, d.cfg, d.os, d.notifier)
}
