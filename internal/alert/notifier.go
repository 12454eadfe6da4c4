// Package alert implements the periodic infra-health daemon: disk space,
// index read-only, and log error/warning rate checks over OpenSearch, fanned
// out to one or more notification sinks.
package alert

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/modsentry/modsentry/internal/config"
)

// Severity is the alert urgency level; alertd emits only these two values.
type Severity string

const (
	SeverityWarn Severity = "WARN"
	SeverityCrit Severity = "CRIT"
)

// Alert is one notification-worthy event produced by a check.
type Alert struct {
	Severity Severity
	Kind     string
	Message  string
}

// Notifier delivers an Alert. Notify must return promptly; sinks with slow
// transports (SMTP) dispatch delivery to their own goroutine so they never
// stall the check tick.
type Notifier interface {
	Notify(a Alert)
}

// StdoutNotifier logs every alert via slog.
type StdoutNotifier struct{}

func (StdoutNotifier) Notify(a Alert) {
	slog.Warn("alert", "severity", string(a.Severity), "kind", a.Kind, "message", a.Message)
}

// EmailNotifier relays alerts over SMTP using gopkg.in/gomail.v2.
type EmailNotifier struct {
	cfg config.SMTPConfig
}

// NewEmailNotifier returns nil when the SMTP config is incomplete, so the
// caller can treat "email disabled" as a non-fatal configuration state
// rather than an error.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" || len(cfg.To) == 0 {
		return nil
	}
	return &EmailNotifier{cfg: cfg}
}

// Notify dispatches delivery to its own goroutine so SMTP round trips never
// stall the alert tick.
func (e *EmailNotifier) Notify(a Alert) {
	go e.send(a)
}

// send delivers per-recipient and tolerates partial failure: at least one
// delivery is success, zero deliveries is logged as an error.
func (e *EmailNotifier) send(a Alert) {
	d := gomail.NewDialer(e.cfg.Host, e.cfg.Port, e.cfg.Username, e.cfg.Password)
	// Port 465 is implicit TLS; other ports negotiate STARTTLS through the dialer.
	d.SSL = e.cfg.Port == 465

	delivered := 0
	for _, to := range e.cfg.To {
		m := gomail.NewMessage()
		m.SetHeader("From", e.cfg.From)
		m.SetHeader("To", to)
		m.SetHeader("Subject", fmt.Sprintf("[%s] %s", a.Severity, a.Kind))
		m.SetBody("text/plain", a.Message)

		if err := d.DialAndSend(m); err != nil {
			slog.Error("email notification failed", "to", to, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		slog.Error("email notification reached no recipients", "kind", a.Kind, "recipients", len(e.cfg.To))
	}
}

// MultiNotifier fans an alert out to every sink, tolerating partial failure:
// a sink that panics is recovered and logged, and the rest still run.
type MultiNotifier struct {
	sinks []Notifier
}

func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	var filtered []Notifier
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiNotifier{sinks: filtered}
}

func (m *MultiNotifier) Notify(a Alert) {
	for _, s := range m.sinks {
		notifySafe(s, a)
	}
}

func notifySafe(n Notifier, a Alert) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notifier panicked", "error", r)
		}
	}()
	n.Notify(a)
}
