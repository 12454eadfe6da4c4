package alert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modsentry/modsentry/internal/config"
)

type recordingSink struct {
	alerts []Alert
	panics bool
}

func (r *recordingSink) Notify(a Alert) {
	if r.panics {
		panic("sink exploded")
	}
	r.alerts = append(r.alerts, a)
}

func TestMultiNotifier_FansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiNotifier(a, b)

	m.Notify(Alert{Severity: SeverityCrit, Kind: "DISK", Message: "low"})

	require.Len(t, a.alerts, 1)
	require.Len(t, b.alerts, 1)
	require.Equal(t, "DISK", a.alerts[0].Kind)
}

func TestMultiNotifier_PanickingSinkDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{panics: true}
	good := &recordingSink{}
	m := NewMultiNotifier(bad, good)

	m.Notify(Alert{Severity: SeverityWarn, Kind: "READONLY", Message: "index"})

	require.Len(t, good.alerts, 1)
}

func TestMultiNotifier_DropsNilSinks(t *testing.T) {
	good := &recordingSink{}
	m := NewMultiNotifier(nil, good)

	m.Notify(Alert{Kind: "LOG_ERROR"})
	require.Len(t, good.alerts, 1)
}

func TestNewEmailNotifier_IncompleteConfigIsNil(t *testing.T) {
	require.Nil(t, NewEmailNotifier(config.SMTPConfig{}))
	require.Nil(t, NewEmailNotifier(config.SMTPConfig{Host: "smtp.example.com"}))

	full := config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
		To:   config.FlexibleStringSlice{"ops@example.com"},
	}
	require.NotNil(t, NewEmailNotifier(full))
}
