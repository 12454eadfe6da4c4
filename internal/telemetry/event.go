// Package telemetry implements the non-blocking, batched telemetry pipe: a
// bounded-channel log sink with a single shipper task, the ingest gateway
// HTTP server that receives shipped batches, and the OpenSearch bulk-index
// client that lands them.
package telemetry

import "time"

// Level is a log.level value.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

// Event is one structured log record, shaped to match both the emitting
// side (the shipper's batch payload) and the receiving side (the ingest
// gateway's bulk document).
type Event struct {
	Timestamp time.Time      `json:"@timestamp"`
	Service   string         `json:"service.name"`
	Level     Level          `json:"log.level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Labels    map[string]any `json:"labels,omitempty"`
	TraceID   string         `json:"trace.id,omitempty"`
	SpanName  string         `json:"span.name,omitempty"`
}

// ServiceOrDefault ensures an empty Service field never blocks indexing; it
// just lands in "logs-unknown-*".
func (e Event) ServiceOrDefault() string {
	if e.Service == "" {
		return "unknown"
	}
	return e.Service
}
