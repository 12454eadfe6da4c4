package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modsentry/modsentry/internal/alert"
)

// Gateway is the ingest HTTP endpoint shippers POST batches to.
// It accepts either a single Event object or a JSON array of Event and bulk
// indexes them through an IndexClient.
type Gateway struct {
	index    *IndexClient
	notifier alert.Notifier
}

// NewGateway wraps an already-constructed IndexClient. notifier may be nil;
// when set, a persistently failing OpenSearch cluster surfaces through the
// same stdout/SMTP alert path the alert daemon uses.
func NewGateway(index *IndexClient, notifier alert.Notifier) *Gateway {
	return &Gateway{index: index, notifier: notifier}
}

// Handler returns the http.Handler exposing POST /ingest and GET /health.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/ingest", g.handleIngest)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (g *Gateway) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := decodeEvents(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"indexed": 0})
		return
	}

	indexed, err := g.index.BulkIndex(r.Context(), events)
	if err != nil {
		slog.Error("bulk index failed", "attempted", len(events), "indexed", indexed, "error", err)
		if g.notifier != nil {
			g.notifier.Notify(alert.Alert{
				Severity: alert.SeverityWarn,
				Kind:     "INGEST_FAILED",
				Message:  fmt.Sprintf("bulk index failed: attempted=%d indexed=%d error=%v", len(events), indexed, err),
			})
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{"indexed": indexed, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"indexed": indexed})
}

// decodeEvents accepts either a single event object or an array of events.
func decodeEvents(r *http.Request) ([]Event, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var batch []Event
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}

	var single Event
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []Event{single}, nil
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
