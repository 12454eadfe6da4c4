package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
)

// IndexClient wraps the OpenSearch bulk-index call the ingest gateway uses
// to land a batch of events.
type IndexClient struct {
	es *opensearch.Client
}

// NewIndexClient dials url (a single OpenSearch node or load balancer).
func NewIndexClient(url string) (*IndexClient, error) {
	es, err := opensearch.NewClient(opensearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("build opensearch client: %w", err)
	}
	return &IndexClient{es: es}, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index *struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// BulkIndex routes each event to index "logs-<service.name>-YYYY.MM.DD" (UTC)
// and sends the whole batch as one NDJSON bulk request.
// It returns the number of events indexed and an error describing any
// per-item failures (status >= 400 counts as a failure).
func (c *IndexClient) BulkIndex(ctx context.Context, events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var body strings.Builder
	for _, e := range events {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		index := fmt.Sprintf("logs-%s-%s", e.ServiceOrDefault(), ts.UTC().Format("2006.01.02"))

		action, _ := json.Marshal(map[string]any{"index": map[string]any{"_index": index}})
		doc, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshal event: %w", err)
		}
		body.Write(action)
		body.WriteByte('\n')
		body.Write(doc)
		body.WriteByte('\n')
	}

	res, err := c.es.Bulk(strings.NewReader(body.String()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("bulk index failed: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}

	failed := 0
	if parsed.Errors {
		for _, item := range parsed.Items {
			if item.Index != nil && item.Index.Status >= 400 {
				failed++
			}
		}
	}
	if failed > 0 {
		return len(events) - failed, fmt.Errorf("%d of %d documents failed to index", failed, len(events))
	}
	return len(events), nil
}
