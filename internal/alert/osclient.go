package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// osClient is the thin OpenSearch wrapper the three checks share. It is
// deliberately separate from internal/telemetry's IndexClient: the checks
// read node stats, index settings, and search results, none of which the
// ingest gateway's bulk-index path needs.
type osClient struct {
	es *opensearch.Client
}

func newOSClient(url string) (*osClient, error) {
	es, err := opensearch.NewClient(opensearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("build opensearch client: %w", err)
	}
	return &osClient{es: es}, nil
}

// nodesStatsFS returns the decoded response of GET _nodes/stats/fs.
func (c *osClient) nodesStatsFS(ctx context.Context) (map[string]any, error) {
	res, err := c.es.Nodes.Stats(
		c.es.Nodes.Stats.WithContext(ctx),
		c.es.Nodes.Stats.WithMetric("fs"),
	)
	if err != nil {
		return nil, err
	}
	return decodeOrError(res)
}

// indexSettings returns the decoded response of
// GET <pattern>/_settings/index.blocks.read_only_allow_delete.
func (c *osClient) indexSettings(ctx context.Context, pattern string) (map[string]any, error) {
	res, err := c.es.Indices.GetSettings(
		c.es.Indices.GetSettings.WithContext(ctx),
		c.es.Indices.GetSettings.WithIndex(pattern),
		c.es.Indices.GetSettings.WithName("index.blocks.read_only_allow_delete"),
	)
	if err != nil {
		return nil, err
	}
	return decodeOrError(res)
}

// search runs a raw query DSL body against indexPattern and returns the
// decoded response.
func (c *osClient) search(ctx context.Context, indexPattern string, query map[string]any) (map[string]any, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indexPattern),
		c.es.Search.WithBody(strings.NewReader(string(body))),
	)
	if err != nil {
		return nil, err
	}
	return decodeOrError(res)
}

func decodeOrError(res *opensearchapi.Response) (map[string]any, error) {
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("opensearch error: %s", res.Status())
	}
	var parsed map[string]any
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil
}
