package alert

import (
	"context"
	"fmt"

	"github.com/modsentry/modsentry/internal/config"
)

// checkDisk walks _nodes/stats/fs and alerts CRIT on any node whose free
// space falls below either the absolute or percentage threshold.
func checkDisk(ctx context.Context, cfg config.AlertConfig, os *osClient, n Notifier) {
	stats, err := os.nodesStatsFS(ctx)
	if err != nil {
		n.Notify(Alert{Severity: SeverityWarn, Kind: "CHECK_FAILED", Message: fmt.Sprintf("disk check error: %v", err)})
		return
	}

	nodes, _ := stats["nodes"].(map[string]any)
	if nodes == nil {
		n.Notify(Alert{Severity: SeverityWarn, Kind: "CHECK_FAILED", Message: "unexpected nodes stats shape"})
		return
	}

	for _, raw := range nodes {
		node, _ := raw.(map[string]any)
		name, _ := node["name"].(string)
		if name == "" {
			name = "unknown"
		}

		var availBytes, totalBytes float64 = 0, 1
		if fs, ok := node["fs"].(map[string]any); ok {
			if total, ok := fs["total"].(map[string]any); ok {
				availBytes = asFloat(total["available_in_bytes"])
				if tb := asFloat(total["total_in_bytes"]); tb > 0 {
					totalBytes = tb
				}
			}
		}

		freeGB := availBytes / (1024 * 1024 * 1024)
		freePct := (availBytes / totalBytes) * 100

		if freeGB < cfg.MinFreeGB || freePct < cfg.MinFreePct {
			n.Notify(Alert{
				Severity: SeverityCrit,
				Kind:     "DISK",
				Message: fmt.Sprintf("node=%s free=%.1fGB (%.1f%%) thresholds: <%.1fGB or <%.1f%%",
					name, freeGB, freePct, cfg.MinFreeGB, cfg.MinFreePct),
			})
		}
	}
}

// checkReadonly alerts CRIT on any index in cfg.LogIndexPattern carrying
// index.blocks.read_only_allow_delete=true.
func checkReadonly(ctx context.Context, cfg config.AlertConfig, os *osClient, n Notifier) {
	settings, err := os.indexSettings(ctx, cfg.LogIndexPattern)
	if err != nil {
		n.Notify(Alert{Severity: SeverityWarn, Kind: "CHECK_FAILED", Message: fmt.Sprintf("readonly check error: %v", err)})
		return
	}

	for index, raw := range settings {
		payload, _ := raw.(map[string]any)
		ro := digString(payload, "settings", "index", "blocks", "read_only_allow_delete")
		if ro == "true" {
			n.Notify(Alert{
				Severity: SeverityCrit,
				Kind:     "READONLY",
				Message:  fmt.Sprintf("index=%s has read_only_allow_delete=true", index),
			})
		}
	}
}

// checkLogWarningsErrors runs two windowed searches over the last 3 minutes
// and alerts when the error or warning hit count meets its configured
// threshold.
func checkLogWarningsErrors(ctx context.Context, cfg config.AlertConfig, os *osClient, n Notifier) {
	runLevelCheck(ctx, os, cfg.LogIndexPattern, []string{"ERROR", "CRITICAL", "FATAL"}, cfg.ErrorThreshold, cfg.DetailsLimit, SeverityCrit, "LOG_ERROR", n)
	runLevelCheck(ctx, os, cfg.LogIndexPattern, []string{"WARN", "WARNING"}, cfg.WarningThreshold, cfg.DetailsLimit, SeverityWarn, "LOG_WARNING", n)
}

func runLevelCheck(ctx context.Context, os *osClient, indexPattern string, levels []string, threshold, detailsLimit int, severity Severity, kind string, n Notifier) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"range": map[string]any{"@timestamp": map[string]any{"gte": "now-3m"}}},
					{"terms": map[string]any{"log.level": levels}},
				},
			},
		},
		"sort": []map[string]any{{"@timestamp": map[string]any{"order": "desc"}}},
		"size": 10,
	}

	result, err := os.search(ctx, indexPattern, query)
	if err != nil {
		n.Notify(Alert{Severity: SeverityWarn, Kind: "CHECK_FAILED", Message: fmt.Sprintf("log %s check request error: %v", kind, err)})
		return
	}

	hits := searchHits(result)
	if len(hits) == 0 || len(hits) < threshold {
		return
	}

	details := extractMessages(hits, detailsLimit)
	n.Notify(Alert{
		Severity: severity,
		Kind:     kind,
		Message:  fmt.Sprintf("Found %d log entr(ies) (threshold: %d). Recent:\n%s", len(hits), threshold, joinLines(details)),
	})
}

func searchHits(result map[string]any) []map[string]any {
	top, _ := result["hits"].(map[string]any)
	if top == nil {
		return nil
	}
	raw, _ := top["hits"].([]any)
	hits := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			hits = append(hits, m)
		}
	}
	return hits
}

// extractMessages formats up to limit hits as "NN. ts [level] service - message".
func extractMessages(hits []map[string]any, limit int) []string {
	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	lines := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		src, _ := hits[i]["_source"].(map[string]any)
		ts := digStringOr(src, "?", "@timestamp")
		level := digStringOr(src, "?", "log", "level")
		if level == "?" {
			level = digStringOr(src, "?", "log.level")
		}
		service := digStringOr(src, "?", "service", "name")
		if service == "?" {
			service = digStringOr(src, "?", "service.name")
		}
		msg := digStringOr(src, "No message available", "message")
		lines = append(lines, fmt.Sprintf("%02d. %s [%s] %s - %s", i+1, ts, level, service, msg))
	}
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func digString(m map[string]any, path ...string) string {
	var cur any = m
	for _, p := range path {
		next, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = next[p]
	}
	switch v := cur.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func digStringOr(m map[string]any, fallback string, path ...string) string {
	if s := digString(m, path...); s != "" {
		return s
	}
	return fallback
}
