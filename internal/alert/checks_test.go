package alert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigString(t *testing.T) {
	m := map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"blocks": map[string]any{
					"read_only_allow_delete": "true",
				},
			},
		},
	}
	require.Equal(t, "true", digString(m, "settings", "index", "blocks", "read_only_allow_delete"))
	require.Equal(t, "", digString(m, "settings", "missing"))
}

func TestDigStringOr(t *testing.T) {
	m := map[string]any{"message": "disk low"}
	require.Equal(t, "disk low", digStringOr(m, "fallback", "message"))
	require.Equal(t, "fallback", digStringOr(m, "fallback", "absent"))
}

func TestAsFloat(t *testing.T) {
	require.Equal(t, 42.0, asFloat(42.0))
	require.Equal(t, 7.0, asFloat(7))
	require.Equal(t, 0.0, asFloat("not a number"))
	require.Equal(t, 0.0, asFloat(nil))
}

func TestSearchHits(t *testing.T) {
	result := map[string]any{
		"hits": map[string]any{
			"hits": []any{
				map[string]any{"_source": map[string]any{"message": "one"}},
				map[string]any{"_source": map[string]any{"message": "two"}},
			},
		},
	}
	hits := searchHits(result)
	require.Len(t, hits, 2)
	require.Nil(t, searchHits(map[string]any{}))
}

func TestExtractMessages(t *testing.T) {
	hits := []map[string]any{
		{"_source": map[string]any{
			"@timestamp": "2026-07-29T10:00:00Z",
			"log":        map[string]any{"level": "ERROR"},
			"service":    map[string]any{"name": "telegram-bot"},
			"message":    "db connection lost",
		}},
		{"_source": map[string]any{"message": "second"}},
	}

	lines := extractMessages(hits, 0)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "01. 2026-07-29T10:00:00Z [ERROR] telegram-bot - db connection lost")
	require.Contains(t, lines[1], "02. ? [?] ? - second")
}

func TestExtractMessages_LimitClamped(t *testing.T) {
	hits := []map[string]any{
		{"_source": map[string]any{"message": "a"}},
		{"_source": map[string]any{"message": "b"}},
		{"_source": map[string]any{"message": "c"}},
	}
	require.Len(t, extractMessages(hits, 2), 2)
	require.Len(t, extractMessages(hits, 10), 3)
}

func TestJoinLines(t *testing.T) {
	require.Equal(t, "", joinLines(nil))
	require.Equal(t, "a", joinLines([]string{"a"}))
	require.Equal(t, "a\nb", joinLines([]string{"a", "b"}))
}
