package pg

import "strings"

// decodePGTextArray parses Postgres's text[] wire representation
// ("{a,b,c}") into a Go string slice. A nil or empty array scans as nil.
func decodePGTextArray(src any) []string {
	var raw string
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return nil
	}

	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
