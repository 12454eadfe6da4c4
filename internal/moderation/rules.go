package moderation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/modsentry/modsentry/internal/store"
)

// mentionRegex is the fallback mention pattern: Go's regexp has no
// look-around, so the left/right boundary characters are captured as groups
// instead. A preceding word char or '.' is excluded to avoid matching the
// local part of an email address.
var mentionRegex = regexp.MustCompile(`(?i)(^|[^a-z0-9_.])@[a-z0-9_]{5,32}($|[^a-z0-9_])`)

// linkFallbackRegex matches a full URL token introduced by a scheme, "www.",
// or Telegram's "t.me/" shorthand, so the host can be normalized and checked
// against the whitelist.
var linkFallbackRegex = regexp.MustCompile(`(?i)(?:[a-z][a-z0-9+.-]*://|www\.|t\.me/)[^\s<>"']+`)

// emailRegex is a "good enough" moderation pattern, not full RFC 5322.
var emailRegex = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)

// countEmojis counts scalar code points in the enumerated emoji ranges.
func countEmojis(text string) int {
	n := 0
	for _, r := range text {
		if isEmojiCodepoint(r) {
			n++
		}
	}
	return n
}

func isEmojiCodepoint(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // Emoticons
		return true
	case r >= 0x1F300 && r <= 0x1F5FF: // Misc Symbols and Pictographs
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // Transport and Map
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // Regional indicators (flags)
		return true
	case r >= 0x2600 && r <= 0x26FF: // Misc symbols
		return true
	case r >= 0x2700 && r <= 0x27BF: // Dingbats
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // Supplemental Symbols and Pictographs
		return true
	case r >= 0x1F018 && r <= 0x1F270: // Various symbols
		return true
	case r == 0x203C || r == 0x2049 || r == 0x2122 || r == 0x2139:
		return true
	case r >= 0x2194 && r <= 0x2199: // Arrows
		return true
	case r >= 0x21A9 && r <= 0x21AA: // Arrows
		return true
	case r >= 0x231A && r <= 0x231B: // Watch, hourglass
		return true
	case r == 0x2328 || r == 0x23CF: // Keyboard, eject
		return true
	case r >= 0x23E9 && r <= 0x23F3: // Media controls
		return true
	case r >= 0x25AA && r <= 0x25AB: // Squares
		return true
	case r == 0x25B6 || r == 0x25C0: // Triangles
		return true
	case r >= 0x25FB && r <= 0x25FE: // Squares
		return true
	case r >= 0x2B05 && r <= 0x2B07: // Arrows
		return true
	case r >= 0x2B1B && r <= 0x2B1C: // Squares
		return true
	case r == 0x2B50 || r == 0x2B55: // Star, circle
		return true
	default:
		return false
	}
}

// entitySubstring slices text at [offset, offset+length), treating both as
// byte offsets into text. It reports false when the range falls outside text.
func entitySubstring(text string, offset, length int) (string, bool) {
	if offset < 0 || length < 0 || offset+length > len(text) {
		return "", false
	}
	return text[offset : offset+length], true
}

// extractMention lowercases and strips the leading '@' from a Mention entity's
// substring.
func extractMention(text string, e Entity) (string, bool) {
	raw, ok := entitySubstring(text, e.Offset, e.Length)
	if !ok {
		return "", false
	}
	name := strings.ToLower(strings.TrimPrefix(raw, "@"))
	if name == "" {
		return "", false
	}
	return name, true
}

// extractEntityURL returns the URL text backing a Url or TextLink entity.
func extractEntityURL(text string, e Entity) (string, bool) {
	switch e.Kind {
	case EntityURL:
		return entitySubstring(text, e.Offset, e.Length)
	case EntityTextLink:
		return e.URL, e.URL != ""
	default:
		return "", false
	}
}

// normalizeDomain strips scheme and a leading "www.", lowercases the host.
// Inputs without a scheme are given one so url.Parse can extract Host.
func normalizeDomain(rawURL string) (string, bool) {
	withScheme := rawURL
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") && !strings.HasPrefix(rawURL, "tg://") {
		withScheme = "http://" + rawURL
	}

	u, err := url.Parse(withScheme)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := u.Hostname()
	host = strings.TrimPrefix(host, "www.")
	return strings.ToLower(host), true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// DetectTrigger evaluates the deterministic checks in their fixed order
// and returns the first hit, or TriggerNone if the message
// passes every enabled check. Whitelisted entities/matches do not return —
// the scan continues to subsequent entities and regex fallbacks.
func DetectTrigger(text string, entities []Entity, policy *store.ChatPolicy) Trigger {
	if policy.CleanupEmojis && countEmojis(text) > policy.MaxEmojiCount {
		return TriggerEmojiOverflow
	}

	for _, e := range entities {
		switch e.Kind {
		case EntityMention:
			if !policy.CleanupMention {
				continue
			}
			mention, ok := extractMention(text, e)
			if !ok {
				continue
			}
			if containsFold(policy.AllowedMentions, mention) {
				continue
			}
			return TriggerMentionEntity

		case EntityURL, EntityTextLink:
			if !policy.CleanupLinks {
				continue
			}
			rawURL, ok := extractEntityURL(text, e)
			if !ok {
				continue
			}
			domain, ok := normalizeDomain(rawURL)
			if !ok {
				continue
			}
			if containsFold(policy.AllowedLinkDomains, domain) {
				continue
			}
			if e.Kind == EntityURL {
				return TriggerLinkEntityUrl
			}
			return TriggerLinkEntityTextLink
		}
	}

	if policy.CleanupMention {
		for _, m := range mentionRegex.FindAllString(text, -1) {
			mention := mentionFromRegexMatch(m)
			if mention == "" {
				continue
			}
			if containsFold(policy.AllowedMentions, mention) {
				continue
			}
			return TriggerMentionRegex
		}
	}

	if policy.CleanupEmails && emailRegex.MatchString(text) {
		return TriggerEmailRegex
	}

	if policy.CleanupLinks {
		for _, m := range linkFallbackRegex.FindAllString(text, -1) {
			domain, ok := normalizeDomain(m)
			if !ok {
				continue
			}
			if containsFold(policy.AllowedLinkDomains, domain) {
				continue
			}
			return TriggerLinkRegex
		}
	}

	return TriggerNone
}

// mentionFromRegexMatch extracts the username from a mentionRegex match,
// splitting on '@' and then on the first non-word/underscore rune.
func mentionFromRegexMatch(match string) string {
	idx := strings.IndexByte(match, '@')
	if idx < 0 {
		return ""
	}
	rest := match[idx+1:]

	end := len(rest)
	for i, r := range rest {
		if !(r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			end = i
			break
		}
	}
	return strings.ToLower(rest[:end])
}
