package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modsentry/modsentry/internal/store"
)

func basePolicy() *store.ChatPolicy {
	return &store.ChatPolicy{
		CleanupMention: true,
		CleanupLinks:   true,
		CleanupEmails:  true,
		CleanupEmojis:  true,
		MaxEmojiCount:  2,
	}
}

func TestDetectTrigger_EmojiOverflow(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("hello 😀😀😀 world", nil, policy)
	require.Equal(t, TriggerEmojiOverflow, trigger)
}

func TestDetectTrigger_EmojiWithinLimit(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("hello 😀😀 world", nil, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_MentionEntity(t *testing.T) {
	policy := basePolicy()
	text := "check out @spammer now"
	entities := []Entity{{Kind: EntityMention, Offset: 10, Length: 8}}
	require.Equal(t, "@spammer", text[10:18])

	trigger := DetectTrigger(text, entities, policy)
	require.Equal(t, TriggerMentionEntity, trigger)
}

func TestDetectTrigger_MentionEntityWhitelisted(t *testing.T) {
	policy := basePolicy()
	policy.AllowedMentions = []string{"spammer"}
	text := "check out @spammer now"
	entities := []Entity{{Kind: EntityMention, Offset: 10, Length: 8}}

	trigger := DetectTrigger(text, entities, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_LinkEntityURL(t *testing.T) {
	policy := basePolicy()
	text := "visit evil.com today"
	entities := []Entity{{Kind: EntityURL, Offset: 6, Length: 8}}

	trigger := DetectTrigger(text, entities, policy)
	require.Equal(t, TriggerLinkEntityUrl, trigger)
}

func TestDetectTrigger_LinkEntityWhitelistedDomain(t *testing.T) {
	policy := basePolicy()
	policy.AllowedLinkDomains = []string{"trusted.com"}
	text := "visit trusted.com today"
	entities := []Entity{{Kind: EntityURL, Offset: 6, Length: 11}}

	trigger := DetectTrigger(text, entities, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_TextLinkEntity(t *testing.T) {
	policy := basePolicy()
	text := "click here"
	entities := []Entity{{Kind: EntityTextLink, Offset: 0, Length: 5, URL: "https://evil.example/landing"}}

	trigger := DetectTrigger(text, entities, policy)
	require.Equal(t, TriggerLinkEntityTextLink, trigger)
}

func TestDetectTrigger_MentionRegexFallback(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("contact @spamuser123 directly", nil, policy)
	require.Equal(t, TriggerMentionRegex, trigger)
}

func TestDetectTrigger_MentionRegexDoesNotMatchEmailLocalPart(t *testing.T) {
	policy := basePolicy()
	policy.CleanupEmails = false
	trigger := DetectTrigger("reach me at someone@example.com", nil, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_EmailRegex(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("reach me at someone@example.com", nil, policy)
	require.Equal(t, TriggerEmailRegex, trigger)
}

func TestDetectTrigger_LinkRegexFallback(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("go to https://evil.example/landing now", nil, policy)
	require.Equal(t, TriggerLinkRegex, trigger)
}

func TestDetectTrigger_LinkRegexBareWWW(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("visit www.evil.example today", nil, policy)
	require.Equal(t, TriggerLinkRegex, trigger)
}

func TestDetectTrigger_LinkRegexTelegramShortlink(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("join t.me/spamchannel now", nil, policy)
	require.Equal(t, TriggerLinkRegex, trigger)
}

func TestDetectTrigger_LinkRegexWhitelistedDomain(t *testing.T) {
	policy := basePolicy()
	policy.AllowedLinkDomains = []string{"trusted.example"}
	trigger := DetectTrigger("go to https://trusted.example/landing now", nil, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_CleanMessagePassesAllChecks(t *testing.T) {
	policy := basePolicy()
	trigger := DetectTrigger("just a normal chat message with no triggers", nil, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestDetectTrigger_DisabledChecksAreSkipped(t *testing.T) {
	policy := &store.ChatPolicy{} // every Cleanup* flag false
	text := "@spammer visit evil.com someone@example.com 😀😀😀😀😀😀"
	trigger := DetectTrigger(text, nil, policy)
	require.Equal(t, TriggerNone, trigger)
}

func TestCountEmojis(t *testing.T) {
	require.Equal(t, 0, countEmojis("no emojis here"))
	require.Equal(t, 2, countEmojis("😀 rocket 🚀 incoming"))
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.Example.com/path", "example.com", true},
		{"evil.com", "evil.com", true},
		{"t.me/joinchat", "t.me", true},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeDomain(c.in)
		require.Equal(t, c.ok, ok, c.in)
		if c.ok {
			require.Equal(t, c.want, got, c.in)
		}
	}
}
