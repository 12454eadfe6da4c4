package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"github.com/modsentry/modsentry/internal/moderation"
)

func TestNicknameOf(t *testing.T) {
	require.Equal(t, "spamfan", nicknameOf(&telego.User{Username: "spamfan", FirstName: "Sam"}))
	require.Equal(t, "Sam Doe", nicknameOf(&telego.User{FirstName: "Sam", LastName: "Doe"}))
	require.Equal(t, "Sam", nicknameOf(&telego.User{FirstName: "Sam"}))
}

func TestConvertEntities(t *testing.T) {
	msg := &telego.Message{
		Text: "hi @someone see link",
		Entities: []telego.MessageEntity{
			{Type: telego.EntityTypeMention, Offset: 3, Length: 8},
			{Type: telego.EntityTypeURL, Offset: 16, Length: 4},
			{Type: telego.EntityTypeTextLink, Offset: 16, Length: 4, URL: "https://evil.example"},
			{Type: telego.EntityTypeBold, Offset: 0, Length: 2},
		},
	}

	got := convertEntities(msg)
	require.Len(t, got, 3)
	require.Equal(t, moderation.EntityMention, got[0].Kind)
	require.Equal(t, moderation.EntityURL, got[1].Kind)
	require.Equal(t, moderation.EntityTextLink, got[2].Kind)
	require.Equal(t, "https://evil.example", got[2].URL)
}

func TestConvertEntities_NoEntities(t *testing.T) {
	require.Nil(t, convertEntities(&telego.Message{Text: "plain"}))
}

func TestMemberStatusClassification(t *testing.T) {
	require.True(t, isActiveMemberStatus("member"))
	require.True(t, isActiveMemberStatus("administrator"))
	require.False(t, isActiveMemberStatus("left"))

	require.True(t, isInactiveMemberStatus("left"))
	require.True(t, isInactiveMemberStatus("kicked"))
	require.False(t, isInactiveMemberStatus("member"))
}
