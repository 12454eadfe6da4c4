package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/modsentry/modsentry/internal/moderation"
	"github.com/modsentry/modsentry/internal/store"
)

const (
	chatTypePrivate    = "private"
	chatTypeGroup      = "group"
	chatTypeSupergroup = "supergroup"
)

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	switch msg.Chat.Type {
	case chatTypePrivate:
		c.handlePrivateMessage(ctx, msg)
	case chatTypeGroup, chatTypeSupergroup:
		if msg.Text != "" {
			c.handleGroupMessage(ctx, msg)
		}
	}
}

// handlePrivateMessage dispatches the /start and /help commands.
func (c *Channel) handlePrivateMessage(ctx context.Context, msg *telego.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || text[0] != '/' {
		return
	}

	fields := strings.SplitN(text, " ", 2)
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])

	switch cmd {
	case "/start":
		payload := ""
		if len(fields) > 1 {
			payload = strings.TrimSpace(fields[1])
		}
		c.handleStart(ctx, msg, payload)
	case "/help":
		c.reply(ctx, msg.Chat.ID, helpText)
	}
}

const helpText = "I'm a simple bot!\n\nAvailable commands:\n/start - Start the bot\n/help - Show this help message"

const welcomeText = "Hello! I'm a spam cleaning bot, to use me visit the web app or TG Mini App to register an account, then send /start <token> here to link it."

// handleStart links a Telegram account to a platform account when payload is
// a valid connection token, otherwise it sends the generic welcome message.
func (c *Channel) handleStart(ctx context.Context, msg *telego.Message, payload string) {
	token, err := uuid.Parse(payload)
	if err != nil {
		c.reply(ctx, msg.Chat.ID, welcomeText)
		return
	}

	if msg.From == nil {
		c.reply(ctx, msg.Chat.ID, "❌ Connection failed. Please try again later.")
		return
	}

	result, err := c.dao.ConnectAccount(ctx, token, msg.From.ID)
	if err != nil {
		slog.Error("connect account failed", "telegram_user_id", msg.From.ID, "error", err)
		c.reply(ctx, msg.Chat.ID, "❌ Connection failed. Please try again later.")
		return
	}

	switch result {
	case store.ConnectionSuccess:
		c.reply(ctx, msg.Chat.ID, "✅ Account successfully connected to Telegram!")
	case store.ConnectionAlreadySameAccount:
		c.reply(ctx, msg.Chat.ID, "ℹ️ Your Telegram is already connected to this account.")
	case store.ConnectionAlreadyOtherAccount:
		c.reply(ctx, msg.Chat.ID, "❌ This Telegram account is already assigned to somebody else.")
	case store.ConnectionUserNotFound:
		c.reply(ctx, msg.Chat.ID, "❌ Invalid connection token or account not found.")
	}
}

func (c *Channel) reply(ctx context.Context, chatID int64, text string) {
	if err := c.limiter.Wait(ctx); err != nil {
		slog.Error("send message rate limiter failed", "chat_id", chatID, "error", err)
		return
	}
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		slog.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// handleGroupMessage builds a moderation.WorkItem from the message and hands
// it to the engine's bounded intake channel, doing only the lookups needed
// to classify the sender as trusted/owner before enqueueing — the rest of
// the pipeline runs off the hot path.
func (c *Channel) handleGroupMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}

	isTrustedOrOwner := c.isTrustedOrOwner(ctx, msg.From.ID, msg.Chat.ID)

	item := moderation.WorkItem{
		ChatID:           msg.Chat.ID,
		MessageID:        msg.MessageID,
		Text:             msg.Text,
		Entities:         convertEntities(msg),
		UserID:           msg.From.ID,
		Nickname:         nicknameOf(msg.From),
		IsTrustedOrOwner: isTrustedOrOwner,
	}

	c.engine.Submit(item)
}

func (c *Channel) isTrustedOrOwner(ctx context.Context, telegramUserID, chatID int64) bool {
	isOwner, err := c.dao.IsChatOwner(ctx, telegramUserID, chatID)
	if err != nil {
		slog.Error("is chat owner check failed", "chat_id", chatID, "user_id", telegramUserID, "error", err)
	}
	if isOwner {
		return true
	}

	if _, err := c.dao.EnsureUserState(ctx, telegramUserID, chatID); err != nil {
		slog.Error("ensure user state failed", "chat_id", chatID, "user_id", telegramUserID, "error", err)
	}

	trusted, err := c.dao.IsUserTrusted(ctx, telegramUserID, chatID)
	if err != nil {
		slog.Error("is user trusted check failed", "chat_id", chatID, "user_id", telegramUserID, "error", err)
		return false
	}
	return trusted
}

func nicknameOf(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

func convertEntities(msg *telego.Message) []moderation.Entity {
	if len(msg.Entities) == 0 {
		return nil
	}
	out := make([]moderation.Entity, 0, len(msg.Entities))
	for _, e := range msg.Entities {
		switch e.Type {
		case telego.EntityTypeMention:
			out = append(out, moderation.Entity{Kind: moderation.EntityMention, Offset: e.Offset, Length: e.Length})
		case telego.EntityTypeURL:
			out = append(out, moderation.Entity{Kind: moderation.EntityURL, Offset: e.Offset, Length: e.Length})
		case telego.EntityTypeTextLink:
			out = append(out, moderation.Entity{Kind: moderation.EntityTextLink, Offset: e.Offset, Length: e.Length, URL: e.URL})
		}
	}
	return out
}

// handleMyChatMember reacts to the bot's own membership changing in a group:
// admits the chat when the inviter has an active account, otherwise leaves
// it.
func (c *Channel) handleMyChatMember(ctx context.Context, upd *telego.ChatMemberUpdated) {
	if upd.Chat.Type != chatTypeGroup && upd.Chat.Type != chatTypeSupergroup {
		return
	}

	oldStatus := upd.OldChatMember.MemberStatus()
	newStatus := upd.NewChatMember.MemberStatus()

	added := isActiveMemberStatus(newStatus) && isInactiveMemberStatus(oldStatus)
	removed := isInactiveMemberStatus(newStatus) && !isInactiveMemberStatus(oldStatus)

	chatID := upd.Chat.ID

	switch {
	case added:
		slog.Info("bot added to chat", "chat_id", chatID)
		inviterID := upd.From.ID

		_, err := c.dao.AddChat(ctx, chatID, inviterID)
		switch {
		case err == nil:
			slog.Info("chat added", "chat_id", chatID, "inviter_id", inviterID)
		case errors.Is(err, store.ErrInviterNotActive):
			slog.Warn("inviter not active, leaving chat", "chat_id", chatID, "inviter_id", inviterID)
			if leaveErr := c.bot.LeaveChat(ctx, &telego.LeaveChatParams{ChatID: telego.ChatID{ID: chatID}}); leaveErr != nil {
				slog.Error("leave chat failed", "chat_id", chatID, "error", leaveErr)
			}
		default:
			slog.Error("add chat failed", "chat_id", chatID, "inviter_id", inviterID, "error", err)
		}
	case removed:
		slog.Info("bot removed from chat", "chat_id", chatID, "old_status", oldStatus, "new_status", newStatus)
	case oldStatus != newStatus:
		slog.Info("bot status changed in chat", "chat_id", chatID, "old_status", oldStatus, "new_status", newStatus)
	}
}

func isActiveMemberStatus(status string) bool {
	return status == "member" || status == "administrator"
}

func isInactiveMemberStatus(status string) bool {
	return status == "left" || status == "kicked"
}
