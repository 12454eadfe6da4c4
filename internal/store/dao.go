// Package store defines the typed data-access interface the moderation core
// consumes; no SQL appears outside internal/store/pg.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrChatNotFound is returned by GetChatPolicy for an unregistered chat; the
// moderation engine treats this as a silent skip.
var ErrChatNotFound = errors.New("store: chat not found")

// ErrInviterNotActive is returned by AddChat when the inviting user has no
// active account record; the bot leaves the chat on this error.
var ErrInviterNotActive = errors.New("store: inviter has no active account")

// ChatPolicy is the per-chat moderation configuration.
type ChatPolicy struct {
	ChatID   int64
	ChatUUID uuid.UUID
	Active   bool

	AIEnabled      bool
	CleanupMention bool
	CleanupLinks   bool
	CleanupEmails  bool
	CleanupEmojis  bool

	PromptsThreshold       float64
	CustomPromptThreshold  float64
	MaxEmojiCount          int
	AllowedMentions        []string
	AllowedLinkDomains     []string

	Processed       int64
	SpamDetected    int64
	MessagesDeleted int64
}

// DefaultChatPolicy returns the values assigned on chat admission.
func DefaultChatPolicy(chatID int64, chatUUID uuid.UUID) ChatPolicy {
	return ChatPolicy{
		ChatID:                chatID,
		ChatUUID:              chatUUID,
		Active:                true,
		AIEnabled:             true,
		PromptsThreshold:      0.3,
		CustomPromptThreshold: 0.3,
		MaxEmojiCount:         5,
	}
}

// UserState is per-chat, per-user moderation state.
type UserState struct {
	ID             uuid.UUID
	ChatID         int64
	TelegramUserID int64
	Trusted        bool
	IsOwner        bool
	IsActive       bool
	ValidMessages  int64
	JoinedAt       time.Time
	UpdatedAt      time.Time
}

// ConnectionResult is the outcome of binding a Telegram user id to an account.
type ConnectionResult int

const (
	ConnectionSuccess ConnectionResult = iota
	ConnectionAlreadySameAccount
	ConnectionAlreadyOtherAccount
	ConnectionUserNotFound
)

// DAO is the typed data-access interface consumed by the moderation engine,
// the Telegram handlers, and the admin commands. Implemented by internal/store/pg.
type DAO interface {
	// GetChatPolicy returns ErrChatNotFound when the chat is unregistered.
	GetChatPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error)
	IsChatOwner(ctx context.Context, telegramUserID, chatID int64) (bool, error)
	IsUserTrusted(ctx context.Context, telegramUserID, chatID int64) (bool, error)

	// EnsureUserState is an idempotent create: a first call creates the row
	// (trusted=false, valid_messages=0); subsequent calls return the existing row.
	EnsureUserState(ctx context.Context, telegramUserID, chatID int64) (*UserState, error)

	IncrementProcessed(ctx context.Context, chatID int64) error
	IncrementSpam(ctx context.Context, chatID int64) error
	IncrementMessagesDeleted(ctx context.Context, chatID int64) error
	IncrementValid(ctx context.Context, userStateID uuid.UUID) error

	// AddChat admits a chat only if inviterTelegramID already has an active
	// user record; returns ErrInviterNotActive otherwise.
	AddChat(ctx context.Context, chatID int64, inviterTelegramID int64) (*ChatPolicy, error)

	// ConnectAccount binds one Telegram id to at most one account.
	ConnectAccount(ctx context.Context, accountID uuid.UUID, telegramUserID int64) (ConnectionResult, error)
}
