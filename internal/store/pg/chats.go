package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/modsentry/modsentry/internal/store"
)

const chatColumns = `chat_id, chat_uuid, active, ai_enabled, cleanup_mentions, cleanup_links,
	cleanup_emails, cleanup_emojis, prompts_threshold, custom_prompt_threshold, max_emoji_count,
	allowed_mentions, allowed_link_domains, processed, spam_detected, messages_deleted`

func scanChatPolicy(row interface{ Scan(...any) error }) (*store.ChatPolicy, error) {
	var p store.ChatPolicy
	err := row.Scan(
		&p.ChatID, &p.ChatUUID, &p.Active, &p.AIEnabled, &p.CleanupMention, &p.CleanupLinks,
		&p.CleanupEmails, &p.CleanupEmojis, &p.PromptsThreshold, &p.CustomPromptThreshold, &p.MaxEmojiCount,
		pqStringArray(&p.AllowedMentions), pqStringArray(&p.AllowedLinkDomains),
		&p.Processed, &p.SpamDetected, &p.MessagesDeleted,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DAO) GetChatPolicy(ctx context.Context, chatID int64) (*store.ChatPolicy, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE chat_id = $1`, chatID)
	p, err := scanChatPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat policy %d: %w", chatID, err)
	}
	return p, nil
}

func (d *DAO) IsChatOwner(ctx context.Context, telegramUserID, chatID int64) (bool, error) {
	var isOwner bool
	err := d.db.QueryRowContext(ctx,
		`SELECT is_owner FROM user_states WHERE telegram_user_id = $1 AND chat_id = $2`,
		telegramUserID, chatID,
	).Scan(&isOwner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is chat owner: %w", err)
	}
	return isOwner, nil
}

func (d *DAO) IsUserTrusted(ctx context.Context, telegramUserID, chatID int64) (bool, error) {
	var trusted bool
	err := d.db.QueryRowContext(ctx,
		`SELECT trusted FROM user_states WHERE telegram_user_id = $1 AND chat_id = $2`,
		telegramUserID, chatID,
	).Scan(&trusted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is user trusted: %w", err)
	}
	return trusted, nil
}

func (d *DAO) IncrementProcessed(ctx context.Context, chatID int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE chats SET processed = processed + 1 WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("increment processed: %w", err)
	}
	return nil
}

func (d *DAO) IncrementSpam(ctx context.Context, chatID int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE chats SET spam_detected = spam_detected + 1 WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("increment spam: %w", err)
	}
	return nil
}

func (d *DAO) IncrementMessagesDeleted(ctx context.Context, chatID int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE chats SET messages_deleted = messages_deleted + 1 WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("increment messages deleted: %w", err)
	}
	return nil
}

func (d *DAO) IncrementValid(ctx context.Context, userStateID uuid.UUID) error {
	_, err := d.db.ExecContext(ctx, `UPDATE user_states SET valid_messages = valid_messages + 1 WHERE id = $1`, userStateID)
	if err != nil {
		return fmt.Errorf("increment valid: %w", err)
	}
	return nil
}

// AddChat admits chatID only if inviterTelegramID already has an active
// user record anywhere in the system; it applies the admission defaults
// from store.DefaultChatPolicy.
func (d *DAO) AddChat(ctx context.Context, chatID int64, inviterTelegramID int64) (*store.ChatPolicy, error) {
	var inviterActive bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_states WHERE telegram_user_id = $1 AND is_active)`,
		inviterTelegramID,
	).Scan(&inviterActive)
	if err != nil {
		return nil, fmt.Errorf("check inviter: %w", err)
	}
	if !inviterActive {
		return nil, store.ErrInviterNotActive
	}

	policy := store.DefaultChatPolicy(chatID, uuid.Must(uuid.NewRandom()))
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, chat_uuid, active, ai_enabled, prompts_threshold,
			custom_prompt_threshold, max_emoji_count, processed, spam_detected, messages_deleted)
		 VALUES ($1, $2, true, true, $3, $4, $5, 0, 0, 0)
		 ON CONFLICT (chat_id) DO NOTHING`,
		policy.ChatID, policy.ChatUUID, policy.PromptsThreshold, policy.CustomPromptThreshold, policy.MaxEmojiCount,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	return &policy, nil
}

// pqStringArray adapts a *[]string destination to the sql.Scanner shape
// expected by the Postgres text[] wire format ({a,b,c}).
func pqStringArray(dst *[]string) any {
	return (*stringArrayScanner)(dst)
}

type stringArrayScanner []string

func (s *stringArrayScanner) Scan(src any) error {
	*s = decodePGTextArray(src)
	return nil
}
