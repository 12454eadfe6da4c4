package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modsentry/modsentry/internal/store"
)

// EnsureUserState idempotently creates a user_states row for
// (telegramUserID, chatID) if absent. A fresh row starts untrusted with
// zero valid_messages.
func (d *DAO) EnsureUserState(ctx context.Context, telegramUserID, chatID int64) (*store.UserState, error) {
	existing, err := d.getUserState(ctx, telegramUserID, chatID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ensure user state: %w", err)
	}

	now := time.Now().UTC()
	id := uuid.Must(uuid.NewRandom())
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO user_states (id, chat_id, telegram_user_id, trusted, is_owner, is_active,
			valid_messages, joined_at, updated_at)
		 VALUES ($1, $2, $3, false, false, true, 0, $4, $4)
		 ON CONFLICT (chat_id, telegram_user_id) DO NOTHING`,
		id, chatID, telegramUserID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user state: %w", err)
	}

	return d.getUserState(ctx, telegramUserID, chatID)
}

func (d *DAO) getUserState(ctx context.Context, telegramUserID, chatID int64) (*store.UserState, error) {
	var u store.UserState
	err := d.db.QueryRowContext(ctx,
		`SELECT id, chat_id, telegram_user_id, trusted, is_owner, is_active, valid_messages, joined_at, updated_at
		 FROM user_states WHERE telegram_user_id = $1 AND chat_id = $2`,
		telegramUserID, chatID,
	).Scan(&u.ID, &u.ChatID, &u.TelegramUserID, &u.Trusted, &u.IsOwner, &u.IsActive, &u.ValidMessages, &u.JoinedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ConnectAccount binds telegramUserID to accountID. One Telegram id may be
// bound to at most one account; an accountID with no account row resolves to
// ConnectionUserNotFound.
func (d *DAO) ConnectAccount(ctx context.Context, accountID uuid.UUID, telegramUserID int64) (store.ConnectionResult, error) {
	var accountExists bool
	if err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
		accountID,
	).Scan(&accountExists); err != nil {
		return store.ConnectionUserNotFound, fmt.Errorf("connect account check: %w", err)
	}
	if !accountExists {
		return store.ConnectionUserNotFound, nil
	}

	var boundAccount uuid.UUID
	err := d.db.QueryRowContext(ctx,
		`SELECT account_id FROM telegram_links WHERE telegram_user_id = $1`,
		telegramUserID,
	).Scan(&boundAccount)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, insertErr := d.db.ExecContext(ctx,
			`INSERT INTO telegram_links (telegram_user_id, account_id, linked_at) VALUES ($1, $2, now())`,
			telegramUserID, accountID,
		)
		if insertErr != nil {
			return store.ConnectionUserNotFound, fmt.Errorf("connect account: %w", insertErr)
		}
		return store.ConnectionSuccess, nil
	case err != nil:
		return store.ConnectionUserNotFound, fmt.Errorf("connect account lookup: %w", err)
	case boundAccount == accountID:
		return store.ConnectionAlreadySameAccount, nil
	default:
		return store.ConnectionAlreadyOtherAccount, nil
	}
}
