// Package telegram implements the chat-platform channel: Bot API long
// polling, update dispatch into the moderation engine, the /start and /help
// commands, and chat admission/removal handling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/modsentry/modsentry/internal/config"
	"github.com/modsentry/modsentry/internal/moderation"
	"github.com/modsentry/modsentry/internal/store"
)

// Channel owns the bot connection and dispatches updates to the moderation
// engine and the account-linking/admission handlers.
type Channel struct {
	bot     *telego.Bot
	cfg     config.TelegramConfig
	dao     store.DAO
	engine  *moderation.Engine
	limiter *rate.Limiter

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New builds a Channel around an already-constructed bot. engine may be nil
// at construction time since the moderation engine itself depends on the
// Channel as its Deleter; callers wire the cycle with SetEngine once both
// sides exist.
func New(cfg config.TelegramConfig, bot *telego.Bot, dao store.DAO, engine *moderation.Engine) *Channel {
	rps := cfg.RateLimitPerSecond
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 25
	}
	return &Channel{
		bot:     bot,
		cfg:     cfg,
		dao:     dao,
		engine:  engine,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// SetEngine completes the Channel<->Engine wiring cycle: the engine needs
// the Channel as its Deleter before it can be constructed, and the Channel
// needs the Engine to submit intake items.
func (c *Channel) SetEngine(engine *moderation.Engine) {
	c.engine = engine
}

// Start begins long polling and returns once the update dispatch goroutine
// is running. Stop cancels it.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "edited_message", "my_chat_member"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	botUser, err := c.bot.GetMe(pollCtx)
	if err != nil {
		slog.Warn("get me failed", "error", err)
	} else {
		slog.Info("telegram bot connected", "username", botUser.Username)
	}

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				c.dispatch(pollCtx, update)
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the dispatch goroutine to exit so
// Telegram releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram dispatch goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) dispatch(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		c.handleMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		// An edit can smuggle spam into a message that already passed, so
		// edited messages re-enter the same pipeline.
		c.handleMessage(ctx, update.EditedMessage)
	case update.MyChatMember != nil:
		c.handleMyChatMember(ctx, update.MyChatMember)
	default:
		slog.Debug("telegram update skipped", "update_id", update.UpdateID)
	}
}

// DeleteMessage implements moderation.Deleter over the Bot API, rate limited
// to stay under Telegram's per-chat flood limits.
func (c *Channel) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	})
}
