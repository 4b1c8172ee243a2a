// Package notify delivers call updates to the group chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-call-bot-go/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited means the message was dropped because the chat is being
// posted to faster than allowed for longer than the configured wait.
var ErrRateLimited = errors.New("notification rate limited")

// Sender is the part of *tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts MarkdownV2 messages to one group chat.
type Telegram struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
	maxWait time.Duration
	logger  *zap.Logger
}

// NewTelegram creates a notifier posting through sender to the configured chat.
func NewTelegram(sender Sender, cfg config.Telegram, logger *zap.Logger) *Telegram {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	return &Telegram{
		sender:  sender,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(limit, burst),
		maxWait: cfg.MaxWait,
		logger:  logger.Named("telegram"),
	}
}

// Post sends text to the group chat. A message over the local rate limit
// waits for a slot up to the configured maximum and is then dropped with
// ErrRateLimited, as is a message Telegram refuses with a retry delay.
func (t *Telegram) Post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, EscapeMarkdownV2(text))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := t.sender.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			t.logger.Warn("Telegram rate limit exceeded, dropping message", zap.Int("retry_after", apiErr.RetryAfter))
			return fmt.Errorf("%w: retry after %ds", ErrRateLimited, apiErr.RetryAfter)
		}
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) wait(ctx context.Context) error {
	if t.maxWait <= 0 {
		if !t.limiter.Allow() {
			t.logger.Warn("Rate limit exceeded, dropping message")
			return ErrRateLimited
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.maxWait)
	defer cancel()
	if err := t.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.Warn("Rate limit exceeded, dropping message", zap.Duration("max_wait", t.maxWait))
		return fmt.Errorf("%w: no slot within %s", ErrRateLimited, t.maxWait)
	}
	return nil
}
