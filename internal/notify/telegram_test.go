package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-call-bot-go/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockSender is a mock implementation of the Sender interface.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegram_Post(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == -100 &&
			msg.ParseMode == tgbotapi.ModeMarkdownV2 &&
			msg.Text == "Buy in at ₮ 100\\.5\\.\n```\nPair BTC/USDT\n```"
	})).Return(tgbotapi.Message{}, nil).Once()

	n := NewTelegram(sender, config.Telegram{ChatID: -100}, zap.NewNop())
	err := n.Post(context.Background(), "Buy in at ₮ 100.5.\n```\nPair BTC/USDT\n```")

	assert.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestTelegram_LocalRateLimit(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	n := NewTelegram(sender, config.Telegram{ChatID: 1, RateLimit: 0.001, RateLimitBurst: 2}, zap.NewNop())
	assert.NoError(t, n.Post(context.Background(), "one"))
	assert.NoError(t, n.Post(context.Background(), "two"))
	assert.ErrorIs(t, n.Post(context.Background(), "three"), ErrRateLimited)
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestTelegram_WaitsForSlot(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	// Three calls closing on one candle all get through, the last ones after a short wait.
	n := NewTelegram(sender, config.Telegram{ChatID: 1, RateLimit: 50, RateLimitBurst: 1, MaxWait: time.Second}, zap.NewNop())
	start := time.Now()
	for _, text := range []string{"one", "two", "three"} {
		assert.NoError(t, n.Post(context.Background(), text))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	sender.AssertNumberOfCalls(t, "Send", 3)
}

func TestTelegram_DropsAfterMaxWait(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	n := NewTelegram(sender, config.Telegram{ChatID: 1, RateLimit: 0.001, RateLimitBurst: 1, MaxWait: 20 * time.Millisecond}, zap.NewNop())
	assert.NoError(t, n.Post(context.Background(), "one"))

	start := time.Now()
	assert.ErrorIs(t, n.Post(context.Background(), "two"), ErrRateLimited)
	assert.Less(t, time.Since(start), time.Second)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestTelegram_ServerRateLimit(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}).Once()
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("connection refused")).Once()

	n := NewTelegram(sender, config.Telegram{ChatID: 1}, zap.NewNop())

	err := n.Post(context.Background(), "first")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "retry after 7s")

	err = n.Post(context.Background(), "second")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestTelegram_CancelledContext(t *testing.T) {
	sender := new(MockSender)
	n := NewTelegram(sender, config.Telegram{ChatID: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Post(ctx, "late"), context.Canceled)
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `a\_b \[x\]\(y\) \~ \> \# \+ \- \= \| \{\} \. \!`,
		EscapeMarkdownV2(`a_b [x](y) ~ > # + - = | {} . !`))
	assert.Equal(t, "```code``` *bold*", EscapeMarkdownV2("```code``` *bold*"))
}

func TestLog_Post(t *testing.T) {
	assert.NoError(t, NewLog(zap.NewNop()).Post(context.Background(), "hello"))
}
