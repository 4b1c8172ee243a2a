package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crypto-call-bot-go/internal/config"
	"crypto-call-bot-go/internal/monitor"
	"crypto-call-bot-go/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	usageAddCall = `/addcall <exchange> <pair> <entry> <stoploss> <take_profit> [<take_profit2> ...]
  Create a new crypto call. The bot will send a message to the group with the call details.
   • <exchange> - The exchange to use (e.g., binance)
   • <pair> - The crypto pair to trade (e.g., BTC/USDT)
   • <entry> - The entry price for the trade
   • <stoploss> - The stop loss price, or a percentage below the entry price (e.g., 5%)
   • <take_profit> - The take profit price, or a percentage above the entry price. Multiple take profits split the bought coins in equal batches; prefix a batch size to set it yourself, e.g. 20@20% 20@50% 60@100%`
	usageStatus = `/callstatus [<call_id>]
  Show the status of a specific call or all calls that are in progress.
   • <call_id> - The ID of the call to check. If not provided, show all calls.`
	usageStopLoss = `/callstoploss <call_id> <stoploss>
  Set the stop loss for a specific call.
   • <call_id> - The ID of the call to set the stop loss for.
   • <stoploss> - The new stop loss price, or a percentage below the current price`
	usageClose = `/closecall <call_id>
  Close a specific call.`
)

var memberStatuses = map[string]bool{
	"creator":       true,
	"administrator": true,
	"member":        true,
	"restricted":    true,
}

// API is the part of *tgbotapi.BotAPI the command bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// CallMonitor is the monitor surface the commands operate on.
type CallMonitor interface {
	AddCall(ctx context.Context, exchange, pair string, entryPrice, stopLoss decimal.Decimal, takeProfits []monitor.TakeProfitSpec) (*monitor.Call, error)
	Get(ctx context.Context, id uint64) (*monitor.Call, error)
	GetOpenCalls() []*monitor.Call
	CloseCall(ctx context.Context, id uint64) (*monitor.Call, error)
}

// Bot answers the call commands sent to the group chat.
type Bot struct {
	api     API
	monitor CallMonitor
	chatID  int64
	name    string
	logger  *zap.Logger
}

func NewBot(api API, mon CallMonitor, cfg config.Telegram, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		monitor: mon,
		chatID:  cfg.ChatID,
		name:    cfg.Name,
		logger:  logger.Named("bot"),
	}
}

// Run handles updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("Listening for commands", zap.Int64("chat_id", b.chatID))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping command bot...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.Handle(ctx, update)
		}
	}
}

// Handle dispatches one update.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Debug("Ignoring command outside the group chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}
	if !b.isMember(msg.From) {
		b.reply(msg, "You don't have enough rights to use this command!", false)
		return
	}

	args := strings.Fields(msg.CommandArguments())
	l := b.logger.With(zap.String("command", msg.Command()), zap.Strings("args", args))
	l.Info("Received command")

	switch msg.Command() {
	case "start":
		b.onStart(msg)
	case "addcall":
		b.onAddCall(ctx, msg, args, l)
	case "callstatus":
		b.onCallStatus(ctx, msg, args, l)
	case "callstoploss":
		b.onCallStopLoss(ctx, msg, args, l)
	case "closecall":
		b.onCloseCall(ctx, msg, args, l)
	}
}

func (b *Bot) isMember(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: b.chatID, UserID: user.ID},
	})
	if err != nil {
		b.logger.Warn("Failed to check member status", zap.Int64("user_id", user.ID), zap.Error(err))
		return false
	}
	return memberStatuses[member.Status]
}

func (b *Bot) onStart(msg *tgbotapi.Message) {
	docs := strings.Join([]string{usageAddCall, usageStatus, usageStopLoss, usageClose}, "\n\n")
	b.reply(msg, fmt.Sprintf("Welcome to the *%s*!\n%s", b.name, docs), true)
}

func (b *Bot) onAddCall(ctx context.Context, msg *tgbotapi.Message, args []string, l *zap.Logger) {
	parsed, err := ParseAddCall(args)
	if errors.Is(err, ErrUsage) {
		b.reply(msg, "Usage:\n"+usageAddCall, true)
		return
	}
	if err != nil {
		b.reply(msg, fmt.Sprintf("Invalid arguments. error: %v", err), false)
		return
	}

	call, err := b.monitor.AddCall(ctx, parsed.Exchange, parsed.Pair, parsed.EntryPrice, parsed.StopLoss, parsed.TakeProfits)
	if monitor.IsValidation(err) {
		b.reply(msg, fmt.Sprintf("Invalid arguments. error: %v", err), false)
		return
	}
	if err != nil {
		l.Error("Failed to add call", zap.Error(err))
		b.reply(msg, "An error occurred while creating the call.", false)
		return
	}
	b.reply(msg, call.Overview(""), true)
}

func (b *Bot) onCallStatus(ctx context.Context, msg *tgbotapi.Message, args []string, l *zap.Logger) {
	if len(args) == 0 {
		calls := b.monitor.GetOpenCalls()
		if len(calls) == 0 {
			b.reply(msg, "No open calls.", true)
			return
		}
		var sb strings.Builder
		sb.WriteString("Open calls:\n\n")
		for _, c := range calls {
			sb.WriteString(c.Overview(""))
		}
		b.reply(msg, sb.String(), true)
		return
	}

	id, err := ParseCallID(args[0])
	if err != nil {
		b.reply(msg, "Invalid call ID.", false)
		return
	}
	call, err := b.monitor.Get(ctx, id)
	if errors.Is(err, monitor.ErrCallNotFound) {
		b.reply(msg, fmt.Sprintf("Call ID %d not found.", id), false)
		return
	}
	if err != nil {
		l.Error("Failed to get call", zap.Error(err))
		b.reply(msg, fmt.Sprintf("An error occurred while fetching the status: %v", err), false)
		return
	}
	b.reply(msg, call.Overview(""), true)
}

func (b *Bot) onCallStopLoss(ctx context.Context, msg *tgbotapi.Message, args []string, l *zap.Logger) {
	if len(args) != 2 {
		b.reply(msg, "Usage:\n"+usageStopLoss, true)
		return
	}
	id, err := ParseCallID(args[0])
	if err != nil {
		b.reply(msg, "Invalid call ID.", false)
		return
	}
	value, percent, err := ParseStopLossChange(args[1])
	if err != nil {
		b.reply(msg, fmt.Sprintf("Invalid arguments. error: %v", err), false)
		return
	}

	call, err := b.monitor.Get(ctx, id)
	if err == nil {
		_, err = call.AdjustStopLoss(ctx, value, percent)
	}
	switch {
	case err == nil:
	case errors.Is(err, monitor.ErrCallNotFound):
		b.reply(msg, fmt.Sprintf("Call ID %d not found.", id), false)
	case errors.Is(err, monitor.ErrCallClosed):
		b.reply(msg, fmt.Sprintf("Call ID %d is not active.", id), false)
	case errors.Is(err, monitor.ErrNoPrice):
		b.reply(msg, fmt.Sprintf("Call ID %d has no price, try again later when the price is received from the exchange.", id), false)
	case errors.Is(err, monitor.ErrInvalidStopLoss):
		b.reply(msg, "Stop loss must be greater than 0.", false)
	default:
		l.Error("Failed to set stop loss", zap.Error(err))
		b.reply(msg, fmt.Sprintf("An error occurred while setting the stop loss: %v", err), false)
	}
}

func (b *Bot) onCloseCall(ctx context.Context, msg *tgbotapi.Message, args []string, l *zap.Logger) {
	if len(args) != 1 {
		b.reply(msg, "Usage:\n"+usageClose, true)
		return
	}
	id, err := ParseCallID(args[0])
	if err != nil {
		b.reply(msg, "Invalid call ID.", false)
		return
	}

	_, err = b.monitor.CloseCall(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, monitor.ErrCallNotFound):
		b.reply(msg, fmt.Sprintf("Call ID %d not found.", id), false)
	case errors.Is(err, monitor.ErrCallClosed):
		b.reply(msg, fmt.Sprintf("Call ID %d is already closed.", id), false)
	case errors.Is(err, monitor.ErrNoPrice):
		b.reply(msg, fmt.Sprintf("Call ID %d has no price, try again later when the price is received from the exchange.", id), false)
	default:
		l.Error("Failed to close call", zap.Error(err))
		b.reply(msg, fmt.Sprintf("An error occurred while closing the call: %v", err), false)
	}
}

func (b *Bot) reply(to *tgbotapi.Message, text string, markdown bool) {
	if markdown {
		text = notify.EscapeMarkdownV2(text)
	}
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send reply", zap.Error(err))
	}
}
