package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"momsvpn/backend/logging"
	"momsvpn/backend/repository/events"
)

const (
	MessageEnabled = "✅ <b>Твой VPN ключ снова активен!</b>\n\n" +
		"Подписка возобновлена, можешь пользоваться VPN 🎉"
	MessageDisabled = "⚠️ <b>Твой VPN ключ приостановлен</b>\n\n" +
		"Подписка Mom's Club истекла.\n" +
		"Возобнови подписку, чтобы продолжить пользоваться VPN 💝"
)

// Sender 发送 HTML 格式的 Telegram 消息
type Sender interface {
	SendHTML(chatID int64, text string) error
}

// BotSender 基于 Bot API 的 Sender
type BotSender struct {
	bot *tgbotapi.BotAPI
}

// NewBotSender 用 bot token 创建发送器（会调用 getMe 校验 token）
func NewBotSender(token string) (*BotSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &BotSender{bot: bot}, nil
}

func (s *BotSender) SendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.bot.Send(msg)
	return err
}

// Notifier 将面板状态变化转成用户通知
type Notifier struct {
	sender Sender
	logger zerolog.Logger
}

// New 创建通知器；sender 为 nil 时通知被禁用
func New(sender Sender) *Notifier {
	return &Notifier{sender: sender, logger: logging.Component("notify")}
}

// FromToken 按 bot token 创建通知器；token 为空或无效时返回禁用的通知器
func FromToken(token string) *Notifier {
	n := New(nil)
	if token == "" {
		n.logger.Warn().Msg("BOT_TOKEN not set, notifications disabled")
		return n
	}
	sender, err := NewBotSender(token)
	if err != nil {
		n.logger.Warn().Err(err).Msg("telegram unavailable, notifications disabled")
		return n
	}
	n.sender = sender
	return n
}

func (n *Notifier) Enabled() bool { return n.sender != nil }

// Attach 订阅面板用户启用/停用事件
func (n *Notifier) Attach(bus *events.Bus) {
	if !n.Enabled() || bus == nil {
		return
	}
	bus.Subscribe(events.EventPanelUserEnabled, n.handle)
	bus.Subscribe(events.EventPanelUserDisabled, n.handle)
}

func (n *Notifier) handle(e events.Event) {
	ev, ok := e.(events.PanelUserEvent)
	if !ok || !ev.Notify {
		return
	}
	text := MessageDisabled
	if ev.EventType == events.EventPanelUserEnabled {
		text = MessageEnabled
	}
	if err := n.sender.SendHTML(ev.TelegramID, text); err != nil {
		n.logger.Error().Err(err).Int64("tg", ev.TelegramID).Str("event", string(ev.EventType)).Msg("send notification failed")
		return
	}
	n.logger.Debug().Int64("tg", ev.TelegramID).Str("event", string(ev.EventType)).Msg("notification sent")
}
