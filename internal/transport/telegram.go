package transport

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAdapter implements Adapter via long-polling against the Telegram
// Bot API.
type TelegramAdapter struct {
	bot     *tgbotapi.BotAPI
	updates chan Update
	logger  *slog.Logger
	stop    chan struct{}
}

// NewTelegram constructs and starts long-polling for updates.
func NewTelegram(token string, logger *slog.Logger) (*TelegramAdapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("transport: telegram api init: %w", err)
	}

	a := &TelegramAdapter{
		bot:     bot,
		updates: make(chan Update, 64),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go a.pollLoop()
	return a, nil
}

func (a *TelegramAdapter) pollLoop() {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := a.bot.GetUpdatesChan(cfg)

	defer close(a.updates)
	for {
		select {
		case <-a.stop:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			out, ok := translateUpdate(u)
			if !ok {
				continue
			}
			select {
			case a.updates <- out:
			case <-a.stop:
				return
			}
		}
	}
}

func translateUpdate(u tgbotapi.Update) (Update, bool) {
	switch {
	case u.Message != nil:
		return Update{
			UserID:    u.Message.From.ID,
			ChatID:    u.Message.Chat.ID,
			Text:      u.Message.Text,
			MessageID: u.Message.MessageID,
		}, true
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		chatID := int64(0)
		if cq.Message != nil {
			chatID = cq.Message.Chat.ID
		}
		return Update{
			UserID:       cq.From.ID,
			ChatID:       chatID,
			CallbackData: cq.Data,
		}, true
	default:
		return Update{}, false
	}
}

// Updates returns the channel of translated inbound updates.
func (a *TelegramAdapter) Updates() <-chan Update { return a.updates }

// Send renders an Outbound as a Telegram message (or photo, for QR
// enrollment replies), with an inline keyboard when buttons are present.
func (a *TelegramAdapter) Send(out Outbound) error {
	if len(out.PhotoPNG) > 0 {
		photo := tgbotapi.NewPhoto(out.ChatID, tgbotapi.FileBytes{
			Name:  "enrollment.png",
			Bytes: out.PhotoPNG,
		})
		photo.Caption = out.Text
		_, err := a.bot.Send(photo)
		return err
	}

	msg := tgbotapi.NewMessage(out.ChatID, out.Text)
	if out.ParseMode != "" {
		msg.ParseMode = out.ParseMode
	}
	if len(out.Buttons) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, row := range out.Buttons {
			var btns []tgbotapi.InlineKeyboardButton
			for _, b := range row {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.CallbackData))
			}
			rows = append(rows, btns)
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err := a.bot.Send(msg)
	return err
}

// Close stops the polling loop.
func (a *TelegramAdapter) Close() error {
	close(a.stop)
	a.bot.StopReceivingUpdates()
	return nil
}
