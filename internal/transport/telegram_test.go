package transport

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestTranslateUpdate_Message(t *testing.T) {
	u := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{ID: 42},
			Chat:      &tgbotapi.Chat{ID: 99},
			Text:      "hello",
		},
	}
	out, ok := translateUpdate(u)
	if !ok {
		t.Fatal("expected translation to succeed")
	}
	if out.UserID != 42 || out.ChatID != 99 || out.Text != "hello" || out.MessageID != 7 {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func TestTranslateUpdate_Callback(t *testing.T) {
	u := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			From:    &tgbotapi.User{ID: 1},
			Data:    "tab:list",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}},
		},
	}
	out, ok := translateUpdate(u)
	if !ok {
		t.Fatal("expected translation to succeed")
	}
	if out.UserID != 1 || out.ChatID != 5 || out.CallbackData != "tab:list" {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func TestTranslateUpdate_UnknownIgnored(t *testing.T) {
	_, ok := translateUpdate(tgbotapi.Update{})
	if ok {
		t.Fatal("expected an empty update to be ignored")
	}
}
