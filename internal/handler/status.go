package handler

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/peaktube/internal/bot"
)

// statusMessage reuses the quality menu message to show request progress.
type statusMessage struct {
	api       bot.Sender
	chatID    int64
	messageID int
	cancel    tgbotapi.InlineKeyboardMarkup

	mu   sync.Mutex
	last string
	done bool
}

func newStatusMessage(api bot.Sender, chatID int64, messageID int, key string) *statusMessage {
	return &statusMessage{
		api:       api,
		chatID:    chatID,
		messageID: messageID,
		cancel: tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", callbackPrefix+actionCancel+":"+key),
		)),
	}
}

// update edits the status text and keeps the cancel button. Repeated text is
// skipped since Telegram rejects no-op edits.
func (s *statusMessage) update(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || text == s.last {
		return
	}
	s.last = text

	edit := tgbotapi.NewEditMessageTextAndMarkup(s.chatID, s.messageID, text, s.cancel)
	if _, err := s.api.Request(edit); err != nil {
		log.WithError(err).Debug("Failed to update status")
	}
}

// final replaces the status with a closing text and drops the keyboard.
func (s *statusMessage) final(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true

	if _, err := s.api.Request(tgbotapi.NewEditMessageText(s.chatID, s.messageID, text)); err != nil {
		log.WithError(err).Warn("Failed to send final status")
	}
}

func (s *statusMessage) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true

	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(s.chatID, s.messageID)); err != nil {
		log.WithError(err).Debug("Failed to delete status")
	}
}
