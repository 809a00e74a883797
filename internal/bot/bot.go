package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/artur/peaktube/internal/logging"
)

var log = logging.For("bot")

// Sender is the subset of the Bot API handlers talk to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Handler interface {
	CanHandle(update tgbotapi.Update) bool
	Handle(ctx context.Context, bot Sender, update tgbotapi.Update)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	handlers []Handler
	wg       sync.WaitGroup
}

func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.WithField("account", api.Self.UserName).Info("Authorized")

	return &Bot{
		api:      api,
		sender:   api,
		handlers: make([]Handler, 0),
	}, nil
}

func (b *Bot) RegisterHandler(h Handler) {
	b.handlers = append(b.handlers, h)
	log.Debugf("Registered handler: %T", h)
}

// Run consumes updates until ctx is cancelled, then waits for in-flight
// handlers to return.
func (b *Bot) Run(ctx context.Context) {
	log.WithField("handlers", len(b.handlers)).Info("Starting bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			log.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch hands the update to the first matching handler on its own goroutine.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) bool {
	entry := log
	switch {
	case update.Message != nil && update.Message.From != nil:
		entry = entry.WithFields(logrus.Fields{
			"user_id":  update.Message.From.ID,
			"username": update.Message.From.UserName,
		})
		entry.WithField("text", update.Message.Text).Debug("Message received")
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		entry = entry.WithFields(logrus.Fields{
			"user_id":  update.CallbackQuery.From.ID,
			"username": update.CallbackQuery.From.UserName,
		})
		entry.WithField("data", update.CallbackQuery.Data).Debug("Callback received")
	}

	if update.Message == nil && update.CallbackQuery == nil {
		entry.Debug("Skipping update: no message or callback")
		return false
	}

	for _, handler := range b.handlers {
		if handler.CanHandle(update) {
			entry.Debugf("Handling with: %T", handler)
			b.wg.Add(1)
			go func(h Handler) {
				defer b.wg.Done()
				h.Handle(ctx, b.sender, update)
			}(handler)
			return true
		}
	}

	entry.Debug("No handler found for update")
	return false
}
