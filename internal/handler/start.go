package handler

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/artur/peaktube/internal/bot"
	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/entitlement"
)

// UserStore records Telegram profiles.
type UserStore interface {
	UpsertFromTelegram(ctx context.Context, tgUser *tgbotapi.User) (*models.User, error)
}

// QuotaReader exposes the current counters.
type QuotaReader interface {
	GetSnapshot(ctx context.Context, userID int64) models.QuotaRecord
}

type StartHandler struct {
	users    UserStore
	quota    QuotaReader
	resolver EntitlementResolver
}

func NewStartHandler(users UserStore, quota QuotaReader, resolver EntitlementResolver) *StartHandler {
	return &StartHandler{
		users:    users,
		quota:    quota,
		resolver: resolver,
	}
}

func (h *StartHandler) CanHandle(update tgbotapi.Update) bool {
	return update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start"
}

func (h *StartHandler) Handle(ctx context.Context, api bot.Sender, update tgbotapi.Update) {
	from := update.Message.From
	if from == nil {
		return
	}
	userName := getUserName(from.FirstName, from.UserName)

	log.WithField("user_id", from.ID).Info("Greeting user")

	if user, err := h.users.UpsertFromTelegram(ctx, from); err != nil {
		log.WithError(err).Warn("Failed to upsert user")
	} else if name := user.DisplayName(); name != "" {
		userName = name
	}

	text := formatGreeting(userName)
	if h.quota != nil && h.resolver != nil {
		rec := h.quota.GetSnapshot(ctx, from.ID)
		snap := h.resolver.ResolveEntitlement(ctx, from.ID)
		text += "\n\n" + formatQuotaStatus(rec, snap)
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, text)
	if _, err := api.Send(msg); err != nil {
		log.WithError(err).Error("Failed to send message")
	}
}

func getUserName(firstName, userName string) string {
	if firstName != "" {
		return firstName
	}
	return userName
}

func formatGreeting(userName string) string {
	return "Привет, " + userName + "! Рад тебя видеть! 👋"
}

func formatQuotaStatus(rec models.QuotaRecord, snap entitlement.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Тариф: %s\n", snap.Plan)
	if entitlement.IsUnbounded(snap.DailyLimit) {
		fmt.Fprintf(&b, "Загрузок сегодня: %d (без ограничений)\n", rec.DownloadsToday)
	} else {
		fmt.Fprintf(&b, "Загрузок сегодня: %d из %d\n", rec.DownloadsToday, snap.DailyLimit)
	}
	if entitlement.IsUnbounded(snap.MaxResolutionHeight) {
		b.WriteString("Максимальное качество: без ограничений\n")
	} else {
		fmt.Fprintf(&b, "Максимальное качество: %dp\n", snap.MaxResolutionHeight)
	}
	b.WriteString("Пришли ссылку на YouTube, чтобы начать.")
	return b.String()
}
