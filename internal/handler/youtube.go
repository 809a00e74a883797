package handler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/artur/peaktube/internal/acquire"
	"github.com/artur/peaktube/internal/bot"
	"github.com/artur/peaktube/internal/entitlement"
	"github.com/artur/peaktube/internal/logging"
	"github.com/artur/peaktube/internal/pipeline"
	"github.com/artur/peaktube/internal/postprocess"
)

var log = logging.For("handler")

var youTubeIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)

const (
	callbackPrefix = "yt:"
	actionVideo    = "v"
	actionAudio    = "a"
	actionSubs     = "s"
	actionCancel   = "x"

	maxSubtitleButtons = 6
)

// EntitlementResolver resolves what a user may do right now.
type EntitlementResolver interface {
	ResolveEntitlement(ctx context.Context, userID int64) entitlement.Snapshot
}

// Pipeline is the download pipeline as seen from the chat.
type Pipeline interface {
	EntitlementResolver
	Inspect(ctx context.Context, resourceID string) (*acquire.Metadata, error)
	ListAvailableQualities(meta *acquire.Metadata, snap entitlement.Snapshot) []entitlement.QualityOption
	RunVideoDownload(ctx context.Context, userID int64, resourceID string, targetHeight int, subtitleLang string, opts pipeline.RunOptions) *pipeline.Result
	RunAudioDownload(ctx context.Context, userID int64, resourceID string, opts pipeline.RunOptions) *pipeline.Result
	RunSubtitledVideoDownload(ctx context.Context, userID int64, resourceID string, targetHeight int, lang string, opts pipeline.RunOptions) *pipeline.Result
}

type YouTubeHandler struct {
	pipeline Pipeline

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewYouTubeHandler(p Pipeline) *YouTubeHandler {
	return &YouTubeHandler{
		pipeline: p,
		running:  make(map[string]context.CancelFunc),
	}
}

func (h *YouTubeHandler) CanHandle(update tgbotapi.Update) bool {
	if update.Message != nil {
		return extractYouTubeID(update.Message.Text) != ""
	}
	if update.CallbackQuery != nil {
		return strings.HasPrefix(update.CallbackQuery.Data, callbackPrefix)
	}
	return false
}

func (h *YouTubeHandler) Handle(ctx context.Context, api bot.Sender, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, api, update.CallbackQuery)
		return
	}

	if update.Message.From == nil {
		return
	}
	videoID := extractYouTubeID(update.Message.Text)
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	meta, err := h.pipeline.Inspect(ctx, videoID)
	if err != nil {
		log.WithError(err).WithField("resource_id", videoID).Warn("Failed to inspect video")
		api.Send(tgbotapi.NewMessage(chatID, "❌ Не удалось получить информацию о видео"))
		return
	}

	snap := h.pipeline.ResolveEntitlement(ctx, userID)
	options := h.pipeline.ListAvailableQualities(meta, snap)

	msg := tgbotapi.NewMessage(chatID, formatVideoCard(meta))
	msg.ReplyMarkup = buildKeyboard(videoID, options, meta.SubtitleTracks, snap)
	if _, err := api.Send(msg); err != nil {
		log.WithError(err).Error("Failed to send quality menu")
	}
}

type callbackData struct {
	action  string
	videoID string
	height  int
	lang    string
	key     string
}

func parseCallback(data string) (callbackData, error) {
	parts := strings.Split(strings.TrimPrefix(data, callbackPrefix), ":")
	if len(parts) < 2 {
		return callbackData{}, fmt.Errorf("malformed callback %q", data)
	}

	cb := callbackData{action: parts[0]}
	switch cb.action {
	case actionVideo:
		if len(parts) != 3 {
			return callbackData{}, fmt.Errorf("malformed video callback %q", data)
		}
		h, err := strconv.Atoi(parts[2])
		if err != nil {
			return callbackData{}, fmt.Errorf("bad height in %q: %w", data, err)
		}
		cb.videoID, cb.height = parts[1], h
	case actionAudio:
		cb.videoID = parts[1]
	case actionSubs:
		if len(parts) != 3 {
			return callbackData{}, fmt.Errorf("malformed subtitle callback %q", data)
		}
		cb.videoID, cb.lang = parts[1], parts[2]
	case actionCancel:
		cb.key = strings.Join(parts[1:], ":")
	default:
		return callbackData{}, fmt.Errorf("unknown action %q", cb.action)
	}
	return cb, nil
}

func (h *YouTubeHandler) handleCallback(ctx context.Context, api bot.Sender, callback *tgbotapi.CallbackQuery) {
	cb, err := parseCallback(callback.Data)
	if err != nil {
		log.WithError(err).Debug("Ignoring callback")
		return
	}
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID

	if cb.action == actionCancel {
		if h.cancel(cb.key) {
			api.Request(tgbotapi.NewCallback(callback.ID, "Отменяю..."))
		} else {
			api.Request(tgbotapi.NewCallback(callback.ID, "Загрузка уже завершена"))
		}
		return
	}

	// Locked options are listed but cannot be chosen.
	snap := h.pipeline.ResolveEntitlement(ctx, userID)
	if cb.action == actionVideo && !entitlement.Selectable(snap, cb.height) {
		api.Request(alert(callback.ID, "⚠️ Это качество доступно только на платных тарифах"))
		return
	}
	if cb.action == actionSubs && snap.SubtitleLocked {
		api.Request(alert(callback.ID, "⚠️ Субтитры доступны только на платных тарифах"))
		return
	}

	api.Request(tgbotapi.NewCallback(callback.ID, "Скачиваю..."))
	h.run(ctx, api, chatID, callback.Message.MessageID, userID, cb)
}

func (h *YouTubeHandler) run(ctx context.Context, api bot.Sender, chatID int64, menuID int, userID int64, cb callbackData) {
	key := fmt.Sprintf("%d:%d", chatID, menuID)
	runCtx, cancel := context.WithCancel(ctx)
	if !h.register(key, cancel) {
		cancel()
		return
	}
	defer h.unregister(key)

	entry := log.WithFields(logrus.Fields{"user_id": userID, "resource_id": cb.videoID})
	status := newStatusMessage(api, chatID, menuID, key)
	status.update("⏳ Скачиваю...")

	opts := pipeline.RunOptions{
		Progress: func(p acquire.Progress) {
			status.update("⏳ Скачиваю... " + p.PercentComplete)
		},
		Deliver: func(ctx context.Context, res *pipeline.Result) error {
			status.update("📤 Отправляю...")
			return deliver(api, chatID, res)
		},
	}

	var res *pipeline.Result
	switch cb.action {
	case actionVideo:
		api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo))
		res = h.pipeline.RunVideoDownload(runCtx, userID, cb.videoID, cb.height, "", opts)
	case actionAudio:
		api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVoice))
		res = h.pipeline.RunAudioDownload(runCtx, userID, cb.videoID, opts)
	case actionSubs:
		api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo))
		res = h.pipeline.RunSubtitledVideoDownload(runCtx, userID, cb.videoID, 0, cb.lang, opts)
	}

	entry.WithField("state", res.State).Info("Request finished")
	switch res.State {
	case pipeline.StateDelivered, pipeline.StateFallbackDelivered:
		status.remove()
	default:
		status.final(resultText(res))
	}
}

func (h *YouTubeHandler) register(key string, cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.running[key]; busy {
		return false
	}
	h.running[key] = cancel
	return true
}

func (h *YouTubeHandler) unregister(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.running[key]; ok {
		cancel()
		delete(h.running, key)
	}
}

func (h *YouTubeHandler) cancel(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cancel, ok := h.running[key]
	if ok {
		cancel()
	}
	return ok
}

func deliver(api bot.Sender, chatID int64, res *pipeline.Result) error {
	if res.LinkURL != "" {
		msg := tgbotapi.NewMessage(chatID, formatLinkMessage(res))
		msg.DisableWebPagePreview = true
		_, err := api.Send(msg)
		return err
	}

	caption := formatCaption(res)
	var media tgbotapi.Chattable
	if res.Rendition == acquire.RenditionAudio {
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(res.FilePath))
		audio.Caption = caption
		audio.Title = res.Metadata.Title
		audio.Performer = res.Metadata.Channel
		media = audio
	} else {
		video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(res.FilePath))
		video.Caption = caption
		video.SupportsStreaming = true
		media = video
	}
	if _, err := api.Send(media); err != nil {
		return err
	}

	if res.SubtitlePath != "" {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(res.SubtitlePath))
		doc.Caption = "💬 Субтитры: подключи файл в своём плеере"
		if _, err := api.Send(doc); err != nil {
			log.WithError(err).Warn("Failed to send subtitle file")
		}
	}
	return nil
}

func alert(callbackID, text string) tgbotapi.CallbackConfig {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = true
	return cfg
}

func buildKeyboard(videoID string, options []entitlement.QualityOption, tracks []string, snap entitlement.Snapshot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range options {
		label := "🎬 " + opt.Label
		if opt.Locked {
			label = "🔒 " + opt.Label
		}
		data := fmt.Sprintf("%s%s:%s:%d", callbackPrefix, actionVideo, videoID, opt.Height)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}

	audioData := fmt.Sprintf("%s%s:%s", callbackPrefix, actionAudio, videoID)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🎵 Только аудио (MP3)", audioData)))

	var subRow []tgbotapi.InlineKeyboardButton
	for i, lang := range tracks {
		if i == maxSubtitleButtons {
			break
		}
		label := "💬 " + lang
		if snap.SubtitleLocked {
			label = "🔒 " + lang
		}
		data := fmt.Sprintf("%s%s:%s:%s", callbackPrefix, actionSubs, videoID, lang)
		subRow = append(subRow, tgbotapi.NewInlineKeyboardButtonData(label, data))
		if len(subRow) == 3 {
			rows = append(rows, subRow)
			subRow = nil
		}
	}
	if len(subRow) > 0 {
		rows = append(rows, subRow)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatVideoCard(meta *acquire.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📹 %s\n", meta.Title)
	if meta.Channel != "" {
		fmt.Fprintf(&b, "👤 %s\n", meta.Channel)
	}
	if meta.Duration > 0 {
		fmt.Fprintf(&b, "⏱ %s\n", meta.Duration.Round(time.Second))
	}
	if meta.ViewCount > 0 {
		fmt.Fprintf(&b, "👁 %s\n", humanize.Comma(meta.ViewCount))
	}
	b.WriteString("\n🎬 Выберите качество видео:")
	return b.String()
}

func formatCaption(res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString("✅ " + res.Metadata.Title)
	if res.Downgraded {
		fmt.Fprintf(&b, "\n⚠️ Качество снижено до %dp по вашему тарифу", res.Height)
	}
	if res.BurnedIn {
		b.WriteString("\n💬 Субтитры вшиты в видео")
	}
	for _, w := range res.Warnings {
		b.WriteString("\n⚠️ " + warningText(w))
	}
	return b.String()
}

var warningTexts = map[postprocess.Warning]string{
	postprocess.WarnSubtitlesUnavailable:  "Субтитры для этого языка недоступны",
	postprocess.WarnBurnInFailed:          "Не удалось вшить субтитры, прикладываю их отдельным файлом",
	postprocess.WarnAudioConversionFailed: "Не удалось конвертировать в MP3, отправляю исходный файл",
}

func warningText(w postprocess.Warning) string {
	if text, ok := warningTexts[w]; ok {
		return text
	}
	return "Часть обработки не удалась"
}

func formatLinkMessage(res *pipeline.Result) string {
	return fmt.Sprintf("⚠️ Не получилось скачать файл, но вот прямая ссылка:\n%s\n\n📹 %s\n⏳ Ссылка истекает %s",
		res.LinkURL, res.Metadata.Title, humanize.Time(res.LinkExpiresAt))
}

func resultText(res *pipeline.Result) string {
	switch res.State {
	case pipeline.StateRejected:
		if res.RejectReason == pipeline.RejectSubtitleLocked {
			return "⚠️ Субтитры доступны только на платных тарифах"
		}
		return "⛔️ Дневной лимит загрузок исчерпан. Попробуй завтра или смени тариф."
	case pipeline.StateAborted:
		return "🚫 Загрузка отменена"
	default:
		return "❌ Не удалось скачать видео. Попробуй позже."
	}
}

func extractYouTubeID(text string) string {
	matches := youTubeIDPattern.FindStringSubmatch(text)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}
