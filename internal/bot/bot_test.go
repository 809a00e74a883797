package bot

import (
	"context"
	"sync/atomic"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MockHandler implements Handler interface for testing
type MockHandler struct {
	canHandleFunc func(update tgbotapi.Update) bool
	handleFunc    func(ctx context.Context, bot Sender, update tgbotapi.Update)
}

func (m *MockHandler) CanHandle(update tgbotapi.Update) bool {
	if m.canHandleFunc != nil {
		return m.canHandleFunc(update)
	}
	return false
}

func (m *MockHandler) Handle(ctx context.Context, bot Sender, update tgbotapi.Update) {
	if m.handleFunc != nil {
		m.handleFunc(ctx, bot, update)
	}
}

func textHandler(text string, calls *int32) *MockHandler {
	return &MockHandler{
		canHandleFunc: func(update tgbotapi.Update) bool {
			return update.Message != nil && update.Message.Text == text
		},
		handleFunc: func(ctx context.Context, bot Sender, update tgbotapi.Update) {
			atomic.AddInt32(calls, 1)
		},
	}
}

func TestBot_RegisterHandler(t *testing.T) {
	bot := &Bot{
		handlers: make([]Handler, 0),
	}

	if len(bot.handlers) != 0 {
		t.Errorf("Expected 0 handlers initially, got %d", len(bot.handlers))
	}

	handler1 := &MockHandler{}
	bot.RegisterHandler(handler1)
	handler2 := &MockHandler{}
	bot.RegisterHandler(handler2)

	if len(bot.handlers) != 2 {
		t.Fatalf("Expected 2 handlers, got %d", len(bot.handlers))
	}
	if bot.handlers[0] != handler1 {
		t.Error("First handler should be handler1")
	}
	if bot.handlers[1] != handler2 {
		t.Error("Second handler should be handler2")
	}
}

func TestBot_Dispatch(t *testing.T) {
	bot := &Bot{handlers: make([]Handler, 0)}

	var calls1, calls2 int32
	bot.RegisterHandler(textHandler("command1", &calls1))
	bot.RegisterHandler(textHandler("command2", &calls2))

	ctx := context.Background()
	if !bot.dispatch(ctx, tgbotapi.Update{Message: &tgbotapi.Message{Text: "command2"}}) {
		t.Fatal("update should have been dispatched")
	}
	bot.wg.Wait()

	if atomic.LoadInt32(&calls1) != 0 {
		t.Error("Handler1 should not have been called")
	}
	if atomic.LoadInt32(&calls2) != 1 {
		t.Error("Handler2 should have been called once")
	}
}

func TestBot_DispatchFirstMatchWins(t *testing.T) {
	bot := &Bot{handlers: make([]Handler, 0)}

	var first, second int32
	bot.RegisterHandler(textHandler("same", &first))
	bot.RegisterHandler(textHandler("same", &second))

	bot.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "same"}})
	bot.wg.Wait()

	if atomic.LoadInt32(&first) != 1 || atomic.LoadInt32(&second) != 0 {
		t.Errorf("expected only the first handler, got first=%d second=%d", first, second)
	}
}

func TestBot_DispatchSkipsEmptyAndUnknown(t *testing.T) {
	bot := &Bot{handlers: make([]Handler, 0)}
	var calls int32
	bot.RegisterHandler(textHandler("known", &calls))

	if bot.dispatch(context.Background(), tgbotapi.Update{}) {
		t.Error("empty update should not be dispatched")
	}
	if bot.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "unknown"}}) {
		t.Error("unknown message should not be dispatched")
	}
	bot.wg.Wait()
	if calls != 0 {
		t.Errorf("handler called %d times", calls)
	}
}
