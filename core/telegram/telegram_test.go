package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/logger"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []conversation.Event
	ctxs   []context.Context
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev conversation.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	d.ctxs = append(d.ctxs, ctx)
	return d.err
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	return bot
}

func TestRegistryKeyword(t *testing.T) {
	reg := DefaultRegistry()
	cases := map[string]string{
		"/start":         "hi",
		"/start@OilBot":  "hi",
		"/MENU":          "menu",
		"/help me":       "help",
		"/cancel":        "cancel",
		"/unknown":       "/unknown",
		"1, 3":           "1, 3",
		"  /menu  ":      "menu",
		"confirm please": "confirm please",
	}
	for in, want := range cases {
		assert.Equal(t, want, reg.Keyword(in), in)
	}
}

func TestRegistryListCommandsHidesHidden(t *testing.T) {
	reg := DefaultRegistry()
	visible := reg.ListCommands(true)
	texts := make([]string, 0, len(visible))
	for _, c := range visible {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"cancel", "help", "menu", "start"}, texts)
	assert.Len(t, reg.ListCommands(false), 5)
}

func TestRegistrySkipsInvalidCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("menu", Command{Description: "d", Keyword: "menu"})
	reg.RegisterCommand("/x", Command{Description: "", Keyword: "menu"})
	reg.RegisterCommand("/menu", Command{Description: "d", Keyword: "menu"})
	reg.RegisterCommand("/menu", Command{Description: "other", Keyword: "help"})
	assert.Equal(t, []string{"/menu"}, reg.Names())
	assert.Equal(t, "menu", reg.Keyword("/menu"))
}

func TestHandlerEvent(t *testing.T) {
	h := NewHandler(&recordingDispatcher{}, nil)
	chat := &tele.Chat{ID: 4242}

	ev, ok := h.Event(&tele.Message{ID: 7, Chat: chat, Text: "/start"})
	require.True(t, ok)
	assert.Equal(t, conversation.Event{
		Channel:    config.ChannelTelegram,
		CustomerID: "4242",
		Kind:       conversation.EventText,
		Text:       "hi",
		MessageID:  "7",
	}, ev)

	ev, ok = h.Event(&tele.Message{ID: 8, Chat: chat, Photo: &tele.Photo{File: tele.File{FileID: "photo-1"}}})
	require.True(t, ok)
	assert.Equal(t, conversation.EventImage, ev.Kind)
	assert.Equal(t, "photo-1", ev.MediaRef)

	ev, ok = h.Event(&tele.Message{ID: 9, Chat: chat, Document: &tele.Document{File: tele.File{FileID: "doc-1"}, MIME: "image/png"}})
	require.True(t, ok)
	assert.Equal(t, "doc-1", ev.MediaRef)

	_, ok = h.Event(&tele.Message{ID: 10, Chat: chat, Document: &tele.Document{File: tele.File{FileID: "doc-2"}, MIME: "application/pdf"}})
	assert.False(t, ok)

	_, ok = h.Event(&tele.Message{ID: 11, Chat: chat, Text: "   "})
	assert.False(t, ok)

	_, ok = h.Event(nil)
	assert.False(t, ok)
}

func TestHandlerHandleDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewHandler(d, nil)
	bot := offlineBot(t)

	c := bot.NewContext(tele.Update{ID: 1, Message: &tele.Message{ID: 3, Chat: &tele.Chat{ID: 99}, Text: "menu"}})
	require.NoError(t, h.Handle(c))

	require.Len(t, d.events, 1)
	assert.Equal(t, "menu", d.events[0].Text)
	ctx := d.ctxs[0]
	assert.NotEmpty(t, logger.RIDFrom(ctx))
	assert.Equal(t, config.ChannelTelegram, logger.ChannelFrom(ctx))
	assert.Equal(t, "99", logger.CustomerFrom(ctx))
	assert.Equal(t, "3", logger.MessageIDFrom(ctx))
}

func TestHandlerHandleSwallowsDispatchErrors(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("store down")}
	h := NewHandler(d, nil)
	c := offlineBot(t).NewContext(tele.Update{Message: &tele.Message{ID: 1, Chat: &tele.Chat{ID: 1}, Text: "hi"}})
	assert.NoError(t, h.Handle(c))
	assert.Len(t, d.events, 1)
}

func TestHandlerRoutesIncludeCommands(t *testing.T) {
	h := NewHandler(&recordingDispatcher{}, DefaultRegistry())
	endpoints := make(map[any]bool)
	for _, r := range h.Routes() {
		endpoints[r.Endpoint] = true
	}
	for _, ep := range []any{tele.OnText, tele.OnPhoto, tele.OnDocument, "/start", "/menu", "/help", "/cancel", "/confirm"} {
		assert.True(t, endpoints[ep], ep)
	}
}

func TestBuildPoller(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: " WebHook ", Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com"}})
	wh, ok := p.(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.com", wh.Endpoint.PublicURL)

	lp, ok := BuildPoller(PollerOptions{RunMode: config.RunModeLongpoll}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)

	lp, ok = BuildPoller(PollerOptions{LongPollTimeoutSeconds: 30}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, lp.Timeout)
}

func TestNewBotRequiresToken(t *testing.T) {
	_, err := NewBot(&config.Config{})
	assert.Error(t, err)
	_, err = NewBot(nil)
	assert.Error(t, err)
}
