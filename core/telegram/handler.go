package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/logger"
	tghelpers "github.com/m3rciful/orderbot/core/telegram/helpers"
)

// Dispatcher consumes normalised inbound events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) error
}

// Handler turns Telegram updates into conversation events.
type Handler struct {
	dispatcher Dispatcher
	reg        *Registry
}

// NewHandler binds the dispatcher and the command registry.
func NewHandler(d Dispatcher, reg *Registry) *Handler {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Handler{dispatcher: d, reg: reg}
}

// Routes returns the bot endpoints served by the handler.
func (h *Handler) Routes() []Route {
	routes := []Route{
		{Endpoint: tele.OnText, Handler: h.Handle},
		{Endpoint: tele.OnPhoto, Handler: h.Handle},
		{Endpoint: tele.OnDocument, Handler: h.Handle},
	}
	for _, name := range h.reg.Names() {
		routes = append(routes, Route{Endpoint: name, Handler: h.Handle})
	}
	return routes
}

// Handle dispatches the message in c. Updates that carry nothing the
// conversation understands are ignored.
func (h *Handler) Handle(c tele.Context) error {
	ev, ok := h.Event(c.Message())
	ctx := tghelpers.BuildContext(c)
	if !ok {
		logger.Debug(ctx, "tg", "update.ignored", slog.String("status", "skip"))
		return nil
	}
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		logger.Error(ctx, "tg", "update.dispatch",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

// Event normalises m. Photos use the largest size's file id; documents count
// only when they are images.
func (h *Handler) Event(m *tele.Message) (conversation.Event, bool) {
	if m == nil || m.Chat == nil {
		return conversation.Event{}, false
	}
	ev := conversation.Event{
		Channel:    config.ChannelTelegram,
		CustomerID: strconv.FormatInt(m.Chat.ID, 10),
		MessageID:  strconv.Itoa(m.ID),
	}
	switch {
	case m.Photo != nil && m.Photo.FileID != "":
		ev.Kind = conversation.EventImage
		ev.MediaRef = m.Photo.FileID
	case m.Document != nil && strings.HasPrefix(m.Document.MIME, "image/"):
		ev.Kind = conversation.EventImage
		ev.MediaRef = m.Document.FileID
	case strings.TrimSpace(m.Text) != "":
		ev.Kind = conversation.EventText
		ev.Text = h.reg.Keyword(m.Text)
	default:
		return ev, false
	}
	return ev, true
}
