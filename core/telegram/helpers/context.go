// Package helpers shares per-update state between Telegram middleware and handlers.
package helpers

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
)

const (
	contextKey = "logger_ctx"
	ridKey     = "rid"
)

// StoreContext attaches reusable context to tele.Context for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom telegram context if previously stored by middleware.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if v := c.Get(contextKey); v != nil {
		if ctx, ok := v.(context.Context); ok {
			return ctx, true
		}
	}
	return nil, false
}

// BuildContext constructs a context.Context from tele.Context, enriching it
// with a correlation id and the chat and message identifiers.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.NewRID()
		c.Set(ridKey, rid)
	}

	var chatID, messageID string
	if chat := c.Chat(); chat != nil {
		chatID = strconv.FormatInt(chat.ID, 10)
	}
	if m := c.Message(); m != nil && m.ID != 0 {
		messageID = strconv.Itoa(m.ID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithEventMeta(ctx, config.ChannelTelegram, chatID, messageID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}
