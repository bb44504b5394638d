package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/logger"
	tghelpers "github.com/m3rciful/orderbot/core/telegram/helpers"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware builds the per-update context, logs one receipt line per
// update and the handling time once the chain returns.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		upd := c.Update()
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.Int("update_id", upd.ID),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
			if m := upd.Message; m != nil {
				switch {
				case m.Photo != nil:
					attrs = append(attrs, slog.String("kind", "photo"))
				case m.Document != nil:
					attrs = append(attrs, slog.String("kind", "document"), slog.String("mime", m.Document.MIME))
				case m.Text != "":
					attrs = append(attrs, slog.String("kind", "text"), slog.String("payload", logger.SanitizeLimit(m.Text, 256)))
				}
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}

		err := next(c)
		logger.Debug(ctx, "tg", "update.done",
			slog.String("status", logger.Status(err)),
			slog.Duration("duration", logger.Took(start)),
		)
		return err
	}
}
