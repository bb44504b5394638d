package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/messaging"
)

const maxWebhookBody = 1 << 20

const testMessage = "🧪 Test message from %s Bot. If you received this, the bot is working correctly!"

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.opts.ShopName+" WhatsApp Bot is running")
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Server is responding correctly",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("hub.verify_token")
	if h.opts.VerifyToken != "" && token == h.opts.VerifyToken {
		logger.Info(r.Context(), "http", "webhook.verified", slog.String("status", "ok"), slog.String("mode", q.Get("hub.mode")))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	logger.Warn(r.Context(), "http", "webhook.verify", slog.String("status", "fail"), slog.String("reason", "token mismatch"))
	w.WriteHeader(http.StatusForbidden)
}

// receiveWebhook always acknowledges; WhatsApp redelivers anything else.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn(ctx, "http", "webhook.read", slog.String("status", "fail"), slog.String("err", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}
	events, err := messaging.ParseWhatsAppWebhook(body)
	if err != nil {
		logger.Warn(ctx, "http", "webhook.parse", slog.String("status", "fail"), slog.String("err", err.Error()))
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.deps.Dispatcher != nil {
		for _, ev := range events {
			if err := h.deps.Dispatcher.Dispatch(ctx, ev); err != nil {
				logger.Error(ctx, "http", "webhook.dispatch", slog.String("status", "fail"), slog.String("err", err.Error()))
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["customerID"]
	if h.deps.Sender == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "messaging is not configured"})
		return
	}
	text := fmt.Sprintf(testMessage, h.opts.ShopName)
	if err := h.deps.Sender.Send(r.Context(), customerID, messaging.Message{Text: text}); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Test message sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug(context.Background(), "http", "response.write", slog.String("err", err.Error()))
	}
}
