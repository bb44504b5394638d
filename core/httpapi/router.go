// Package httpapi serves the public HTTP surface: the WhatsApp webhook, the
// hosted payment pages, static files and health probes.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/m3rciful/orderbot/core/conversation"
	"github.com/m3rciful/orderbot/core/messaging"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/qr"
	"github.com/m3rciful/orderbot/core/ratelimit"
	"github.com/m3rciful/orderbot/core/session"
)

// Dispatcher consumes normalised inbound events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) error
}

// Options carries the settings the pages and webhook need.
type Options struct {
	ShopName       string
	Currency       string
	CurrencySymbol string
	Unit           string
	StaticDir      string
	VerifyToken    string
	// RazorpayKeyID enables the Razorpay checkout page.
	RazorpayKeyID string
	// Diagnostics exposes /send-test/{customer}.
	Diagnostics bool
}

// Deps lists the collaborators behind the routes. Nil members disable the
// routes that need them.
type Deps struct {
	Dispatcher Dispatcher
	Store      session.Store
	Sender     messaging.Sender
	UPI        *payment.UPI
	QR         *qr.Renderer
	Limiter    *ratelimit.Limiter
}

// Handler holds route state.
type Handler struct {
	opts Options
	deps Deps
}

// NewRouter builds the HTTP handler with middleware applied.
func NewRouter(opts Options, deps Deps) http.Handler {
	h := &Handler{opts: opts, deps: deps}

	r := mux.NewRouter()
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/test", h.health).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.verifyWebhook).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.receiveWebhook).Methods(http.MethodPost)
	r.HandleFunc("/pay/{paymentOrderID}", h.payPage).Methods(http.MethodGet)
	r.HandleFunc("/payment-success", h.paymentSuccess).Methods(http.MethodGet)
	if opts.Diagnostics {
		r.HandleFunc("/send-test/{customerID}", h.sendTest).Methods(http.MethodGet)
	}
	if opts.StaticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return recoverMiddleware(logMiddleware(rateLimitMiddleware(deps.Limiter, r)))
}
