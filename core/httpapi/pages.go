package httpapi

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/payment"
	"github.com/m3rciful/orderbot/core/session"
)

const pageStyle = `body { font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; }
.container { border: 1px solid #ddd; border-radius: 5px; padding: 20px; }
.header { background-color: #4CAF50; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; margin: -20px -20px 20px; }
.btn { background-color: #4CAF50; color: white; padding: 12px 20px; border: none; border-radius: 4px; cursor: pointer; font-size: 16px; width: 100%; }
.order-info { margin: 20px 0; padding: 10px; background-color: #f9f9f9; border-radius: 5px; }`

var razorpayPage = template.Must(template.New("razorpay").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Shop}} Payment</title>
  <style>{{.Style}}</style>
  <script src="https://checkout.razorpay.com/v1/checkout.js"></script>
</head>
<body>
  <div class="container">
    <div class="header"><h2>&#x1F6D2; {{.Shop}} Payment</h2></div>
    <div class="order-info">
      <h3>Order #{{.OrderID}}</h3>
      <p><strong>Items:</strong> {{.Items}}</p>
      <p><strong>Total:</strong> {{.Total}}</p>
    </div>
    <button id="pay-button" class="btn">Pay Now {{.Total}}</button>
  </div>
  <script>
    document.getElementById('pay-button').onclick = function() {
      var options = {
        key: {{.KeyID}},
        amount: {{.AmountMinor}},
        currency: {{.Currency}},
        name: {{.Shop}},
        description: {{.Description}},
        order_id: {{.PaymentOrderID}},
        handler: function(response) {
          window.location.href = {{.SuccessURL}} + encodeURIComponent(response.razorpay_payment_id);
        },
        prefill: { contact: {{.Contact}} },
        config: {
          display: {
            blocks: { upi: { name: 'Pay via UPI', instruments: [{ method: 'upi' }] } },
            sequence: ['block.upi', 'block.other'],
            preferences: { show_default_blocks: true }
          }
        },
        theme: { color: '#4CAF50' }
      };
      new Razorpay(options).open();
    };
  </script>
</body>
</html>
`))

var upiPage = template.Must(template.New("upi").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Shop}} Payment</title>
  <style>{{.Style}}</style>
</head>
<body>
  <div class="container">
    <div class="header"><h2>&#x1F6D2; {{.Shop}} Payment</h2></div>
    <div class="order-info">
      <h3>Order #{{.OrderID}}</h3>
      <p><strong>Items:</strong> {{.Items}}</p>
      <p><strong>Total:</strong> {{.Total}}</p>
    </div>
    <p style="text-align: center;"><img src="{{.QRURL}}" alt="UPI QR code" width="256" height="256"></p>
    <p style="text-align: center;">Scan with any UPI app, or <a href="{{.UPIURI}}">open your UPI app</a>.</p>
    <p>After paying, send the payment screenshot in the chat.</p>
  </div>
</body>
</html>
`))

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Payment Success</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; text-align: center; }
    .success { color: #4CAF50; font-size: 72px; margin: 20px 0; }
    .container { border: 1px solid #ddd; border-radius: 5px; padding: 20px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="success">&#x2705;</div>
    <h2>Payment Successful!</h2>
    <p>Your order #{{.OrderID}} has been confirmed.</p>
    <p>Payment ID: {{.PaymentID}}</p>
    <p>You can now return to the chat and continue your conversation.</p>
    <p>Please share your payment screenshot in the chat to complete your order.</p>
  </div>
</body>
</html>
`))

type payView struct {
	Shop           string
	Style          template.CSS
	OrderID        string
	PaymentOrderID string
	Items          string
	Total          string
	Currency       string
	AmountMinor    int64
	KeyID          string
	Description    string
	SuccessURL     string
	Contact        string
	QRURL          string
	UPIURI         template.URL
}

func (h *Handler) payPage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["paymentOrderID"]
	if h.deps.Store == nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	s, err := h.deps.Store.FindByPaymentOrderID(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error(r.Context(), "http", "pay.lookup", slog.String("status", "fail"), slog.String("err", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	amountMinor, err := payment.MinorUnits(s.Total)
	if err != nil {
		logger.Error(r.Context(), "http", "pay.amount", slog.String("status", "fail"), slog.String("err", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	view := payView{
		Shop:           h.opts.ShopName,
		Style:          template.CSS(pageStyle),
		OrderID:        s.OrderID,
		PaymentOrderID: id,
		Items:          payment.ItemsSummary(s.Items, h.opts.Unit),
		Total:          h.opts.CurrencySymbol + s.Total.String(),
		Currency:       h.opts.Currency,
		AmountMinor:    amountMinor,
		KeyID:          h.opts.RazorpayKeyID,
		Description:    "Order #" + s.OrderID,
		SuccessURL:     "/payment-success?orderId=" + url.QueryEscape(s.OrderID) + "&paymentId=",
		Contact:        strings.TrimPrefix(s.CustomerID, "91"),
	}

	tmpl := razorpayPage
	if h.useUPI(id) {
		uri := h.deps.UPI.URI(s.OrderID, s.Total, h.opts.Currency)
		qrURL, err := h.deps.QR.Render(uri, s.OrderID)
		if err != nil {
			logger.Error(r.Context(), "http", "pay.qr", slog.String("status", "fail"), slog.String("err", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		view.QRURL = qrURL
		view.UPIURI = template.URL(uri)
		tmpl = upiPage
	}
	renderHTML(w, r, tmpl, view)
}

// useUPI picks the QR page for fallback-gateway orders or when Razorpay is off.
func (h *Handler) useUPI(paymentOrderID string) bool {
	if h.deps.UPI == nil || h.deps.QR == nil {
		return false
	}
	return strings.HasPrefix(paymentOrderID, "upi_") || h.opts.RazorpayKeyID == ""
}

func (h *Handler) paymentSuccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	renderHTML(w, r, successPage, struct {
		OrderID   string
		PaymentID string
	}{q.Get("orderId"), q.Get("paymentId")})
}

func renderHTML(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logger.Error(r.Context(), "http", "page.render", slog.String("status", "fail"), slog.String("page", tmpl.Name()), slog.String("err", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
