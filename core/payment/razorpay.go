package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/netutil"
)

// Razorpay creates orders through the Razorpay Orders API.
type Razorpay struct {
	client    *http.Client
	apiBase   string
	keyID     string
	keySecret string
	unit      string
}

// NewRazorpay builds a client; a nil http client selects the retrying default.
func NewRazorpay(cfg config.PaymentConfig, unit string, client *http.Client) *Razorpay {
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{})
	}
	return &Razorpay{
		client:    client,
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		unit:      unit,
	}
}

// Name implements Gateway.
func (r *Razorpay) Name() string { return config.ProviderRazorpay }

// KeyID is the public key embedded in the checkout page.
func (r *Razorpay) KeyID() string { return r.keyID }

type razorpayOrder struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder implements Gateway.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	if r.keyID == "" || r.keySecret == "" {
		return "", collab.New("razorpay", "create_order", collab.KindNotConfigured, errors.New("key id or secret missing"))
	}
	amount, err := MinorUnits(req.Amount)
	if err != nil {
		return "", collab.New("razorpay", "create_order", collab.KindOther, err)
	}
	body, err := json.Marshal(razorpayOrder{
		Amount:   amount,
		Currency: req.Currency,
		Receipt:  req.OrderID,
		Notes: map[string]string{
			"phone": req.CustomerID,
			"items": ItemsSummary(req.Items, r.unit),
		},
	})
	if err != nil {
		return "", fmt.Errorf("razorpay: encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiBase+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(r.keyID, r.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", collab.New("razorpay", "create_order", collab.KindTransient, errors.New(netutil.SanitizeError(err)))
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return "", collab.FromStatus("razorpay", "create_order", resp.StatusCode, errors.New(razorpayMessage(payload, resp.Status)))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("razorpay: decode order: %w", err)
	}
	if out.ID == "" {
		return "", collab.New("razorpay", "create_order", collab.KindOther, errors.New("response carries no order id"))
	}
	return out.ID, nil
}

func razorpayMessage(payload []byte, fallback string) string {
	var env struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.Unmarshal(payload, &env) == nil && env.Error.Description != "" {
		return env.Error.Code + ": " + env.Error.Description
	}
	return fallback
}
