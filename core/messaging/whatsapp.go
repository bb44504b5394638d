package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/netutil"
)

const (
	serviceWhatsApp = "whatsapp"

	graphCodeTokenInvalid   = 190
	graphSubcodeTokenExpiry = 463
)

// WhatsApp sends text messages through the WhatsApp Cloud API.
type WhatsApp struct {
	client        *http.Client
	apiBase       string
	phoneNumberID string
	token         string
}

// NewWhatsApp builds a client; a nil http client selects the retrying default.
func NewWhatsApp(cfg config.WhatsAppConfig, client *http.Client) *WhatsApp {
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{})
	}
	return &WhatsApp{
		client:        client,
		apiBase:       strings.TrimRight(cfg.APIBase, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		token:         strings.TrimSpace(cfg.AccessToken),
	}
}

type waTextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type waSendRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             waTextBody `json:"text"`
}

type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// Send posts a text message. Quick replies are not rendered on WhatsApp.
func (w *WhatsApp) Send(ctx context.Context, to string, msg Message) error {
	if w.token == "" || w.phoneNumberID == "" {
		return collab.New(serviceWhatsApp, "send", collab.KindNotConfigured, errors.New("access token or phone number id missing"))
	}
	payload := waSendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             waTextBody{Body: FormatText(msg.Text)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: encode: %w", err)
	}

	start := time.Now()
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.phoneNumberID)
	err = w.do(ctx, http.MethodPost, url, body, "send", nil)
	attrs := []slog.Attr{slog.Duration("duration", logger.Took(start))}
	if err != nil {
		logger.Debug(ctx, "wa", "send", append(attrs, slog.String("status", "fail"))...)
		return err
	}
	logger.Debug(ctx, "wa", "send", append(attrs, slog.String("status", "ok"))...)
	return nil
}

// CheckToken queries the phone number object to validate credentials at startup.
func (w *WhatsApp) CheckToken(ctx context.Context) error {
	if w.token == "" || w.phoneNumberID == "" {
		return collab.New(serviceWhatsApp, "check_token", collab.KindNotConfigured, errors.New("access token or phone number id missing"))
	}
	var out struct {
		ID                 string `json:"id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
		VerifiedName       string `json:"verified_name"`
	}
	url := fmt.Sprintf("%s/%s", w.apiBase, w.phoneNumberID)
	if err := w.do(ctx, http.MethodGet, url, nil, "check_token", &out); err != nil {
		return err
	}
	logger.Info(ctx, "wa", "token.check",
		slog.String("status", "ok"),
		slog.String("phone", out.DisplayPhoneNumber),
		slog.String("name", out.VerifiedName),
	)
	return nil
}

func (w *WhatsApp) do(ctx context.Context, method, url string, body []byte, op string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		kind := collab.KindOther
		if netutil.ShouldRetry(err) || ctx.Err() != nil {
			kind = collab.KindTransient
		}
		return collab.New(serviceWhatsApp, op, kind, errors.New(netutil.SanitizeError(err)))
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return classifyGraphError(op, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("whatsapp: decode %s: %w", op, err)
		}
	}
	return nil
}

// classifyGraphError maps a Graph API error body onto a collaborator error.
// Code 190 means the access token is invalid; subcode 463 marks expiry.
func classifyGraphError(op string, status int, body []byte) error {
	var ge graphError
	_ = json.Unmarshal(body, &ge)
	msg := ge.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	ce := collab.FromStatus(serviceWhatsApp, op, status, errors.New(msg))
	if ge.Error.Code == graphCodeTokenInvalid {
		ce.Kind = collab.KindAuthExpired
		if ge.Error.ErrorSubcode == graphSubcodeTokenExpiry {
			ce.Err = fmt.Errorf("access token expired: %s", msg)
		}
	}
	return ce
}
