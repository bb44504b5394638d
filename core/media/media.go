// Package media downloads customer uploads such as payment screenshots.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/netutil"
)

// maxMediaBytes caps downloads; WhatsApp images are limited to 5 MB.
const maxMediaBytes = 16 << 20

// Fetcher resolves a channel media reference into bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// WhatsApp fetches media in two steps: the Graph API returns a short-lived
// URL for the media id, which is then downloaded with the same token.
type WhatsApp struct {
	client  *http.Client
	apiBase string
	token   string
}

// NewWhatsApp builds a fetcher; a nil client selects the retrying default.
func NewWhatsApp(cfg config.WhatsAppConfig, client *http.Client) *WhatsApp {
	if client == nil {
		client = netutil.BuildHTTPClient(netutil.ClientOptions{})
	}
	return &WhatsApp{
		client:  client,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		token:   strings.TrimSpace(cfg.AccessToken),
	}
}

// Fetch downloads the media identified by id.
func (w *WhatsApp) Fetch(ctx context.Context, id string) ([]byte, error) {
	if w.token == "" {
		return nil, collab.New("whatsapp", "media", collab.KindNotConfigured, errors.New("access token missing"))
	}
	if id == "" {
		return nil, collab.New("whatsapp", "media", collab.KindNotFound, errors.New("empty media id"))
	}
	meta, err := w.get(ctx, w.apiBase+"/"+id)
	if err != nil {
		return nil, err
	}
	var info struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(meta, &info); err != nil {
		return nil, fmt.Errorf("whatsapp media: decode: %w", err)
	}
	if info.URL == "" {
		return nil, collab.New("whatsapp", "media", collab.KindNotFound, fmt.Errorf("no url for media %s", id))
	}
	return w.get(ctx, info.URL)
}

func (w *WhatsApp) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp media: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, collab.New("whatsapp", "media", collab.KindTransient, errors.New(netutil.SanitizeError(err)))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, collab.FromStatus("whatsapp", "media", resp.StatusCode, errors.New(resp.Status))
	}
	return readLimited(resp.Body)
}

// TelegramAPI is the subset of *tele.Bot used for downloads.
type TelegramAPI interface {
	File(file *tele.File) (io.ReadCloser, error)
}

// Telegram fetches files by Telegram file id.
type Telegram struct {
	bot TelegramAPI
}

// NewTelegram wraps a bot for downloads.
func NewTelegram(bot TelegramAPI) *Telegram {
	return &Telegram{bot: bot}
}

// Fetch downloads the file identified by fileID.
func (t *Telegram) Fetch(_ context.Context, fileID string) ([]byte, error) {
	if t.bot == nil {
		return nil, collab.New("telegram", "media", collab.KindNotConfigured, errors.New("bot not started"))
	}
	rc, err := t.bot.File(&tele.File{FileID: fileID})
	if err != nil {
		var apiErr *tele.Error
		if errors.As(err, &apiErr) {
			return nil, collab.FromStatus("telegram", "media", apiErr.Code, err)
		}
		return nil, collab.New("telegram", "media", collab.KindTransient, err)
	}
	defer rc.Close()
	return readLimited(rc)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("media: file exceeds %d bytes", maxMediaBytes)
	}
	return data, nil
}
