package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, ChannelWhatsApp, cfg.Messaging.Channel)
	assert.Equal(t, ProviderUPI, cfg.Payment.Provider)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, DriverFile, cfg.Archive.Driver)
	assert.Equal(t, "http://localhost:3000", cfg.Shop.BaseURL)
	assert.Equal(t, "OIL-", cfg.Shop.OrderPrefix)
	assert.Equal(t, "INR", cfg.Shop.Currency)
	assert.False(t, cfg.NeedsDatabase())
}

func TestNormalizeBaseURL(t *testing.T) {
	cfg := &Config{Shop: ShopConfig{BaseURL: ` \https://shop.example.com/ `}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "https://shop.example.com", cfg.Shop.BaseURL)
}

func TestNormalizeAutoProviderPicksRazorpay(t *testing.T) {
	cfg := &Config{Payment: PaymentConfig{KeyID: "rzp_test", KeySecret: "secret"}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, ProviderRazorpay, cfg.Payment.Provider)
}

func TestNormalizeRejectsInvalidValues(t *testing.T) {
	cases := map[string]*Config{
		"channel":  {Messaging: MessagingConfig{Channel: "sms"}},
		"provider": {Payment: PaymentConfig{Provider: "paypal"}},
		"store":    {Store: StoreConfig{Driver: "mongo"}},
		"archive":  {Archive: ArchiveConfig{Driver: "s3"}},
		"ttl":      {Store: StoreConfig{IdleTTL: -time.Second}},
		"db name":  {Store: StoreConfig{Driver: DriverPostgres}},
		"webhook":  {Messaging: MessagingConfig{Channel: ChannelTelegram}, Telegram: TelegramConfig{RunMode: RunModeWebhook}},
		"dup item": {Catalog: CatalogConfig{Items: []CatalogItem{{ID: 1, Name: "a", Price: "1"}, {ID: 1, Name: "b", Price: "2"}}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeTelegramPollingAlias(t *testing.T) {
	cfg := &Config{Messaging: MessagingConfig{Channel: "Telegram"}, Telegram: TelegramConfig{RunMode: "polling"}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, ChannelTelegram, cfg.Messaging.Channel)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeReapIntervalDefault(t *testing.T) {
	cfg := &Config{Store: StoreConfig{IdleTTL: time.Hour}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, time.Minute, cfg.Store.ReapInterval)
}

func TestWarningsForMissingCredentials(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Normalize(cfg))
	warnings := Warnings(cfg)
	assert.Contains(t, warnings, "whatsapp.access_token is missing; outbound messages will be dropped")
	assert.Contains(t, warnings, "email is not configured; supplier notifications will be skipped")

	cfg = &Config{
		WhatsApp: WhatsAppConfig{AccessToken: "tok", PhoneNumberID: "1", VerifyToken: "v"},
		Email:    EmailConfig{User: "u", Password: "p", Supplier: "s@example.com"},
	}
	require.NoError(t, Normalize(cfg))
	assert.Empty(t, Warnings(cfg))
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
shop:
  name: Test Oils
http:
  port: 8080
catalog:
  items:
    - {id: 1, name: Olive Oil, price: "450.50"}
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("VERIFY_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Test Oils", cfg.Shop.Name)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "from-env", cfg.WhatsApp.VerifyToken)
	require.Len(t, cfg.Catalog.Items, 1)
	assert.Equal(t, "450.50", cfg.Catalog.Items[0].Price)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
