package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ShopConfig describes the storefront presented to customers.
type ShopConfig struct {
	Name           string `yaml:"name" envconfig:"SHOP_NAME"`
	Currency       string `yaml:"currency" envconfig:"SHOP_CURRENCY"`
	CurrencySymbol string `yaml:"currency_symbol" envconfig:"SHOP_CURRENCY_SYMBOL"`
	// Unit is appended to quantities, e.g. "L" for litres.
	Unit         string `yaml:"unit" envconfig:"SHOP_UNIT"`
	BaseURL      string `yaml:"base_url" envconfig:"BASE_URL"`
	OrderPrefix  string `yaml:"order_prefix" envconfig:"SHOP_ORDER_PREFIX"`
	SupportEmail string `yaml:"support_email" envconfig:"SHOP_SUPPORT_EMAIL"`
}

// HTTPConfig holds the public HTTP listener settings.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
	// StaticDir is served under /static and receives rendered QR codes.
	StaticDir string `yaml:"static_dir" envconfig:"HTTP_STATIC_DIR"`
	// Diagnostics enables /send-test/{customer}.
	Diagnostics bool `yaml:"diagnostics" envconfig:"HTTP_DIAGNOSTICS"`
}

// MessagingConfig selects the customer-facing channel.
type MessagingConfig struct {
	Channel string `yaml:"channel" envconfig:"MESSAGING_CHANNEL"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string `yaml:"access_token" envconfig:"ACCESS_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"PHONE_NUMBER_ID"`
	VerifyToken   string `yaml:"verify_token" envconfig:"VERIFY_TOKEN"`
	APIBase       string `yaml:"api_base" envconfig:"WHATSAPP_API_BASE"`
}

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// PaymentConfig selects and configures the payment gateway.
type PaymentConfig struct {
	Provider  string `yaml:"provider" envconfig:"PAYMENT_PROVIDER"`
	KeyID     string `yaml:"key_id" envconfig:"RAZORPAY_KEY_ID"`
	KeySecret string `yaml:"key_secret" envconfig:"RAZORPAY_KEY_SECRET"`
	APIBase   string `yaml:"api_base" envconfig:"RAZORPAY_API_BASE"`
	UPIID     string `yaml:"upi_id" envconfig:"UPI_ID"`
}

// EmailConfig configures SMTP delivery of supplier notifications.
type EmailConfig struct {
	Host     string `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" envconfig:"SMTP_PORT"`
	User     string `yaml:"user" envconfig:"EMAIL_USER"`
	Password string `yaml:"password" envconfig:"EMAIL_APP_PASSWORD"`
	From     string `yaml:"from" envconfig:"EMAIL_FROM"`
	Supplier string `yaml:"supplier" envconfig:"SUPPLIER_EMAIL"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"STORE_DRIVER"`
	// IdleTTL expires abandoned sessions; 0 keeps them until restart.
	IdleTTL      time.Duration `yaml:"idle_ttl" envconfig:"STORE_IDLE_TTL"`
	ReapInterval time.Duration `yaml:"reap_interval" envconfig:"STORE_REAP_INTERVAL"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// ArchiveConfig selects where completed orders are recorded.
type ArchiveConfig struct {
	Driver string `yaml:"driver" envconfig:"ARCHIVE_DRIVER"`
	Dir    string `yaml:"dir" envconfig:"ARCHIVE_DIR"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig throttles inbound events per customer.
type RateLimitConfig struct {
	// PerSecond is the sustained event rate; 0 disables limiting.
	PerSecond float64 `yaml:"per_second" envconfig:"RATE_LIMIT_PER_SECOND"`
	Burst     int     `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
}

// OutboxConfig tunes the asynchronous notification workers.
type OutboxConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxDuration  time.Duration `yaml:"max_duration"`
}

// CatalogItem is a catalog entry as written in YAML.
type CatalogItem struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// CatalogConfig lists purchasable items; empty means the built-in menu.
type CatalogConfig struct {
	Items []CatalogItem `yaml:"items"`
}

const (
	// ChannelWhatsApp routes conversations through the WhatsApp Cloud API.
	ChannelWhatsApp = "whatsapp"
	// ChannelTelegram routes conversations through a Telegram bot.
	ChannelTelegram = "telegram"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// ProviderAuto picks Razorpay when credentials exist and UPI otherwise.
	ProviderAuto     = "auto"
	ProviderRazorpay = "razorpay"
	ProviderUPI      = "upi"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverFile     = "file"
	DriverNone     = "none"
)

// Config aggregates the whole application configuration.
type Config struct {
	Shop      ShopConfig      `yaml:"shop"`
	HTTP      HTTPConfig      `yaml:"http"`
	Messaging MessagingConfig `yaml:"messaging"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Payment   PaymentConfig   `yaml:"payment"`
	Email     EmailConfig     `yaml:"email"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates enumerated settings and fills defaults.
// Missing credentials are not errors; see Warnings.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	setDefault(&cfg.Shop.Name, "OilFacts")
	setDefault(&cfg.Shop.Currency, "INR")
	setDefault(&cfg.Shop.CurrencySymbol, "₹")
	setDefault(&cfg.Shop.OrderPrefix, "OIL-")
	setDefault(&cfg.Shop.Unit, "L")
	setDefault(&cfg.Shop.SupportEmail, "support@oilfacts.com")
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 3000
	}
	setDefault(&cfg.HTTP.StaticDir, "static")
	// A stray leading backslash slips in when BASE_URL is pasted from Windows shells.
	cfg.Shop.BaseURL = strings.TrimRight(strings.TrimPrefix(strings.TrimSpace(cfg.Shop.BaseURL), `\`), "/")
	if cfg.Shop.BaseURL == "" {
		cfg.Shop.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port)
	}

	ch := lower(cfg.Messaging.Channel)
	if ch == "" {
		ch = ChannelWhatsApp
	}
	if ch != ChannelWhatsApp && ch != ChannelTelegram {
		return fmt.Errorf("invalid messaging.channel %q; allowed: whatsapp, telegram", cfg.Messaging.Channel)
	}
	cfg.Messaging.Channel = ch
	setDefault(&cfg.WhatsApp.APIBase, "https://graph.facebook.com/v18.0")

	if ch == ChannelTelegram {
		rm := lower(cfg.Telegram.RunMode)
		if rm == "" || rm == "polling" {
			rm = RunModeLongpoll
		}
		switch rm {
		case RunModeWebhook:
			if strings.TrimSpace(cfg.Webhook.URL) == "" {
				return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
			}
			if strings.TrimSpace(cfg.Webhook.Listen) == "" {
				return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
			}
			if cfg.Webhook.Port <= 0 {
				return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
			}
		case RunModeLongpoll:
			if cfg.Telegram.LongPollTimeoutSeconds < 0 {
				return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
			}
		default:
			return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
		}
		cfg.Telegram.RunMode = rm
	}

	pv := lower(cfg.Payment.Provider)
	if pv == "" {
		pv = ProviderAuto
	}
	switch pv {
	case ProviderAuto:
		if cfg.Payment.KeyID != "" && cfg.Payment.KeySecret != "" {
			pv = ProviderRazorpay
		} else {
			pv = ProviderUPI
		}
	case ProviderRazorpay, ProviderUPI:
	default:
		return fmt.Errorf("invalid payment.provider %q; allowed: auto, razorpay, upi", cfg.Payment.Provider)
	}
	cfg.Payment.Provider = pv
	setDefault(&cfg.Payment.APIBase, "https://api.razorpay.com/v1")
	setDefault(&cfg.Payment.UPIID, "default@upi")

	setDefault(&cfg.Email.Host, "smtp.gmail.com")
	if cfg.Email.Port <= 0 {
		cfg.Email.Port = 587
	}
	setDefault(&cfg.Email.From, cfg.Email.User)

	sd := lower(cfg.Store.Driver)
	if sd == "" {
		sd = DriverMemory
	}
	if sd != DriverMemory && sd != DriverPostgres && sd != DriverRedis {
		return fmt.Errorf("invalid store.driver %q; allowed: memory, postgres, redis", cfg.Store.Driver)
	}
	cfg.Store.Driver = sd
	if cfg.Store.IdleTTL < 0 {
		return fmt.Errorf("store.idle_ttl must be >= 0")
	}
	if cfg.Store.IdleTTL > 0 && cfg.Store.ReapInterval <= 0 {
		cfg.Store.ReapInterval = time.Minute
	}

	ad := lower(cfg.Archive.Driver)
	if ad == "" {
		ad = DriverFile
	}
	if ad != DriverFile && ad != DriverPostgres && ad != DriverNone {
		return fmt.Errorf("invalid archive.driver %q; allowed: file, postgres, none", cfg.Archive.Driver)
	}
	cfg.Archive.Driver = ad
	setDefault(&cfg.Archive.Dir, "orders")

	if cfg.NeedsDatabase() {
		setDefault(&cfg.Database.Host, "localhost")
		setDefault(&cfg.Database.Port, "5432")
		setDefault(&cfg.Database.SSLMode, "disable")
		setDefault(&cfg.Database.MigrationsDir, "migrations")
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
		if strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.name is required when a postgres driver is selected")
		}
	}
	if sd == DriverRedis {
		setDefault(&cfg.Redis.Addr, "localhost:6379")
		setDefault(&cfg.Redis.Prefix, "orderbot:")
	}

	if cfg.RateLimit.PerSecond < 0 {
		return fmt.Errorf("rate_limit.per_second must be >= 0")
	}
	if cfg.RateLimit.PerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 3
	}

	if cfg.Outbox.QueueSize <= 0 {
		cfg.Outbox.QueueSize = 64
	}
	if cfg.Outbox.Workers <= 0 {
		cfg.Outbox.Workers = 2
	}
	if cfg.Outbox.MaxRetries < 0 {
		return fmt.Errorf("outbox.max_retries must be >= 0")
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 3
	}
	if cfg.Outbox.RetryBackoff <= 0 {
		cfg.Outbox.RetryBackoff = 2 * time.Second
	}
	if cfg.Outbox.MaxDuration <= 0 {
		cfg.Outbox.MaxDuration = 30 * time.Second
	}

	seen := make(map[int]struct{}, len(cfg.Catalog.Items))
	for _, it := range cfg.Catalog.Items {
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("duplicate catalog item id %d", it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// NeedsDatabase reports whether any component is backed by postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Driver == DriverPostgres || c.Archive.Driver == DriverPostgres
}

// Warnings lists missing credentials. The application keeps running in
// degraded mode when any of them are reported.
func Warnings(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	var out []string
	switch cfg.Messaging.Channel {
	case ChannelWhatsApp:
		token := strings.TrimSpace(cfg.WhatsApp.AccessToken)
		if token == "" {
			out = append(out, "whatsapp.access_token is missing; outbound messages will be dropped")
		} else if strings.Contains(token, "expired") {
			out = append(out, "whatsapp.access_token appears to be marked as expired")
		}
		if cfg.WhatsApp.PhoneNumberID == "" {
			out = append(out, "whatsapp.phone_number_id is missing")
		}
		if cfg.WhatsApp.VerifyToken == "" {
			out = append(out, "whatsapp.verify_token is missing; webhook verification will always fail")
		}
	case ChannelTelegram:
		if cfg.Telegram.Token == "" {
			out = append(out, "telegram.token is missing; telegram transport disabled")
		}
	}
	if cfg.Email.User == "" || cfg.Email.Password == "" {
		out = append(out, "email is not configured; supplier notifications will be skipped")
	}
	if cfg.Email.Supplier == "" {
		out = append(out, "email.supplier is missing; supplier notifications will be skipped")
	}
	if cfg.Payment.Provider == ProviderRazorpay && (cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "") {
		out = append(out, "razorpay credentials are missing; payment orders will fail")
	}
	return out
}

func setDefault(field *string, def string) {
	if strings.TrimSpace(*field) == "" {
		*field = def
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
