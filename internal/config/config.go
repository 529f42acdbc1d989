package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"
)

type Config struct {
	ProjectID          string
	Port               string
	DiscordWebhookURL  string
	DiscordBotToken    string
	AmazonBaseURL      string
	AmazonAffiliateTag string
	Postcode           string
	Latitude           float64
	Longitude          float64
	Locale             string
	Timezone           string

	BrowserDriver     string
	BrowserProfileDir string
	Headless          bool

	MaxSearchPages int
	LinkBatchSize  int
	MaxShowMore    int

	RetryAttempts int
	RetryBackoff  time.Duration
	RetryJitter   time.Duration

	RecentDays           int
	NavigationsPerMinute int
	ScrapeInterval       time.Duration

	GeminiAPIKey string
	GeminiModel  string

	LogLevel            slog.Level
	SelectorsConfigPath string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to read .env file, continuing with process environment", "error", err)
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	discordWebhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	discordBotToken := os.Getenv("DISCORD_BOT_TOKEN")
	if discordWebhookURL == "" && discordBotToken == "" {
		slog.Warn("Neither DISCORD_WEBHOOK_URL nor DISCORD_BOT_TOKEN set, Discord notifications will be skipped")
	}

	port := envOr("PORT", "8080")

	driver := strings.ToLower(envOr("BROWSER_DRIVER", DriverPlaywright))
	if driver != DriverPlaywright && driver != DriverChromedp {
		return nil, fmt.Errorf("invalid BROWSER_DRIVER %q: want %q or %q", driver, DriverPlaywright, DriverChromedp)
	}

	cfg := &Config{
		ProjectID:           projectID,
		Port:                port,
		DiscordWebhookURL:   discordWebhookURL,
		DiscordBotToken:     discordBotToken,
		AmazonBaseURL:       strings.TrimSuffix(envOr("AMAZON_BASE_URL", "https://www.amazon.co.uk"), "/"),
		AmazonAffiliateTag:  os.Getenv("AMAZON_AFFILIATE_TAG"),
		Postcode:            envOr("POSTCODE", "GU9 7QU"),
		Latitude:            51.2150,
		Longitude:           -0.7986,
		Locale:              envOr("BROWSER_LOCALE", "en-GB"),
		Timezone:            envOr("BROWSER_TIMEZONE", "Europe/London"),
		BrowserDriver:       driver,
		BrowserProfileDir:   envOr("BROWSER_PROFILE_DIR", "chrome_user_data"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		SelectorsConfigPath: os.Getenv("SELECTORS_CONFIG_PATH"),
	}

	var err error
	if cfg.Headless, err = envBool("HEADLESS", true); err != nil {
		return nil, err
	}
	if cfg.MaxSearchPages, err = envPositiveInt("MAX_SEARCH_PAGES", 5); err != nil {
		return nil, err
	}
	if cfg.LinkBatchSize, err = envPositiveInt("LINK_BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.MaxShowMore, err = envPositiveInt("MAX_SHOW_MORE", 10); err != nil {
		return nil, err
	}
	if cfg.RetryAttempts, err = envPositiveInt("RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.RecentDays, err = envPositiveInt("RECENT_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.NavigationsPerMinute, err = envPositiveInt("NAVIGATIONS_PER_MINUTE", 20); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = envDuration("RETRY_BACKOFF", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryJitter, err = envDuration("RETRY_JITTER", 2*time.Second); err != nil {
		return nil, err
	}
	// Zero disables the in-process scheduler; runs are then triggered over HTTP only.
	if cfg.ScrapeInterval, err = envDuration("SCRAPE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("LOG_LEVEL", "INFO"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// RecentWindow is the trailing period during which a notified product is suppressed.
func (c *Config) RecentWindow() time.Duration {
	return time.Duration(c.RecentDays) * 24 * time.Hour
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envPositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
