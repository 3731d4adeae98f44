package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Browser  BrowserConfig
	Offers   OfferConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// RedisConfig configures the outbox relay. An empty Addr disables it.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	PollInterval time.Duration
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type BrowserConfig struct {
	Driver     string
	Headless   bool
	NavTimeout time.Duration
	Proxy      string
}

// OfferConfig holds the side sheet timings of the offer engine.
type OfferConfig struct {
	Settle       time.Duration
	Close        time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment, after loading a .env file
// if one exists in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			RequestTimeout:  getEnvSeconds("REQUEST_TIMEOUT", 180),
			ShutdownTimeout: getEnvSeconds("SHUTDOWN_TIMEOUT", 30),
			AllowedOrigins:  []string{getEnv("CORS_ALLOWED_ORIGIN", "*")},
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			Stream:       getEnv("REDIS_STREAM", "stream:scraped_products"),
			PollInterval: getEnvSeconds("RELAY_POLL_INTERVAL", 5),
		},
		Browser: BrowserConfig{
			Driver:     getEnv("BROWSER_DRIVER", "playwright"),
			Headless:   getEnvBool("SCRAPER_HEADLESS", true),
			NavTimeout: getEnvSeconds("SCRAPER_NAV_TIMEOUT", 60),
			Proxy:      getEnv("SCRAPER_PROXY", ""),
		},
		Offers: OfferConfig{
			Settle:       getEnvMillis("OFFER_SETTLE_MS", 2000),
			Close:        getEnvMillis("OFFER_CLOSE_MS", 1000),
			WaitTimeout:  getEnvMillis("PANEL_WAIT_TIMEOUT_MS", 5000),
			PollInterval: getEnvMillis("PANEL_POLL_MS", 100),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	switch c.Browser.Driver {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("BROWSER_DRIVER must be playwright or chromedp, got %q", c.Browser.Driver)
	}

	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("SCRAPER_NAV_TIMEOUT must be positive")
	}

	if c.Server.RequestTimeout < c.Browser.NavTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT cannot be shorter than SCRAPER_NAV_TIMEOUT")
	}

	if c.Offers.PollInterval <= 0 {
		return fmt.Errorf("PANEL_POLL_MS must be positive")
	}

	if c.Offers.Settle < 0 || c.Offers.Close < 0 || c.Offers.WaitTimeout < 0 {
		return fmt.Errorf("offer timings cannot be negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
