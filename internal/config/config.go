package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string
	StoreBackend string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Rate provider
	RateProviderURL string
	RateCacheTTL    time.Duration
	RateFetchBound  time.Duration

	// On-chain balance provider
	BalanceProviderURL string

	// Display
	DisplayCurrency string

	// Recompute worker
	RecomputeInterval time.Duration

	// Execution
	UndoWindow time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/risparmio.db"),
		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "risparmio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "plan_recompute"),

		RateProviderURL: getEnv("RATE_PROVIDER_URL", ""),
		RateCacheTTL:    getEnvDuration("RATE_CACHE_TTL", 5*time.Minute),
		RateFetchBound:  getEnvDuration("RATE_FETCH_BOUND", 10*time.Second),

		BalanceProviderURL: getEnv("BALANCE_PROVIDER_URL", ""),

		DisplayCurrency: getEnv("DISPLAY_CURRENCY", "EUR"),

		RecomputeInterval: getEnvDuration("RECOMPUTE_INTERVAL", 30*time.Second),

		UndoWindow: getEnvDuration("UNDO_WINDOW", 24*time.Hour),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.StoreBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "memory":
		// No storage configuration needed.
	default:
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of [sqlite memory]", c.StoreBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	for _, u := range []struct {
		name  string
		value string
	}{
		{"rate provider URL", c.RateProviderURL},
		{"balance provider URL", c.BalanceProviderURL},
	} {
		if u.value == "" {
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("invalid %s '%s': must be an http(s) URL", u.name, u.value))
		}
	}

	if len(c.DisplayCurrency) < 3 || len(c.DisplayCurrency) > 8 {
		errs = append(errs, fmt.Sprintf("invalid display currency '%s'", c.DisplayCurrency))
	}

	if c.RateCacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid rate cache TTL %v: must be at least 1 second", c.RateCacheTTL))
	}
	if c.RateFetchBound < time.Second || c.RateFetchBound > time.Minute {
		errs = append(errs, fmt.Sprintf("invalid rate fetch bound %v: must be between 1s and 1m", c.RateFetchBound))
	}
	if c.RecomputeInterval < time.Second || c.RecomputeInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid recompute interval %v: must be between 1s and 24h", c.RecomputeInterval))
	}
	if c.UndoWindow < time.Minute || c.UndoWindow > 7*24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid undo window %v: must be between 1m and 168h", c.UndoWindow))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
