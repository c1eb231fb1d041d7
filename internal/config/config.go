package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// UI server
	Port              string
	BackendBaseURL    string
	RequestTimeout    time.Duration
	FilterSettleDelay time.Duration

	// Manager API
	APIPort string

	LogLevel string

	// Backend selection
	DataBackend   string
	SQLiteDBPath  string
	DataDirectory string

	// List cache
	ListCacheSize int
	ListCacheTTL  time.Duration

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	cfg := &Config{
		Port:              getEnv("PORT", "8081"),
		BackendBaseURL:    getEnv("BACKEND_BASE_URL", "http://localhost:8080"),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		FilterSettleDelay: getEnvDuration("FILTER_SETTLE_DELAY", 100*time.Millisecond),

		APIPort: getEnv("API_PORT", "8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/manager.db"),
		DataDirectory: getEnv("DATA_DIRECTORY", ""),

		ListCacheSize: getEnvInt("LIST_CACHE_SIZE", 100),
		ListCacheTTL:  getEnvDuration("LIST_CACHE_TTL", time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneymanager"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_changes"),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)
	errors = append(errors, validatePort("API port", c.APIPort)...)

	if c.BackendBaseURL == "" {
		errors = append(errors, "backend base URL cannot be empty")
	} else if u, err := url.Parse(c.BackendBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid backend base URL '%s': %v", c.BackendBaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid backend base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	} else if u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid backend base URL '%s': missing host", c.BackendBaseURL))
	}

	if c.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be positive", c.RequestTimeout))
	} else if c.RequestTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at most 5 minutes", c.RequestTimeout))
	}

	if c.FilterSettleDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid filter settle delay %v: must not be negative", c.FilterSettleDelay))
	} else if c.FilterSettleDelay > 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid filter settle delay %v: must be at most 10 seconds", c.FilterSettleDelay))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "memory" && c.DataDirectory != "" {
		if info, err := os.Stat(c.DataDirectory); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("data directory does not exist: %s", c.DataDirectory))
		}
	}

	if c.ListCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid list cache size %d: must be at least 1", c.ListCacheSize))
	} else if c.ListCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid list cache size %d: must be at most 10000", c.ListCacheSize))
	}

	if c.ListCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid list cache TTL %v: must be at least 1 second", c.ListCacheTTL))
	} else if c.ListCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid list cache TTL %v: must be at most 24 hours", c.ListCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether change notifications are configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
