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

const (
	RecalcInline = "inline"
	RecalcAMQP   = "amqp"
)

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recalculation
	RecalcMode         string
	StateWatchInterval time.Duration

	// Summary cache
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration

	// Rate limiting
	RequestsPerMinute int

	// Google Sheets report export
	GoogleSpreadsheetID string
	ReportSheetName     string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/optify.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "optify"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "recalculate_financial_state"),

		RecalcMode:         getEnv("RECALC_MODE", RecalcInline),
		StateWatchInterval: getEnvDuration("STATE_WATCH_INTERVAL", 2*time.Second),

		SummaryCacheSize: getEnvInt("SUMMARY_CACHE_SIZE", 200),
		SummaryCacheTTL:  getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),

		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 120),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		ReportSheetName:     getEnv("REPORT_SHEET_NAME", "Optify"),
	}
}

// Validate validates the configuration and returns every problem found
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	validBackends := []string{"memory", "sqlite"}
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

	switch c.RecalcMode {
	case RecalcInline:
	case RecalcAMQP:
		if c.AMQPURL == "" {
			errors = append(errors, "AMQP_URL is required when RECALC_MODE is 'amqp'")
		}
		if c.DataBackend == "memory" {
			errors = append(errors, "RECALC_MODE 'amqp' needs a shared backend, memory cannot be used")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid recalc mode '%s': must be '%s' or '%s'", c.RecalcMode, RecalcInline, RecalcAMQP))
	}

	if c.StateWatchInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid state watch interval %v: must be at least 100ms", c.StateWatchInterval))
	} else if c.StateWatchInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid state watch interval %v: must be at most 1 hour", c.StateWatchInterval))
	}

	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be at least 1 second", c.SummaryCacheTTL))
	}

	if c.RequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid requests per minute %d: must be at least 1", c.RequestsPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateExport checks the settings needed by the report exporter.
func (c *Config) ValidateExport() error {
	if strings.TrimSpace(c.GoogleSpreadsheetID) == "" {
		return fmt.Errorf("GOOGLE_SPREADSHEET_ID is required for report export")
	}
	if strings.TrimSpace(c.ReportSheetName) == "" {
		return fmt.Errorf("REPORT_SHEET_NAME cannot be empty")
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
