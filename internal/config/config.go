package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"imeiledger/internal/logger"
	"imeiledger/internal/nes"
)

// DefaultSupplierWhitelist matches suppliers whose invoices never carry
// devices: couriers, telecom operators, utilities and landlords.
var DefaultSupplierWhitelist = []string{
	`(YURTIC[IİÇ]|ARAS|MNG|S[ÜU]RAT|PTT|UPS|FEDEX|DHL)`,
	`(T[ÜU]RK ?TELEKOM|TTNET|TURKCELL|VODAFONE|LIFECELL|T[ÜU]RKSAT|SUPERONLINE)`,
	`(ELEKTR[Iİ]K|GAZ|DO[GĞ]AL ?GAZ|ENERJ[İI]|PERAKENDE SAT[Iİ]Ş)`,
	`(KULE Y[ÖO]NET[İI]M|LORAS GAYR[İI]MENKUL)`,
}

type Config struct {
	// NES e-invoice API
	NESAPIToken       string
	NESBaseURL        string
	NESPageSize       int
	NESTimeoutConnect time.Duration
	NESTimeoutRead    time.Duration
	NESRetries        int
	NESBackoff        time.Duration

	// Output
	ReportOutput string
	DownloadDir  string

	// External ledgers: published expense-voucher spreadsheets
	VoucherURLs []string

	// Google Sheets Configuration
	GoogleSheetURL        string
	GoogleSheetWorksheet  string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Purchase invoices from these suppliers are skipped when they carry no IMEI
	SupplierWhitelist []string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		NESAPIToken:           getEnv("NES_API_TOKEN", ""),
		NESBaseURL:            strings.TrimRight(getEnv("NES_BASE_URL", nes.DefaultBaseURL), "/"),
		NESPageSize:           getEnvInt("NES_PAGE_SIZE", nes.DefaultPageSize),
		NESTimeoutConnect:     getEnvDuration("NES_TIMEOUT_CONNECT", 15*time.Second),
		NESTimeoutRead:        getEnvDuration("NES_TIMEOUT_READ", 90*time.Second),
		NESRetries:            getEnvInt("NES_RETRIES", 4),
		NESBackoff:            getEnvDuration("NES_BACKOFF", 600*time.Millisecond),
		ReportOutput:          getEnv("REPORT_OUTPUT", "imei_report.xlsx"),
		DownloadDir:           getEnv("DOWNLOAD_DIR", "."),
		VoucherURLs:           getEnvList("VOUCHER_URLS", ",", nil),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "IMEI_REPORT"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS", ""),
		SupplierWhitelist:     getEnvList("SUPPLIER_WHITELIST", ";;", DefaultSupplierWhitelist),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks value formats only; the API token is checked by the
// commands that talk to the API.
func (c *Config) validate() error {
	if c.NESPageSize <= 0 {
		return fmt.Errorf("NES_PAGE_SIZE must be positive, got %d", c.NESPageSize)
	}
	if c.NESRetries < 0 {
		return fmt.Errorf("NES_RETRIES must not be negative, got %d", c.NESRetries)
	}
	if c.NESTimeoutConnect <= 0 || c.NESTimeoutRead <= 0 {
		return fmt.Errorf("NES timeouts must be positive")
	}
	if _, err := c.WhitelistPatterns(); err != nil {
		return err
	}
	return nil
}

// WhitelistPatterns compiles the supplier whitelist case-insensitively.
func (c *Config) WhitelistPatterns() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.SupplierWhitelist))
	for _, p := range c.SupplierWhitelist {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("SUPPLIER_WHITELIST pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// ClientConfig returns the NES client settings
func (c *Config) ClientConfig() nes.ClientConfig {
	return nes.ClientConfig{
		BaseURL:        c.NESBaseURL,
		Token:          c.NESAPIToken,
		PageSize:       c.NESPageSize,
		ConnectTimeout: c.NESTimeoutConnect,
		ReadTimeout:    c.NESTimeoutRead,
		Retries:        c.NESRetries,
		Backoff:        c.NESBackoff,
		UserAgent:      nes.DefaultUserAgent,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or plain seconds ("15", "0.6").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return defaultValue
}

func getEnvList(key, sep string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
