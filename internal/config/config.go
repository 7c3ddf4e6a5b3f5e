package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTariffsURL = "https://common-api.wildberries.ru/api/v1/tariffs/box"

	defaultFetchCron = "0 * * * *"
	defaultSyncCron  = "5 * * * *"
	fastFetchCron    = "*/60 * * * * *"
	fastSyncCron     = "*/1 * * * * *"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string

	// upstream tariff API
	TariffsURL   string
	APIKey       string
	APIKeyHeader string
	HTTPTimeout  time.Duration

	FetchCron string
	SyncCron  string

	// FastMode shortens both cadences and turns publishing into a console preview.
	FastMode bool

	SheetsBackend         string // google or xlsx
	GoogleCredentialsPath string
	XLSXDir               string
	SpreadsheetIDs        []string
	PublishConcurrency    int

	Port        string
	Environment string
	LogLevel    string
	LogFormat   string
}

func Load() *Config {
	defaultDSN := "root:@tcp(127.0.0.1:3306)/tariffs?charset=utf8mb4&parseTime=True&loc=UTC"

	fast := getEnvBool("TEST_FAST", false)
	fetchCron, syncCron := defaultFetchCron, defaultSyncCron
	if fast {
		fetchCron, syncCron = fastFetchCron, fastSyncCron
	}

	return &Config{
		DatabaseDriver: getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:    getEnv("DATABASE_URL", defaultDSN),

		TariffsURL:   getEnv("WB_TARIFFS_URL", defaultTariffsURL),
		APIKey:       getEnv("WB_API_KEY", ""),
		APIKeyHeader: getEnv("WB_API_KEY_HEADER", "Authorization"),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		FetchCron: getEnv("FETCH_CRON", fetchCron),
		SyncCron:  getEnv("SYNC_CRON", syncCron),
		FastMode:  fast,

		SheetsBackend:         getEnv("SHEETS_BACKEND", "google"),
		GoogleCredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", ""),
		XLSXDir:               getEnv("XLSX_DIR", "./sheets"),
		SpreadsheetIDs:        splitList(getEnv("SPREADSHEET_IDS", "")),
		PublishConcurrency:    getEnvInt("PUBLISH_CONCURRENCY", 1),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
