package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	StoreDriver      string
	DatabaseURL      string
	SQLitePath       string
	DBMaxConns       int32
	DBMinConns       int32
	SlowQuery        time.Duration
	JWTSecret        string
	RedisURL         string
	GeoIPDBPath      string
	DatasetDir       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	Apify     ApifyConfig
	Discovery DiscoveryConfig
	Schedule  ScheduleConfig
}

// ApifyConfig configures the scraping provider.
type ApifyConfig struct {
	Token             string
	BaseURL           string
	SearchActor       string
	YouTubeActor      string
	InstagramActor    string
	TikTokActor       string
	RequestsPerSecond float64
}

// DiscoveryConfig holds the pipeline tunables.
type DiscoveryConfig struct {
	ResultsPerPage     int
	MaxPagesPerQuery   int
	InteractiveTimeout time.Duration
	UnattendedTimeout  time.Duration
	UnattendedPoll     time.Duration
	ProcessingStale    time.Duration
	EnrichmentCacheTTL time.Duration
	LanguageMinConf    float64
	AffiliateSignals   bool
	CreditType         string
}

// ScheduleConfig drives the worker's recurring discovery runs.
type ScheduleConfig struct {
	Spec      string
	BatchSize int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             getEnv("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "affiliatescout.db"),
		DBMaxConns:       int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getEnvInt("DB_MIN_CONNS", 1)),
		SlowQuery:        time.Millisecond * time.Duration(getEnvInt("DB_SLOW_QUERY_MS", 500)),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RedisURL:         os.Getenv("REDIS_URL"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DatasetDir:       os.Getenv("DATASET_ARCHIVE_DIR"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Apify: ApifyConfig{
			Token:             strings.TrimSpace(os.Getenv("APIFY_TOKEN")),
			BaseURL:           getEnv("APIFY_BASE_URL", "https://api.apify.com"),
			SearchActor:       getEnv("APIFY_SEARCH_ACTOR", "apify/google-search-scraper"),
			YouTubeActor:      getEnv("APIFY_YOUTUBE_ACTOR", "streamers/youtube-scraper"),
			InstagramActor:    getEnv("APIFY_INSTAGRAM_ACTOR", "apify/instagram-scraper"),
			TikTokActor:       getEnv("APIFY_TIKTOK_ACTOR", "clockworks/tiktok-scraper"),
			RequestsPerSecond: getEnvFloat("PROVIDER_RPS", 5),
		},
		Discovery: DiscoveryConfig{
			ResultsPerPage:     getEnvInt("RESULTS_PER_PAGE", 100),
			MaxPagesPerQuery:   getEnvInt("MAX_PAGES_PER_QUERY", 1),
			InteractiveTimeout: time.Second * time.Duration(getEnvInt("INTERACTIVE_TIMEOUT_SECONDS", 300)),
			UnattendedTimeout:  time.Second * time.Duration(getEnvInt("UNATTENDED_TIMEOUT_SECONDS", 180)),
			UnattendedPoll:     time.Second * time.Duration(getEnvInt("UNATTENDED_POLL_SECONDS", 5)),
			ProcessingStale:    time.Second * time.Duration(getEnvInt("PROCESSING_STALE_SECONDS", 120)),
			EnrichmentCacheTTL: time.Hour * time.Duration(getEnvInt("ENRICHMENT_CACHE_TTL_HOURS", 24)),
			LanguageMinConf:    getEnvFloat("LANGUAGE_MIN_CONFIDENCE", 0.8),
			AffiliateSignals:   getEnvBool("AFFILIATE_SIGNAL_QUERIES", true),
			CreditType:         getEnv("CREDIT_TYPE", "affiliate_search"),
		},
		Schedule: ScheduleConfig{
			Spec:      getEnv("SCHEDULE_SPEC", "@every 15m"),
			BatchSize: getEnvInt("SCHEDULE_BATCH_SIZE", 10),
		},
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver)
	}

	return cfg, nil
}

// LoadAPIConfig is LoadConfig plus the keys only the HTTP API needs.
func LoadAPIConfig() (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
