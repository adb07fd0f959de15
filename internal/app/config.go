package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string

	BotToken       string
	TelegramAPIURL string
	TelegramPoll   time.Duration
	TelegramRPS    float64
	AllowedUserIDs []int64

	CatalogBackend string
	MongoURI       string
	MongoDatabase  string
	SQLitePath     string

	RedisURL       string
	ResultCacheTTL time.Duration
	PageSize       int

	SearchLimit       int
	SearchScoreCutoff float64
	SubstringPool     int
	RecentPool        int
	TitleCacheSize    int

	DeliveryTTL     time.Duration
	DeliveryProtect bool
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),

		BotToken:       strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramPoll:   time.Duration(getEnvInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30)) * time.Second,
		TelegramRPS:    getEnvFloat("TELEGRAM_RPS", 25),
		AllowedUserIDs: parseIDs(os.Getenv("ALLOWED_USER_IDS")),

		CatalogBackend: strings.ToLower(getEnv("CATALOG_BACKEND", "sqlite")),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "kinobot"),
		SQLitePath:     getEnv("SQLITE_PATH", "data/kinobot.db"),

		RedisURL:       getEnv("REDIS_URL", ""),
		ResultCacheTTL: time.Duration(getEnvInt("RESULT_CACHE_TTL_MINUTES", 10)) * time.Minute,
		PageSize:       getEnvInt("PAGE_SIZE", 5),

		SearchLimit:       getEnvInt("SEARCH_LIMIT", 30),
		SearchScoreCutoff: getEnvFloat("SEARCH_SCORE_CUTOFF", 70),
		SubstringPool:     getEnvInt("SEARCH_SUBSTRING_POOL", 120),
		RecentPool:        getEnvInt("SEARCH_RECENT_POOL", 300),
		TitleCacheSize:    getEnvInt("SEARCH_TITLE_CACHE_SIZE", 4096),

		DeliveryTTL:     time.Duration(getEnvInt("DELIVERY_TTL_HOURS", 24)) * time.Hour,
		DeliveryProtect: getEnvBool("DELIVERY_PROTECT", true),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// parseIDs reads a comma or space separated list of user ids, skipping
// anything that is not an integer.
func parseIDs(raw string) []int64 {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	ids := make([]int64, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
