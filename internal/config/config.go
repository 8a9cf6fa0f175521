// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストレージドライバ
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Token
	JWTSecret     string
	TokenTTL      time.Duration
	TokenIssuer   string
	TokenAudience string

	// Rate Limit (req/min/user)
	RateLimitGeneral int
	RateLimitWrite   int

	// Admin
	AdminEmails []string

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort  string
	FrontendURL string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は、不足分をまとめてエラーとして返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment from .env")
	}

	cfg := &Config{}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMongo {
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}

	// Required fields
	var missing []string

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreDriverMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.FrontendURL = strings.TrimRight(os.Getenv("FRONTEND_URL"), "/")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "notekeeper")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", "notes-app")
	cfg.TokenAudience = getEnvString("TOKEN_AUDIENCE", "notes-app-users")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitWrite = getEnvInt("RATE_LIMIT_WRITE", 30)
	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "note-events")
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.GoogleRedirectURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
