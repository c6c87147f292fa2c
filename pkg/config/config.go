package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	FaceGate  FaceGateConfig
	Assistant AssistantConfig
	Stats     StatsConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FaceGateConfig configures the external face recognition service.
type FaceGateConfig struct {
	BaseURL           string
	APIKey            string
	Skip              bool
	Threshold         float64
	FallbackThreshold float64
	Timeout           time.Duration
}

// AssistantConfig configures the natural-language query assistant.
type AssistantConfig struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HistoryTTL time.Duration
	MaxTurns   int
}

// StatsConfig governs cache behaviour for statistics endpoints.
type StatsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ExportsConfig controls where generated report files land.
type ExportsConfig struct {
	StorageDir string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.FaceGate = FaceGateConfig{
		BaseURL:           v.GetString("FACEGATE_BASE_URL"),
		APIKey:            v.GetString("FACEGATE_API_KEY"),
		Skip:              v.GetBool("FACEGATE_SKIP"),
		Threshold:         v.GetFloat64("FACEGATE_THRESHOLD"),
		FallbackThreshold: v.GetFloat64("FACEGATE_FALLBACK_THRESHOLD"),
		Timeout:           parseDuration(v.GetString("FACEGATE_TIMEOUT"), 15*time.Second),
	}

	cfg.Assistant = AssistantConfig{
		Enabled:    v.GetBool("ASSISTANT_ENABLED"),
		BaseURL:    v.GetString("ASSISTANT_BASE_URL"),
		APIKey:     v.GetString("ASSISTANT_API_KEY"),
		Model:      v.GetString("ASSISTANT_MODEL"),
		Timeout:    parseDuration(v.GetString("ASSISTANT_TIMEOUT"), 30*time.Second),
		HistoryTTL: parseDuration(v.GetString("ASSISTANT_HISTORY_TTL"), time.Hour),
		MaxTurns:   v.GetInt("ASSISTANT_MAX_TURNS"),
	}

	cfg.Stats = StatsConfig{
		CacheEnabled: v.GetBool("STATS_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("STATS_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		StorageDir: v.GetString("EXPORTS_STORAGE_DIR"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "facetrack")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "facetrack-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FACEGATE_BASE_URL", "http://localhost:9000")
	v.SetDefault("FACEGATE_API_KEY", "")
	v.SetDefault("FACEGATE_SKIP", false)
	v.SetDefault("FACEGATE_THRESHOLD", 80)
	v.SetDefault("FACEGATE_FALLBACK_THRESHOLD", 70)
	v.SetDefault("FACEGATE_TIMEOUT", "15s")

	v.SetDefault("ASSISTANT_ENABLED", false)
	v.SetDefault("ASSISTANT_BASE_URL", "https://api.openai.com")
	v.SetDefault("ASSISTANT_API_KEY", "")
	v.SetDefault("ASSISTANT_MODEL", "gpt-4o-mini")
	v.SetDefault("ASSISTANT_TIMEOUT", "30s")
	v.SetDefault("ASSISTANT_HISTORY_TTL", "1h")
	v.SetDefault("ASSISTANT_MAX_TURNS", 6)

	v.SetDefault("STATS_CACHE_ENABLED", false)
	v.SetDefault("STATS_CACHE_TTL", "2m")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
