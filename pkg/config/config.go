package config

import (
	"errors"
	"os"
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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Filters  FiltersConfig
	Entities EntitiesConfig
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

	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PingTimeout time.Duration
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig controls zap output. File enables a rotating file sink next to stdout.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// FiltersConfig governs saved filter behaviour.
type FiltersConfig struct {
	// EditByUser restricts visibility of saved filters to their listed users and groups.
	EditByUser         bool
	QueryFormat        string
	MaxQueryLength     int
	LookupCacheEnabled bool
	LookupCacheTTL     time.Duration
}

// EntitiesConfig points at the registry of filterable entities.
type EntitiesConfig struct {
	File string
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

		ApplicationName: v.GetString("DB_APPLICATION_NAME"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PingTimeout: parseDuration(v.GetString("REDIS_PING_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	maxQueryLength := v.GetInt("FILTERS_MAX_QUERY_LENGTH")
	if maxQueryLength <= 0 {
		maxQueryLength = 2048
	}
	cfg.Filters = FiltersConfig{
		EditByUser:         v.GetBool("FILTERS_EDIT_BY_USER"),
		QueryFormat:        strings.ToLower(v.GetString("FILTERS_QUERY_FORMAT")),
		MaxQueryLength:     maxQueryLength,
		LookupCacheEnabled: v.GetBool("FILTERS_LOOKUP_CACHE_ENABLED"),
		LookupCacheTTL:     parseDuration(v.GetString("FILTERS_LOOKUP_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Entities = EntitiesConfig{File: v.GetString("ENTITIES_FILE")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "advanced_filters")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_APPLICATION_NAME", "advfilter-api")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PING_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	v.SetDefault("FILTERS_EDIT_BY_USER", true)
	v.SetDefault("FILTERS_QUERY_FORMAT", "json")
	v.SetDefault("FILTERS_MAX_QUERY_LENGTH", 2048)
	v.SetDefault("FILTERS_LOOKUP_CACHE_ENABLED", false)
	v.SetDefault("FILTERS_LOOKUP_CACHE_TTL", "5m")

	v.SetDefault("ENTITIES_FILE", "./entities.yaml")
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
