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

// Missing-anchor policies for the proximity check.
const (
	MissingAnchorPermit = "permit"
	MissingAnchorDeny   = "deny"
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
	Checkin  CheckinConfig
	Session  SessionConfig
	Token    TokenConfig
	Reports  ReportsConfig
	Exports  ExportsConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CheckinConfig governs the proximity-gated check-in path.
type CheckinConfig struct {
	RadiusMeters float64
	// OnMissingAnchor decides the proximity outcome when a session has
	// no recorded anchor coordinates: "permit" or "deny".
	OnMissingAnchor string
}

// SessionConfig bounds attendance session lifetimes.
type SessionConfig struct {
	// MaxDuration is the hard cap after which a session is no longer
	// open regardless of its active flag.
	MaxDuration time.Duration
}

// TokenConfig governs check-in token issuance.
type TokenConfig struct {
	TTL    time.Duration
	Length int
	QRSize int
}

// ReportsConfig tunes roster report caching.
type ReportsConfig struct {
	CacheTTL time.Duration
}

// ExportsConfig governs archived export storage.
type ExportsConfig struct {
	Dir          string
	SignedURLTTL time.Duration
	Retention    time.Duration
	Workers      int
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Checkin = CheckinConfig{
		RadiusMeters:    v.GetFloat64("CHECKIN_RADIUS_METERS"),
		OnMissingAnchor: normalizeAnchorPolicy(v.GetString("CHECKIN_ON_MISSING_ANCHOR")),
	}

	cfg.Session = SessionConfig{
		MaxDuration: parseDuration(v.GetString("SESSION_MAX_DURATION"), 4*time.Hour),
	}

	cfg.Token = TokenConfig{
		TTL:    parseDuration(v.GetString("TOKEN_TTL"), 4*time.Hour),
		Length: v.GetInt("TOKEN_LENGTH"),
		QRSize: v.GetInt("TOKEN_QR_SIZE"),
	}

	cfg.Reports = ReportsConfig{
		CacheTTL: parseDuration(v.GetString("REPORTS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Dir:          v.GetString("EXPORTS_DIR"),
		SignedURLTTL: parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		Retention:    parseDuration(v.GetString("EXPORTS_RETENTION"), 7*24*time.Hour),
		Workers:      v.GetInt("EXPORTS_WORKERS"),
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
	v.SetDefault("DB_NAME", "uni_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHECKIN_RADIUS_METERS", 50)
	v.SetDefault("CHECKIN_ON_MISSING_ANCHOR", MissingAnchorPermit)

	v.SetDefault("SESSION_MAX_DURATION", "4h")

	v.SetDefault("TOKEN_TTL", "4h")
	v.SetDefault("TOKEN_LENGTH", 6)
	v.SetDefault("TOKEN_QR_SIZE", 256)

	v.SetDefault("REPORTS_CACHE_TTL", "5m")

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_RETENTION", "168h")
	v.SetDefault("EXPORTS_WORKERS", 2)
}

func normalizeAnchorPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case MissingAnchorDeny:
		return MissingAnchorDeny
	default:
		return MissingAnchorPermit
	}
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
