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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Claims        ClaimsConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to validate bearer tokens minted by
// the MunLink auth service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClaimsConfig configures claim ticket issuance, reveal throttling and QR links.
type ClaimsConfig struct {
	HashKey          string
	EncryptionKey    string
	TokenTTL         time.Duration
	RevealLimit      int
	RevealWindow     time.Duration
	QRURLTTL         time.Duration
	QRSigningSecret  string
	QRSize           int
	AdminWebBaseURL  string
	PublicAPIBaseURL string
}

// NotificationsConfig controls the resident pickup email.
type NotificationsConfig struct {
	ResendAPIKey string
	EmailFrom    string
	Workers      int
	Retries      int
	WebBaseURL   string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	revealLimit := v.GetInt("CLAIM_REVEAL_LIMIT")
	if revealLimit <= 0 {
		revealLimit = 5
	}
	qrSize := v.GetInt("CLAIM_QR_SIZE")
	if qrSize < 128 {
		qrSize = 512
	}
	cfg.Claims = ClaimsConfig{
		HashKey:          v.GetString("CLAIM_HASH_KEY"),
		EncryptionKey:    v.GetString("CLAIM_ENC_KEY"),
		TokenTTL:         parseDuration(v.GetString("CLAIM_TOKEN_TTL"), 14*24*time.Hour),
		RevealLimit:      revealLimit,
		RevealWindow:     parseDuration(v.GetString("CLAIM_REVEAL_WINDOW"), 15*time.Minute),
		QRURLTTL:         parseDuration(v.GetString("CLAIM_QR_URL_TTL"), 10*time.Minute),
		QRSigningSecret:  v.GetString("CLAIM_QR_SIGNING_SECRET"),
		QRSize:           qrSize,
		AdminWebBaseURL:  strings.TrimRight(v.GetString("ADMIN_WEB_BASE_URL"), "/"),
		PublicAPIBaseURL: strings.TrimRight(v.GetString("PUBLIC_API_BASE_URL"), "/"),
	}

	cfg.Notifications = NotificationsConfig{
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		EmailFrom:    v.GetString("EMAIL_FROM"),
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		Retries:      v.GetInt("NOTIFY_RETRIES"),
		WebBaseURL:   strings.TrimRight(v.GetString("WEB_BASE_URL"), "/"),
	}

	return cfg, nil
}

// Validate reports configuration that would make claim issuance unsafe in production.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	switch {
	case c.JWT.Secret == "" || c.JWT.Secret == "dev_secret":
		return errors.New("JWT_SECRET must be set in production")
	case len(c.Claims.HashKey) < 32:
		return errors.New("CLAIM_HASH_KEY must be at least 32 characters in production")
	case len(c.Claims.EncryptionKey) < 32:
		return errors.New("CLAIM_ENC_KEY must be at least 32 characters in production")
	case c.Claims.QRSigningSecret == "" || c.Claims.QRSigningSecret == "dev_claim_qr_secret":
		return errors.New("CLAIM_QR_SIGNING_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "munlink")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_DIR", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CLAIM_HASH_KEY", "dev_claim_hash_key_change_me_32b!")
	v.SetDefault("CLAIM_ENC_KEY", "dev_claim_enc_key_change_me_32by!")
	v.SetDefault("CLAIM_TOKEN_TTL", "336h")
	v.SetDefault("CLAIM_REVEAL_LIMIT", 5)
	v.SetDefault("CLAIM_REVEAL_WINDOW", "15m")
	v.SetDefault("CLAIM_QR_URL_TTL", "10m")
	v.SetDefault("CLAIM_QR_SIGNING_SECRET", "dev_claim_qr_secret")
	v.SetDefault("CLAIM_QR_SIZE", 512)
	v.SetDefault("ADMIN_WEB_BASE_URL", "http://localhost:3001")
	v.SetDefault("PUBLIC_API_BASE_URL", "")

	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("EMAIL_FROM", "MunLink <noreply@munlink.local>")
	v.SetDefault("NOTIFY_WORKERS", 1)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("WEB_BASE_URL", "http://localhost:3000")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
