package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/hfm/hfm/internal/platform/middleware"
)

// minSecretLen is the shortest HS256 secret accepted outside development.
const minSecretLen = 32

// devJWTSecret is only used when ENV=development and JWT_SECRET is unset.
const devJWTSecret = "hfm-development-only-secret-change-me"

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	JWTIssuer       string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	BcryptCost      int           `mapstructure:"BCRYPT_COST"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaAlertTopic string        `mapstructure:"KAFKA_ALERT_TOPIC"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit       string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	warnings []string
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "BCRYPT_COST",
	"REDIS_URL", "KAFKA_BROKERS", "KAFKA_ALERT_TOPIC", "CORS_ORIGINS", "BODY_LIMIT",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MIGRATIONS_DIR", "SHUTDOWN_TIMEOUT",
}

// Load reads .env from the working directory, if present, then the
// environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error; environment variables always win over file values.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "hfm")
	v.SetDefault("ACCESS_TOKEN_TTL", "1h")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)
	v.SetDefault("KAFKA_ALERT_TOPIC", "health-alerts")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	// Bind explicitly so Unmarshal sees variables that have no default.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		cfg.warnings = append(cfg.warnings, "running in development mode (ENV=development)")
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
			cfg.warnings = append(cfg.warnings, "JWT_SECRET unset; using the built-in development secret")
		}
	}
	if cfg.RedisURL == "" {
		cfg.warnings = append(cfg.warnings, "REDIS_URL unset; token revocation is local to this instance")
	}

	return cfg, nil
}

// splitList normalizes a comma-separated list that viper may have decoded as
// a single element.
func splitList(decoded []string, raw string) []string {
	if len(decoded) == 1 && strings.Contains(decoded[0], ",") {
		decoded = nil
	}
	if decoded == nil && raw != "" {
		decoded = strings.Split(raw, ",")
	}
	out := decoded[:0]
	for _, s := range decoded {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Warnings lists insecure or degraded settings for the caller to log.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Validate checks that the configuration is safe to serve with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretLen {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minSecretLen, len(c.JWTSecret))
	}
	if !c.IsDev() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must not be the development secret when ENV=%q", c.Env)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL and REFRESH_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) are inconsistent", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := middleware.ParseSize(c.BodyLimit); err != nil {
		return fmt.Errorf("BODY_LIMIT: %w", err)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaAlertTopic == "" {
		return fmt.Errorf("KAFKA_ALERT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// BodyLimitBytes returns BODY_LIMIT in bytes. Call after Validate.
func (c *Config) BodyLimitBytes() int64 {
	n, _ := middleware.ParseSize(c.BodyLimit)
	return n
}
