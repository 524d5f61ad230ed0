package config

import (
	"errors"
	"fmt"
	"io/fs"
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
	Security SecurityConfig
	Cache    CacheConfig
	Audit    AuditConfig
	CORS     CORSConfig
	Log      LogConfig
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

// RedisConfig is optional; an empty Host disables the registration throttle.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries the single static signing secret and token lifetimes.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	AccessTokenTTLMs  int64
	RefreshTokenTTLMs int64
}

// SecurityConfig holds brute-force and password policy settings.
type SecurityConfig struct {
	MaxLoginAttempts         int
	LockoutDurationMinutes   int
	PasswordMinLength        int
	BcryptCost               int
	RegistrationMaxPerWindow int
	RegistrationWindow       time.Duration
	TrustForwardedForHeader  bool
}

// LockoutDuration converts the configured minutes into a duration.
func (s SecurityConfig) LockoutDuration() time.Duration {
	return time.Duration(s.LockoutDurationMinutes) * time.Minute
}

// CacheConfig tunes the in-process user cache.
type CacheConfig struct {
	MaxEntries int
	WriteTTL   time.Duration
	AccessTTL  time.Duration
}

// AuditConfig tunes asynchronous audit persistence.
type AuditConfig struct {
	PersistEnabled bool
	Workers        int
	BufferSize     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	accessMs := v.GetInt64("JWT_ACCESS_TOKEN_TTL_MS")
	refreshMs := v.GetInt64("JWT_REFRESH_TOKEN_TTL_MS")
	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		AccessTokenTTLMs:  accessMs,
		RefreshTokenTTLMs: refreshMs,
		AccessTokenTTL:    time.Duration(accessMs) * time.Millisecond,
		RefreshTokenTTL:   time.Duration(refreshMs) * time.Millisecond,
	}

	cfg.Security = SecurityConfig{
		MaxLoginAttempts:         v.GetInt("SECURITY_MAX_LOGIN_ATTEMPTS"),
		LockoutDurationMinutes:   v.GetInt("SECURITY_LOCKOUT_DURATION_MINUTES"),
		PasswordMinLength:        v.GetInt("SECURITY_PASSWORD_MIN_LENGTH"),
		BcryptCost:               v.GetInt("SECURITY_BCRYPT_COST"),
		RegistrationMaxPerWindow: v.GetInt("REGISTRATION_MAX_PER_WINDOW"),
		RegistrationWindow:       parseDuration(v.GetString("REGISTRATION_WINDOW"), time.Hour),
		TrustForwardedForHeader:  v.GetBool("TRUST_X_FORWARDED_FOR"),
	}

	cfg.Cache = CacheConfig{
		MaxEntries: v.GetInt("USER_CACHE_MAX_ENTRIES"),
		WriteTTL:   parseDuration(v.GetString("USER_CACHE_WRITE_TTL"), 15*time.Minute),
		AccessTTL:  parseDuration(v.GetString("USER_CACHE_ACCESS_TTL"), 5*time.Minute),
	}

	cfg.Audit = AuditConfig{
		PersistEnabled: v.GetBool("AUDIT_PERSIST_ENABLED"),
		Workers:        v.GetInt("AUDIT_WORKERS"),
		BufferSize:     v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

// Validate rejects settings the auth core cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.Env == EnvProduction && len(c.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive (access=%dms refresh=%dms)", c.JWT.AccessTokenTTLMs, c.JWT.RefreshTokenTTLMs)
	}
	if c.JWT.RefreshTokenTTL < c.JWT.AccessTokenTTL {
		return errors.New("refresh token ttl must not be shorter than access token ttl")
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("SECURITY_MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.Security.LockoutDurationMinutes <= 0 {
		return errors.New("SECURITY_LOCKOUT_DURATION_MINUTES must be positive")
	}
	if c.Security.PasswordMinLength <= 0 {
		return errors.New("SECURITY_PASSWORD_MIN_LENGTH must be positive")
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
	v.SetDefault("DB_NAME", "realestate")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret_change_me_dev_secret_change_me")
	v.SetDefault("JWT_ISSUER", "realestate-auth")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL_MS", 15*60*1000)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL_MS", 7*24*60*60*1000)

	v.SetDefault("SECURITY_MAX_LOGIN_ATTEMPTS", 5)
	v.SetDefault("SECURITY_LOCKOUT_DURATION_MINUTES", 15)
	v.SetDefault("SECURITY_PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("SECURITY_BCRYPT_COST", 12)
	v.SetDefault("REGISTRATION_MAX_PER_WINDOW", 10)
	v.SetDefault("REGISTRATION_WINDOW", "1h")
	v.SetDefault("TRUST_X_FORWARDED_FOR", true)

	v.SetDefault("USER_CACHE_MAX_ENTRIES", 1000)
	v.SetDefault("USER_CACHE_WRITE_TTL", "15m")
	v.SetDefault("USER_CACHE_ACCESS_TTL", "5m")

	v.SetDefault("AUDIT_PERSIST_ENABLED", true)
	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_BUFFER_SIZE", 256)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
