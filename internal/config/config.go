// Package config загружает конфигурацию сервиса из окружения, .env и флагов CLI
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iudanet/aishu/internal/crypto"
	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/validation"
)

// EnvPrefix префикс переменных окружения: AISHU_HTTP_ADDR, AISHU_CSRF_SECRET...
const EnvPrefix = "AISHU"

// Ключи конфигурации
const (
	KeyHTTPAddr             = "http.addr"
	KeyEnvironment          = "environment"
	KeyCSRFSecret           = "csrf.secret"
	KeyJWTSecret            = "jwt.secret"
	KeyJWTAccessTTL         = "jwt.access_ttl"
	KeyStorageDriver        = "storage.driver"
	KeyStoragePath          = "storage.path"
	KeyCookiesSecure        = "cookies.secure"
	KeyAnalyticsBuffer      = "analytics.buffer"
	KeyAnalyticsTimeout     = "analytics.write_timeout"
	KeyFlagsCacheRefresh    = "flags.cache_refresh"
	KeyRateLimitAdminRate   = "ratelimit.admin_rate"
	KeyRateLimitAdminWindow = "ratelimit.admin_window"
	KeyLogLevel             = "log.level"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// devSecret используется вне production, если секрет не задан
const devSecret = "aishu-development-secret-do-not-use-in-production"

var (
	// ErrMissingSecret в production не задан csrf.secret или jwt.secret
	ErrMissingSecret = errors.New("secret is required in production")
	// ErrInvalidConfig недопустимое значение параметра
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config конфигурация сервиса
type Config struct {
	HTTPAddr      string
	Environment   models.Environment
	StorageDriver string
	StoragePath   string

	// JWTSecret подписывает access токены
	JWTSecret      []byte
	AccessTokenTTL time.Duration
	// CSRFKey и SessionKey выводятся из csrf.secret через HKDF
	CSRFKey    []byte
	SessionKey []byte
	// UsingDevSecret хотя бы один секрет взят из встроенного значения
	UsingDevSecret bool

	SecureCookies         bool
	AnalyticsBuffer       int
	AnalyticsWriteTimeout time.Duration
	FlagsCacheRefresh     time.Duration
	AdminRate             int
	AdminWindow           time.Duration
	LogLevel              slog.Level
}

// New создает viper с значениями по умолчанию и чтением переменных AISHU_*
// .env загружается, если существует; уже заданные переменные окружения не перезаписываются
func New(dotEnvPath string) (*viper.Viper, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", dotEnvPath, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyEnvironment, string(models.EnvDevelopment))
	v.SetDefault(KeyCSRFSecret, "")
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyJWTAccessTTL, 15*time.Minute)
	v.SetDefault(KeyStorageDriver, DriverSQLite)
	v.SetDefault(KeyStoragePath, "aishu.db")
	v.SetDefault(KeyAnalyticsBuffer, 1024)
	v.SetDefault(KeyAnalyticsTimeout, 2*time.Second)
	v.SetDefault(KeyFlagsCacheRefresh, 30*time.Second)
	v.SetDefault(KeyRateLimitAdminRate, 60)
	v.SetDefault(KeyRateLimitAdminWindow, time.Minute)
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load загружает и проверяет конфигурацию
func Load(dotEnvPath string) (*Config, error) {
	v, err := New(dotEnvPath)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper строит Config из уже настроенного viper (например, с привязанными флагами cobra)
func FromViper(v *viper.Viper) (*Config, error) {
	env, err := validation.ParseEnvironment(v.GetString(KeyEnvironment), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, KeyEnvironment, err)
	}

	cfg := &Config{
		HTTPAddr:              v.GetString(KeyHTTPAddr),
		Environment:           env,
		StorageDriver:         strings.ToLower(v.GetString(KeyStorageDriver)),
		StoragePath:           v.GetString(KeyStoragePath),
		AccessTokenTTL:        v.GetDuration(KeyJWTAccessTTL),
		SecureCookies:         env != models.EnvDevelopment,
		AnalyticsBuffer:       v.GetInt(KeyAnalyticsBuffer),
		AnalyticsWriteTimeout: v.GetDuration(KeyAnalyticsTimeout),
		FlagsCacheRefresh:     v.GetDuration(KeyFlagsCacheRefresh),
		AdminRate:             v.GetInt(KeyRateLimitAdminRate),
		AdminWindow:           v.GetDuration(KeyRateLimitAdminWindow),
	}

	// Без явного значения Secure cookies включены везде, кроме development
	if v.IsSet(KeyCookiesSecure) {
		cfg.SecureCookies = v.GetBool(KeyCookiesSecure)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, KeyLogLevel, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	csrfSecret, err := cfg.secret(v, KeyCSRFSecret)
	if err != nil {
		return nil, err
	}
	jwtSecret, err := cfg.secret(v, KeyJWTSecret)
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = []byte(jwtSecret)

	if cfg.CSRFKey, err = crypto.DeriveKey([]byte(csrfSecret), crypto.PurposeCSRF); err != nil {
		return nil, fmt.Errorf("failed to derive csrf key: %w", err)
	}
	if cfg.SessionKey, err = crypto.DeriveKey([]byte(csrfSecret), crypto.PurposeSession); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	return cfg, nil
}

// secret возвращает секрет или встроенное значение вне production
func (c *Config) secret(v *viper.Viper, key string) (string, error) {
	if s := v.GetString(key); s != "" {
		return s, nil
	}
	if c.Environment == models.EnvProduction {
		return "", fmt.Errorf("%w: %s", ErrMissingSecret, key)
	}
	c.UsingDevSecret = true
	return devSecret, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("%w: %s must be %q or %q, got %q", ErrInvalidConfig, KeyStorageDriver, DriverSQLite, DriverBolt, c.StorageDriver)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyStoragePath)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfig, KeyHTTPAddr)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyJWTAccessTTL)
	}
	if c.AnalyticsBuffer <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyAnalyticsBuffer)
	}
	if c.AnalyticsWriteTimeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyAnalyticsTimeout)
	}
	if c.FlagsCacheRefresh <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyFlagsCacheRefresh)
	}
	if c.AdminRate <= 0 || c.AdminWindow <= 0 {
		return fmt.Errorf("%w: admin rate limit must be positive", ErrInvalidConfig)
	}
	return nil
}
