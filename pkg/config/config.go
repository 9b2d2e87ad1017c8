package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Rate limiter backends.
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Notification publisher backends.
const (
	NotifyBackendLog   = "log"
	NotifyBackendKafka = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	CheckIn       CheckInConfig
	RateLimit     RateLimitConfig
	Notifications NotificationConfig
	Cache         CacheConfig
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

// JWTConfig describes how identity provider tokens are verified.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CheckInConfig tunes the rotating QR token protocol.
type CheckInConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	WindowGrace time.Duration
}

// RateLimitRule bounds how many calls a client may make within Window.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig selects the limiter backend and per-scope rules.
type RateLimitConfig struct {
	Enabled       bool
	Backend       string
	SweepInterval time.Duration
	Default       RateLimitRule
	Rules         map[string]RateLimitRule
}

// Rule returns the configured rule for scope, falling back to the default.
func (c RateLimitConfig) Rule(scope string) RateLimitRule {
	if rule, ok := c.Rules[scope]; ok {
		return rule
	}
	return c.Default
}

// NotificationConfig controls the fire-and-forget event sink.
type NotificationConfig struct {
	Enabled      bool
	Backend      string
	KafkaBrokers []string
	Topic        string
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
}

// CacheConfig governs the redis-backed read cache for hour summaries.
type CacheConfig struct {
	Enabled  bool
	HoursTTL time.Duration
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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("APP_TIMEZONE")

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
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: v.GetString("JWT_AUDIENCE"),
		Leeway:   parseDuration(v.GetString("JWT_LEEWAY"), 30*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CheckIn = CheckInConfig{
		TokenSecret: v.GetString("CHECKIN_TOKEN_SECRET"),
		TokenTTL:    parseDuration(v.GetString("CHECKIN_TOKEN_TTL"), 30*time.Second),
		WindowGrace: parseDuration(v.GetString("CHECKIN_WINDOW_GRACE"), 15*time.Minute),
	}

	defaultRule, err := ParseRateLimitRule(v.GetString("RATE_LIMIT_DEFAULT"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_DEFAULT: %w", err)
	}
	rules, err := ParseRateLimitRules(v.GetString("RATE_LIMIT_RULES"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RULES: %w", err)
	}
	cfg.RateLimit = RateLimitConfig{
		Enabled:       v.GetBool("ENABLE_RATE_LIMIT"),
		Backend:       strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		SweepInterval: parseDuration(v.GetString("RATE_LIMIT_SWEEP_INTERVAL"), time.Minute),
		Default:       defaultRule,
		Rules:         rules,
	}

	cfg.Notifications = NotificationConfig{
		Enabled:      v.GetBool("ENABLE_NOTIFICATIONS"),
		Backend:      strings.ToLower(v.GetString("NOTIFY_BACKEND")),
		KafkaBrokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:        v.GetString("NOTIFY_TOPIC"),
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		BufferSize:   v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries:   v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		HoursTTL: parseDuration(v.GetString("HOURS_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("APP_TIMEZONE", "UTC")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "volunteer_hours")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_LEEWAY", "30s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHECKIN_TOKEN_SECRET", "dev_checkin_secret")
	v.SetDefault("CHECKIN_TOKEN_TTL", "30s")
	v.SetDefault("CHECKIN_WINDOW_GRACE", "15m")

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_BACKEND", RateLimitBackendMemory)
	v.SetDefault("RATE_LIMIT_SWEEP_INTERVAL", "1m")
	v.SetDefault("RATE_LIMIT_DEFAULT", "30/1m")
	v.SetDefault("RATE_LIMIT_RULES", "enroll=10/1m,review=60/1m,cancel=10/1m,checkin=20/1m,token=10/1m,session=30/1m,activity=30/1m")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFY_BACKEND", NotifyBackendLog)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("NOTIFY_TOPIC", "volunteer.notifications")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("HOURS_CACHE_TTL", "5m")
}

// ParseRateLimitRule parses "<limit>/<window>", e.g. "10/1m".
func ParseRateLimitRule(raw string) (RateLimitRule, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return RateLimitRule{}, fmt.Errorf("invalid rule %q, expected <limit>/<window>", raw)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || limit <= 0 {
		return RateLimitRule{}, fmt.Errorf("invalid limit in rule %q", raw)
	}
	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || window <= 0 {
		return RateLimitRule{}, fmt.Errorf("invalid window in rule %q", raw)
	}
	return RateLimitRule{Limit: limit, Window: window}, nil
}

// ParseRateLimitRules parses a comma separated list of scope=<limit>/<window> pairs.
func ParseRateLimitRules(raw string) (map[string]RateLimitRule, error) {
	rules := make(map[string]RateLimitRule)
	for _, entry := range splitAndTrim(raw) {
		scope, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(scope) == "" {
			return nil, fmt.Errorf("invalid entry %q, expected scope=<limit>/<window>", entry)
		}
		rule, err := ParseRateLimitRule(value)
		if err != nil {
			return nil, err
		}
		rules[strings.ToLower(strings.TrimSpace(scope))] = rule
	}
	return rules, nil
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
