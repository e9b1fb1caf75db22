package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Режимы разрешения редирект-токенов
const (
	LedgerPolicyRepeatable = "repeatable"
	LedgerPolicySingleUse  = "single_use"
)

// Хранилища редирект-леджера
const (
	LedgerBackendMemory = "memory"
	LedgerBackendRedis  = "redis"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Risk        RiskConfig
	Ledger      LedgerConfig
	Attribution AttributionConfig
	Points      PointsConfig
}

type AppConfig struct {
	Port        string
	Env         string
	BaseURL     string
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled сообщает, настроен ли PostgreSQL
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled сообщает, настроен ли Redis
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> name/description
}

type RateLimitConfig struct {
	RequestsPerSecond         float64
	BurstSize                 int
	IdentityRequestsPerSecond float64
	IdentityBurstSize         int
}

type RiskConfig struct {
	HighThreshold     int
	VarianceThreshold float64 // секунды², ниже этого значения тайминг считается скриптовым
	MaxIdentities     int
	MaxEvents         int
	SweepInterval     time.Duration
	ClickGating       bool
}

type LedgerConfig struct {
	Backend     string
	Policy      string
	TTL         time.Duration
	Capacity    int
	TokenLength int
	FallbackURL string
	AffiliateID string
}

type AttributionConfig struct {
	Workers int
	Buffer  int
}

type PointsConfig struct {
	PerBatch int
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8000")
	viper.SetDefault("CORS_ORIGINS", "*")

	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)

	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("IDENTITY_RATE_LIMIT_RPS", 5)
	viper.SetDefault("IDENTITY_RATE_LIMIT_BURST", 10)

	viper.SetDefault("RISK_HIGH_THRESHOLD", 80)
	viper.SetDefault("RISK_VARIANCE_THRESHOLD", 1.0)
	viper.SetDefault("RISK_MAX_IDENTITIES", 100000)
	viper.SetDefault("RISK_MAX_EVENTS", 10000)
	viper.SetDefault("RISK_SWEEP_INTERVAL", time.Minute)
	viper.SetDefault("RISK_CLICK_GATING", true)

	viper.SetDefault("LEDGER_BACKEND", LedgerBackendMemory)
	viper.SetDefault("LEDGER_POLICY", LedgerPolicyRepeatable)
	viper.SetDefault("LEDGER_TTL", 24*time.Hour)
	viper.SetDefault("LEDGER_CAPACITY", 200000)
	viper.SetDefault("LEDGER_TOKEN_LENGTH", 10)
	viper.SetDefault("LEDGER_FALLBACK_URL", "https://example.com?aff_id=datapay")
	viper.SetDefault("AFFILIATE_ID", "datapay")

	viper.SetDefault("ATTRIBUTION_WORKERS", 3)
	viper.SetDefault("ATTRIBUTION_BUFFER", 1000)

	viper.SetDefault("POINTS_PER_BATCH", 10)
}

func Load() (*Config, error) {
	setDefaults()
	viper.AutomaticEnv()

	// .env необязателен: в контейнере всё приходит из окружения
	if _, err := os.Stat(".env"); err == nil {
		viper.SetConfigFile(".env")
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.Env = viper.GetString("APP_ENV")
	cfg.App.BaseURL = strings.TrimRight(viper.GetString("APP_BASE_URL"), "/")
	cfg.App.CORSOrigins = splitList(viper.GetString("CORS_ORIGINS"))

	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")

	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = viper.GetInt("REDIS_DB")

	// Format: key1:name1,key2:name2
	cfg.Auth.APIKeys = parseAPIKeys(viper.GetString("API_KEYS"))

	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")
	cfg.RateLimit.IdentityRequestsPerSecond = viper.GetFloat64("IDENTITY_RATE_LIMIT_RPS")
	cfg.RateLimit.IdentityBurstSize = viper.GetInt("IDENTITY_RATE_LIMIT_BURST")

	cfg.Risk.HighThreshold = viper.GetInt("RISK_HIGH_THRESHOLD")
	cfg.Risk.VarianceThreshold = viper.GetFloat64("RISK_VARIANCE_THRESHOLD")
	cfg.Risk.MaxIdentities = viper.GetInt("RISK_MAX_IDENTITIES")
	cfg.Risk.MaxEvents = viper.GetInt("RISK_MAX_EVENTS")
	cfg.Risk.SweepInterval = viper.GetDuration("RISK_SWEEP_INTERVAL")
	cfg.Risk.ClickGating = viper.GetBool("RISK_CLICK_GATING")

	cfg.Ledger.Backend = strings.ToLower(viper.GetString("LEDGER_BACKEND"))
	cfg.Ledger.Policy = strings.ToLower(viper.GetString("LEDGER_POLICY"))
	cfg.Ledger.TTL = viper.GetDuration("LEDGER_TTL")
	cfg.Ledger.Capacity = viper.GetInt("LEDGER_CAPACITY")
	cfg.Ledger.TokenLength = viper.GetInt("LEDGER_TOKEN_LENGTH")
	cfg.Ledger.FallbackURL = viper.GetString("LEDGER_FALLBACK_URL")
	cfg.Ledger.AffiliateID = viper.GetString("AFFILIATE_ID")

	cfg.Attribution.Workers = viper.GetInt("ATTRIBUTION_WORKERS")
	cfg.Attribution.Buffer = viper.GetInt("ATTRIBUTION_BUFFER")

	cfg.Points.PerBatch = viper.GetInt("POINTS_PER_BATCH")

	cfg.normalize()

	return &cfg, nil
}

// normalize подставляет безопасные значения вместо невалидных
func (c *Config) normalize() {
	if c.Ledger.Policy != LedgerPolicySingleUse {
		c.Ledger.Policy = LedgerPolicyRepeatable
	}
	if c.Ledger.Backend != LedgerBackendRedis {
		c.Ledger.Backend = LedgerBackendMemory
	}
	if c.Ledger.TokenLength < 6 {
		c.Ledger.TokenLength = 6
	}
	if c.Risk.HighThreshold <= 0 || c.Risk.HighThreshold > 100 {
		c.Risk.HighThreshold = 80
	}
	if c.Attribution.Workers <= 0 {
		c.Attribution.Workers = 1
	}
}

// IsProduction сообщает, запущено ли приложение в боевом окружении
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
