package config

import (
	"log"

	"instructly/models"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	AdminJWTSecret    string `mapstructure:"ADMIN_JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Stripe configuration.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Pricing: student fee and per-tier instructor platform fee, as
	// fractions (0.10 == 10%).
	StudentFeePct float64            `mapstructure:"STUDENT_FEE_PCT"`
	TierFeePct    map[string]float64 `mapstructure:"TIER_FEE_PCT"`

	// Authorization scheduling: holds are not created further than
	// AuthHorizonHours ahead of the lesson start.
	AuthHorizonHours       int `mapstructure:"AUTH_HORIZON_HOURS"`
	AuthMaxAttempts        int `mapstructure:"AUTH_MAX_ATTEMPTS"`
	AuthBackoffBaseMinutes int `mapstructure:"AUTH_BACKOFF_BASE_MINUTES"`

	CaptureMaxAttempts        int `mapstructure:"CAPTURE_MAX_ATTEMPTS"`
	CaptureBackoffBaseMinutes int `mapstructure:"CAPTURE_BACKOFF_BASE_MINUTES"`

	// Booking lock: how long one acquisition attempt waits, and the TTL
	// after which an abandoned lock self-releases.
	LockWaitMs int `mapstructure:"LOCK_WAIT_MS"`
	LockTTLMs  int `mapstructure:"LOCK_TTL_MS"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_LOCK_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "instructly")
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("STUDENT_FEE_PCT", 0.10)
	viper.SetDefault("TIER_FEE_PCT", map[string]float64{
		"standard": 0.15,
		"pro":      0.10,
		"elite":    0.08,
	})
	viper.SetDefault("AUTH_HORIZON_HOURS", 72)
	viper.SetDefault("AUTH_MAX_ATTEMPTS", 5)
	viper.SetDefault("AUTH_BACKOFF_BASE_MINUTES", 10)
	viper.SetDefault("CAPTURE_MAX_ATTEMPTS", 5)
	viper.SetDefault("CAPTURE_BACKOFF_BASE_MINUTES", 15)
	viper.SetDefault("LOCK_WAIT_MS", 3000)
	viper.SetDefault("LOCK_TTL_MS", 30000)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// Pricing returns the fee configuration consumed by the charge builder.
func Pricing() models.PricingConfig {
	return models.PricingConfig{
		StudentFeePct: AppConfig.StudentFeePct,
		TierFeePct:    AppConfig.TierFeePct,
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
