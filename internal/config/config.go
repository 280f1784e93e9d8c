/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the studio-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	StudioEventExchange  string `mapstructure:"STUDIO_EVENT_EXCHANGE"`
	ClerkJWKSURL         string `mapstructure:"CLERK_JWKS_URL"`
	DashboardOrigin      string `mapstructure:"DASHBOARD_ORIGIN"`

	// Payment provider (LemonSqueezy).
	LemonAPIBaseURL      string `mapstructure:"LEMONSQUEEZY_API_BASE_URL"`
	LemonAPIKey          string `mapstructure:"LEMONSQUEEZY_API_KEY"`
	LemonStoreID         string `mapstructure:"LEMONSQUEEZY_STORE_ID"`
	LemonSigningSecret   string `mapstructure:"LEMONSQUEEZY_SIGNING_SECRET"`
	CheckoutRedirectURL  string `mapstructure:"CHECKOUT_REDIRECT_URL"`
	SharedWebhookSecret  string `mapstructure:"SHARED_WEBHOOK_SECRET"`

	// Generation pipeline (Modal).
	ModalAPIBaseURL      string `mapstructure:"MODAL_API_BASE_URL"`
	ModalKey             string `mapstructure:"MODAL_KEY"`
	ModalSecret          string `mapstructure:"MODAL_SECRET"`
	GenerateSecret       string `mapstructure:"GENERATE_WEBHOOK_SECRET"`
	DispatchTimeoutSecs  int    `mapstructure:"DISPATCH_TIMEOUT_SECONDS"`
	DispatchMaxAttempts  int    `mapstructure:"DISPATCH_MAX_ATTEMPTS"`

	// Affiliate tracking (FirstPromoter).
	FirstPromoterAPIBaseURL string `mapstructure:"FIRSTPROMOTER_API_BASE_URL"`
	FirstPromoterAPIKey     string `mapstructure:"FIRSTPROMOTER_API_KEY"`

	// Object storage (R2 via the S3 API).
	R2AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	R2Bucket          string `mapstructure:"R2_BUCKET"`
	R2PresignTTLSecs  int    `mapstructure:"R2_PRESIGN_TTL_SECONDS"`

	// Credit-consuming AI actions.
	SimilarImageCost     int64 `mapstructure:"SIMILAR_IMAGE_CREDIT_COST"`
	EditImageCost        int64 `mapstructure:"EDIT_IMAGE_CREDIT_COST"`
	AIActionRateLimitMin int   `mapstructure:"AI_ACTION_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STUDIO_EVENT_EXCHANGE", "studio_service.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "proshoot:rate_limit")
	viper.SetDefault("LEMONSQUEEZY_API_BASE_URL", "https://api.lemonsqueezy.com")
	viper.SetDefault("FIRSTPROMOTER_API_BASE_URL", "https://firstpromoter.com/api/v1")
	viper.SetDefault("DISPATCH_TIMEOUT_SECONDS", 45)
	viper.SetDefault("DISPATCH_MAX_ATTEMPTS", 3)
	viper.SetDefault("R2_PRESIGN_TTL_SECONDS", 3600)
	viper.SetDefault("SIMILAR_IMAGE_CREDIT_COST", 500)
	viper.SetDefault("EDIT_IMAGE_CREDIT_COST", 50)
	viper.SetDefault("AI_ACTION_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "STUDIO_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STUDIO_EVENT_EXCHANGE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("DASHBOARD_ORIGIN")
	_ = viper.BindEnv("LEMONSQUEEZY_API_BASE_URL")
	_ = viper.BindEnv("LEMONSQUEEZY_API_KEY")
	_ = viper.BindEnv("LEMONSQUEEZY_STORE_ID")
	_ = viper.BindEnv("LEMONSQUEEZY_SIGNING_SECRET")
	_ = viper.BindEnv("CHECKOUT_REDIRECT_URL")
	_ = viper.BindEnv("SHARED_WEBHOOK_SECRET")
	_ = viper.BindEnv("MODAL_API_BASE_URL")
	_ = viper.BindEnv("MODAL_KEY")
	_ = viper.BindEnv("MODAL_SECRET")
	_ = viper.BindEnv("GENERATE_WEBHOOK_SECRET")
	_ = viper.BindEnv("DISPATCH_TIMEOUT_SECONDS")
	_ = viper.BindEnv("DISPATCH_MAX_ATTEMPTS")
	_ = viper.BindEnv("FIRSTPROMOTER_API_BASE_URL")
	_ = viper.BindEnv("FIRSTPROMOTER_API_KEY")
	_ = viper.BindEnv("R2_ACCOUNT_ID")
	_ = viper.BindEnv("R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("R2_BUCKET")
	_ = viper.BindEnv("R2_PRESIGN_TTL_SECONDS")
	_ = viper.BindEnv("SIMILAR_IMAGE_CREDIT_COST")
	_ = viper.BindEnv("EDIT_IMAGE_CREDIT_COST")
	_ = viper.BindEnv("AI_ACTION_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "proshoot:rate_limit"
	}

	if config.DispatchTimeoutSecs <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive dispatch timeout configured; using default\" seconds=%d", config.DispatchTimeoutSecs)
		config.DispatchTimeoutSecs = 45
	}
	if config.DispatchMaxAttempts <= 0 {
		config.DispatchMaxAttempts = 3
	}
	if config.R2PresignTTLSecs <= 0 {
		config.R2PresignTTLSecs = 3600
	}
	if config.SimilarImageCost <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive similar-image cost configured; using default\" cost=%d", config.SimilarImageCost)
		config.SimilarImageCost = 500
	}
	if config.EditImageCost <= 0 {
		config.EditImageCost = 50
	}
	if config.AIActionRateLimitMin <= 0 {
		config.AIActionRateLimitMin = 30
	}

	return
}
