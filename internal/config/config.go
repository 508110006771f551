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

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	PaymentEventQueue         string `mapstructure:"PAYMENT_EVENT_QUEUE"`
	GatewayAPIBaseURL         string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewayAPIKey             string `mapstructure:"GATEWAY_API_KEY"`
	PaypalAPIBaseURL          string `mapstructure:"PAYPAL_API_BASE_URL"`
	PaypalClientID            string `mapstructure:"PAYPAL_CLIENT_ID"`
	PaypalSecret              string `mapstructure:"PAYPAL_SECRET"`
	PaypalCancelURL           string `mapstructure:"PAYPAL_CANCEL_URL"`
	PaypalRedirectURL         string `mapstructure:"PAYPAL_REDIRECT_URL"`
	JWKSURL                   string `mapstructure:"JWKS_URL"`
	AuthAudience              string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer                string `mapstructure:"AUTH_ISSUER"`
	PaymentFloorUSD           string `mapstructure:"PAYMENT_FLOOR_USD"`
	PaymentCeilingUSD         string `mapstructure:"PAYMENT_CEILING_USD"`
	PaymentRateLimitPerMinute int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
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
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("PAYMENT_EVENT_QUEUE", "billing_service.payment_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "billing:rate_limit")
	viper.SetDefault("PAYMENT_FLOOR_USD", "5.00")
	viper.SetDefault("PAYMENT_CEILING_USD", "10000.00")
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PAYPAL_CANCEL_URL", "https://cloud.linode.com/billing")
	viper.SetDefault("PAYPAL_REDIRECT_URL", "https://cloud.linode.com/billing")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BILLING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENT_QUEUE")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_API_KEY", "GATEWAY_API_KEY", "BRAINTREE_API_KEY")
	_ = viper.BindEnv("PAYPAL_API_BASE_URL")
	_ = viper.BindEnv("PAYPAL_CLIENT_ID")
	_ = viper.BindEnv("PAYPAL_SECRET")
	_ = viper.BindEnv("PAYPAL_CANCEL_URL")
	_ = viper.BindEnv("PAYPAL_REDIRECT_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("PAYMENT_FLOOR_USD")
	_ = viper.BindEnv("PAYMENT_CEILING_USD")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

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
		config.RedisRateLimitPrefix = "billing:rate_limit"
	}

	config.PaymentFloorUSD = normalizeAmount(config.PaymentFloorUSD, "5.00", "PAYMENT_FLOOR_USD")
	config.PaymentCeilingUSD = normalizeAmount(config.PaymentCeilingUSD, "10000.00", "PAYMENT_CEILING_USD")

	if config.PaymentRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative payment rate limit configured; coercing to zero\" per_minute=%d", config.PaymentRateLimitPerMinute)
		config.PaymentRateLimitPerMinute = 0
	}

	return
}

// normalizeAmount validates a configured USD amount string and falls back to the
// default when it cannot be parsed as a positive decimal.
func normalizeAmount(value, fallback, envName string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil || parsed.LessThanOrEqual(decimal.Zero) {
		log.Printf("level=warn component=config msg=\"invalid amount; using default\" env=%s value=%q", envName, trimmed)
		return fallback
	}
	return parsed.StringFixed(2)
}
