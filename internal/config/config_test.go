package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "PAYMENT_FLOOR_USD")
	unsetEnvWithCleanup(t, "PAYMENT_CEILING_USD")
	unsetEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "PORT")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentFloorUSD != "5.00" {
		t.Fatalf("expected default payment floor 5.00, got %q", cfg.PaymentFloorUSD)
	}
	if cfg.PaymentCeilingUSD != "10000.00" {
		t.Fatalf("expected default payment ceiling 10000.00, got %q", cfg.PaymentCeilingUSD)
	}
	if cfg.PaymentEventQueue != "billing_service.payment_updates" {
		t.Fatalf("unexpected default payment event queue %q", cfg.PaymentEventQueue)
	}
	if cfg.RedisRateLimitPrefix != "billing:rate_limit" {
		t.Fatalf("unexpected default rate limit prefix %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_UsesBraintreeAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "GATEWAY_API_KEY")
	setEnvWithCleanup(t, "BRAINTREE_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GatewayAPIKey != "alias-only-key" {
		t.Fatalf("expected GatewayAPIKey from alias env var, got %q", cfg.GatewayAPIKey)
	}
}

func TestLoadConfig_InvalidFloorFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_FLOOR_USD", "not-a-number")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentFloorUSD != "5.00" {
		t.Fatalf("expected invalid floor to fall back to 5.00, got %q", cfg.PaymentFloorUSD)
	}
}

func TestLoadConfig_BindsAuthAudienceAndIssuer(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "AUTH_AUDIENCE", "https://api.linode.com")
	setEnvWithCleanup(t, "AUTH_ISSUER", "https://login.linode.com/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthAudience != "https://api.linode.com" {
		t.Fatalf("expected AuthAudience from env, got %q", cfg.AuthAudience)
	}
	if cfg.AuthIssuer != "https://login.linode.com/" {
		t.Fatalf("expected AuthIssuer from env, got %q", cfg.AuthIssuer)
	}
}

func TestLoadConfig_NegativeRateLimitCoercedToZero(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE", "-3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentRateLimitPerMinute != 0 {
		t.Fatalf("expected negative rate limit coerced to 0, got %d", cfg.PaymentRateLimitPerMinute)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
			return
		}
		os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		}
	})
}
