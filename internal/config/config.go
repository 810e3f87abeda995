package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	AppleProductionBaseURL = "https://api.storekit.itunes.apple.com"
	AppleSandboxBaseURL    = "https://api.storekit-sandbox.itunes.apple.com"

	GoogleTokenURL         = "https://accounts.google.com/o/oauth2/token"
	GooglePublisherBaseURL = "https://androidpublisher.googleapis.com/"
)

const (
	appleEnvironmentSandbox    = "sandbox"
	appleEnvironmentProduction = "production"
)

type Config struct {
	Server   ServerConfig
	Apple    AppleConfig
	Google   GoogleConfig
	Vendor   VendorConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AppleConfig struct {
	APIToken    string
	Environment string
	BaseURL     string
}

type GoogleConfig struct {
	PackageName      string
	ClientID         string
	ClientSecret     string
	RefreshToken     string
	TokenURL         string
	PublisherBaseURL string
}

// VendorConfig applies to every outbound call. A zero Timeout leaves calls
// bounded only by the inbound request context.
type VendorConfig struct {
	Timeout time.Duration
}

func Load() (*Config, error) {
	appleEnv := strings.ToLower(getEnv("APPLE_ENVIRONMENT", appleEnvironmentProduction))

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Apple: AppleConfig{
			APIToken:    getEnv("APPLE_API_TOKEN", ""),
			Environment: appleEnv,
			BaseURL:     getEnv("APPLE_API_BASE_URL", appleBaseURL(appleEnv)),
		},
		Google: GoogleConfig{
			PackageName:      getEnv("ANDROID_PACKAGE_NAME", ""),
			ClientID:         getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:     getEnv("GOOGLE_CLIENT_SECRET", ""),
			RefreshToken:     getEnv("GOOGLE_REFRESH_TOKEN", ""),
			TokenURL:         getEnv("GOOGLE_TOKEN_URL", GoogleTokenURL),
			PublisherBaseURL: getEnv("GOOGLE_PUBLISHER_BASE_URL", GooglePublisherBaseURL),
		},
		Vendor: VendorConfig{
			Timeout: getEnvAsDuration("VENDOR_HTTP_TIMEOUT", 0),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"APPLE_API_TOKEN", c.Apple.APIToken},
		{"ANDROID_PACKAGE_NAME", c.Google.PackageName},
		{"GOOGLE_CLIENT_ID", c.Google.ClientID},
		{"GOOGLE_CLIENT_SECRET", c.Google.ClientSecret},
		{"GOOGLE_REFRESH_TOKEN", c.Google.RefreshToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s environment variable is required", r.name)
		}
	}

	if c.Apple.Environment != appleEnvironmentProduction && c.Apple.Environment != appleEnvironmentSandbox {
		return fmt.Errorf("APPLE_ENVIRONMENT must be %q or %q, got %q",
			appleEnvironmentProduction, appleEnvironmentSandbox, c.Apple.Environment)
	}

	if c.Vendor.Timeout < 0 {
		return fmt.Errorf("VENDOR_HTTP_TIMEOUT must not be negative")
	}

	return nil
}

func appleBaseURL(env string) string {
	if env == appleEnvironmentSandbox {
		return AppleSandboxBaseURL
	}
	return AppleProductionBaseURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
