package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultAPIURL         = "http://localhost:8080"
	DefaultRequestTimeout = 15 * time.Second
	DefaultCheckDebounce  = 500 * time.Millisecond
)

// ClientConfig configures the account API client and the lifeflow CLI.
type ClientConfig struct {
	APIURL         string
	RequestTimeout time.Duration
	CheckDebounce  time.Duration
	LogLevel       string
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		APIURL:         getEnv("LIFEFLOW_API_URL", DefaultAPIURL),
		RequestTimeout: getEnvAsDuration("LIFEFLOW_REQUEST_TIMEOUT", DefaultRequestTimeout),
		CheckDebounce:  getEnvAsDuration("LIFEFLOW_CHECK_DEBOUNCE", DefaultCheckDebounce),
		LogLevel:       getEnv("LIFEFLOW_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("LIFEFLOW_API_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("LIFEFLOW_API_URL must use http or https, got %q", u.Scheme)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("LIFEFLOW_REQUEST_TIMEOUT must be positive")
	}
	if c.CheckDebounce < 0 {
		return fmt.Errorf("LIFEFLOW_CHECK_DEBOUNCE must not be negative")
	}
	return nil
}
