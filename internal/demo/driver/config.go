package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL   string
	APIKey       string
	DriverID     string
	Interval     time.Duration
	HTTPTimeout  time.Duration
	Explain      bool
	ExplainRatio int
	Seed         int64
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:   "http://localhost:8080",
		APIKey:       "",
		DriverID:     "demo-driver",
		Interval:     5 * time.Second,
		HTTPTimeout:  60 * time.Second,
		Explain:      false,
		ExplainRatio: 25,
		Seed:         time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "ASKQL_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKQL_DEMO_API_KEY", &cfg.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKQL_DEMO_DRIVER_ID", &cfg.DriverID); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKQL_DEMO_INTERVAL", &cfg.Interval); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKQL_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKQL_DEMO_EXPLAIN", &cfg.Explain); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKQL_DEMO_EXPLAIN_RATIO", &cfg.ExplainRatio); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "ASKQL_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("ASKQL_DEMO_API_URL is required")
	}
	if strings.TrimSpace(cfg.DriverID) == "" {
		return Config{}, fmt.Errorf("ASKQL_DEMO_DRIVER_ID is required")
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("ASKQL_DEMO_INTERVAL must be > 0")
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("ASKQL_DEMO_HTTP_TIMEOUT must be > 0")
	}
	if cfg.ExplainRatio < 0 || cfg.ExplainRatio > 100 {
		return Config{}, fmt.Errorf("ASKQL_DEMO_EXPLAIN_RATIO must be between 0 and 100")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.DriverID = strings.TrimSpace(cfg.DriverID)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
