package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// EnvPrefix is prepended to every override variable, e.g. REVIEWER_DISPATCH_MAX_CONCURRENT.
const EnvPrefix = "REVIEWER_"

// Load reads configuration from a YAML file, applies REVIEWER_* overrides
// and fills defaults. It does not validate; call Validate before use.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "reviewer"
	}

	d := &cfg.Dispatch
	if d.MaxConcurrent == 0 {
		d.MaxConcurrent = 50
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = 3
	}
	if d.Interval == 0 {
		d.Interval = 5 * time.Minute
	}
	if d.CallTimeout == 0 {
		d.CallTimeout = 2 * time.Minute
	}
	if d.BatchSize == 0 {
		d.BatchSize = 500
	}
	if d.BackoffBase == 0 {
		d.BackoffBase = 2 * time.Second
	}
	if d.BackoffMax == 0 {
		d.BackoffMax = 60 * time.Second
	}
	if d.LockTTL == 0 {
		d.LockTTL = d.Interval + 10*time.Minute
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "grok-4-1-fast-reasoning"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}
}

// Validate reports every invalid setting at once. The returned error
// wraps domain.ErrConfiguration.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	d := c.Dispatch
	check(d.MaxConcurrent >= 1, "dispatch.max_concurrent must be >= 1, got %d", d.MaxConcurrent)
	check(d.MaxAttempts >= 1, "dispatch.max_attempts must be >= 1, got %d", d.MaxAttempts)
	check(d.Interval > 0, "dispatch.interval must be positive")
	check(d.CallTimeout > 0, "dispatch.call_timeout must be positive")
	check(d.BatchSize >= 1, "dispatch.batch_size must be >= 1, got %d", d.BatchSize)
	check(d.BackoffBase > 0 && d.BackoffMax >= d.BackoffBase,
		"dispatch.backoff_base must be positive and <= backoff_max")

	check(strings.TrimSpace(c.LLM.Model) != "", "llm.model is required")
	check(c.LLM.RequestsPerSecond >= 0, "llm.requests_per_second must not be negative")
	if len(c.LLM.Pricing) > 0 {
		_, ok := c.LLM.Pricing[c.LLM.Model]
		check(ok, "llm.model %q has no entry in llm.pricing", c.LLM.Model)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		check(c.Store.Database.URL != "", "store.database.url is required for the postgres driver")
	case DriverSheets:
		check(c.Store.Sheets.CredentialsFile != "", "store.sheets.credentials_file is required for the sheets driver")
		check(len(c.Store.Sheets.Spreadsheets) > 0, "store.sheets.spreadsheets must not be empty")
	default:
		check(false, "unknown store.driver %q", c.Store.Driver)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
}
