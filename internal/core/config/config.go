package config

import (
	"time"

	redisclient "github.com/vietddude/reviewer/internal/infra/redis"
	"github.com/vietddude/reviewer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"   envPrefix:"SERVER_"`
	Dispatch DispatchConfig     `yaml:"dispatch" envPrefix:"DISPATCH_"`
	LLM      LLMConfig          `yaml:"llm"      envPrefix:"LLM_"`
	Store    StoreConfig        `yaml:"store"    envPrefix:"STORE_"`
	Redis    redisclient.Config `yaml:"redis"    envPrefix:"REDIS_"`
	Logging  LoggingConfig      `yaml:"logging"  envPrefix:"LOG_"`
	Tracing  TracingConfig      `yaml:"tracing"  envPrefix:"TRACING_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"` // debug, info, warn, error
}

// TracingConfig enables OTLP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"     env:"ENDPOINT"` // OTLP/HTTP collector URL, e.g. http://localhost:4318
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// DispatchConfig drives the cycle scheduler and dispatcher.
type DispatchConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	MaxAttempts   int           `yaml:"max_attempts"   env:"MAX_ATTEMPTS"`
	Interval      time.Duration `yaml:"interval"       env:"INTERVAL"`
	CallTimeout   time.Duration `yaml:"call_timeout"   env:"CALL_TIMEOUT"`
	BatchSize     int           `yaml:"batch_size"     env:"BATCH_SIZE"`
	BackoffBase   time.Duration `yaml:"backoff_base"   env:"BACKOFF_BASE"`
	BackoffMax    time.Duration `yaml:"backoff_max"    env:"BACKOFF_MAX"`
	LockTTL       time.Duration `yaml:"lock_ttl"       env:"LOCK_TTL"` // only used with redis
}

// LLMConfig configures the classifier.
type LLMConfig struct {
	Model             string                  `yaml:"model"               env:"MODEL"`
	BaseURL           string                  `yaml:"base_url"            env:"BASE_URL"`
	APIKey            string                  `yaml:"api_key"             env:"API_KEY"`
	RequestsPerSecond float64                 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"` // 0 = unlimited
	Spelling          bool                    `yaml:"spelling"            env:"SPELLING"`
	Pricing           map[string]ModelPricing `yaml:"pricing"`
}

// ModelPricing holds USD rates per one million tokens.
type ModelPricing struct {
	Input       float64 `yaml:"input"`
	CachedInput float64 `yaml:"cached_input"`
	Output      float64 `yaml:"output"`
}

// StoreConfig selects and configures the review store.
type StoreConfig struct {
	Driver   string          `yaml:"driver"   env:"DRIVER"` // memory, postgres, sheets
	Database postgres.Config `yaml:"database" envPrefix:"DATABASE_"`
	Sheets   SheetsConfig    `yaml:"sheets"   envPrefix:"SHEETS_"`
}

// SheetsConfig lists the spreadsheets to poll.
type SheetsConfig struct {
	CredentialsFile string            `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
	Spreadsheets    map[string]string `yaml:"spreadsheets"` // name -> spreadsheet id
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSheets   = "sheets"
)
