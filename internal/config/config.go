// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds all harness configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev" validate:"oneof=dev test prod"`
	// BaseURL is the application under test. Every request is relative to it.
	BaseURL  string `env:"APP_URL" envDefault:"http://localhost:5000" validate:"required,url"`
	Username string `env:"HARNESS_USERNAME" envDefault:"test_user" validate:"required"`
	Password string `env:"HARNESS_PASSWORD" envDefault:"test_password" validate:"required"`

	FixturePath  string        `env:"HARNESS_FIXTURE_PATH" envDefault:"test/fixtures/sample.txt" validate:"required"`
	HTTPTimeout  time.Duration `env:"HARNESS_HTTP_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	ReadyTimeout time.Duration `env:"HARNESS_READY_TIMEOUT" envDefault:"10s" validate:"gte=0"`
	Parallel     int           `env:"HARNESS_PARALLEL" envDefault:"1" validate:"gte=1,lte=32"`
	Scenarios    []string      `env:"HARNESS_SCENARIOS" envSeparator:","`
	// StrictStatus narrows the 200-302 success band of register and submit
	// to exactly 200 or 302.
	StrictStatus bool `env:"HARNESS_STRICT_STATUS" envDefault:"false"`

	PollJobs     bool          `env:"HARNESS_POLL_JOBS" envDefault:"false"`
	PollInterval time.Duration `env:"HARNESS_POLL_INTERVAL" envDefault:"1s" validate:"gt=0"`
	PollTimeout  time.Duration `env:"HARNESS_POLL_TIMEOUT" envDefault:"60s" validate:"gt=0"`

	OutputDest string `env:"HARNESS_OUTPUT_DEST" envDefault:"test@example.com" validate:"required"`
	SubmitURL  string `env:"HARNESS_SUBMIT_URL" envDefault:"https://example.com/sample.txt" validate:"required,url"`

	ReportFormat string `env:"HARNESS_REPORT_FORMAT" envDefault:"text" validate:"oneof=text json yaml"`
	DumpDir      string `env:"HARNESS_DUMP_DIR"`
	MetricsFile  string `env:"HARNESS_METRICS_FILE"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"detector-gadget-e2e"`

	Twin TwinConfig
}

// TwinConfig configures the local application twin.
type TwinConfig struct {
	Port            int           `env:"TWIN_PORT" envDefault:"5000" validate:"gte=0,lte=65535"`
	SessionSecret   string        `env:"TWIN_SESSION_SECRET" envDefault:"twin-secret" validate:"required"`
	RedisURL        string        `env:"TWIN_REDIS_URL"`
	WorkerInterval  time.Duration `env:"TWIN_WORKER_INTERVAL" envDefault:"500ms" validate:"gt=0"`
	RateLimitPerMin int           `env:"TWIN_RATE_LIMIT_PER_MIN" envDefault:"120" validate:"gte=1"`
	CORSOrigins     string        `env:"TWIN_CORS_ORIGINS" envDefault:"*"`
	// SubmitPerMin limits job submissions per user; needs TWIN_REDIS_URL.
	SubmitPerMin int `env:"TWIN_SUBMIT_PER_MIN" envDefault:"0" validate:"gte=0"`
}

// Load parses environment variables into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints declared in struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDev reports whether the harness is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsTest reports whether the harness is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// ScenarioEnabled reports whether name passes the HARNESS_SCENARIOS filter.
// An empty filter enables everything.
func (c Config) ScenarioEnabled(name string) bool {
	if len(c.Scenarios) == 0 {
		return true
	}
	for _, s := range c.Scenarios {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// Default poll timing, and the shorter timing test mode uses in its place.
const (
	defaultPollInterval = time.Second
	defaultPollTimeout  = 60 * time.Second
	testPollInterval    = 50 * time.Millisecond
	testPollTimeout     = 5 * time.Second
)

// GetPollBackoffConfig returns the poll interval and overall budget. Test mode
// shortens whichever of the two still holds its default; explicit values win.
func (c Config) GetPollBackoffConfig() (interval, timeout time.Duration) {
	interval, timeout = c.PollInterval, c.PollTimeout
	if !c.IsTest() {
		return interval, timeout
	}
	if interval == defaultPollInterval {
		interval = testPollInterval
	}
	if timeout == defaultPollTimeout {
		timeout = testPollTimeout
	}
	return interval, timeout
}

// Default returns the configuration Load would produce with an empty environment.
func Default() Config {
	return Config{
		AppEnv:          "dev",
		BaseURL:         "http://localhost:5000",
		Username:        "test_user",
		Password:        "test_password",
		FixturePath:     "test/fixtures/sample.txt",
		HTTPTimeout:     15 * time.Second,
		ReadyTimeout:    10 * time.Second,
		Parallel:        1,
		PollInterval:    defaultPollInterval,
		PollTimeout:     defaultPollTimeout,
		OutputDest:      "test@example.com",
		SubmitURL:       "https://example.com/sample.txt",
		ReportFormat:    "text",
		OTELServiceName: "detector-gadget-e2e",
		Twin: TwinConfig{
			Port:            5000,
			SessionSecret:   "twin-secret",
			WorkerInterval:  500 * time.Millisecond,
			RateLimitPerMin: 120,
			CORSOrigins:     "*",
		},
	}
}
