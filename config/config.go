// Package config loads service configuration from the environment and
// an optional YAML file.
//
// Loading order: `.env` (when present) is loaded into the process
// environment, then the YAML file named by CONFIG_FILE (when set) is
// decoded, then environment variables override file values. Required
// credentials are validated before the config is returned, so a
// service refuses to start rather than run without them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrMissingRelayKey   = errors.New("RELAY_API_KEY is required")
	ErrMissingLLMKey     = errors.New("LLM API key is required for this provider")
	ErrMissingNewsKey    = errors.New("NEWS_API_KEY is required")
	ErrMissingScraperKey = errors.New("APIFY_TOKEN is required")
	ErrUnknownProvider   = errors.New("LLM_PROVIDER must be one of: openai, anthropic, bedrock, gemini")
	ErrInvalidLogLevel   = errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
)

// Options declares what a service needs from its configuration.
type Options struct {
	// Service is the binary name, used as the fallback agent ID.
	Service string
	// RequireNews makes a news API key mandatory.
	RequireNews bool
	// RequireScraper makes a scraper token mandatory.
	RequireScraper bool
}

// Config is the complete configuration of one agent service.
type Config struct {
	// AgentID identifies the agent on the Relay platform.
	AgentID string `yaml:"agent_id"`
	// Port is the HTTP listen port.
	Port int `yaml:"port"`
	// Schedule is an optional cron expression for unattended runs.
	Schedule string `yaml:"schedule"`

	Relay   RelayConfig   `yaml:"relay"`
	LLM     LLMConfig     `yaml:"llm"`
	News    NewsConfig    `yaml:"news"`
	Scraper ScraperConfig `yaml:"scraper"`
	Events  EventsConfig  `yaml:"events"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// RelayConfig points the service at the Relay platform.
type RelayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Region   string `yaml:"region"`
}

// NewsConfig configures the news API client.
type NewsConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// ScraperConfig configures the tweet scraper client.
type ScraperConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Actor   string `yaml:"actor"`
}

// EventsConfig configures the optional Kafka event emitter.
type EventsConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// RedisConfig enables the Redis run lock when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Structured switches from text lines to JSON lines.
	Structured bool `yaml:"structured"`
}

// SlogLevel maps the configured level name to a slog level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TracingConfig configures span export.
type TracingConfig struct {
	// OTLPEndpoint enables OTLP gRPC export when set.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// Console mirrors spans to stdout.
	Console bool `yaml:"console"`
}

// Load builds the service configuration and validates it against opts.
func Load(opts Options) (*Config, error) {
	// Non-fatal when no .env exists.
	_ = godotenv.Load()

	cfg := &Config{}

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(opts)

	if err := cfg.validate(opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.AgentID, "RELAY_AGENT_ID")
	setString(&c.Schedule, "RUN_SCHEDULE")
	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}

	setString(&c.Relay.BaseURL, "RELAY_API_URL")
	setString(&c.Relay.APIKey, "RELAY_API_KEY")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Region, "AWS_REGION")

	setString(&c.News.BaseURL, "NEWS_API_URL")
	setString(&c.News.APIKey, "NEWS_API_KEY")
	if err := setInt(&c.News.RequestsPerMinute, "NEWS_REQUESTS_PER_MINUTE"); err != nil {
		return err
	}

	setString(&c.Scraper.BaseURL, "APIFY_API_URL")
	setString(&c.Scraper.Token, "APIFY_TOKEN")
	setString(&c.Scraper.Actor, "APIFY_ACTOR")

	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Events.KafkaBrokers = splitList(v)
	}
	setString(&c.Events.KafkaTopic, "KAFKA_TOPIC")

	setString(&c.Redis.URL, "REDIS_URL")

	setString(&c.Logging.Level, "LOG_LEVEL")
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Logging.Structured = strings.EqualFold(v, "json")
	}

	setString(&c.Tracing.OTLPEndpoint, "OTLP_ENDPOINT")
	if v := getenv("TRACE_CONSOLE"); v != "" {
		c.Tracing.Console = strings.EqualFold(v, "true")
	}

	return nil
}

func (c *Config) applyDefaults(opts Options) {
	if c.AgentID == "" {
		c.AgentID = opts.Service
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	// Provider keys have conventional environment names; honor them
	// when the generic one is unset.
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "", "openai":
			c.LLM.APIKey = getenv("OPENAI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = getenv("ANTHROPIC_API_KEY")
		case "gemini":
			c.LLM.APIKey = getenv("GEMINI_API_KEY")
		}
	}
}

func (c *Config) validate(opts Options) error {
	if c.Relay.APIKey == "" {
		return ErrMissingRelayKey
	}

	switch c.LLM.Provider {
	case "", "openai", "anthropic", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: %s", ErrMissingLLMKey, providerName(c.LLM.Provider))
		}
	case "bedrock":
		// Credentials come from the AWS chain.
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownProvider, c.LLM.Provider)
	}

	if opts.RequireNews && c.News.APIKey == "" {
		return ErrMissingNewsKey
	}
	if opts.RequireScraper && c.Scraper.Token == "" {
		return ErrMissingScraperKey
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}

func providerName(provider string) string {
	if provider == "" {
		return "openai"
	}
	return provider
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: got %q", key, v)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
