// internal/config/config.go

// Package config defines the runtime configuration for pilot-cli and its
// loading rules. Values resolve in the usual precedence order: explicit
// flags, environment variables, the config file, then the defaults below.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Supported gateway providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the root configuration object.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance the driver launches.
type BrowserConfig struct {
	// Headless runs the browser without a visible window. The default is a
	// visible browser so a human can watch (and, for purchases, take over).
	Headless bool `mapstructure:"headless" yaml:"headless"`

	// ViewportWidth and ViewportHeight are the page dimensions in CSS pixels.
	// They are also reported to the model as the screen size, so screenshots
	// and the coordinates the model answers with stay in the same space.
	ViewportWidth  int `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height" yaml:"viewport_height"`

	// Args appends extra command line flags to the Chrome launch.
	Args []string `mapstructure:"args" yaml:"args"`

	// UserAgent overrides the browser's User-Agent string when non-empty.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`

	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// GatewayConfig configures the model gateway that plans browser actions.
type GatewayConfig struct {
	// Provider selects the backend: "openai" for the computer use preview
	// API, "gemini" for the Google GenAI API.
	Provider string `mapstructure:"provider" yaml:"provider"`

	// BaseURL is the API root for the openai provider.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// APIKey authenticates against the provider. Normally supplied via
	// environment variable rather than the config file.
	APIKey string `mapstructure:"api_key" yaml:"-"`

	// Model overrides the provider's default model name.
	Model string `mapstructure:"model" yaml:"model"`

	// Environment is advertised to the model in the tool declaration.
	Environment string `mapstructure:"environment" yaml:"environment"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// RequestsPerMinute throttles gateway calls. Zero disables throttling.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`

	// ForceHTTP2 negotiates HTTP/2 with the gateway where possible.
	ForceHTTP2 bool `mapstructure:"force_http2" yaml:"force_http2"`
}

// AgentConfig controls the stepping loop.
type AgentConfig struct {
	// MaxSteps caps the number of gateway round trips per task.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`

	// StartURL is the page a task opens on when none is given.
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pilot-cli")
	v.SetDefault("logger.log_file", "pilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport_width", 1024)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "90s")

	// -- Gateway --
	v.SetDefault("gateway.provider", ProviderOpenAI)
	v.SetDefault("gateway.base_url", "https://api.openai.com/v1")
	v.SetDefault("gateway.environment", "browser")
	v.SetDefault("gateway.request_timeout", "120s")
	v.SetDefault("gateway.requests_per_minute", 0)
	v.SetDefault("gateway.force_http2", true)

	// -- Agent --
	v.SetDefault("agent.max_steps", 50)
	v.SetDefault("agent.start_url", "https://google.com")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data. The provider specific
	// names are accepted so existing shell setups keep working.
	v.BindEnv("gateway.api_key", "PILOT_GATEWAY_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway configuration invalid: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.ViewportWidth <= 0 || b.ViewportHeight <= 0 {
		return fmt.Errorf("viewport_width and viewport_height must be positive integers")
	}
	if b.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the gateway settings.
func (g *GatewayConfig) Validate() error {
	switch g.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, g.Provider)
	}
	if g.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	if g.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// Validate checks the agent settings. A zero step budget is allowed and
// makes a run end before the first gateway call.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}
	if a.StartURL != "" {
		if _, err := url.ParseRequestURI(a.StartURL); err != nil {
			return fmt.Errorf("start_url is not a valid URL: %w", err)
		}
	}
	return nil
}
