// Package config loads orchestrator configuration from a YAML file with
// an environment-variable overlay, the way the wider example corpus does:
// viper, a prefixed env namespace, explicit defaults, and a Validate
// step that collects all problems into one error instead of failing on
// the first field.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Project is one configured project the assistant can be pointed at.
type Project struct {
	Name        string `mapstructure:"name"`
	Path        string `mapstructure:"path"`
	Description string `mapstructure:"description"`
}

// ServerConfig holds the debug/health HTTP surface configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SessionConfig holds Session Registry tuning.
type SessionConfig struct {
	MaxSessions     int           `mapstructure:"maxSessions"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ReapInterval    time.Duration `mapstructure:"reapInterval"`
	RestrictToKnown bool          `mapstructure:"restrictToKnownProjects"`
}

// HandlerConfig holds Assistant Handler defaults.
type HandlerConfig struct {
	CLIPath          string        `mapstructure:"cliPath"`
	DefaultArgs      []string      `mapstructure:"defaultArgs"`
	OutputFormat     string        `mapstructure:"outputFormat"` // text|json|stream-json
	Model            string        `mapstructure:"model"`
	UsePTY           bool          `mapstructure:"usePty"`
	StartupProbe     time.Duration `mapstructure:"startupProbe"`
	GraceWindow      time.Duration `mapstructure:"graceWindow"`
	QuietWindow      time.Duration `mapstructure:"quietWindow"`
	MaxInputBytes    int           `mapstructure:"maxInputBytes"`
	StderrRingBytes  int           `mapstructure:"stderrRingBytes"`
	OutputBufferSize int           `mapstructure:"outputBufferSize"`
}

// QueueConfig holds Task Queue Manager tuning.
type QueueConfig struct {
	DataDir        string        `mapstructure:"dataDir"`
	HistoryLimit   int           `mapstructure:"historyLimit"`
	DefaultRetries int           `mapstructure:"defaultRetries"`
	TaskTimeout    time.Duration `mapstructure:"taskTimeout"`
	DebounceWindow time.Duration `mapstructure:"debounceWindow"`
}

// CronConfig holds Cron Scheduler tuning.
type CronConfig struct {
	CatalogPath string        `mapstructure:"catalogPath"`
	TickCeiling time.Duration `mapstructure:"tickCeiling"`
}

// EventBusConfig selects and tunes the inter-component event bus.
type EventBusConfig struct {
	NATSURL string `mapstructure:"natsUrl"` // empty = in-process bus
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	OTLPEndpoint     string `mapstructure:"otlpEndpoint"`
	ServiceName      string `mapstructure:"serviceName"`
}

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Projects []Project       `mapstructure:"projects"`
	Session  SessionConfig   `mapstructure:"session"`
	Handler  HandlerConfig   `mapstructure:"handler"`
	Queue    QueueConfig     `mapstructure:"queue"`
	Cron     CronConfig      `mapstructure:"cron"`
	EventBus EventBusConfig  `mapstructure:"eventBus"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// LoggingConfig mirrors logging.Config so config files can set it
// without internal/config importing internal/logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

const envPrefix = "ORCH"

// Load reads configuration from environment variables, an optional
// config.yaml, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath is Load with an explicit extra config file search path,
// useful for tests.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchestrator/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)

	v.SetDefault("session.maxSessions", 8)
	v.SetDefault("session.idleTimeout", "60m")
	v.SetDefault("session.reapInterval", "1m")
	v.SetDefault("session.restrictToKnownProjects", false)

	v.SetDefault("handler.cliPath", "claude")
	v.SetDefault("handler.defaultArgs", []string{})
	v.SetDefault("handler.outputFormat", "stream-json")
	v.SetDefault("handler.usePty", false)
	v.SetDefault("handler.startupProbe", "2s")
	v.SetDefault("handler.graceWindow", "10s")
	v.SetDefault("handler.quietWindow", "200ms")
	v.SetDefault("handler.maxInputBytes", 32768)
	v.SetDefault("handler.stderrRingBytes", 65536)
	v.SetDefault("handler.outputBufferSize", 256)

	v.SetDefault("queue.dataDir", "./data")
	v.SetDefault("queue.historyLimit", 100)
	v.SetDefault("queue.defaultRetries", 0)
	v.SetDefault("queue.taskTimeout", "10m")
	v.SetDefault("queue.debounceWindow", "500ms")

	v.SetDefault("cron.catalogPath", "./catalog.yaml")
	v.SetDefault("cron.tickCeiling", "60s")

	v.SetDefault("eventBus.natsUrl", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "session-orchestrator")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Validate collects every configuration problem instead of stopping at
// the first one, matching the teacher's validate() shape.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Session.MaxSessions <= 0 {
		errs = append(errs, "session.maxSessions must be positive")
	}
	if cfg.Handler.CLIPath == "" {
		errs = append(errs, "handler.cliPath must be set")
	}
	switch cfg.Handler.OutputFormat {
	case "text", "json", "stream-json":
	default:
		errs = append(errs, "handler.outputFormat must be one of: text, json, stream-json")
	}
	if cfg.Handler.MaxInputBytes <= 0 {
		errs = append(errs, "handler.maxInputBytes must be positive")
	}
	if cfg.Queue.HistoryLimit <= 0 {
		errs = append(errs, "queue.historyLimit must be positive")
	}
	if cfg.Queue.DataDir == "" {
		errs = append(errs, "queue.dataDir must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ProjectByName looks up a configured project by name.
func (c *Config) ProjectByName(name string) (Project, bool) {
	for _, p := range c.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return Project{}, false
}
