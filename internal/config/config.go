package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Logging LoggingConfig          `mapstructure:"logging"`
	Server  ServerConfig           `mapstructure:"server"`
	Trace   TraceConfig            `mapstructure:"trace"`
	Store   StoreConfig            `mapstructure:"store"`
	Engine  EngineConfig           `mapstructure:"engine"`
	Notion  NotionConfig           `mapstructure:"notion"`
	Agents  map[string]AgentConfig `mapstructure:"agents"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes the daemon front door.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIKey          string        `mapstructure:"api_key"` // empty disables the check
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TraceConfig locates session traces.
type TraceConfig struct {
	Dir string `mapstructure:"dir"`
}

// StoreConfig locates the session ledger. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig points at the generation engine.
type EngineConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Transport string        `mapstructure:"transport"` // connect or ndjson
	Timeout   time.Duration `mapstructure:"timeout"`   // whole-session bound, 0 = none
}

// NotionConfig configures the page store client.
type NotionConfig struct {
	Token               string          `mapstructure:"token"`
	BaseURL             string          `mapstructure:"base_url"`
	Version             string          `mapstructure:"version"`
	Timeout             time.Duration   `mapstructure:"timeout"`
	MaxAttempts         int             `mapstructure:"max_attempts"`
	Backoff             []time.Duration `mapstructure:"backoff"`
	MaxBlocksPerRequest int             `mapstructure:"max_blocks_per_request"`
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: CLAUDEFLOW_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAUDEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("trace.dir", "logs")
	v.SetDefault("store.path", "data/sessions.db")

	v.SetDefault("engine.base_url", "http://127.0.0.1:7070")
	v.SetDefault("engine.transport", "connect")
	v.SetDefault("engine.timeout", "0s")

	v.SetDefault("notion.base_url", "https://api.notion.com")
	v.SetDefault("notion.version", "2022-06-28")
	v.SetDefault("notion.timeout", "30s")
	v.SetDefault("notion.max_attempts", 3)
	v.SetDefault("notion.backoff", []string{"1s", "2s", "4s"})
	v.SetDefault("notion.max_blocks_per_request", 100)
}

// Validate performs semantic validation of the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be >= 0")
	}
	if strings.TrimSpace(c.Trace.Dir) == "" {
		return errors.New("trace.dir is required")
	}

	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		return errors.New("engine.base_url is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Engine.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("engine.transport must be one of connect or ndjson, got %q", c.Engine.Transport)
	}
	if c.Engine.Timeout < 0 {
		return errors.New("engine.timeout must be >= 0")
	}

	if c.Notion.MaxAttempts <= 0 {
		return errors.New("notion.max_attempts must be > 0")
	}
	if len(c.Notion.Backoff) < c.Notion.MaxAttempts-1 {
		return fmt.Errorf("notion.backoff needs at least %d delays for %d attempts", c.Notion.MaxAttempts-1, c.Notion.MaxAttempts)
	}
	for i, d := range c.Notion.Backoff {
		if d < 0 {
			return fmt.Errorf("notion.backoff[%d] must be >= 0", i)
		}
	}
	if c.Notion.MaxBlocksPerRequest < 1 || c.Notion.MaxBlocksPerRequest > 100 {
		return fmt.Errorf("notion.max_blocks_per_request must be within [1,100], got %d", c.Notion.MaxBlocksPerRequest)
	}

	if len(c.Agents) == 0 {
		return errors.New("at least one agent must be configured")
	}
	for name, a := range c.Agents {
		if err := a.validate(name); err != nil {
			return err
		}
	}

	return nil
}
