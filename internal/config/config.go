package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "focusline.yml"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
)

// Config models focusline.yml.
type Config struct {
	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`
	Timer struct {
		WorkMinutes        int `yaml:"work_minutes"`
		BreakMinutes       int `yaml:"break_minutes"`
		SettleDelaySeconds int `yaml:"settle_delay_seconds"`
		TickMillis         int `yaml:"tick_millis"`
	} `yaml:"timer"`
	Goals struct {
		DoneTasks int     `yaml:"done_tasks"`
		Minutes   float64 `yaml:"minutes"`
	} `yaml:"goals"`
	Store struct {
		Backend string `yaml:"backend"`
		URL     string `yaml:"url"`
		Token   string `yaml:"token,omitempty"`
	} `yaml:"store"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User.ID) == "" {
		return fmt.Errorf("config.user.id is required")
	}
	if strings.Contains(c.User.ID, "/") {
		return fmt.Errorf("config.user.id must not contain '/'")
	}
	if c.Timer.WorkMinutes <= 0 {
		return fmt.Errorf("config.timer.work_minutes must be positive")
	}
	if c.Timer.BreakMinutes <= 0 {
		return fmt.Errorf("config.timer.break_minutes must be positive")
	}
	if c.Timer.SettleDelaySeconds < 0 {
		return fmt.Errorf("config.timer.settle_delay_seconds must not be negative")
	}
	if c.Timer.TickMillis <= 0 {
		return fmt.Errorf("config.timer.tick_millis must be positive")
	}
	if c.Goals.DoneTasks <= 0 {
		return fmt.Errorf("config.goals.done_tasks must be positive")
	}
	if c.Goals.Minutes <= 0 {
		return fmt.Errorf("config.goals.minutes must be positive")
	}
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendHTTP:
		if strings.TrimSpace(c.Store.URL) == "" {
			return fmt.Errorf("config.store.url is required for the http backend")
		}
	default:
		return fmt.Errorf("config.store.backend must be %q or %q", BackendSQLite, BackendHTTP)
	}
	return nil
}

func (c *Config) WorkDuration() time.Duration {
	return time.Duration(c.Timer.WorkMinutes) * time.Minute
}

func (c *Config) BreakDuration() time.Duration {
	return time.Duration(c.Timer.BreakMinutes) * time.Minute
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Timer.SettleDelaySeconds) * time.Second
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickMillis) * time.Millisecond
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load reads and validates the workspace config.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with focusline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `user:
  id: testUser

timer:
  work_minutes: 25
  break_minutes: 5
  settle_delay_seconds: 1
  tick_millis: 1000

goals:
  done_tasks: 3
  minutes: 70

store:
  backend: sqlite
  url: ""

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
