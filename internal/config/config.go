package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"canvass/internal/domain"
)

// Config models canvass.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Surveys struct {
		DefaultKind     string `yaml:"default_kind"`
		DefaultSchedule string `yaml:"default_schedule"`
		Appearance      struct {
			ButtonColor     string `yaml:"button_color"`
			ButtonTextColor string `yaml:"button_text_color"`
			BackgroundColor string `yaml:"background_color"`
			Position        string `yaml:"position"`
		} `yaml:"appearance"`
		DeviceTypes []string `yaml:"device_types"`
	} `yaml:"surveys"`
	Invites struct {
		ExpiryDays   int `yaml:"expiry_days"`
		DefaultLevel int `yaml:"default_level"`
	} `yaml:"invites"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with canvass org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	switch c.Surveys.DefaultKind {
	case "", "popover", "widget", "api", "announcement":
	default:
		return fmt.Errorf("config.surveys.default_kind %q unknown", c.Surveys.DefaultKind)
	}
	switch c.Surveys.DefaultSchedule {
	case "", "once", "recurring", "always":
	default:
		return fmt.Errorf("config.surveys.default_schedule %q unknown", c.Surveys.DefaultSchedule)
	}
	if c.Invites.ExpiryDays < 0 {
		return fmt.Errorf("config.invites.expiry_days must not be negative")
	}
	if c.Invites.DefaultLevel != 0 && !domain.ValidLevel(c.Invites.DefaultLevel) {
		return fmt.Errorf("config.invites.default_level %d unknown", c.Invites.DefaultLevel)
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// InviteExpiryDays returns the configured invite lifetime, defaulting to 3.
func (c *Config) InviteExpiryDays() int {
	if c.Invites.ExpiryDays > 0 {
		return c.Invites.ExpiryDays
	}
	return 3
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "canvass.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: ""

surveys:
  default_kind: popover
  default_schedule: once
  appearance:
    button_color: "#1d4aff"
    button_text_color: "#ffffff"
    background_color: "#eeeded"
    position: right
  device_types: [Desktop, Mobile, Tablet]

invites:
  expiry_days: 3
  default_level: 1
`
